package dal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/Billy-Davies-2/pricing-game/internal/models"
)

const sessionDocID = "session"

// MongoDAL implements SessionDAL on MongoDB. Each team is one document
// keyed by its team key, with history embedded.
type MongoDAL struct {
	client   *mongo.Client
	game     *mongo.Collection
	teams    *mongo.Collection
	counters *mongo.Collection
}

type gameDoc struct {
	ID                 string `bson:"_id"`
	models.GameSession `bson:",inline"`
}

type teamDoc struct {
	Key          string              `bson:"_id"`
	Name         string              `bson:"name"`
	JoinedAt     time.Time           `bson:"joinedAt"`
	TotalProfit  float64             `bson:"totalProfit"`
	History      []models.RoundEntry `bson:"history"`
	RoundsPlayed int                 `bson:"roundsPlayed"`
	Seq          int64               `bson:"seq"`
}

func (d teamDoc) team() models.Team {
	history := d.History
	if history == nil {
		history = []models.RoundEntry{}
	}
	return models.Team{
		Key:         d.Key,
		Name:        d.Name,
		JoinedAt:    d.JoinedAt.UTC(),
		TotalProfit: d.TotalProfit,
		History:     history,
	}
}

// NewMongoDAL connects to uri and prepares the collections in database
func NewMongoDAL(ctx context.Context, uri, database string) (*MongoDAL, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetTimeout(30 * time.Second).
		SetConnectTimeout(30 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(database)
	m := &MongoDAL{
		client:   client,
		game:     db.Collection("game"),
		teams:    db.Collection("teams"),
		counters: db.Collection("counters"),
	}

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "joinedAt", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetName("join_order"),
	}
	if _, err := m.teams.Indexes().CreateOne(ctx, indexModel); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb index: %w", err)
	}

	logger.Info("Connected to MongoDB", "database", database)
	return m, nil
}

func (m *MongoDAL) GetGame(ctx context.Context) (*models.GameSession, error) {
	var doc gameDoc
	err := m.game.FindOne(ctx, bson.M{"_id": sessionDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	g := doc.GameSession
	if g.StartedAt != nil {
		ts := g.StartedAt.UTC()
		g.StartedAt = &ts
	}
	return &g, nil
}

func (m *MongoDAL) SaveGame(ctx context.Context, game *models.GameSession) error {
	doc := gameDoc{ID: sessionDocID, GameSession: *game}
	_, err := m.game.ReplaceOne(ctx, bson.M{"_id": sessionDocID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoDAL) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "teams"},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	return counter.Seq, err
}

func (m *MongoDAL) CreateTeam(ctx context.Context, team models.Team) error {
	seq, err := m.nextSeq(ctx)
	if err != nil {
		return err
	}

	_, err = m.teams.InsertOne(ctx, teamDoc{
		Key:      team.Key,
		Name:     team.Name,
		JoinedAt: team.JoinedAt,
		History:  []models.RoundEntry{},
		Seq:      seq,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrTeamExists
	}
	return err
}

func (m *MongoDAL) GetTeam(ctx context.Context, key string) (*models.Team, error) {
	var doc teamDoc
	err := m.teams.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t := doc.team()
	return &t, nil
}

func (m *MongoDAL) ListTeams(ctx context.Context) ([]models.Team, error) {
	cursor, err := m.teams.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "joinedAt", Value: 1}, {Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}

	var docs []teamDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	teams := make([]models.Team, len(docs))
	for i, d := range docs {
		teams[i] = d.team()
	}
	return teams, nil
}

func (m *MongoDAL) RecordRound(ctx context.Context, key string, expectedRounds int, entry models.RoundEntry) (float64, error) {
	if err := checkEntry(expectedRounds, entry); err != nil {
		return 0, err
	}

	var doc teamDoc
	err := m.teams.FindOneAndUpdate(ctx,
		bson.M{"_id": key, "roundsPlayed": expectedRounds},
		bson.M{
			"$push": bson.M{"history": entry},
			"$inc":  bson.M{"roundsPlayed": 1, "totalProfit": entry.Profit},
		},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"totalProfit": 1}),
	).Decode(&doc)
	if err == nil {
		return doc.TotalProfit, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, err
	}

	n, err := m.teams.CountDocuments(ctx, bson.M{"_id": key})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return 0, ErrStaleWrite
}

// ResetSession clears teams before rewriting the game, so a partial failure
// leaves an emptied roster rather than stale teams under a fresh session.
func (m *MongoDAL) ResetSession(ctx context.Context, game *models.GameSession) error {
	if _, err := m.teams.DeleteMany(ctx, bson.M{}); err != nil {
		return err
	}
	return m.SaveGame(ctx, game)
}

func (m *MongoDAL) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
