package dal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/Billy-Davies-2/pricing-game/internal/models"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresDAL implements SessionDAL using PostgreSQL
type PostgresDAL struct {
	db *sql.DB
}

// NewPostgresDAL creates a PostgreSQL store tuned for CloudNativePG clusters
func NewPostgresDAL(connString string) (*PostgresDAL, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute) // recycle across failovers
	db.SetConnMaxIdleTime(1 * time.Minute)

	// Kubernetes DNS can lag behind pod start, so the first ping is retried.
	maxRetries := 5
	retryDelay := 5 * time.Second
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		lastErr = db.PingContext(ctx)
		cancel()
		if lastErr == nil {
			break
		}
		logger.Warn("Postgres not reachable yet", "attempt", i+1, "error", lastErr)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	if lastErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres after %d retries: %w", maxRetries, lastErr)
	}

	p := &PostgresDAL{db: db}
	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDAL) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS game_session (
		id SMALLINT PRIMARY KEY CHECK (id = 1),
		status TEXT NOT NULL,
		num_rounds INTEGER NOT NULL,
		config JSONB,
		pricing_options JSONB,
		started_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS teams (
		seq BIGSERIAL,
		team_key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL,
		total_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
		rounds_played INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS round_entries (
		team_key TEXT NOT NULL REFERENCES teams(team_key) ON DELETE CASCADE,
		round INTEGER NOT NULL,
		option_key TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		demand INTEGER NOT NULL,
		revenue DOUBLE PRECISION NOT NULL,
		cost DOUBLE PRECISION NOT NULL,
		profit DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (team_key, round)
	);

	CREATE INDEX IF NOT EXISTS idx_teams_join_order ON teams (joined_at, seq);
	`
	_, err := p.db.Exec(schema)
	return err
}

func (p *PostgresDAL) GetGame(ctx context.Context) (*models.GameSession, error) {
	var row gameRow
	var startedAt sql.NullTime

	err := p.db.QueryRowContext(ctx, `
		SELECT status, num_rounds, config, pricing_options, started_at
		FROM game_session WHERE id = 1
	`).Scan(&row.status, &row.numRounds, &row.config, &row.options, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	g, err := decodeGame(row)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		ts := startedAt.Time.UTC()
		g.StartedAt = &ts
	}
	return g, nil
}

func (p *PostgresDAL) SaveGame(ctx context.Context, game *models.GameSession) error {
	return savePostgresGame(ctx, p.db, game)
}

func savePostgresGame(ctx context.Context, db execer, game *models.GameSession) error {
	row, err := encodeGame(game)
	if err != nil {
		return err
	}

	var startedAt sql.NullTime
	if game.StartedAt != nil {
		startedAt = sql.NullTime{Time: *game.StartedAt, Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO game_session (id, status, num_rounds, config, pricing_options, started_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			num_rounds = EXCLUDED.num_rounds,
			config = EXCLUDED.config,
			pricing_options = EXCLUDED.pricing_options,
			started_at = EXCLUDED.started_at
	`, row.status, row.numRounds, nullJSON(row.config), nullJSON(row.options), startedAt)
	return err
}

func (p *PostgresDAL) CreateTeam(ctx context.Context, team models.Team) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO teams (team_key, name, joined_at) VALUES ($1, $2, $3)
	`, team.Key, team.Name, team.JoinedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return ErrTeamExists
	}
	return err
}

func (p *PostgresDAL) GetTeam(ctx context.Context, key string) (*models.Team, error) {
	t := models.Team{History: []models.RoundEntry{}}
	err := p.db.QueryRowContext(ctx, `
		SELECT team_key, name, joined_at, total_profit FROM teams WHERE team_key = $1
	`, key).Scan(&t.Key, &t.Name, &t.JoinedAt, &t.TotalProfit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.JoinedAt = t.JoinedAt.UTC()

	rows, err := p.db.QueryContext(ctx, `
		SELECT team_key, round, option_key, price, demand, revenue, cost, profit
		FROM round_entries WHERE team_key = $1 ORDER BY round
	`, key)
	if err != nil {
		return nil, err
	}
	if err := scanRounds(rows, map[string]*models.Team{key: &t}); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTeams reads teams and rounds from one repeatable-read snapshot so
// every total matches its history.
func (p *PostgresDAL) ListTeams(ctx context.Context) ([]models.Team, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT team_key, name, joined_at, total_profit FROM teams ORDER BY joined_at, seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := []*models.Team{}
	byKey := map[string]*models.Team{}
	for rows.Next() {
		t := &models.Team{History: []models.RoundEntry{}}
		if err := rows.Scan(&t.Key, &t.Name, &t.JoinedAt, &t.TotalProfit); err != nil {
			return nil, err
		}
		t.JoinedAt = t.JoinedAt.UTC()
		teams = append(teams, t)
		byKey[t.Key] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	roundRows, err := tx.QueryContext(ctx, `
		SELECT team_key, round, option_key, price, demand, revenue, cost, profit
		FROM round_entries ORDER BY team_key, round
	`)
	if err != nil {
		return nil, err
	}
	if err := scanRounds(roundRows, byKey); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	out := make([]models.Team, len(teams))
	for i, t := range teams {
		out[i] = *t
	}
	return out, nil
}

func (p *PostgresDAL) RecordRound(ctx context.Context, key string, expectedRounds int, entry models.RoundEntry) (float64, error) {
	if err := checkEntry(expectedRounds, entry); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var total float64
	err = tx.QueryRowContext(ctx, `
		UPDATE teams SET total_profit = total_profit + $1, rounds_played = rounds_played + 1
		WHERE team_key = $2 AND rounds_played = $3
		RETURNING total_profit
	`, entry.Profit, key, expectedRounds).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM teams WHERE team_key = $1)`, key).Scan(&exists); err != nil {
			return 0, err
		}
		if !exists {
			return 0, ErrNotFound
		}
		return 0, ErrStaleWrite
	}
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO round_entries (team_key, round, option_key, price, demand, revenue, cost, profit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, key, entry.Round, entry.OptionKey, entry.Price, entry.Demand, entry.Revenue, entry.Cost, entry.Profit)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func (p *PostgresDAL) ResetSession(ctx context.Context, game *models.GameSession) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE round_entries, teams`); err != nil {
		return err
	}
	if err := savePostgresGame(ctx, tx, game); err != nil {
		return err
	}

	return tx.Commit()
}

func (p *PostgresDAL) Close() error {
	return p.db.Close()
}
