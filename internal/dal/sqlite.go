package dal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Billy-Davies-2/pricing-game/internal/models"
)

// SQLiteDAL implements SessionDAL using SQLite
type SQLiteDAL struct {
	db *sql.DB
}

// NewSQLiteDAL opens (and migrates) the database at dbPath
func NewSQLiteDAL(dbPath string) (*SQLiteDAL, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	s := &SQLiteDAL{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDAL) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS game_session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		status TEXT NOT NULL,
		num_rounds INTEGER NOT NULL,
		config TEXT,
		pricing_options TEXT,
		started_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS teams (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		team_key TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		joined_at INTEGER NOT NULL,
		total_profit REAL NOT NULL DEFAULT 0,
		rounds_played INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS round_entries (
		team_key TEXT NOT NULL REFERENCES teams(team_key) ON DELETE CASCADE,
		round INTEGER NOT NULL,
		option_key TEXT NOT NULL,
		price REAL NOT NULL,
		demand INTEGER NOT NULL,
		revenue REAL NOT NULL,
		cost REAL NOT NULL,
		profit REAL NOT NULL,
		PRIMARY KEY (team_key, round)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize SQLite schema: %w", err)
	}
	return nil
}

func (s *SQLiteDAL) GetGame(ctx context.Context) (*models.GameSession, error) {
	var row gameRow
	var config, options sql.NullString
	var startedAt sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT status, num_rounds, config, pricing_options, started_at
		FROM game_session WHERE id = 1
	`).Scan(&row.status, &row.numRounds, &config, &options, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if config.Valid {
		row.config = []byte(config.String)
	}
	if options.Valid {
		row.options = []byte(options.String)
	}

	g, err := decodeGame(row)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		ts := time.Unix(0, startedAt.Int64).UTC()
		g.StartedAt = &ts
	}
	return g, nil
}

func (s *SQLiteDAL) SaveGame(ctx context.Context, game *models.GameSession) error {
	return saveGameSQLite(ctx, s.db, game)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveGameSQLite(ctx context.Context, db execer, game *models.GameSession) error {
	row, err := encodeGame(game)
	if err != nil {
		return err
	}

	var startedAt sql.NullInt64
	if game.StartedAt != nil {
		startedAt = sql.NullInt64{Int64: game.StartedAt.UnixNano(), Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO game_session (id, status, num_rounds, config, pricing_options, started_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			num_rounds = excluded.num_rounds,
			config = excluded.config,
			pricing_options = excluded.pricing_options,
			started_at = excluded.started_at
	`, row.status, row.numRounds, nullJSON(row.config), nullJSON(row.options), startedAt)
	return err
}

func (s *SQLiteDAL) CreateTeam(ctx context.Context, team models.Team) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teams (team_key, name, joined_at, total_profit, rounds_played)
		VALUES (?, ?, ?, 0, 0)
	`, team.Key, team.Name, team.JoinedAt.UnixNano())

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return ErrTeamExists
	}
	return err
}

func (s *SQLiteDAL) GetTeam(ctx context.Context, key string) (*models.Team, error) {
	var t models.Team
	var joined int64
	err := s.db.QueryRowContext(ctx, `
		SELECT team_key, name, joined_at, total_profit FROM teams WHERE team_key = ?
	`, key).Scan(&t.Key, &t.Name, &joined, &t.TotalProfit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.JoinedAt = time.Unix(0, joined).UTC()
	t.History = []models.RoundEntry{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT team_key, round, option_key, price, demand, revenue, cost, profit
		FROM round_entries WHERE team_key = ? ORDER BY round
	`, key)
	if err != nil {
		return nil, err
	}
	if err := scanRounds(rows, map[string]*models.Team{key: &t}); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTeams reads teams and rounds inside one transaction so every total
// matches its history.
func (s *SQLiteDAL) ListTeams(ctx context.Context) ([]models.Team, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
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

	teams := []*models.Team{}
	byKey := map[string]*models.Team{}
	for rows.Next() {
		t := &models.Team{History: []models.RoundEntry{}}
		var joined int64
		if err := rows.Scan(&t.Key, &t.Name, &joined, &t.TotalProfit); err != nil {
			rows.Close()
			return nil, err
		}
		t.JoinedAt = time.Unix(0, joined).UTC()
		teams = append(teams, t)
		byKey[t.Key] = t
	}
	rows.Close()
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

func (s *SQLiteDAL) RecordRound(ctx context.Context, key string, expectedRounds int, entry models.RoundEntry) (float64, error) {
	if err := checkEntry(expectedRounds, entry); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var total float64
	err = tx.QueryRowContext(ctx, `
		UPDATE teams SET total_profit = total_profit + ?, rounds_played = rounds_played + 1
		WHERE team_key = ? AND rounds_played = ?
		RETURNING total_profit
	`, entry.Profit, key, expectedRounds).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM teams WHERE team_key = ?`, key).Scan(&count); err != nil {
			return 0, err
		}
		if count == 0 {
			return 0, ErrNotFound
		}
		return 0, ErrStaleWrite
	}
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO round_entries (team_key, round, option_key, price, demand, revenue, cost, profit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, key, entry.Round, entry.OptionKey, entry.Price, entry.Demand, entry.Revenue, entry.Cost, entry.Profit)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *SQLiteDAL) ResetSession(ctx context.Context, game *models.GameSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM round_entries`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM teams`); err != nil {
		return err
	}
	if err := saveGameSQLite(ctx, tx, game); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteDAL) Close() error {
	return s.db.Close()
}
