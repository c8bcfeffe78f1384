package dal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Billy-Davies-2/pricing-game/internal/models"
)

// gameRow is the column form of a GameSession shared by the SQL backends.
type gameRow struct {
	status    string
	numRounds int
	config    []byte
	options   []byte
}

func encodeGame(g *models.GameSession) (gameRow, error) {
	row := gameRow{status: string(g.Status), numRounds: g.NumRounds}

	if g.Config != nil {
		b, err := json.Marshal(g.Config)
		if err != nil {
			return row, fmt.Errorf("encode config: %w", err)
		}
		row.config = b
	}
	if g.PricingOptions != nil {
		b, err := json.Marshal(g.PricingOptions)
		if err != nil {
			return row, fmt.Errorf("encode pricing options: %w", err)
		}
		row.options = b
	}
	return row, nil
}

func decodeGame(row gameRow) (*models.GameSession, error) {
	g := &models.GameSession{
		Status:    models.Status(row.status),
		NumRounds: row.numRounds,
	}

	if len(row.config) > 0 {
		var cfg models.GameConfig
		if err := json.Unmarshal(row.config, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		g.Config = &cfg
	}
	if len(row.options) > 0 {
		opts := map[string]models.PricingOption{}
		if err := json.Unmarshal(row.options, &opts); err != nil {
			return nil, fmt.Errorf("decode pricing options: %w", err)
		}
		g.PricingOptions = opts
	}
	return g, nil
}

// nullJSON keeps absent config/options as SQL NULL rather than "null".
func nullJSON(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func scanRounds(rows *sql.Rows, byKey map[string]*models.Team) error {
	defer rows.Close()

	for rows.Next() {
		var key string
		var e models.RoundEntry
		if err := rows.Scan(&key, &e.Round, &e.OptionKey, &e.Price, &e.Demand, &e.Revenue, &e.Cost, &e.Profit); err != nil {
			return err
		}
		if t, ok := byKey[key]; ok {
			t.History = append(t.History, e)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, t := range byKey {
		sort.Slice(t.History, func(i, j int) bool { return t.History[i].Round < t.History[j].Round })
	}
	return nil
}
