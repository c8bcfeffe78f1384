package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/Billy-Davies-2/pricing-game/internal/analytics"
	"github.com/Billy-Davies-2/pricing-game/internal/models"
)

// Client is the ClickHouse analytics sink for recorded rounds
type Client struct {
	conn driver.Conn
}

// NewClient connects to ClickHouse and ensures the rounds table exists
func NewClient(addr, database, username, password string) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx := context.Background()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	c := &Client{conn: conn}
	if err := c.ensureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Redelivered events share an event_id, so ReplacingMergeTree collapses them.
const schema = `
	CREATE TABLE IF NOT EXISTS pricing_rounds (
		event_id String,
		recorded_at DateTime64(3),
		team_key String,
		team_name String,
		round UInt32,
		option_key LowCardinality(String),
		price Float64,
		demand UInt32,
		revenue Float64,
		cost Float64,
		profit Float64,
		total_profit Float64
	)
	ENGINE = ReplacingMergeTree
	ORDER BY (team_key, round, event_id)
`

func (c *Client) ensureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create pricing_rounds: %w", err)
	}
	return nil
}

// RecordRound inserts one round fact
func (c *Client) RecordRound(ctx context.Context, rec analytics.Record) error {
	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO pricing_rounds")
	if err != nil {
		return err
	}

	e := rec.Entry
	if err := batch.Append(
		rec.EventID,
		rec.RecordedAt,
		rec.TeamKey,
		rec.TeamName,
		uint32(e.Round),
		e.OptionKey,
		e.Price,
		uint32(e.Demand),
		e.Revenue,
		e.Cost,
		e.Profit,
		rec.TotalProfit,
	); err != nil {
		return err
	}

	return batch.Send()
}

// OptionStats aggregates all recorded rounds by pricing option
func (c *Client) OptionStats(ctx context.Context) ([]models.OptionStats, error) {
	query := `
		SELECT
			option_key,
			count() AS rounds,
			avg(demand) AS avg_demand,
			avg(profit) AS avg_profit,
			sum(profit) AS total_profit
		FROM pricing_rounds FINAL
		GROUP BY option_key
		ORDER BY option_key
	`

	rows, err := c.conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []models.OptionStats{}
	for rows.Next() {
		var s models.OptionStats
		if err := rows.Scan(&s.OptionKey, &s.Rounds, &s.AvgDemand, &s.AvgProfit, &s.TotalProfit); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Close closes the ClickHouse connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

var _ analytics.Sink = (*Client)(nil)
