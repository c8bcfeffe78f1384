// Package analytics turns round events into facts for the analytics sink.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/Billy-Davies-2/pricing-game/internal/models"
	"github.com/Billy-Davies-2/pricing-game/internal/pubsub"
)

// Record is one recorded round as stored by a Sink.
type Record struct {
	EventID     string            `json:"eventId"`
	RecordedAt  time.Time         `json:"recordedAt"`
	TeamKey     string            `json:"key"`
	TeamName    string            `json:"name"`
	Entry       models.RoundEntry `json:"entry"`
	TotalProfit float64           `json:"totalProfit"`
}

// Sink stores round facts and answers aggregate queries over them.
type Sink interface {
	RecordRound(ctx context.Context, rec Record) error
	OptionStats(ctx context.Context) ([]models.OptionStats, error)
	Close() error
}

// Decode extracts a Record from a teams:round event. The payload may hold
// Go values (local bus) or generic JSON (after a trip through NATS).
func Decode(ev pubsub.Event) (Record, error) {
	if ev.Type != pubsub.EventTeamRound {
		return Record{}, fmt.Errorf("not a round event: %s", ev.Type)
	}

	raw, err := json.Marshal(ev.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("encode payload: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode payload: %w", err)
	}
	if rec.TeamKey == "" || rec.Entry.Round < 1 {
		return Record{}, fmt.Errorf("incomplete round event %s", ev.ID)
	}

	rec.EventID = ev.ID
	rec.RecordedAt = ev.At
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	return rec, nil
}

// Consumer feeds round events into a Sink
type Consumer struct {
	sink    Sink
	timeout time.Duration
}

// NewConsumer returns a Consumer writing to sink.
func NewConsumer(sink Sink) *Consumer {
	return &Consumer{sink: sink, timeout: 10 * time.Second}
}

// Handle records ev if it is a round event and ignores everything else.
// Malformed round events are logged and dropped, so only sink failures return an error.
func (c *Consumer) Handle(ev pubsub.Event) error {
	if ev.Type != pubsub.EventTeamRound {
		return nil
	}

	rec, err := Decode(ev)
	if err != nil {
		logger.Warn("Dropping malformed round event", "id", ev.ID, "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.sink.RecordRound(ctx, rec); err != nil {
		logger.Error("Analytics sink write failed", "team", rec.TeamKey, "round", rec.Entry.Round, "error", err)
		return err
	}

	logger.Debug("Round recorded to analytics", "team", rec.TeamKey, "round", rec.Entry.Round)
	return nil
}

// Run consumes from a local bus subscription until ctx ends.
func (c *Consumer) Run(ctx context.Context, bus pubsub.Bus) {
	events := bus.Subscribe()
	defer bus.Unsubscribe(events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = c.Handle(ev)
		}
	}
}
