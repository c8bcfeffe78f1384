package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/Billy-Davies-2/pricing-game/internal/analytics"
	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/Billy-Davies-2/pricing-game/internal/models"
)

// MockClickHouseClient is an in-memory analytics sink for local development
type MockClickHouseClient struct {
	mu      sync.RWMutex
	records []analytics.Record
	seen    map[string]bool
}

// NewMockClickHouseClient creates an empty in-memory sink
func NewMockClickHouseClient() *MockClickHouseClient {
	logger.Info("Using MOCK ClickHouse client for local development")
	return &MockClickHouseClient{seen: make(map[string]bool)}
}

// RecordRound stores rec, ignoring an event ID it has already seen
func (m *MockClickHouseClient) RecordRound(ctx context.Context, rec analytics.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.EventID != "" {
		if m.seen[rec.EventID] {
			return nil
		}
		m.seen[rec.EventID] = true
	}
	m.records = append(m.records, rec)
	return nil
}

// Records returns every stored round
func (m *MockClickHouseClient) Records() []analytics.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]analytics.Record{}, m.records...)
}

// OptionStats aggregates stored rounds by option key
func (m *MockClickHouseClient) OptionStats(ctx context.Context) ([]models.OptionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byKey := map[string]*models.OptionStats{}
	demand := map[string]float64{}
	for _, r := range m.records {
		k := r.Entry.OptionKey
		s, ok := byKey[k]
		if !ok {
			s = &models.OptionStats{OptionKey: k}
			byKey[k] = s
		}
		s.Rounds++
		s.TotalProfit += r.Entry.Profit
		demand[k] += float64(r.Entry.Demand)
	}

	stats := make([]models.OptionStats, 0, len(byKey))
	for k, s := range byKey {
		s.AvgDemand = demand[k] / float64(s.Rounds)
		s.AvgProfit = s.TotalProfit / float64(s.Rounds)
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].OptionKey < stats[j].OptionKey })
	return stats, nil
}

// Close is a no-op for mock client
func (m *MockClickHouseClient) Close() error {
	return nil
}

var _ analytics.Sink = (*MockClickHouseClient)(nil)
