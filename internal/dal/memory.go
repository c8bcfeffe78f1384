package dal

import (
	"context"
	"sort"
	"sync"

	"github.com/Billy-Davies-2/pricing-game/internal/models"
)

// MemoryDAL implements SessionDAL in process memory
type MemoryDAL struct {
	mu    sync.RWMutex
	game  *models.GameSession
	teams map[string]*memTeam
	seq   int64
}

type memTeam struct {
	seq  int64
	team models.Team
}

// NewMemoryDAL creates an empty in-memory store
func NewMemoryDAL() *MemoryDAL {
	return &MemoryDAL{teams: make(map[string]*memTeam)}
}

func (m *MemoryDAL) GetGame(ctx context.Context) (*models.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.game == nil {
		return nil, ErrNotFound
	}
	return m.game.Clone(), nil
}

func (m *MemoryDAL) SaveGame(ctx context.Context, game *models.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.game = game.Clone()
	return nil
}

func (m *MemoryDAL) CreateTeam(ctx context.Context, team models.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.teams[team.Key]; exists {
		return ErrTeamExists
	}

	m.seq++
	m.teams[team.Key] = &memTeam{seq: m.seq, team: team.Clone()}
	return nil
}

func (m *MemoryDAL) GetTeam(ctx context.Context, key string) (*models.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.teams[key]
	if !ok {
		return nil, ErrNotFound
	}
	team := t.team.Clone()
	return &team, nil
}

func (m *MemoryDAL) ListTeams(ctx context.Context) ([]models.Team, error) {
	m.mu.RLock()
	rows := make([]memTeam, 0, len(m.teams))
	for _, t := range m.teams {
		rows = append(rows, memTeam{seq: t.seq, team: t.team.Clone()})
	}
	m.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].team.JoinedAt, rows[j].team.JoinedAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return rows[i].seq < rows[j].seq
	})

	teams := make([]models.Team, len(rows))
	for i, t := range rows {
		teams[i] = t.team
	}
	return teams, nil
}

func (m *MemoryDAL) RecordRound(ctx context.Context, key string, expectedRounds int, entry models.RoundEntry) (float64, error) {
	if err := checkEntry(expectedRounds, entry); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[key]
	if !ok {
		return 0, ErrNotFound
	}
	if len(t.team.History) != expectedRounds {
		return 0, ErrStaleWrite
	}

	t.team.History = append(t.team.History, entry)
	t.team.TotalProfit += entry.Profit
	return t.team.TotalProfit, nil
}

func (m *MemoryDAL) ResetSession(ctx context.Context, game *models.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teams = make(map[string]*memTeam)
	m.game = game.Clone()
	return nil
}

func (m *MemoryDAL) Close() error { return nil }
