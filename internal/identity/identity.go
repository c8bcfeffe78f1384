// Package identity derives team keys from display names and registers teams.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Billy-Davies-2/pricing-game/internal/apperr"
	"github.com/Billy-Davies-2/pricing-game/internal/dal"
	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/Billy-Davies-2/pricing-game/internal/models"
)

var reserved = strings.NewReplacer(
	".", "_",
	"#", "_",
	"$", "_",
	"/", "_",
	"[", "_",
	"]", "_",
)

// Sanitize lowercases name, joins whitespace runs with "_" and replaces
// the characters . # $ / [ ] with "_". It is idempotent.
func Sanitize(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.Join(strings.Fields(key), "_")
	return reserved.Replace(key)
}

// Identity is what a client keeps to resume its team.
type Identity struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Empty reports whether either half of the identity is missing.
func (id Identity) Empty() bool {
	return strings.TrimSpace(id.Key) == "" || strings.TrimSpace(id.Name) == ""
}

// TeamCreator is the store capability Join needs.
type TeamCreator interface {
	CreateTeam(ctx context.Context, team models.Team) error
}

// Manager registers teams against a store
type Manager struct {
	store TeamCreator
	now   func() time.Time
}

// NewManager returns a Manager. A nil clock means time.Now.
func NewManager(store TeamCreator, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, now: now}
}

// Join creates a fresh team record for rawName. Uniqueness is decided by the
// store's conditional insert, so two racing joins cannot both succeed.
func (m *Manager) Join(ctx context.Context, rawName string) (*models.Team, error) {
	name := strings.TrimSpace(rawName)
	key := Sanitize(name)
	if key == "" {
		return nil, apperr.Validation("team name is required")
	}

	team := models.Team{
		Key:         key,
		Name:        name,
		JoinedAt:    m.now().UTC(),
		TotalProfit: 0,
		History:     []models.RoundEntry{},
	}

	if err := m.store.CreateTeam(ctx, team); err != nil {
		if errors.Is(err, dal.ErrTeamExists) {
			logger.Warn("Join rejected, name taken", "team", key)
			return nil, apperr.Conflict("team name %q is already taken", name)
		}
		logger.Error("Failed to create team", "team", key, "error", err)
		return nil, apperr.Transport(err, "failed to join")
	}

	logger.Info("Team joined", "team", key, "name", name)
	return &team, nil
}
