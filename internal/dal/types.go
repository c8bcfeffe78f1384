package dal

import (
	"context"
	"errors"

	"github.com/Billy-Davies-2/pricing-game/internal/models"
)

var (
	// ErrNotFound is returned when the game or a team does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTeamExists is returned by CreateTeam when the key is already taken.
	ErrTeamExists = errors.New("team already exists")
	// ErrStaleWrite is returned by RecordRound when the stored history has moved on.
	ErrStaleWrite = errors.New("stale write")
)

// SessionDAL is the system of record for the game session and its teams.
// The leaderboard is never stored; it is derived from ListTeams.
type SessionDAL interface {
	GetGame(ctx context.Context) (*models.GameSession, error)
	SaveGame(ctx context.Context, game *models.GameSession) error

	// CreateTeam inserts team only if its key is absent.
	CreateTeam(ctx context.Context, team models.Team) error
	GetTeam(ctx context.Context, key string) (*models.Team, error)
	// ListTeams returns teams in join order.
	ListTeams(ctx context.Context) ([]models.Team, error)
	// RecordRound appends entry and adds its profit to the stored total in
	// one atomic write, provided the stored history still holds exactly
	// expectedRounds entries. It returns the new stored total.
	RecordRound(ctx context.Context, key string, expectedRounds int, entry models.RoundEntry) (float64, error)

	// ResetSession removes every team and stores game, atomically.
	ResetSession(ctx context.Context, game *models.GameSession) error
	Close() error
}

func checkEntry(expectedRounds int, entry models.RoundEntry) error {
	if expectedRounds < 0 || entry.Round != expectedRounds+1 {
		return errors.New("round entry does not follow recorded history")
	}
	return nil
}
