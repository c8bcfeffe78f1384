// Package game runs the session state machine and the per-team round loop
// on top of a SessionDAL, announcing every change on the event bus.
package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Billy-Davies-2/pricing-game/internal/apperr"
	"github.com/Billy-Davies-2/pricing-game/internal/dal"
	"github.com/Billy-Davies-2/pricing-game/internal/economy"
	"github.com/Billy-Davies-2/pricing-game/internal/identity"
	"github.com/Billy-Davies-2/pricing-game/internal/leaderboard"
	"github.com/Billy-Davies-2/pricing-game/internal/models"
	"github.com/Billy-Davies-2/pricing-game/internal/pubsub"
)

// Pricer turns a configuration and a price into a round outcome.
type Pricer interface {
	Compute(cfg models.GameConfig, price float64) economy.Outcome
}

// Defaults seed a reset when the current session lacks a field.
type Defaults struct {
	NumRounds      int                             `json:"numRounds" yaml:"numRounds"`
	Config         models.GameConfig               `json:"config" yaml:"config"`
	PricingOptions map[string]models.PricingOption `json:"pricingOptions" yaml:"pricingOptions"`
}

// BuiltinDefaults is the classroom setup used when no defaults file is given.
func BuiltinDefaults() Defaults {
	return Defaults{
		NumRounds: 5,
		Config: models.GameConfig{
			FixedCost:        1000,
			VariableCost:     10,
			BaseDemand:       1200,
			PriceSensitivity: 8,
		},
		PricingOptions: map[string]models.PricingOption{
			"A": {Label: "Economy", Price: 40},
			"B": {Label: "Standard", Price: 50},
			"C": {Label: "Premium", Price: 60},
			"D": {Label: "VIP", Price: 75},
		},
	}
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDefaults overrides BuiltinDefaults.
func WithDefaults(d Defaults) Option {
	return func(s *Service) { s.defaults = d }
}

// Service is the game's single entry point for instructors and teams.
type Service struct {
	store    dal.SessionDAL
	bus      pubsub.Publisher
	pricer   Pricer
	ids      *identity.Manager
	now      func() time.Time
	defaults Defaults

	mu          sync.Mutex
	controllers map[string]*RoundController
}

type discard struct{}

func (discard) Publish(pubsub.Event) {}

// NewService wires a Service. A nil bus drops events; a nil pricer uses a randomly seeded model.
func NewService(store dal.SessionDAL, bus pubsub.Publisher, pricer Pricer, opts ...Option) *Service {
	s := &Service{
		store:       store,
		bus:         bus,
		pricer:      pricer,
		now:         time.Now,
		defaults:    BuiltinDefaults(),
		controllers: make(map[string]*RoundController),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = discard{}
	}
	if s.pricer == nil {
		s.pricer = economy.NewModel(nil)
	}
	s.ids = identity.NewManager(store, s.now)
	return s
}

// Defaults returns the reset defaults in effect.
func (s *Service) Defaults() Defaults {
	return s.defaults
}

// loadGame returns nil without error when no game has been saved yet.
func (s *Service) loadGame(ctx context.Context) (*models.GameSession, error) {
	g, err := s.store.GetGame(ctx)
	if errors.Is(err, dal.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transport(err, "failed to load game")
	}
	return g, nil
}

// State returns the game, the teams in join order and the derived ranking.
func (s *Service) State(ctx context.Context) (*models.SessionState, error) {
	g, err := s.loadGame(ctx)
	if err != nil {
		return nil, err
	}
	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return nil, apperr.Transport(err, "failed to load teams")
	}

	return &models.SessionState{
		Game:        g,
		Ready:       g.Ready(),
		Teams:       teams,
		Leaderboard: leaderboard.Rank(teams),
	}, nil
}

// Leaderboard returns the current ranking, read straight from the store.
func (s *Service) Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return nil, apperr.Transport(err, "failed to load teams")
	}
	return leaderboard.Rank(teams), nil
}

// Join registers a new team under the sanitized form of rawName.
func (s *Service) Join(ctx context.Context, rawName string) (*models.Team, error) {
	team, err := s.ids.Join(ctx, rawName)
	if err != nil {
		return nil, err
	}

	c := s.controller(team.Key, team.Name)
	c.adopt(team.Clone())

	s.bus.Publish(pubsub.NewEvent(pubsub.EventTeamJoin, map[string]interface{}{
		"key":  team.Key,
		"name": team.Name,
	}))
	return team, nil
}

func (s *Service) controller(key, name string) *RoundController {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.controllers[key]
	if !ok {
		c = &RoundController{svc: s, id: identity.Identity{Key: key, Name: name}}
		s.controllers[key] = c
	}
	return c
}

// forget unregisters c if it is still the registered controller for its key.
func (s *Service) forget(c *RoundController) {
	s.mu.Lock()
	if s.controllers[c.id.Key] == c {
		delete(s.controllers, c.id.Key)
	}
	s.mu.Unlock()
}

func (s *Service) forgetControllers() {
	s.mu.Lock()
	s.controllers = make(map[string]*RoundController)
	s.mu.Unlock()
}

// Watch drops cached team state whenever any instance resets the session,
// so controllers never carry history across a reset they did not run.
// It returns when ctx is done.
func (s *Service) Watch(ctx context.Context, bus pubsub.Bus) {
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type == pubsub.EventSessionReset {
				s.forgetControllers()
			}
		}
	}
}
