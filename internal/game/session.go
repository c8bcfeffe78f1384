package game

import (
	"context"
	"math"
	"strings"

	"github.com/Billy-Davies-2/pricing-game/internal/apperr"
	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/Billy-Davies-2/pricing-game/internal/models"
	"github.com/Billy-Davies-2/pricing-game/internal/pubsub"
)

// ConfigInput is what the instructor submits with Save Configuration.
type ConfigInput struct {
	NumRounds      int                             `json:"numRounds"`
	Config         *models.GameConfig              `json:"config"`
	PricingOptions map[string]models.PricingOption `json:"pricingOptions"`
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// normalize coerces numbers and rejects option keys outside A-D.
func (in ConfigInput) normalize() (*models.GameSession, error) {
	g := &models.GameSession{
		Status:         models.StatusIdle,
		NumRounds:      in.NumRounds,
		PricingOptions: map[string]models.PricingOption{},
	}
	if g.NumRounds < 1 {
		g.NumRounds = 1
	}

	if in.Config != nil {
		g.Config = &models.GameConfig{
			FixedCost:        nonNegative(in.Config.FixedCost),
			VariableCost:     nonNegative(in.Config.VariableCost),
			BaseDemand:       nonNegative(in.Config.BaseDemand),
			PriceSensitivity: nonNegative(in.Config.PriceSensitivity),
		}
	}

	for key, opt := range in.PricingOptions {
		if !models.ValidOptionKey(key) {
			return nil, apperr.Validation("unknown pricing option %q, expected one of %s", key, strings.Join(models.OptionKeys, ", "))
		}
		label := strings.TrimSpace(opt.Label)
		if label == "" {
			label = key
		}
		g.PricingOptions[key] = models.PricingOption{Label: label, Price: nonNegative(opt.Price)}
	}

	return g, nil
}

// SaveConfiguration overwrites the session setup and forces it back to idle.
func (s *Service) SaveConfiguration(ctx context.Context, in ConfigInput) (*models.GameSession, error) {
	g, err := in.normalize()
	if err != nil {
		logger.Warn("Configuration rejected", "error", err)
		return nil, err
	}

	if err := s.store.SaveGame(ctx, g); err != nil {
		logger.Error("Failed to save configuration", "error", err)
		return nil, apperr.Transport(err, "failed to save configuration")
	}

	logger.Info("Configuration saved", "numRounds", g.NumRounds, "options", len(g.PricingOptions))
	s.bus.Publish(pubsub.NewEvent(pubsub.EventGameConfig, map[string]interface{}{
		"status":    string(g.Status),
		"numRounds": g.NumRounds,
	}))
	return g, nil
}

// StartGame moves a fully configured idle session to active.
// On any failure the stored session is left as it was.
func (s *Service) StartGame(ctx context.Context) (*models.GameSession, error) {
	g, err := s.loadGame(ctx)
	if err != nil {
		return nil, err
	}
	if !g.Configured() {
		logger.Warn("Start rejected, game is not fully configured")
		return nil, apperr.Validation("game is not fully configured: save the configuration, pricing options and number of rounds first")
	}
	if g.Status == models.StatusActive {
		return nil, apperr.Validation("game is already active")
	}

	started := s.now().UTC()
	g.Status = models.StatusActive
	g.StartedAt = &started

	if err := s.store.SaveGame(ctx, g); err != nil {
		logger.Error("Failed to start game", "error", err)
		return nil, apperr.Transport(err, "failed to start game")
	}

	logger.Info("Game started", "numRounds", g.NumRounds, "startedAt", started)
	s.bus.Publish(pubsub.NewEvent(pubsub.EventGameStart, map[string]interface{}{
		"status":    string(g.Status),
		"numRounds": g.NumRounds,
		"startedAt": started.Format(timeLayout),
	}))
	return g, nil
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// ResetSession removes every team and returns the session to idle, keeping
// each setup field that is present and taking the rest from the defaults.
func (s *Service) ResetSession(ctx context.Context) (*models.GameSession, error) {
	cur, err := s.loadGame(ctx)
	if err != nil {
		return nil, err
	}

	next := s.preserved(cur)
	if err := s.store.ResetSession(ctx, next); err != nil {
		logger.Error("Failed to reset session", "error", err)
		return nil, apperr.Transport(err, "failed to reset session")
	}
	s.forgetControllers()

	logger.Info("Session reset", "numRounds", next.NumRounds)
	s.bus.Publish(pubsub.NewEvent(pubsub.EventSessionReset, map[string]interface{}{
		"status":    string(next.Status),
		"numRounds": next.NumRounds,
	}))
	return next, nil
}

func (s *Service) preserved(cur *models.GameSession) *models.GameSession {
	d := s.defaults
	next := &models.GameSession{Status: models.StatusIdle}

	if cur != nil && cur.NumRounds >= 1 {
		next.NumRounds = cur.NumRounds
	} else {
		next.NumRounds = d.NumRounds
		if next.NumRounds < 1 {
			next.NumRounds = 1
		}
	}

	if cur != nil && cur.Config != nil {
		cfg := *cur.Config
		next.Config = &cfg
	} else {
		cfg := d.Config
		next.Config = &cfg
	}

	next.PricingOptions = map[string]models.PricingOption{}
	src := d.PricingOptions
	if cur != nil && len(cur.PricingOptions) > 0 {
		src = cur.PricingOptions
	}
	for k, v := range src {
		next.PricingOptions[k] = v
	}
	return next
}
