package game

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Billy-Davies-2/pricing-game/internal/apperr"
	"github.com/Billy-Davies-2/pricing-game/internal/dal"
	"github.com/Billy-Davies-2/pricing-game/internal/identity"
	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/Billy-Davies-2/pricing-game/internal/models"
	"github.com/Billy-Davies-2/pricing-game/internal/pubsub"
)

// RoundResult is returned after a successful choice.
type RoundResult struct {
	Entry     models.RoundEntry `json:"entry"`
	Team      models.Team       `json:"team"`
	Round     int               `json:"round"`
	NumRounds int               `json:"numRounds"`
	Over      bool              `json:"over"`
}

// RoundController is the single writer for one team. Its cached team is
// only advanced after the store confirms a write.
type RoundController struct {
	svc      *Service
	id       identity.Identity
	inFlight atomic.Bool

	mu   sync.Mutex
	team *models.Team
}

func (c *RoundController) adopt(team models.Team) {
	c.mu.Lock()
	c.team = &team
	c.mu.Unlock()
}

func (c *RoundController) drop() {
	c.mu.Lock()
	c.team = nil
	c.mu.Unlock()
}

// cached returns a copy of the local team, loading it on first use.
func (c *RoundController) cached(ctx context.Context) (models.Team, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.team == nil {
		t, err := c.svc.store.GetTeam(ctx, c.id.Key)
		if errors.Is(err, dal.ErrNotFound) {
			c.svc.forget(c)
			return models.Team{}, apperr.Validation("team %q not found, join the session first", c.id.Key)
		}
		if err != nil {
			return models.Team{}, apperr.Transport(err, "failed to load team")
		}
		c.team = t
	}
	return c.team.Clone(), nil
}

func checkIdentity(id identity.Identity) error {
	if id.Empty() {
		return apperr.Validation("missing team identity, join the session first")
	}
	return nil
}

// Resume reloads a team from the store, so a reconnecting client continues at
// len(history)+1 and cannot replay finished rounds.
func (s *Service) Resume(ctx context.Context, id identity.Identity) (*models.Progress, error) {
	id.Key = strings.TrimSpace(id.Key)
	if err := checkIdentity(id); err != nil {
		return nil, err
	}

	c := s.controller(id.Key, id.Name)
	c.drop()
	team, err := c.cached(ctx)
	if err != nil {
		return nil, err
	}

	g, err := s.loadGame(ctx)
	if err != nil {
		return nil, err
	}

	p := &models.Progress{Team: team, Round: team.NextRound()}
	if g != nil {
		p.NumRounds = g.NumRounds
		p.Over = g.NumRounds >= 1 && p.Round > g.NumRounds
	}
	return p, nil
}

// SubmitChoice plays the team's next round with the chosen pricing option.
func (s *Service) SubmitChoice(ctx context.Context, id identity.Identity, optionKey string) (*RoundResult, error) {
	id.Key = strings.TrimSpace(id.Key)
	if err := checkIdentity(id); err != nil {
		return nil, err
	}
	return s.controller(id.Key, id.Name).Submit(ctx, strings.TrimSpace(optionKey))
}

// Submit runs one round. A concurrent Submit for the same team is refused
// rather than queued.
func (c *RoundController) Submit(ctx context.Context, optionKey string) (*RoundResult, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		logger.Warn("Choice rejected, submission in flight", "team", c.id.Key)
		return nil, apperr.Conflict("a submission for this team is already in progress")
	}
	defer c.inFlight.Store(false)

	team, err := c.cached(ctx)
	if err != nil {
		return nil, err
	}

	g, err := c.svc.loadGame(ctx)
	if err != nil {
		return nil, err
	}
	if !g.Ready() {
		return nil, apperr.NotReady("the instructor has not started the game yet")
	}

	round := team.NextRound()
	if round > g.NumRounds {
		return nil, apperr.NotReady("game over: all %d rounds have been played", g.NumRounds)
	}

	opt, ok := g.PricingOptions[optionKey]
	if !ok {
		return nil, apperr.Validation("invalid pricing option %q", optionKey)
	}

	out := c.svc.pricer.Compute(*g.Config, opt.Price)
	entry := models.RoundEntry{
		Round:     round,
		OptionKey: optionKey,
		Price:     opt.Price,
		Demand:    out.Demand,
		Revenue:   out.Revenue,
		Cost:      out.Cost,
		Profit:    out.Profit,
	}

	total, err := c.svc.store.RecordRound(ctx, c.id.Key, len(team.History), entry)
	switch {
	case errors.Is(err, dal.ErrStaleWrite):
		c.drop()
		logger.Warn("Choice rejected, team changed elsewhere", "team", c.id.Key, "round", round)
		return nil, apperr.Conflict("this team's progress changed in another session, reload and try again")
	case errors.Is(err, dal.ErrNotFound):
		c.drop()
		c.svc.forget(c)
		return nil, apperr.Validation("team %q not found, join the session first", c.id.Key)
	case err != nil:
		logger.Error("Failed to record round", "team", c.id.Key, "round", round, "error", err)
		return nil, apperr.Transport(err, "failed to record round")
	}

	team.History = append(team.History, entry)
	if total == team.TotalProfit+entry.Profit {
		team.TotalProfit = total
		c.adopt(team.Clone())
	} else if fresh, err := c.svc.store.GetTeam(ctx, c.id.Key); err == nil {
		// The cache predated a reset run elsewhere.
		team = fresh.Clone()
		c.adopt(team.Clone())
	} else {
		team.TotalProfit = total
		c.drop()
		logger.Warn("Failed to reload team after round", "team", c.id.Key, "error", err)
	}

	logger.Info("Round recorded",
		"team", team.Key,
		"round", round,
		"option", optionKey,
		"demand", entry.Demand,
		"profit", entry.Profit,
		"totalProfit", total,
	)
	c.svc.bus.Publish(pubsub.NewEvent(pubsub.EventTeamRound, map[string]interface{}{
		"key":         team.Key,
		"name":        team.Name,
		"round":       round,
		"entry":       entry,
		"totalProfit": total,
	}))

	return &RoundResult{
		Entry:     entry,
		Team:      team,
		Round:     team.NextRound(),
		NumRounds: g.NumRounds,
		Over:      team.NextRound() > g.NumRounds,
	}, nil
}
