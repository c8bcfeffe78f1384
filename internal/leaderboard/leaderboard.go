// Package leaderboard derives the ranking from the team set. Nothing here
// writes to the store.
package leaderboard

import (
	"context"
	"sort"
	"sync"

	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/Billy-Davies-2/pricing-game/internal/models"
	"github.com/Billy-Davies-2/pricing-game/internal/pubsub"
)

// Rank orders teams by total profit, highest first. Teams must arrive in
// join order; equal profits keep that order.
func Rank(teams []models.Team) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, len(teams))
	for i, t := range teams {
		entries[i] = models.LeaderboardEntry{
			Key:          t.Key,
			Name:         t.Name,
			TotalProfit:  t.TotalProfit,
			RoundsPlayed: len(t.History),
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalProfit > entries[j].TotalProfit
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// TeamLister is the read the aggregator needs from the store.
type TeamLister interface {
	ListTeams(ctx context.Context) ([]models.Team, error)
}

// Aggregator keeps a ranking current by recomputing it on every bus event.
type Aggregator struct {
	source TeamLister
	bus    pubsub.Bus

	mu       sync.RWMutex
	current  []models.LeaderboardEntry
	watchers map[chan []models.LeaderboardEntry]struct{}
	closed   bool
}

// NewAggregator returns an Aggregator; call Run to start it.
func NewAggregator(source TeamLister, bus pubsub.Bus) *Aggregator {
	return &Aggregator{
		source:   source,
		bus:      bus,
		current:  []models.LeaderboardEntry{},
		watchers: make(map[chan []models.LeaderboardEntry]struct{}),
	}
}

// Run recomputes once, then on each event until ctx ends. On exit the bus
// subscription is released and every Updates channel is closed.
func (a *Aggregator) Run(ctx context.Context) {
	events := a.bus.Subscribe()
	defer a.bus.Unsubscribe(events)
	defer a.closeWatchers()

	a.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			a.Refresh(ctx)
		}
	}
}

// Refresh recomputes the ranking from the store and notifies watchers.
// A failed read keeps the previous ranking.
func (a *Aggregator) Refresh(ctx context.Context) {
	teams, err := a.source.ListTeams(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("Leaderboard refresh failed", "error", err)
		}
		return
	}
	ranked := Rank(teams)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = ranked
	for ch := range a.watchers {
		offerLatest(ch, ranked)
	}
}

// Current returns the most recent ranking.
func (a *Aggregator) Current() []models.LeaderboardEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]models.LeaderboardEntry{}, a.current...)
}

// Updates returns a channel that always holds the latest ranking; older
// unread rankings are replaced. The current ranking is delivered first.
func (a *Aggregator) Updates() chan []models.LeaderboardEntry {
	ch := make(chan []models.LeaderboardEntry, 1)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		close(ch)
		return ch
	}
	a.watchers[ch] = struct{}{}
	ch <- append([]models.LeaderboardEntry{}, a.current...)
	return ch
}

// StopUpdates releases a channel obtained from Updates.
func (a *Aggregator) StopUpdates(ch chan []models.LeaderboardEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.watchers[ch]; ok {
		delete(a.watchers, ch)
		close(ch)
	}
}

func (a *Aggregator) closeWatchers() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for ch := range a.watchers {
		close(ch)
	}
	a.watchers = map[chan []models.LeaderboardEntry]struct{}{}
	a.closed = true
}

// offerLatest must be called with a.mu held; ch has capacity 1.
func offerLatest(ch chan []models.LeaderboardEntry, ranked []models.LeaderboardEntry) {
	snapshot := append([]models.LeaderboardEntry{}, ranked...)
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snapshot:
	default:
	}
}
