package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Billy-Davies-2/pricing-game/internal/apperr"
	"github.com/Billy-Davies-2/pricing-game/internal/dal"
	"github.com/Billy-Davies-2/pricing-game/internal/economy"
	"github.com/Billy-Davies-2/pricing-game/internal/identity"
	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/Billy-Davies-2/pricing-game/internal/models"
	"github.com/Billy-Davies-2/pricing-game/internal/pubsub"
)

func init() {
	logger.Init()
}

var fixedNow = time.Date(2026, 10, 1, 14, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, store dal.SessionDAL) (*Service, *pubsub.PubSub) {
	t.Helper()
	if store == nil {
		store = dal.NewMemoryDAL()
	}
	bus := pubsub.New()
	svc := NewService(store, bus, economy.NewSeededModel(3, 4), WithClock(func() time.Time { return fixedNow }))
	return svc, bus
}

func scenarioConfig() ConfigInput {
	return ConfigInput{
		NumRounds: 3,
		Config: &models.GameConfig{
			FixedCost:        100,
			VariableCost:     5,
			BaseDemand:       500,
			PriceSensitivity: 2,
		},
		PricingOptions: map[string]models.PricingOption{
			"A": {Price: 40},
		},
	}
}

func mustStart(t *testing.T, svc *Service, in ConfigInput) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.SaveConfiguration(ctx, in); err != nil {
		t.Fatalf("SaveConfiguration: %v", err)
	}
	if _, err := svc.StartGame(ctx); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
}

func drain(ch chan pubsub.Event) []string {
	var types []string
	for {
		select {
		case ev := <-ch:
			types = append(types, ev.Type)
		default:
			return types
		}
	}
}

func TestEndToEndScenario(t *testing.T) {
	svc, bus := newTestService(t, nil)
	events := bus.Subscribe()
	ctx := context.Background()

	mustStart(t, svc, scenarioConfig())

	team, err := svc.Join(ctx, "Alpha")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if team.Key != "alpha" {
		t.Fatalf("expected key alpha, got %s", team.Key)
	}
	id := identity.Identity{Key: team.Key, Name: team.Name}

	sum := 0.0
	var last *RoundResult
	for i := 1; i <= 3; i++ {
		res, err := svc.SubmitChoice(ctx, id, "A")
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if res.Entry.Round != i || res.Entry.Price != 40 || res.Entry.OptionKey != "A" {
			t.Errorf("round %d: unexpected entry %+v", i, res.Entry)
		}
		// raw demand at price 40 is 500 - 2*(40-50) = 520
		if res.Entry.Demand < 468 || res.Entry.Demand > 572 {
			t.Errorf("round %d: demand %d outside noise bounds", i, res.Entry.Demand)
		}
		sum += res.Entry.Profit
		last = res
	}
	if !last.Over || last.Round != 4 {
		t.Errorf("expected terminal state after round 3, got %+v", last)
	}

	_, err = svc.SubmitChoice(ctx, id, "A")
	if !apperr.Is(err, apperr.KindNotReady) {
		t.Fatalf("expected game over to reject a 4th round, got %v", err)
	}

	state, err := svc.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if len(state.Teams) != 1 || len(state.Teams[0].History) != 3 {
		t.Fatalf("expected one team with 3 rounds, got %+v", state.Teams)
	}
	for i, e := range state.Teams[0].History {
		if e.Round != i+1 {
			t.Errorf("history[%d].Round = %d", i, e.Round)
		}
	}
	if len(state.Leaderboard) != 1 || state.Leaderboard[0].Key != "alpha" || state.Leaderboard[0].TotalProfit != sum {
		t.Errorf("leaderboard %+v does not match summed profit %v", state.Leaderboard, sum)
	}
	if state.Teams[0].TotalProfit != sum {
		t.Errorf("team total %v != %v", state.Teams[0].TotalProfit, sum)
	}

	got := drain(events)
	want := []string{pubsub.EventGameConfig, pubsub.EventGameStart, pubsub.EventTeamJoin,
		pubsub.EventTeamRound, pubsub.EventTeamRound, pubsub.EventTeamRound}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSaveConfigurationNormalizes(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	g, err := svc.SaveConfiguration(ctx, ConfigInput{
		NumRounds: 0,
		Config:    &models.GameConfig{FixedCost: -5, VariableCost: 2, BaseDemand: 100, PriceSensitivity: -1},
		PricingOptions: map[string]models.PricingOption{
			"A": {Label: "  ", Price: -10},
			"B": {Label: "Standard", Price: 50},
		},
	})
	if err != nil {
		t.Fatalf("SaveConfiguration: %v", err)
	}
	if g.NumRounds != 1 {
		t.Errorf("numRounds should default to 1, got %d", g.NumRounds)
	}
	if g.Config.FixedCost != 0 || g.Config.PriceSensitivity != 0 || g.Config.VariableCost != 2 {
		t.Errorf("negative config values should become 0: %+v", g.Config)
	}
	if g.PricingOptions["A"].Label != "A" || g.PricingOptions["A"].Price != 0 {
		t.Errorf("option A not normalized: %+v", g.PricingOptions["A"])
	}
	if g.Status != models.StatusIdle || g.StartedAt != nil {
		t.Errorf("save must force idle: %+v", g)
	}
}

func TestSaveConfigurationRejectsUnknownOption(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	svc.SaveConfiguration(ctx, scenarioConfig())

	in := scenarioConfig()
	in.PricingOptions["E"] = models.PricingOption{Price: 10}
	if _, err := svc.SaveConfiguration(ctx, in); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	state, _ := svc.State(ctx)
	if _, ok := state.Game.PricingOptions["E"]; ok {
		t.Error("rejected configuration must not be stored")
	}
}

func TestSaveConfigurationForcesIdle(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	mustStart(t, svc, scenarioConfig())

	g, err := svc.SaveConfiguration(ctx, scenarioConfig())
	if err != nil {
		t.Fatalf("SaveConfiguration: %v", err)
	}
	state, _ := svc.State(ctx)
	if g.Status != models.StatusIdle || state.Game.Status != models.StatusIdle || state.Ready {
		t.Errorf("saving while active must return the session to idle: %+v", state.Game)
	}
}

func TestStartGameRequiresConfiguration(t *testing.T) {
	tests := []struct {
		name string
		in   *ConfigInput
	}{
		{"nothing saved", nil},
		{"options empty", &ConfigInput{NumRounds: 3, Config: &models.GameConfig{BaseDemand: 10}}},
		{"config missing", &ConfigInput{NumRounds: 3, PricingOptions: map[string]models.PricingOption{"A": {Price: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, bus := newTestService(t, nil)
			ctx := context.Background()
			if tt.in != nil {
				if _, err := svc.SaveConfiguration(ctx, *tt.in); err != nil {
					t.Fatalf("SaveConfiguration: %v", err)
				}
			}
			events := bus.Subscribe()

			_, err := svc.StartGame(ctx)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}

			state, _ := svc.State(ctx)
			if state.Game != nil && state.Game.Status != models.StatusIdle {
				t.Errorf("status must remain idle, got %s", state.Game.Status)
			}
			if got := drain(events); len(got) != 0 {
				t.Errorf("no events expected on a rejected start, got %v", got)
			}
		})
	}
}

func TestStartGameSetsActive(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	svc.SaveConfiguration(ctx, scenarioConfig())

	g, err := svc.StartGame(ctx)
	if err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if g.Status != models.StatusActive || g.StartedAt == nil || !g.StartedAt.Equal(fixedNow) {
		t.Errorf("unexpected started game: %+v", g)
	}

	if _, err := svc.StartGame(ctx); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("starting an active game should be rejected, got %v", err)
	}
}

func TestResetPreservesConfiguration(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	mustStart(t, svc, scenarioConfig())

	team, _ := svc.Join(ctx, "Alpha")
	svc.SubmitChoice(ctx, identity.Identity{Key: team.Key, Name: team.Name}, "A")

	g, err := svc.ResetSession(ctx)
	if err != nil {
		t.Fatalf("ResetSession: %v", err)
	}
	if g.Status != models.StatusIdle || g.NumRounds != 3 {
		t.Errorf("unexpected reset game: %+v", g)
	}
	if *g.Config != *scenarioConfig().Config {
		t.Errorf("config not preserved: %+v", g.Config)
	}
	if len(g.PricingOptions) != 1 || g.PricingOptions["A"].Price != 40 {
		t.Errorf("options not preserved: %+v", g.PricingOptions)
	}

	state, _ := svc.State(ctx)
	if len(state.Teams) != 0 || len(state.Leaderboard) != 0 {
		t.Errorf("reset must clear teams and leaderboard: %+v", state)
	}

	// the name is free again and the rejoined team starts at round 1
	if _, err := svc.Join(ctx, "Alpha"); err != nil {
		t.Fatalf("rejoin after reset: %v", err)
	}
	p, err := svc.Resume(ctx, identity.Identity{Key: "alpha", Name: "Alpha"})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if p.Round != 1 {
		t.Errorf("expected round 1 after reset, got %d", p.Round)
	}
}

func TestResetFallsBackToDefaults(t *testing.T) {
	store := dal.NewMemoryDAL()
	defaults := Defaults{
		NumRounds:      4,
		Config:         models.GameConfig{FixedCost: 1, VariableCost: 2, BaseDemand: 3, PriceSensitivity: 4},
		PricingOptions: map[string]models.PricingOption{"B": {Label: "Only", Price: 9}},
	}
	svc := NewService(store, nil, economy.NewSeededModel(1, 1), WithDefaults(defaults))
	ctx := context.Background()

	g, err := svc.ResetSession(ctx)
	if err != nil {
		t.Fatalf("ResetSession: %v", err)
	}
	if g.NumRounds != 4 || *g.Config != defaults.Config || g.PricingOptions["B"].Price != 9 {
		t.Errorf("expected defaults on an empty store, got %+v", g)
	}

	// per-field: config present, options missing
	store.SaveGame(ctx, &models.GameSession{Status: models.StatusActive, NumRounds: 2,
		Config: &models.GameConfig{BaseDemand: 77}})
	g, _ = svc.ResetSession(ctx)
	if g.NumRounds != 2 || g.Config.BaseDemand != 77 || g.PricingOptions["B"].Label != "Only" {
		t.Errorf("expected per-field preservation, got %+v", g)
	}
	if g.Status != models.StatusIdle {
		t.Errorf("reset must set idle, got %s", g.Status)
	}
}

func TestBuiltinDefaults(t *testing.T) {
	d := BuiltinDefaults()
	if d.NumRounds != 5 || d.Config.BaseDemand != 1200 || len(d.PricingOptions) != 4 {
		t.Errorf("unexpected builtin defaults: %+v", d)
	}
	for _, k := range models.OptionKeys {
		if _, ok := d.PricingOptions[k]; !ok {
			t.Errorf("missing default option %s", k)
		}
	}
}

func TestSubmitChoicePreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("missing identity", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		mustStart(t, svc, scenarioConfig())
		for _, id := range []identity.Identity{{}, {Key: "alpha"}, {Name: "Alpha"}} {
			if _, err := svc.SubmitChoice(ctx, id, "A"); !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("identity %+v: expected validation, got %v", id, err)
			}
		}
	})

	t.Run("unknown team", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		mustStart(t, svc, scenarioConfig())
		_, err := svc.SubmitChoice(ctx, identity.Identity{Key: "ghost", Name: "Ghost"}, "A")
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("expected validation, got %v", err)
		}
		svc.mu.Lock()
		n := len(svc.controllers)
		svc.mu.Unlock()
		if n != 0 {
			t.Errorf("unknown teams should not stay registered, got %d controllers", n)
		}
	})

	t.Run("not started", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		svc.SaveConfiguration(ctx, scenarioConfig())
		team, _ := svc.Join(ctx, "Alpha")
		_, err := svc.SubmitChoice(ctx, identity.Identity{Key: team.Key, Name: team.Name}, "A")
		if !apperr.Is(err, apperr.KindNotReady) {
			t.Errorf("expected not ready, got %v", err)
		}
	})

	t.Run("invalid option", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		mustStart(t, svc, scenarioConfig())
		team, _ := svc.Join(ctx, "Alpha")
		id := identity.Identity{Key: team.Key, Name: team.Name}
		for _, opt := range []string{"B", "Z", ""} {
			if _, err := svc.SubmitChoice(ctx, id, opt); !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("option %q: expected validation, got %v", opt, err)
			}
		}
		p, _ := svc.Resume(ctx, id)
		if p.Round != 1 || len(p.Team.History) != 0 {
			t.Errorf("rejected choices must not mutate state: %+v", p)
		}
	})
}

func TestResumeContinuesFromHistory(t *testing.T) {
	store := dal.NewMemoryDAL()
	svc, _ := newTestService(t, store)
	ctx := context.Background()
	mustStart(t, svc, scenarioConfig())

	team, _ := svc.Join(ctx, "Alpha")
	id := identity.Identity{Key: team.Key, Name: team.Name}
	svc.SubmitChoice(ctx, id, "A")
	svc.SubmitChoice(ctx, id, "A")

	// a fresh process over the same store, as after a reload
	other, _ := newTestService(t, store)
	p, err := other.Resume(ctx, id)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if p.Round != 3 || p.NumRounds != 3 || p.Over || len(p.Team.History) != 2 {
		t.Errorf("unexpected progress: %+v", p)
	}

	res, err := other.SubmitChoice(ctx, id, "A")
	if err != nil {
		t.Fatalf("SubmitChoice after resume: %v", err)
	}
	if res.Entry.Round != 3 || !res.Over {
		t.Errorf("expected final round 3, got %+v", res)
	}

	p, _ = svc.Resume(ctx, id)
	if !p.Over || p.Round != 4 {
		t.Errorf("expected terminal progress, got %+v", p)
	}
}

func TestStaleControllerResyncs(t *testing.T) {
	store := dal.NewMemoryDAL()
	a, _ := newTestService(t, store)
	b, _ := newTestService(t, store)
	ctx := context.Background()
	mustStart(t, a, scenarioConfig())

	team, _ := a.Join(ctx, "Alpha")
	id := identity.Identity{Key: team.Key, Name: team.Name}

	// b caches the team at round 1, then a plays round 1
	if _, err := b.Resume(ctx, id); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if _, err := a.SubmitChoice(ctx, id, "A"); err != nil {
		t.Fatalf("SubmitChoice: %v", err)
	}

	if _, err := b.SubmitChoice(ctx, id, "A"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict from stale controller, got %v", err)
	}
	res, err := b.SubmitChoice(ctx, id, "A")
	if err != nil {
		t.Fatalf("retry after resync: %v", err)
	}
	if res.Entry.Round != 2 {
		t.Errorf("expected round 2 after resync, got %d", res.Entry.Round)
	}
}

func TestHistoryAndTotalsAfterManyRounds(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	in := scenarioConfig()
	in.NumRounds = 10
	in.PricingOptions = map[string]models.PricingOption{"A": {Price: 30}, "B": {Price: 55}, "C": {Price: 70}, "D": {Price: 90}}
	mustStart(t, svc, in)

	team, _ := svc.Join(ctx, "Many")
	id := identity.Identity{Key: team.Key, Name: team.Name}
	keys := []string{"A", "B", "C", "D"}
	running := 0.0
	for i := 0; i < 10; i++ {
		res, err := svc.SubmitChoice(ctx, id, keys[i%4])
		if err != nil {
			t.Fatalf("round %d: %v", i+1, err)
		}
		running += res.Entry.Profit
		if res.Team.TotalProfit != running {
			t.Fatalf("round %d: total %v != running sum %v", i+1, res.Team.TotalProfit, running)
		}
		e := res.Entry
		if e.Revenue != e.Price*float64(e.Demand) || e.Cost != 100+5*float64(e.Demand) || e.Profit != e.Revenue-e.Cost {
			t.Fatalf("round %d: outcome identities broken: %+v", i+1, e)
		}
	}
}

// blockingStore holds RecordRound until released.
type blockingStore struct {
	*dal.MemoryDAL
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) RecordRound(ctx context.Context, key string, expected int, e models.RoundEntry) (float64, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.MemoryDAL.RecordRound(ctx, key, expected, e)
}

func TestInFlightGuardRejectsDoubleSubmit(t *testing.T) {
	store := &blockingStore{MemoryDAL: dal.NewMemoryDAL(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	svc, _ := newTestService(t, store)
	ctx := context.Background()
	mustStart(t, svc, scenarioConfig())
	team, _ := svc.Join(ctx, "Alpha")
	id := identity.Identity{Key: team.Key, Name: team.Name}

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = svc.SubmitChoice(ctx, id, "A")
	}()

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first submission never reached the store")
	}

	if _, err := svc.SubmitChoice(ctx, id, "A"); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected conflict while a submission is in flight, got %v", err)
	}

	close(store.release)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first submission failed: %v", firstErr)
	}

	p, _ := svc.Resume(ctx, id)
	if len(p.Team.History) != 1 {
		t.Errorf("expected exactly one recorded round, got %d", len(p.Team.History))
	}

	// the guard is released afterwards
	go func() { <-store.entered }()
	if _, err := svc.SubmitChoice(ctx, id, "A"); err != nil {
		t.Errorf("second submission after completion failed: %v", err)
	}
}

// failingStore fails RecordRound once.
type failingStore struct {
	*dal.MemoryDAL
	mu   sync.Mutex
	fail bool
}

func (f *failingStore) RecordRound(ctx context.Context, key string, expected int, e models.RoundEntry) (float64, error) {
	f.mu.Lock()
	fail := f.fail
	f.fail = false
	f.mu.Unlock()
	if fail {
		return 0, errors.New("write timed out")
	}
	return f.MemoryDAL.RecordRound(ctx, key, expected, e)
}

func TestFailedWriteDoesNotAdvance(t *testing.T) {
	store := &failingStore{MemoryDAL: dal.NewMemoryDAL()}
	svc, bus := newTestService(t, store)
	ctx := context.Background()
	mustStart(t, svc, scenarioConfig())
	team, _ := svc.Join(ctx, "Alpha")
	id := identity.Identity{Key: team.Key, Name: team.Name}
	events := bus.Subscribe()

	store.fail = true
	_, err := svc.SubmitChoice(ctx, id, "A")
	if !apperr.Is(err, apperr.KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if got := drain(events); len(got) != 0 {
		t.Errorf("no round event expected after a failed write, got %v", got)
	}

	res, err := svc.SubmitChoice(ctx, id, "A")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if res.Entry.Round != 1 {
		t.Errorf("retry should replay round 1, got %d", res.Entry.Round)
	}
}

func TestJoinConflict(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.Join(ctx, "Team Rocket"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := svc.Join(ctx, "team rocket"); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if _, err := svc.Join(ctx, " "); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation, got %v", err)
	}
}

func TestLeaderboardTieOrder(t *testing.T) {
	store := dal.NewMemoryDAL()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	profits := []float64{30, 10, 30, 20}
	names := []string{"w", "x", "y", "z"}
	for i, n := range names {
		store.CreateTeam(ctx, models.Team{Key: n, Name: n, JoinedAt: fixedNow.Add(time.Duration(i) * time.Second)})
		store.RecordRound(ctx, n, 0, models.RoundEntry{Round: 1, Profit: profits[i]})
	}

	ranked, err := svc.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	want := []string{"w", "y", "z", "x"}
	for i, k := range want {
		if ranked[i].Key != k {
			t.Errorf("position %d: got %s, want %s", i, ranked[i].Key, k)
		}
	}
}

func TestStateOnEmptyStore(t *testing.T) {
	svc, _ := newTestService(t, nil)
	state, err := svc.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Game != nil || state.Ready || len(state.Teams) != 0 || state.Leaderboard == nil {
		t.Errorf("unexpected empty state: %+v", state)
	}
}

func TestResetOnAnotherInstanceKeepsTotalsConsistent(t *testing.T) {
	store := dal.NewMemoryDAL()
	clock := WithClock(func() time.Time { return fixedNow })
	x := NewService(store, pubsub.New(), economy.NewSeededModel(1, 2), clock)
	y := NewService(store, pubsub.New(), economy.NewSeededModel(7, 9), clock)
	ctx := context.Background()

	mustStart(t, x, scenarioConfig())
	team, err := x.Join(ctx, "Alpha")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	id := identity.Identity{Key: team.Key, Name: team.Name}
	if _, err := x.SubmitChoice(ctx, id, "A"); err != nil {
		t.Fatalf("first round on x: %v", err)
	}

	// y resets and the team rejoins and plays there, leaving x's cache behind
	if _, err := y.ResetSession(ctx); err != nil {
		t.Fatalf("ResetSession: %v", err)
	}
	if _, err := y.StartGame(ctx); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if _, err := y.Join(ctx, "Alpha"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if _, err := y.SubmitChoice(ctx, id, "A"); err != nil {
		t.Fatalf("round on y: %v", err)
	}

	res, err := x.SubmitChoice(ctx, id, "A")
	if err != nil {
		t.Fatalf("second round on x: %v", err)
	}

	stored, err := store.GetTeam(ctx, team.Key)
	if err != nil {
		t.Fatalf("GetTeam: %v", err)
	}
	for _, got := range []models.Team{*stored, res.Team} {
		sum := 0.0
		for _, e := range got.History {
			sum += e.Profit
		}
		if len(got.History) != 2 || got.TotalProfit != sum {
			t.Errorf("history=%d totalProfit=%v sum(profit)=%v", len(got.History), got.TotalProfit, sum)
		}
	}

	ranked, _ := x.Leaderboard(ctx)
	if len(ranked) != 1 || ranked[0].TotalProfit != stored.TotalProfit {
		t.Errorf("leaderboard disagrees with the stored team: %+v", ranked)
	}
}

func TestWatchDropsControllersOnReset(t *testing.T) {
	store := dal.NewMemoryDAL()
	bus := pubsub.New()
	clock := WithClock(func() time.Time { return fixedNow })
	x := NewService(store, bus, economy.NewSeededModel(1, 2), clock)
	y := NewService(store, bus, economy.NewSeededModel(7, 9), clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go x.Watch(ctx, bus)
	deadline := time.After(2 * time.Second)
	for bus.SubscriberCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("watcher never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mustStart(t, x, scenarioConfig())
	if _, err := x.Join(ctx, "Alpha"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := y.ResetSession(ctx); err != nil {
		t.Fatalf("ResetSession: %v", err)
	}

	for {
		x.mu.Lock()
		n := len(x.controllers)
		x.mu.Unlock()
		if n == 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("expected controllers to be dropped after a reset elsewhere, still have %d", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
