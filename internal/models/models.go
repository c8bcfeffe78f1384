package models

import (
	"sort"
	"time"
)

// Status is the lifecycle state of the game session
type Status string

const (
	StatusIdle   Status = "idle"
	StatusActive Status = "active"
)

// OptionKeys are the four fixed pricing slots, in display order.
var OptionKeys = []string{"A", "B", "C", "D"}

// ValidOptionKey reports whether key is one of the fixed slots.
func ValidOptionKey(key string) bool {
	for _, k := range OptionKeys {
		if k == key {
			return true
		}
	}
	return false
}

// GameConfig defines the demand curve and cost structure for a session
type GameConfig struct {
	FixedCost        float64 `json:"fixedCost" yaml:"fixedCost" bson:"fixedCost"`
	VariableCost     float64 `json:"variableCost" yaml:"variableCost" bson:"variableCost"`
	BaseDemand       float64 `json:"baseDemand" yaml:"baseDemand" bson:"baseDemand"`
	PriceSensitivity float64 `json:"priceSensitivity" yaml:"priceSensitivity" bson:"priceSensitivity"`
}

// PricingOption is one selectable price slot
type PricingOption struct {
	Label string  `json:"label" yaml:"label" bson:"label"`
	Price float64 `json:"price" yaml:"price" bson:"price"`
}

// GameSession is the singleton session record
type GameSession struct {
	Status         Status                   `json:"status" bson:"status"`
	NumRounds      int                      `json:"numRounds" bson:"numRounds"`
	Config         *GameConfig              `json:"config,omitempty" bson:"config,omitempty"`
	PricingOptions map[string]PricingOption `json:"pricingOptions,omitempty" bson:"pricingOptions,omitempty"`
	StartedAt      *time.Time               `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
}

// Configured reports whether config, options and round count are all present.
func (g *GameSession) Configured() bool {
	return g != nil && g.Config != nil && len(g.PricingOptions) > 0 && g.NumRounds >= 1
}

// Ready reports whether the session is playable.
func (g *GameSession) Ready() bool {
	return g != nil && g.Status == StatusActive && g.Configured()
}

// Clone returns a deep copy.
func (g *GameSession) Clone() *GameSession {
	if g == nil {
		return nil
	}
	c := *g
	if g.Config != nil {
		cfg := *g.Config
		c.Config = &cfg
	}
	if g.PricingOptions != nil {
		c.PricingOptions = make(map[string]PricingOption, len(g.PricingOptions))
		for k, v := range g.PricingOptions {
			c.PricingOptions[k] = v
		}
	}
	if g.StartedAt != nil {
		ts := *g.StartedAt
		c.StartedAt = &ts
	}
	return &c
}

// SortedOptionKeys returns the option keys present, in slot order.
func (g *GameSession) SortedOptionKeys() []string {
	keys := make([]string, 0, len(g.PricingOptions))
	for k := range g.PricingOptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RoundEntry is one recorded round for a team. Immutable once written.
type RoundEntry struct {
	Round     int     `json:"round" bson:"round"`
	OptionKey string  `json:"optionKey" bson:"optionKey"`
	Price     float64 `json:"price" bson:"price"`
	Demand    int     `json:"demand" bson:"demand"`
	Revenue   float64 `json:"revenue" bson:"revenue"`
	Cost      float64 `json:"cost" bson:"cost"`
	Profit    float64 `json:"profit" bson:"profit"`
}

// Team is one participating group
type Team struct {
	Key         string       `json:"key" bson:"key"`
	Name        string       `json:"name" bson:"name"`
	JoinedAt    time.Time    `json:"joinedAt" bson:"joinedAt"`
	TotalProfit float64      `json:"totalProfit" bson:"totalProfit"`
	History     []RoundEntry `json:"history" bson:"history"`
}

// NextRound is the round a team would play next.
func (t *Team) NextRound() int {
	return len(t.History) + 1
}

// Clone returns a copy with its own history slice.
func (t Team) Clone() Team {
	t.History = append([]RoundEntry{}, t.History...)
	return t
}

// LeaderboardEntry is a derived ranking row
type LeaderboardEntry struct {
	Rank         int     `json:"rank"`
	Key          string  `json:"key"`
	Name         string  `json:"name"`
	TotalProfit  float64 `json:"totalProfit"`
	RoundsPlayed int     `json:"roundsPlayed"`
}

// SessionState is the full read model served to clients
type SessionState struct {
	Game        *GameSession       `json:"game"`
	Ready       bool               `json:"ready"`
	Teams       []Team             `json:"teams"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// Progress is a team's view of its own position in the game
type Progress struct {
	Team      Team `json:"team"`
	Round     int  `json:"round"`
	NumRounds int  `json:"numRounds"`
	Over      bool `json:"over"`
}

// OptionStats aggregates recorded rounds per pricing option
type OptionStats struct {
	OptionKey   string  `json:"optionKey"`
	Rounds      uint64  `json:"rounds"`
	AvgDemand   float64 `json:"avgDemand"`
	AvgProfit   float64 `json:"avgProfit"`
	TotalProfit float64 `json:"totalProfit"`
}
