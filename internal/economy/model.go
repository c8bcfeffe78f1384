// Package economy computes round outcomes from a session's demand curve.
package economy

import (
	crand "crypto/rand"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/Billy-Davies-2/pricing-game/internal/models"
)

const (
	// Anchor is the price at which raw demand equals baseDemand.
	Anchor = 50.0
	// NoiseSpread bounds the multiplicative demand noise to [1-NoiseSpread, 1+NoiseSpread].
	NoiseSpread = 0.1
)

// Outcome is the result of one priced round
type Outcome struct {
	Demand  int     `json:"demand"`
	Revenue float64 `json:"revenue"`
	Cost    float64 `json:"cost"`
	Profit  float64 `json:"profit"`
}

// Model draws demand noise from its own random source. Safe for concurrent use.
type Model struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewModel returns a Model using src, or a cryptographically seeded PCG when src is nil.
func NewModel(src rand.Source) *Model {
	if src == nil {
		src = rand.NewPCG(seed(), seed())
	}
	return &Model{rng: rand.New(src)}
}

// NewSeededModel returns a reproducible Model.
func NewSeededModel(s1, s2 uint64) *Model {
	return NewModel(rand.NewPCG(s1, s2))
}

// Compute prices one round with fresh noise.
func (m *Model) Compute(cfg models.GameConfig, price float64) Outcome {
	return Evaluate(cfg, price, m.noise())
}

func (m *Model) noise() float64 {
	m.mu.Lock()
	u := m.rng.Float64()
	m.mu.Unlock()
	return 1 - NoiseSpread + 2*NoiseSpread*u
}

// RawDemand is the noiseless demand at price, clamped at zero.
func RawDemand(cfg models.GameConfig, price float64) float64 {
	raw := num(cfg.BaseDemand) - num(cfg.PriceSensitivity)*(num(price)-Anchor)
	return math.Max(0, raw)
}

// Evaluate applies a fixed noise factor. Non-finite inputs count as 0.
func Evaluate(cfg models.GameConfig, price, noise float64) Outcome {
	price = num(price)
	demand := int(math.Floor(RawDemand(cfg, price) * num(noise)))
	if demand < 0 {
		demand = 0
	}

	d := float64(demand)
	revenue := price * d
	cost := num(cfg.FixedCost) + num(cfg.VariableCost)*d

	return Outcome{
		Demand:  demand,
		Revenue: revenue,
		Cost:    cost,
		Profit:  revenue - cost,
	}
}

func num(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// seed must never fail; a fixed fallback keeps the model usable.
func seed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0x9e3779b97f4a7c15
	}
	return binary.LittleEndian.Uint64(b[:])
}
