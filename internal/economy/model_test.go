package economy

import (
	"math"
	"testing"

	"github.com/Billy-Davies-2/pricing-game/internal/models"
)

var testConfig = models.GameConfig{
	FixedCost:        1000,
	VariableCost:     10,
	BaseDemand:       1200,
	PriceSensitivity: 8,
}

func TestEvaluateAtAnchorWithoutNoise(t *testing.T) {
	out := Evaluate(testConfig, Anchor, 1)

	if out.Demand != 1200 {
		t.Fatalf("expected demand to equal baseDemand at the anchor, got %d", out.Demand)
	}
	if out.Revenue != 60000 {
		t.Errorf("expected revenue 60000, got %v", out.Revenue)
	}
	if out.Cost != 13000 {
		t.Errorf("expected cost 13000, got %v", out.Cost)
	}
	if out.Profit != 47000 {
		t.Errorf("expected profit 47000, got %v", out.Profit)
	}
}

func TestEvaluateClampsDemandAtZero(t *testing.T) {
	// 1200 - 8*(500-50) is deeply negative
	out := Evaluate(testConfig, 500, 1.1)
	if out.Demand != 0 {
		t.Fatalf("expected zero demand, got %d", out.Demand)
	}
	if out.Revenue != 0 || out.Cost != testConfig.FixedCost || out.Profit != -testConfig.FixedCost {
		t.Errorf("unexpected outcome with zero demand: %+v", out)
	}
}

func TestEvaluateTreatsNonFiniteAsZero(t *testing.T) {
	cfg := models.GameConfig{
		FixedCost:        math.NaN(),
		VariableCost:     math.Inf(1),
		BaseDemand:       100,
		PriceSensitivity: 0,
	}
	out := Evaluate(cfg, math.NaN(), 1)

	if out.Demand != 100 {
		t.Errorf("expected demand 100, got %d", out.Demand)
	}
	if out.Cost != 0 || out.Revenue != 0 || out.Profit != 0 {
		t.Errorf("expected zero money with NaN price and costs, got %+v", out)
	}
}

func TestComputeIdentitiesAndNoiseBounds(t *testing.T) {
	m := NewSeededModel(42, 7)
	prices := []float64{0, 25, 40, 50, 60, 75, 120, 199.5}

	for _, price := range prices {
		raw := RawDemand(testConfig, price)
		lo := math.Floor(raw * (1 - NoiseSpread))
		hi := math.Floor(raw * (1 + NoiseSpread))

		for i := 0; i < 500; i++ {
			out := m.Compute(testConfig, price)
			d := float64(out.Demand)

			if out.Demand < 0 {
				t.Fatalf("price %v: negative demand %d", price, out.Demand)
			}
			if d < lo || d > hi {
				t.Fatalf("price %v: demand %d outside [%v, %v]", price, out.Demand, lo, hi)
			}
			if out.Revenue != price*d {
				t.Fatalf("price %v: revenue %v != price*demand", price, out.Revenue)
			}
			if out.Cost != testConfig.FixedCost+testConfig.VariableCost*d {
				t.Fatalf("price %v: cost %v != fixed+variable*demand", price, out.Cost)
			}
			if out.Profit != out.Revenue-out.Cost {
				t.Fatalf("price %v: profit %v != revenue-cost", price, out.Profit)
			}
		}
	}
}

func TestComputeNoiseSpreadsAcrossRange(t *testing.T) {
	m := NewSeededModel(1, 2)
	minD, maxD := math.MaxInt, 0
	sum := 0
	const n = 2000

	for i := 0; i < n; i++ {
		d := m.Compute(testConfig, Anchor).Demand
		sum += d
		if d < minD {
			minD = d
		}
		if d > maxD {
			maxD = d
		}
	}

	if minD > 1100 || maxD < 1300 {
		t.Errorf("expected noise to reach near both bounds, got [%d, %d]", minD, maxD)
	}
	mean := float64(sum) / n
	if mean < 1180 || mean > 1220 {
		t.Errorf("expected mean demand near 1200, got %v", mean)
	}
}

func TestSeededModelsAreReproducible(t *testing.T) {
	a := NewSeededModel(99, 100)
	b := NewSeededModel(99, 100)

	for i := 0; i < 20; i++ {
		if x, y := a.Compute(testConfig, 45), b.Compute(testConfig, 45); x != y {
			t.Fatalf("draw %d differs: %+v vs %+v", i, x, y)
		}
	}
}

func TestNewModelWithoutSource(t *testing.T) {
	m := NewModel(nil)
	out := m.Compute(testConfig, 60)
	if out.Demand < 1008 || out.Demand > 1232 {
		t.Errorf("demand %d outside noise bounds for raw 1120", out.Demand)
	}
}
