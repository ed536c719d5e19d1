package strategy

import (
	"testing"

	"github.com/bobmcallan/vire/internal/optionscan"
)

type stubStrategy struct {
	name string
	recs []optionscan.Recommendation
	min  int
	max  int
}

func (s *stubStrategy) Name() string       { return s.name }
func (s *stubStrategy) Bounds() (int, int) { return s.min, s.max }
func (s *stubStrategy) Evaluate(*optionscan.AggregatedMarketData) []optionscan.Recommendation {
	return s.recs
}

func TestEngine_FiltersByMinConfidence(t *testing.T) {
	reg := NewRegistry(&stubStrategy{
		name: "a",
		recs: []optionscan.Recommendation{
			{StrategyName: "a", Confidence: 0.9},
			{StrategyName: "a", Confidence: 0.2},
		},
	})
	engine := NewEngine(reg, 0.5)
	got := engine.Evaluate(&optionscan.AggregatedMarketData{})
	if len(got) != 1 || got[0].Confidence != 0.9 {
		t.Errorf("expected only the 0.9-confidence rec, got %+v", got)
	}
}

func TestEngine_TieBreakOrdering(t *testing.T) {
	reg := NewRegistry(&stubStrategy{
		name: "z",
		recs: []optionscan.Recommendation{
			{StrategyName: "z", Confidence: 0.8, ExpectedGrowthPercent: 2, DaysToExpiry: 20},
			{StrategyName: "a", Confidence: 0.8, ExpectedGrowthPercent: 2, DaysToExpiry: 14},
			{StrategyName: "b", Confidence: 0.8, ExpectedGrowthPercent: 5, DaysToExpiry: 18},
		},
	})
	engine := NewEngine(reg, 0)
	got := engine.Evaluate(&optionscan.AggregatedMarketData{})
	if len(got) != 3 {
		t.Fatalf("expected 3 recs, got %d", len(got))
	}
	// Highest ExpectedGrowthPercent wins on confidence tie.
	if got[0].StrategyName != "b" {
		t.Errorf("expected b first (higher growth), got %s", got[0].StrategyName)
	}
	// Then smaller DaysToExpiry (14 < 20).
	if got[1].StrategyName != "a" {
		t.Errorf("expected a second (lower days), got %s", got[1].StrategyName)
	}
	if got[2].StrategyName != "z" {
		t.Errorf("expected z third, got %s", got[2].StrategyName)
	}
}

func TestEngine_TruncatesToTop3(t *testing.T) {
	reg := NewRegistry(&stubStrategy{
		name: "a",
		recs: []optionscan.Recommendation{
			{StrategyName: "a", Confidence: 0.9},
			{StrategyName: "a", Confidence: 0.8},
			{StrategyName: "a", Confidence: 0.7},
			{StrategyName: "a", Confidence: 0.6},
		},
	})
	engine := NewEngine(reg, 0)
	got := engine.Evaluate(&optionscan.AggregatedMarketData{})
	if len(got) != 3 {
		t.Errorf("expected truncation to 3, got %d", len(got))
	}
}

func TestRegistry_CombinedExpiryWindow(t *testing.T) {
	reg := NewRegistry(
		&stubStrategy{name: "a", min: 14, max: 21},
		&stubStrategy{name: "b", min: 10, max: 30},
	)
	lo, hi := reg.CombinedExpiryWindow()
	if lo != 10 || hi != 30 {
		t.Errorf("CombinedExpiryWindow() = (%d,%d), want (10,30)", lo, hi)
	}
}
