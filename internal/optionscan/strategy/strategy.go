// Package strategy provides the pluggable PUT-selling scoring strategies
// and the engine that runs, filters, and ranks them.
package strategy

import (
	"sort"

	"github.com/bobmcallan/vire/internal/optionscan"
)

// Strategy is evaluated as a pure function of AggregatedMarketData: no
// I/O, no hidden state, polymorphic over capability via injection rather
// than subclassing a base scanner.
type Strategy interface {
	Name() string
	Bounds() (minDays, maxDays int)
	Evaluate(data *optionscan.AggregatedMarketData) []optionscan.Recommendation
}

// Registry is an ordered, append-only list of strategies; it never keeps
// package-level state, only constructor-injected fields.
type Registry struct {
	strategies []Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	return &Registry{strategies: strategies}
}

func (r *Registry) Register(s Strategy) {
	r.strategies = append(r.strategies, s)
}

func (r *Registry) All() []Strategy {
	return r.strategies
}

// CombinedExpiryWindow returns the widest [min,max] days-to-expiry window
// across all registered strategies, used by the aggregator to size its
// single options-chain request per symbol.
func (r *Registry) CombinedExpiryWindow() (minDays, maxDays int) {
	for i, s := range r.strategies {
		lo, hi := s.Bounds()
		if i == 0 || lo < minDays {
			minDays = lo
		}
		if i == 0 || hi > maxDays {
			maxDays = hi
		}
	}
	return minDays, maxDays
}

// Engine applies every registered strategy, filters by minimum confidence,
// and ranks the combined output.
type Engine struct {
	registry      *Registry
	minConfidence float64
}

func NewEngine(registry *Registry, minConfidence float64) *Engine {
	return &Engine{registry: registry, minConfidence: minConfidence}
}

// Evaluate runs every strategy against data, keeps recommendations with
// confidence >= minConfidence, sorts by confidence descending, then
// expected growth descending, then days-to-expiry ascending, then
// strategy name, and truncates to the top 3.
func (e *Engine) Evaluate(data *optionscan.AggregatedMarketData) []optionscan.Recommendation {
	var all []optionscan.Recommendation
	for _, s := range e.registry.All() {
		for _, rec := range s.Evaluate(data) {
			if rec.Confidence < e.minConfidence {
				continue
			}
			all = append(all, rec)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.ExpectedGrowthPercent != b.ExpectedGrowthPercent {
			return a.ExpectedGrowthPercent > b.ExpectedGrowthPercent
		}
		if a.DaysToExpiry != b.DaysToExpiry {
			return a.DaysToExpiry < b.DaysToExpiry
		}
		return a.StrategyName < b.StrategyName
	})

	if len(all) > 3 {
		all = all[:3]
	}
	return all
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
