package strategy

import (
	"sort"

	"github.com/bobmcallan/vire/internal/optionscan"
)

// ShortTermPut qualifies options in the 14-21 day window on underlyings
// with a non-Down trend, scoring each by trend strength/confidence blended
// with the option's OTM distance and liquidity.
type ShortTermPut struct {
	minDays int
	maxDays int
}

func NewShortTermPut(minDays, maxDays int) *ShortTermPut {
	return &ShortTermPut{minDays: minDays, maxDays: maxDays}
}

func (s *ShortTermPut) Name() string { return "short_term_put" }

func (s *ShortTermPut) Bounds() (int, int) { return s.minDays, s.maxDays }

func (s *ShortTermPut) Evaluate(data *optionscan.AggregatedMarketData) []optionscan.Recommendation {
	if data == nil || data.MarketData == nil || data.TrendAnalysis == nil {
		return nil
	}
	if data.TrendAnalysis.Direction == optionscan.TrendDown {
		return nil
	}
	if len(data.Options) == 0 {
		return nil
	}

	price := data.MarketData.Price
	if price <= 0 {
		return nil
	}

	type scored struct {
		contract optionscan.OptionContract
		score    float64
	}
	var candidates []scored

	for _, c := range data.Options {
		if c.Strike >= price {
			continue
		}
		if c.DaysToExpiry < s.minDays || c.DaysToExpiry > s.maxDays {
			continue
		}
		if c.Premium < 0.10 {
			continue
		}

		otmPercent := (price - c.Strike) / price
		otmScore := clamp01(1 - absFloat(otmPercent-0.08)/0.08)
		liquidityScore := clamp01(float64(c.OpenInterest) / 5000)

		score := 0.4*data.TrendAnalysis.Confidence +
			0.3*data.TrendAnalysis.TrendStrength +
			0.2*otmScore +
			0.1*liquidityScore

		candidates = append(candidates, scored{contract: c, score: clamp01(score)})
	}

	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	out := make([]optionscan.Recommendation, 0, len(candidates))
	for _, cand := range candidates {
		c := cand.contract
		out = append(out, optionscan.Recommendation{
			Symbol:                data.Symbol,
			StrategyName:          s.Name(),
			CurrentPrice:          price,
			StrikePrice:           c.Strike,
			Expiry:                c.Expiry,
			DaysToExpiry:          c.DaysToExpiry,
			Premium:               c.Premium,
			Breakeven:             c.Strike - c.Premium,
			Confidence:            cand.score,
			ExpectedGrowthPercent: data.TrendAnalysis.ExpectedGrowthPercent,
		})
	}
	return out
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
