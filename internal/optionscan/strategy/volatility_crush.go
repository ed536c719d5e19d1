package strategy

import (
	"github.com/bobmcallan/vire/internal/optionscan"
)

// VolatilityCrush targets the 5-12% OTM band, preferring implied
// volatility in 30-50%, betting on an IV contraction into expiry.
type VolatilityCrush struct {
	minDays int
	maxDays int
}

func NewVolatilityCrush(minDays, maxDays int) *VolatilityCrush {
	return &VolatilityCrush{minDays: minDays, maxDays: maxDays}
}

func (v *VolatilityCrush) Name() string { return "volatility_crush" }

func (v *VolatilityCrush) Bounds() (int, int) { return v.minDays, v.maxDays }

func (v *VolatilityCrush) Evaluate(data *optionscan.AggregatedMarketData) []optionscan.Recommendation {
	if data == nil || data.MarketData == nil || len(data.Options) == 0 {
		return nil
	}
	if data.TrendAnalysis != nil && data.TrendAnalysis.Direction == optionscan.TrendDown && data.TrendAnalysis.TrendStrength >= 0.75 {
		return nil
	}

	price := data.MarketData.Price
	if price <= 0 {
		return nil
	}

	hasIVAbove25 := false
	for _, c := range data.Options {
		if c.ImpliedVolatility >= 0.25 {
			hasIVAbove25 = true
			break
		}
	}
	if !hasIVAbove25 {
		return nil
	}

	// Candidates are strikes in the 5-12% OTM band with the days window and
	// premium floor; IV is not a hard filter here (only 25% and 60% are
	// hard cutoffs) — 30-50% is a scoring preference.
	type candidate struct {
		contract   optionscan.OptionContract
		otmPercent float64
	}
	var candidates []candidate
	for _, c := range data.Options {
		if c.Strike >= price {
			continue
		}
		if c.DaysToExpiry < v.minDays || c.DaysToExpiry > v.maxDays {
			continue
		}
		if c.Premium <= 1.0 {
			continue
		}
		otmPercent := (price - c.Strike) / price
		if otmPercent < 0.05 || otmPercent > 0.12 {
			continue
		}
		candidates = append(candidates, candidate{contract: c, otmPercent: otmPercent})
	}
	if len(candidates) == 0 {
		return nil
	}

	for _, cand := range candidates {
		if cand.contract.ImpliedVolatility > 0.60 {
			return nil
		}
	}

	growth := 0.0
	if data.TrendAnalysis != nil {
		growth = data.TrendAnalysis.ExpectedGrowthPercent
	}

	out := make([]optionscan.Recommendation, 0, len(candidates))
	for _, cand := range candidates {
		c := cand.contract
		ivScore := clamp01(1 - absFloat(c.ImpliedVolatility-0.40)/0.10)
		bandScore := clamp01(1 - absFloat(cand.otmPercent-0.085)/0.035)
		confidence := clamp01(0.6*ivScore + 0.4*bandScore)

		out = append(out, optionscan.Recommendation{
			Symbol:                data.Symbol,
			StrategyName:          v.Name(),
			CurrentPrice:          price,
			StrikePrice:           c.Strike,
			Expiry:                c.Expiry,
			DaysToExpiry:          c.DaysToExpiry,
			Premium:               c.Premium,
			Breakeven:             c.Strike - c.Premium,
			Confidence:            confidence,
			ExpectedGrowthPercent: growth,
		})
	}
	return out
}
