package strategy

import (
	"github.com/bobmcallan/vire/internal/optionscan"
)

// DividendMomentum favours PUTs whose expiry straddles the next
// ex-dividend date on an uptrending underlying with dividend data present.
type DividendMomentum struct {
	minDays int
	maxDays int
}

func NewDividendMomentum(minDays, maxDays int) *DividendMomentum {
	return &DividendMomentum{minDays: minDays, maxDays: maxDays}
}

func (d *DividendMomentum) Name() string { return "dividend_momentum" }

func (d *DividendMomentum) Bounds() (int, int) { return d.minDays, d.maxDays }

func (d *DividendMomentum) Evaluate(data *optionscan.AggregatedMarketData) []optionscan.Recommendation {
	if data == nil || data.MarketData == nil || data.DividendInfo == nil || data.TrendAnalysis == nil {
		return nil
	}
	if data.TrendAnalysis.Direction != optionscan.TrendUp {
		return nil
	}
	if len(data.Options) == 0 {
		return nil
	}

	price := data.MarketData.Price
	if price <= 0 {
		return nil
	}

	exDiv := data.DividendInfo.NextExDividendDate
	if exDiv.IsZero() {
		return nil
	}

	var out []optionscan.Recommendation
	for _, c := range data.Options {
		if c.Strike >= price {
			continue
		}
		if c.DaysToExpiry < d.minDays || c.DaysToExpiry > d.maxDays {
			continue
		}
		if c.Premium < 0.10 {
			continue
		}

		straddles := !exDiv.Before(c.Expiry.AddDate(0, 0, -c.DaysToExpiry)) && !exDiv.After(c.Expiry)
		if !straddles {
			continue
		}

		yieldScore := clamp01(data.DividendInfo.AnnualYieldPercent / 5)
		confidence := clamp01(0.5*data.TrendAnalysis.Confidence + 0.3*data.TrendAnalysis.TrendStrength + 0.2*yieldScore)

		out = append(out, optionscan.Recommendation{
			Symbol:                data.Symbol,
			StrategyName:          d.Name(),
			CurrentPrice:          price,
			StrikePrice:           c.Strike,
			Expiry:                c.Expiry,
			DaysToExpiry:          c.DaysToExpiry,
			Premium:               c.Premium,
			Breakeven:             c.Strike - c.Premium,
			Confidence:            confidence,
			ExpectedGrowthPercent: data.TrendAnalysis.ExpectedGrowthPercent,
		})
	}
	return out
}
