package providers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/bobmcallan/vire/internal/optionscan"
)

// EODHDMarketDataProvider implements MarketDataProvider against the EODHD
// real-time and EOD endpoints.
type EODHDMarketDataProvider struct {
	client *Client
}

func NewEODHDMarketDataProvider(client *Client) *EODHDMarketDataProvider {
	return &EODHDMarketDataProvider{client: client}
}

type quoteResponse struct {
	Code      string  `json:"code"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

func (p *EODHDMarketDataProvider) GetMarketData(ctx context.Context, symbol optionscan.Symbol) (*optionscan.MarketData, error) {
	var resp quoteResponse
	path := fmt.Sprintf("/real-time/%s", symbol)
	if err := p.client.Get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("%w: getMarketData(%s): %v", optionscan.ErrProvider, symbol, err)
	}
	if resp.Close <= 0 {
		return nil, fmt.Errorf("%w: getMarketData(%s): non-positive close", optionscan.ErrDataValidation, symbol)
	}
	return &optionscan.MarketData{
		Symbol: symbol,
		Price:  resp.Close,
		Volume: resp.Volume,
		AsOf:   time.Unix(resp.Timestamp, 0).UTC(),
	}, nil
}

type eodBar struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// AnalyseTrend derives a direction/confidence read from the last `days`
// closes: slope sign gives direction, normalized slope magnitude gives
// confidence and trend strength, both clamped to [0,1].
func (p *EODHDMarketDataProvider) AnalyseTrend(ctx context.Context, symbol optionscan.Symbol, days int) (*optionscan.TrendAnalysis, error) {
	params := url.Values{}
	params.Set("period", "d")
	params.Set("order", "d")

	var bars []eodBar
	path := fmt.Sprintf("/eod/%s", symbol)
	if err := p.client.Get(ctx, path, params, &bars); err != nil {
		return nil, fmt.Errorf("%w: analyseTrend(%s): %v", optionscan.ErrProvider, symbol, err)
	}
	if len(bars) < 2 {
		return nil, fmt.Errorf("%w: analyseTrend(%s): insufficient history", optionscan.ErrDataValidation, symbol)
	}
	if len(bars) > days {
		bars = bars[:days]
	}

	newest := bars[0].Close
	oldest := bars[len(bars)-1].Close
	if oldest <= 0 {
		return nil, fmt.Errorf("%w: analyseTrend(%s): non-positive base close", optionscan.ErrDataValidation, symbol)
	}

	growthPercent := (newest - oldest) / oldest * 100

	direction := optionscan.TrendSideways
	switch {
	case growthPercent > 1:
		direction = optionscan.TrendUp
	case growthPercent < -1:
		direction = optionscan.TrendDown
	}

	strength := clamp01(absFloat(growthPercent) / 20)
	confidence := clamp01(strength * (float64(len(bars)) / float64(days)))

	return &optionscan.TrendAnalysis{
		Direction:             direction,
		Confidence:            confidence,
		TrendStrength:         strength,
		ExpectedGrowthPercent: growthPercent,
	}, nil
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

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
