package providers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/bobmcallan/vire/internal/optionscan"
)

// EODHDOptionsDataProvider implements OptionsDataProvider against EODHD's
// options-chain endpoint, scoped to PUT contracts in a days-to-expiry band.
type EODHDOptionsDataProvider struct {
	client *Client
}

func NewEODHDOptionsDataProvider(client *Client) *EODHDOptionsDataProvider {
	return &EODHDOptionsDataProvider{client: client}
}

type optionContractResponse struct {
	Type              string  `json:"type"`
	Strike            float64 `json:"strike"`
	ExpirationDate    string  `json:"expiration_date"`
	Bid               float64 `json:"bid"`
	Ask               float64 `json:"ask"`
	ImpliedVolatility float64 `json:"implied_volatility"`
	Volume            int64   `json:"volume"`
	OpenInterest      int64   `json:"open_interest"`
}

func (p *EODHDOptionsDataProvider) GetShortTermPutOptions(ctx context.Context, symbol optionscan.Symbol, minDays, maxDays int) ([]optionscan.OptionContract, error) {
	if minDays < 0 || maxDays < minDays {
		return nil, fmt.Errorf("%w: getShortTermPutOptions(%s): invalid window [%d,%d]", optionscan.ErrDataValidation, symbol, minDays, maxDays)
	}

	params := url.Values{}
	params.Set("from", time.Now().AddDate(0, 0, minDays).Format("2006-01-02"))
	params.Set("to", time.Now().AddDate(0, 0, maxDays).Format("2006-01-02"))

	var raw []optionContractResponse
	path := fmt.Sprintf("/options/%s", symbol)
	if err := p.client.Get(ctx, path, params, &raw); err != nil {
		return nil, fmt.Errorf("%w: getShortTermPutOptions(%s): %v", optionscan.ErrProvider, symbol, err)
	}

	now := time.Now()
	out := make([]optionscan.OptionContract, 0, len(raw))
	for _, c := range raw {
		if c.Type != "put" {
			continue
		}
		expiry, err := time.Parse("2006-01-02", c.ExpirationDate)
		if err != nil {
			continue
		}
		days := int(expiry.Sub(now).Hours() / 24)
		if days < minDays || days > maxDays {
			continue
		}
		premium := (c.Bid + c.Ask) / 2
		if premium <= 0 {
			continue
		}
		out = append(out, optionscan.OptionContract{
			Symbol:            symbol,
			Strike:            c.Strike,
			Expiry:            expiry,
			DaysToExpiry:      days,
			Premium:           premium,
			ImpliedVolatility: c.ImpliedVolatility,
			Volume:            c.Volume,
			OpenInterest:      c.OpenInterest,
		})
	}
	return out, nil
}
