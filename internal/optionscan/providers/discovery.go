package providers

import (
	"context"
	"fmt"

	"github.com/bobmcallan/vire/internal/optionscan"
)

// DiscoveryConfig carries the liquidity filters applied while building the
// universe, mirroring common.OptionsDiscoveryConfig without importing
// common (keeps this package dependency-light and independently testable).
type DiscoveryConfig struct {
	MinOpenInterest            int
	MinVolume                  int
	SampleOptionsPerUnderlying int
	MaxExpiryDays              int
}

// EODHDOptionsDiscoveryService implements OptionsDiscoveryService by
// listing an exchange's symbols and sampling each one's option chain for
// liquidity.
type EODHDOptionsDiscoveryService struct {
	client   *Client
	options  OptionsDataProvider
	exchange string
	cfg      DiscoveryConfig
}

func NewEODHDOptionsDiscoveryService(client *Client, options OptionsDataProvider, exchange string, cfg DiscoveryConfig) *EODHDOptionsDiscoveryService {
	return &EODHDOptionsDiscoveryService{client: client, options: options, exchange: exchange, cfg: cfg}
}

type exchangeSymbolResponse struct {
	Code string `json:"Code"`
	Type string `json:"Type"`
}

func (d *EODHDOptionsDiscoveryService) DiscoverUnderlyings(ctx context.Context) ([]optionscan.Symbol, error) {
	var raw []exchangeSymbolResponse
	path := fmt.Sprintf("/exchange-symbol-list/%s", d.exchange)
	if err := d.client.Get(ctx, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("%w: discoverUnderlyings: %v", optionscan.ErrProvider, err)
	}

	var liquid []optionscan.Symbol
	for _, s := range raw {
		if s.Type != "Common Stock" {
			continue
		}
		symbol := optionscan.NormalizeSymbol(s.Code)
		if symbol == "" {
			continue
		}

		contracts, err := d.options.GetShortTermPutOptions(ctx, symbol, 0, d.cfg.MaxExpiryDays)
		if err != nil {
			continue
		}

		sampled := contracts
		if len(sampled) > d.cfg.SampleOptionsPerUnderlying {
			sampled = sampled[:d.cfg.SampleOptionsPerUnderlying]
		}

		if hasLiquidSample(sampled, d.cfg.MinOpenInterest, d.cfg.MinVolume) {
			liquid = append(liquid, symbol)
		}
	}
	return liquid, nil
}

func hasLiquidSample(contracts []optionscan.OptionContract, minOI, minVolume int) bool {
	for _, c := range contracts {
		if int(c.OpenInterest) >= minOI && int(c.Volume) >= minVolume {
			return true
		}
	}
	return false
}
