package providers

import (
	"context"
	"testing"
	"time"

	"github.com/bobmcallan/vire/internal/optionscan"
)

type fakeOptionsProvider struct {
	bySymbol map[optionscan.Symbol][]optionscan.OptionContract
}

func (f *fakeOptionsProvider) GetShortTermPutOptions(ctx context.Context, symbol optionscan.Symbol, minDays, maxDays int) ([]optionscan.OptionContract, error) {
	return f.bySymbol[symbol], nil
}

func TestDiscoverUnderlyings_FiltersByLiquidity(t *testing.T) {
	type exchangeSymbol struct {
		Code string `json:"Code"`
		Type string `json:"Type"`
	}
	mockResp := []exchangeSymbol{
		{Code: "LIQ", Type: "Common Stock"},
		{Code: "ILLIQUID", Type: "Common Stock"},
		{Code: "ETF1", Type: "ETF"},
	}

	srv := jsonTestServer(t, mockResp)
	defer srv.Close()

	fake := &fakeOptionsProvider{bySymbol: map[optionscan.Symbol][]optionscan.OptionContract{
		"LIQ":      {{Symbol: "LIQ", Volume: 500, OpenInterest: 2000, Expiry: time.Now().AddDate(0, 0, 10)}},
		"ILLIQUID": {{Symbol: "ILLIQUID", Volume: 1, OpenInterest: 1, Expiry: time.Now().AddDate(0, 0, 10)}},
	}}

	svc := NewEODHDOptionsDiscoveryService(NewClient(srv.URL, "test-key"), fake, "US", DiscoveryConfig{
		MinOpenInterest:            100,
		MinVolume:                  10,
		SampleOptionsPerUnderlying: 5,
		MaxExpiryDays:              21,
	})

	symbols, err := svc.DiscoverUnderlyings(context.Background())
	if err != nil {
		t.Fatalf("DiscoverUnderlyings: %v", err)
	}
	if len(symbols) != 1 || symbols[0] != "LIQ" {
		t.Errorf("symbols = %v, want [LIQ]", symbols)
	}
}
