package strategy

import (
	"testing"
	"time"

	"github.com/bobmcallan/vire/internal/optionscan"
)

func baseCrushData(options []optionscan.OptionContract) *optionscan.AggregatedMarketData {
	return &optionscan.AggregatedMarketData{
		Symbol:     "AAPL",
		MarketData: &optionscan.MarketData{Symbol: "AAPL", Price: 200},
		Options:    options,
	}
}

func TestVolatilityCrush_EmptyWhenAllIVBelow25(t *testing.T) {
	v := NewVolatilityCrush(14, 21)
	data := baseCrushData([]optionscan.OptionContract{
		{Strike: 185, DaysToExpiry: 18, Premium: 1.5, ImpliedVolatility: 0.20, Expiry: time.Now().AddDate(0, 0, 18)},
	})
	got := v.Evaluate(data)
	if len(got) != 0 {
		t.Errorf("expected empty when all IV below 25%%, got %+v", got)
	}
}

func TestVolatilityCrush_EmptyWhenCandidateIVAbove60(t *testing.T) {
	v := NewVolatilityCrush(14, 21)
	data := baseCrushData([]optionscan.OptionContract{
		{Strike: 185, DaysToExpiry: 18, Premium: 1.5, ImpliedVolatility: 0.65, Expiry: time.Now().AddDate(0, 0, 18)},
	})
	got := v.Evaluate(data)
	if len(got) != 0 {
		t.Errorf("expected empty when a selected option has IV above 60%%, got %+v", got)
	}
}

func TestVolatilityCrush_QualifiesWithinBand(t *testing.T) {
	v := NewVolatilityCrush(14, 21)
	data := baseCrushData([]optionscan.OptionContract{
		{Strike: 182, DaysToExpiry: 18, Premium: 1.5, ImpliedVolatility: 0.40, Expiry: time.Now().AddDate(0, 0, 18)}, // 9% OTM
	})
	got := v.Evaluate(data)
	if len(got) != 1 {
		t.Fatalf("expected 1 recommendation, got %d", len(got))
	}
	rec := got[0]
	if rec.Confidence <= 0 || rec.Confidence > 1 {
		t.Errorf("confidence out of bounds: %v", rec.Confidence)
	}
}

func TestVolatilityCrush_RejectsPremiumAtOrBelow1(t *testing.T) {
	v := NewVolatilityCrush(14, 21)
	data := baseCrushData([]optionscan.OptionContract{
		{Strike: 182, DaysToExpiry: 18, Premium: 1.0, ImpliedVolatility: 0.40, Expiry: time.Now().AddDate(0, 0, 18)},
		{Strike: 180, DaysToExpiry: 18, Premium: 1.5, ImpliedVolatility: 0.50, Expiry: time.Now().AddDate(0, 0, 18)}, // keeps IV>=25 true
	})
	got := v.Evaluate(data)
	for _, rec := range got {
		if rec.Premium <= 1.0 {
			t.Errorf("expected premium > 1.0, got %v", rec.Premium)
		}
	}
}
