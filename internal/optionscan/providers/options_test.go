package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetShortTermPutOptions_FiltersTypeAndWindow(t *testing.T) {
	farExpiry := time.Now().AddDate(0, 0, 18).Format("2006-01-02")
	tooFar := time.Now().AddDate(0, 0, 90).Format("2006-01-02")

	mockResp := []map[string]interface{}{
		{"type": "call", "strike": 180.0, "expiration_date": farExpiry, "bid": 2.0, "ask": 2.2},
		{"type": "put", "strike": 180.0, "expiration_date": farExpiry, "bid": 2.0, "ask": 2.2, "implied_volatility": 0.35, "volume": 500.0, "open_interest": 1200.0},
		{"type": "put", "strike": 170.0, "expiration_date": tooFar, "bid": 3.0, "ask": 3.2},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(mockResp)
	}))
	defer srv.Close()

	provider := NewEODHDOptionsDataProvider(NewClient(srv.URL, "test-key"))
	contracts, err := provider.GetShortTermPutOptions(context.Background(), "AAPL", 14, 21)
	if err != nil {
		t.Fatalf("GetShortTermPutOptions: %v", err)
	}
	if len(contracts) != 1 {
		t.Fatalf("len(contracts) = %d, want 1", len(contracts))
	}
	if contracts[0].Strike != 180.0 {
		t.Errorf("strike = %v, want 180.0", contracts[0].Strike)
	}
	if contracts[0].Premium != 2.1 {
		t.Errorf("premium = %v, want 2.1 (mid of bid/ask)", contracts[0].Premium)
	}
}

func TestGetShortTermPutOptions_InvalidWindowErrors(t *testing.T) {
	provider := NewEODHDOptionsDataProvider(NewClient("http://example.invalid", "test-key"))
	_, err := provider.GetShortTermPutOptions(context.Background(), "AAPL", 30, 10)
	if err == nil {
		t.Fatal("expected error for inverted window")
	}
}
