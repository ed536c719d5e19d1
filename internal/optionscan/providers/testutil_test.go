package providers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// jsonTestServer spins up an httptest.Server that always answers with v
// JSON-encoded.
func jsonTestServer(t *testing.T, v interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(v)
	}))
}
