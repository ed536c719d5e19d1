package app

import (
	"os"
	"path/filepath"
	"testing"
)

// TestNewApp_InitializesConfigAndLogger verifies that NewApp creates an App
// with config, logger, and startup time populated even without an EODHD key.
func TestNewApp_InitializesConfigAndLogger(t *testing.T) {
	configPath := writeTestConfig(t, "")

	a, err := NewApp(configPath)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	defer a.Close()

	if a.Config == nil {
		t.Error("Config is nil")
	}
	if a.Logger == nil {
		t.Error("Logger is nil")
	}
	if a.StartupTime.IsZero() {
		t.Error("StartupTime is zero")
	}
}

// TestNewApp_NoEODHDKeyDisablesOptionScan verifies that without an EODHD
// key, the orchestrator and progress bus are left nil rather than erroring.
func TestNewApp_NoEODHDKeyDisablesOptionScan(t *testing.T) {
	configPath := writeTestConfig(t, "")

	a, err := NewApp(configPath)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	defer a.Close()

	if a.OptionScan != nil {
		t.Error("expected OptionScan to be nil without an EODHD key")
	}
	if a.OptionScanBus != nil {
		t.Error("expected OptionScanBus to be nil without an EODHD key")
	}
}

// TestNewApp_EODHDKeyEnablesOptionScan verifies that configuring an EODHD
// key builds a working orchestrator and progress bus.
func TestNewApp_EODHDKeyEnablesOptionScan(t *testing.T) {
	configPath := writeTestConfig(t, "test-eodhd-key")

	a, err := NewApp(configPath)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	defer a.Close()

	if a.OptionScan == nil {
		t.Fatal("expected OptionScan to be initialized with an EODHD key")
	}
	if a.OptionScanBus == nil {
		t.Fatal("expected OptionScanBus to be initialized with an EODHD key")
	}
}

// TestNewApp_StartAndStopOptionScan verifies the orchestrator lifecycle
// methods don't panic when called through the App.
func TestNewApp_StartAndStopOptionScan(t *testing.T) {
	configPath := writeTestConfig(t, "test-eodhd-key")

	a, err := NewApp(configPath)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}

	a.StartOptionScan()
	a.Close()
}

// TestNewApp_CloseIsIdempotent verifies that calling Close multiple times
// does not panic.
func TestNewApp_CloseIsIdempotent(t *testing.T) {
	configPath := writeTestConfig(t, "")

	a, err := NewApp(configPath)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}

	a.Close()
	a.Close()
}

// TestNewApp_InvalidConfigReturnsError verifies that an invalid config file
// returns a meaningful error.
func TestNewApp_InvalidConfigReturnsError(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.toml")
	os.WriteFile(configPath, []byte("{{{{invalid toml"), 0644)

	_, err := NewApp(configPath)
	if err == nil {
		t.Fatal("Expected error for invalid config content, got nil")
	}
}

// --- test helpers ---

// writeTestConfig creates a minimal vire.toml in a temp directory for
// testing. An empty eodhdKey leaves the option-scan subsystem disabled.
func writeTestConfig(t *testing.T, eodhdKey string) string {
	t.Helper()
	dir := t.TempDir()

	os.MkdirAll(filepath.Join(dir, "data"), 0755)
	os.MkdirAll(filepath.Join(dir, "logs"), 0755)

	config := `
[storage]
data_path = "` + filepath.Join(dir, "data") + `"

[clients.eodhd]
api_key = "` + eodhdKey + `"

[logging]
level = "error"
outputs = ["console"]
file_path = "` + filepath.Join(dir, "logs", "vire.log") + `"
`
	configPath := filepath.Join(dir, "vire.toml")
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}
