package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeTempJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "file.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"drm": map[string]any{"frequency_mhz": 125},
	})
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Settings.WSRetryPeriodLong != defaultWSRetryPeriodLong {
		t.Errorf("WSRetryPeriodLong = %d, want default %d", cfg.Settings.WSRetryPeriodLong, defaultWSRetryPeriodLong)
	}
	if cfg.Settings.WSRequestTimeout != defaultWSRequestTimeout {
		t.Errorf("WSRequestTimeout = %d, want default %d", cfg.Settings.WSRequestTimeout, defaultWSRequestTimeout)
	}
	if cfg.DRM.MinVersionMajor != defaultMinVersionMajor {
		t.Errorf("MinVersionMajor = %d, want default %d", cfg.DRM.MinVersionMajor, defaultMinVersionMajor)
	}
	if cfg.Settings.LogFormat != "console" {
		t.Errorf("LogFormat = %q, want console", cfg.Settings.LogFormat)
	}
}

func TestLoadRejectsMeteredWithoutFrequency(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"licensing": map[string]any{"nodelocked": false},
	})
	if _, err := Load(path); err == nil {
		t.Fatal("Load() succeeded, want error for missing drm.frequency_mhz")
	}
}

func TestLoadRejectsNodeLockedWithoutLicenseDir(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"licensing": map[string]any{"nodelocked": true},
	})
	if _, err := Load(path); err == nil {
		t.Fatal("Load() succeeded, want error for missing licensing.license_dir")
	}
}

func TestLoadRejectsInvertedRetryPeriods(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"drm":      map[string]any{"frequency_mhz": 125},
		"settings": map[string]any{"ws_retry_period_long": 1, "ws_retry_period_short": 5},
	})
	if _, err := Load(path); err == nil {
		t.Fatal("Load() succeeded, want error for ws_retry_period_long <= ws_retry_period_short")
	}
}

func TestLoadCredentials(t *testing.T) {
	path := writeTempJSON(t, Credentials{ClientID: "id", ClientSecret: "secret", TokenURL: "https://x/token", LicenseURL: "https://x/license"})
	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.ClientID != "id" {
		t.Errorf("ClientID = %q, want id", creds.ClientID)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("Load() succeeded for a missing file")
	}
}
