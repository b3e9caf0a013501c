package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadModelConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
email = "user@example.com"
model_name = "forecaster"
`)
	cfg, err := LoadModelConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "sybl.tech:7000" {
		t.Fatalf("addr default: got %q", cfg.Addr)
	}
	if cfg.TimeoutMinutes != 10 {
		t.Fatalf("timeout default: got %d", cfg.TimeoutMinutes)
	}
	if len(cfg.PredictionTypes) != 2 {
		t.Fatalf("prediction types default: got %v", cfg.PredictionTypes)
	}
}

func TestLoadModelConfigExplicitValues(t *testing.T) {
	path := writeConfig(t, `
email = "user@example.com"
model_name = "forecaster"
addr = "127.0.0.1:7000"
prediction_types = ["regression"]
timeout_minutes = 25
decline_bad_datasets = true
`)
	cfg, err := LoadModelConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:7000" || cfg.TimeoutMinutes != 25 || !cfg.DeclineBadDatasets {
		t.Fatalf("explicit values not honored: %+v", cfg)
	}
}

func TestLoadModelConfigAddressFromEnv(t *testing.T) {
	t.Setenv(EnvAddress, "10.0.0.1:9000")
	path := writeConfig(t, `
email = "user@example.com"
model_name = "forecaster"
`)
	cfg, err := LoadModelConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "10.0.0.1:9000" {
		t.Fatalf("env address not applied: got %q", cfg.Addr)
	}
}

func TestLoadModelConfigMissingIdentity(t *testing.T) {
	path := writeConfig(t, `addr = "127.0.0.1:7000"`)
	_, err := LoadModelConfig(path)
	if err == nil || !strings.Contains(err.Error(), "missing email") {
		t.Fatalf("expected missing email error, got %v", err)
	}
}

func TestLoadModelConfigMissingFile(t *testing.T) {
	if _, err := LoadModelConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected load error for absent file")
	}
}
