package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AccountID != "default" || cfg.InitialBalance != 100000 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Risk.ConcentrationLimitPct != 20 {
		t.Errorf("expected default concentration 20, got %v", cfg.Risk.ConcentrationLimitPct)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
account_id: acct-42
initial_balance: 250000
risk:
  max_position_size: 75000
  concentration_limit_pct: 30
redis_addr: redis:6379
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AccountID != "acct-42" || cfg.InitialBalance != 250000 {
		t.Errorf("yaml values not applied: %+v", cfg)
	}
	if cfg.Risk.MaxPositionSize != 75000 || cfg.Risk.ConcentrationLimitPct != 30 {
		t.Errorf("risk block not applied: %+v", cfg.Risk)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Errorf("redis addr not applied: %s", cfg.RedisAddr)
	}
	// Untouched keys keep their defaults.
	if cfg.BaseCurrency != "USD" || cfg.MetricsAddr != ":9090" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("account_id: from-yaml\nslippage_bps: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRADING_ACCOUNT_ID", "from-env")
	t.Setenv("TRADING_SLIPPAGE_BPS", "7.5")
	t.Setenv("TRADING_MAX_LEVERAGE", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AccountID != "from-env" {
		t.Errorf("env must beat yaml, got %s", cfg.AccountID)
	}
	if cfg.SlippageBps != 7.5 {
		t.Errorf("expected slippage 7.5, got %v", cfg.SlippageBps)
	}
	if cfg.Risk.MaxLeverage != 3 {
		t.Errorf("expected leverage 3, got %v", cfg.Risk.MaxLeverage)
	}
}

func TestLoad_BadFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("account_id: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
