package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("MARKETD_OWNER", "admin")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected default addr, got %s", cfg.Server.Addr)
	}
	if cfg.Market.ConversionRate != 1 || cfg.Market.WalletLimit != 1000 {
		t.Fatalf("unexpected market defaults: %+v", cfg.Market)
	}
	if cfg.Market.OwnerIdentity != "admin" {
		t.Fatalf("env owner not applied, got %q", cfg.Market.OwnerIdentity)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketd.yaml")
	body := `
server:
  addr: ":9090"
  read_timeout: 5s
market:
  owner_identity: fileowner
  conversion_rate: 3
  supply_ceiling: 500
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MARKETD_OWNER", "envowner")
	t.Setenv("MARKETD_SUPPLY_CEILING", "900")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.ReadTimeout != Duration(5*time.Second) {
		t.Fatalf("file values not applied: %+v", cfg.Server)
	}
	if cfg.Market.ConversionRate != 3 {
		t.Fatalf("expected rate 3, got %d", cfg.Market.ConversionRate)
	}
	// Environment wins over the file.
	if cfg.Market.OwnerIdentity != "envowner" || cfg.Market.SupplyCeiling != 900 {
		t.Fatalf("env overrides not applied: %+v", cfg.Market)
	}
}

func TestLoadRejectsMissingOwner(t *testing.T) {
	t.Setenv("MARKETD_OWNER", "")

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected validation error without owner identity")
	}
}

func TestValidateRejectsBadNumbers(t *testing.T) {
	cfg := Default()
	cfg.Market.OwnerIdentity = "admin"
	cfg.Market.ConversionRate = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero conversion rate should be rejected")
	}

	cfg = Default()
	cfg.Market.OwnerIdentity = "admin"
	cfg.Market.SupplyCeiling = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative supply ceiling should be rejected")
	}
}
