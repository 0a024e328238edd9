package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("PROVIDER_CLIENT_ID", "Iv1.testclient")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "testsecret123456789012345678901234")
	t.Setenv("DEVICEFLOW_SWEEP_INTERVAL", "5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Provider.ClientID != "Iv1.testclient" || cfg.Redis.Host == "" {
		t.Fatalf("unexpected empty config values: %+v", cfg)
	}
	if cfg.Provider.Kind != ProviderGitHub {
		t.Fatalf("expected default provider kind github, got %q", cfg.Provider.Kind)
	}
	if cfg.DeviceFlow.SweepInterval != 5*time.Second {
		t.Fatalf("unexpected sweep interval: %v", cfg.DeviceFlow.SweepInterval)
	}
	if cfg.DeviceFlow.PollTimeout != 10*time.Second {
		t.Fatalf("unexpected poll timeout default: %v", cfg.DeviceFlow.PollTimeout)
	}
	if len(cfg.Provider.Scopes) != 2 {
		t.Fatalf("expected default scopes, got %v", cfg.Provider.Scopes)
	}
	if cfg.StoreKind() != "redis" {
		t.Fatalf("expected redis store when REDIS_HOST is set, got %q", cfg.StoreKind())
	}
	if err := cfg.Validate(true); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.Provider.Kind = ProviderOIDC
	err := cfg.Validate(true)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"PROVIDER_CLIENT_ID", "PROVIDER_ISSUER", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}

	cfg = &Config{}
	cfg.Provider.Kind = ProviderGitHub
	cfg.Provider.ClientID = "cid"
	if err := cfg.Validate(false); err != nil {
		t.Fatalf("signing key should not be required: %v", err)
	}
	if cfg.StoreKind() != "memory" {
		t.Fatalf("expected memory store fallback, got %q", cfg.StoreKind())
	}

	cfg.DeviceFlow.Store = "mongo"
	if err := cfg.Validate(false); err == nil {
		t.Fatal("expected error for mongo store without MONGODB_URI")
	}
}

func TestRedisAddr(t *testing.T) {
	if got := (RedisConfig{}).Addr(); got != "" {
		t.Fatalf("expected empty addr, got %q", got)
	}
	if got := (RedisConfig{Host: "redis"}).Addr(); got != "redis:6379" {
		t.Fatalf("unexpected addr %q", got)
	}
}
