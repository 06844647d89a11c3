package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultBeta != 5.0 || cfg.DefaultAlpha != 0.6 {
		t.Errorf("strategy defaults: beta=%v alpha=%v", cfg.DefaultBeta, cfg.DefaultAlpha)
	}
	if cfg.DefaultMaxRounds != 15 || cfg.SessionTTLSecs != 300 {
		t.Errorf("session defaults: rounds=%d ttl=%d", cfg.DefaultMaxRounds, cfg.SessionTTLSecs)
	}
	if cfg.MinResponseDelayMS != 2000 || cfg.StartRatePerMinute != 30 {
		t.Errorf("abuse defaults: delay=%d rate=%d", cfg.MinResponseDelayMS, cfg.StartRatePerMinute)
	}
	if cfg.Env != "development" {
		t.Errorf("env = %q", cfg.Env)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DEFAULT_BETA", "2.5")
	t.Setenv("DEFAULT_MAX_ROUNDS", "9")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ENV", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultBeta != 2.5 || cfg.DefaultMaxRounds != 9 {
		t.Errorf("overrides: beta=%v rounds=%d", cfg.DefaultBeta, cfg.DefaultMaxRounds)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("cors = %v", cfg.CORSAllowedOrigins)
	}
	if cfg.Env != "production" {
		t.Errorf("env = %q", cfg.Env)
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("DEFAULT_MAX_ROUNDS", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}
