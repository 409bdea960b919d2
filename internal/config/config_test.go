package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ARK_STORE", "")
	t.Setenv("ARK_MATCH_ENDING_SOON", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.Matching.DailyLimitSeconds != 28800 {
		t.Errorf("DailyLimitSeconds = %d, want 28800", cfg.Matching.DailyLimitSeconds)
	}
	if cfg.Matching.EndingSoonWindow != 10*time.Minute {
		t.Errorf("EndingSoonWindow = %v, want 10m", cfg.Matching.EndingSoonWindow)
	}
	if cfg.Rides.ReviewWindow != 72*time.Hour {
		t.Errorf("ReviewWindow = %v, want 72h", cfg.Rides.ReviewWindow)
	}
	if cfg.Store != "postgres" {
		t.Errorf("Store = %q, want postgres", cfg.Store)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ARK_STORE", "memory")
	t.Setenv("ARK_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("ARK_RIDE_CANCEL_WINDOW", "15m")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store != "memory" {
		t.Errorf("Store = %q, want memory", cfg.Store)
	}
	if len(cfg.Events.KafkaBrokers) != 2 || cfg.Events.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.Events.KafkaBrokers)
	}
	if cfg.Rides.CancelWindow != 15*time.Minute {
		t.Errorf("CancelWindow = %v, want 15m", cfg.Rides.CancelWindow)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	t.Setenv("ARK_STORE", "mongo")
	t.Setenv("ARK_MATCH_ENDING_SOON", "ten minutes")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid store and duration")
	}
}
