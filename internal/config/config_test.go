package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"NG_TOKEN":    "123:abc",
		"NG_DOT_PATH": "/tmp/ngguard",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Moderation.MuteThreshold != 3 || cfg.Moderation.MuteDuration != time.Hour {
		t.Fatalf("unexpected mute defaults %+v", cfg.Moderation)
	}
	if cfg.Moderation.NoticeTTL != 10*time.Second || cfg.Moderation.AdminAlertTTL != time.Hour {
		t.Fatalf("unexpected cleanup defaults %+v", cfg.Moderation)
	}
	if !cfg.Moderation.MuteOnEveryStrike || cfg.Moderation.Strength != "medium" {
		t.Fatalf("unexpected policy defaults %+v", cfg.Moderation)
	}
	if cfg.Moderation.QuarantinePeriod != 24*time.Hour || cfg.Moderation.WelcomeTTL != 5*time.Minute || cfg.LogNoColor {
		t.Fatalf("unexpected member defaults %+v", cfg.Moderation)
	}
	if cfg.Ledger.Backend != LedgerSQLite || len(cfg.EnabledHandlers) != 1 || cfg.EnabledHandlers[0] != "guard" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadExpandsHome(t *testing.T) {
	t.Parallel()

	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"NG_TOKEN": "123:abc",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if strings.HasPrefix(cfg.DotPath, "~") {
		t.Fatalf("dot path not expanded: %s", cfg.DotPath)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := map[string]map[string]string{
		"missing token":       {},
		"bad strength":        {"NG_TOKEN": "x", "NG_STRENGTH": "paranoid"},
		"zero threshold":      {"NG_TOKEN": "x", "NG_MUTE_THRESHOLD": "0"},
		"redis without url":   {"NG_TOKEN": "x", "NG_LEDGER_BACKEND": "redis"},
		"unknown backend":     {"NG_TOKEN": "x", "NG_LEDGER_BACKEND": "etcd"},
		"negative mute":       {"NG_TOKEN": "x", "NG_MUTE_DURATION": "-1m"},
		"negative quarantine": {"NG_TOKEN": "x", "NG_QUARANTINE_PERIOD": "-1h"},
	}
	for name, env := range tests {
		if _, err := LoadWith(context.Background(), envconfig.MapLookuper(env)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
