package server

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 4000 {
		t.Fatalf("expected default port 4000, got %d", cfg.Port)
	}
	if cfg.DBPath != "analytics.db" {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.InMemory {
		t.Fatal("expected file-backed store by default")
	}
	if cfg.AdminKey != "" {
		t.Fatalf("expected open access by default, got %q", cfg.AdminKey)
	}
}

func TestParseConfigFlagOverrides(t *testing.T) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-port", "9001", "-db", "/tmp/kiosk.db", "-memory", "-admin-key", "secret"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", cfg.Port)
	}
	if cfg.DBPath != "/tmp/kiosk.db" {
		t.Fatalf("expected db override, got %q", cfg.DBPath)
	}
	if !cfg.InMemory {
		t.Fatal("expected in-memory mode")
	}
	if cfg.AdminKey != "secret" {
		t.Fatalf("expected admin key override, got %q", cfg.AdminKey)
	}
}

func TestParseConfigEnvDefaults(t *testing.T) {
	t.Setenv("KIOSK_ANALYTICS_PORT", "4500")
	t.Setenv("KIOSK_ANALYTICS_DB", "env.db")

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 4500 {
		t.Fatalf("expected env port 4500, got %d", cfg.Port)
	}
	if cfg.DBPath != "env.db" {
		t.Fatalf("expected env db path, got %q", cfg.DBPath)
	}

	fs = flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err = ParseConfig(fs, []string{"-port", "4600"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 4600 {
		t.Fatalf("expected flag to beat env, got %d", cfg.Port)
	}
}
