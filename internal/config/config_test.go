package config

import (
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DispatchPhaseWait != 30*time.Second {
		t.Fatalf("expected 30s phase wait, got %s", cfg.DispatchPhaseWait)
	}
	if len(cfg.DispatchRadiiM) != 3 || cfg.DispatchRadiiM[2] != 10000 {
		t.Fatalf("unexpected default radii: %v", cfg.DispatchRadiiM)
	}
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("DISPATCH_RADII_M", "1000, 3000")
	t.Setenv("DISPATCH_PHASE_WAIT", "5s")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.DispatchRadiiM) != 2 || cfg.DispatchRadiiM[1] != 3000 {
		t.Fatalf("unexpected radii: %v", cfg.DispatchRadiiM)
	}
	if cfg.DispatchPhaseWait != 5*time.Second {
		t.Fatalf("unexpected phase wait: %s", cfg.DispatchPhaseWait)
	}
}

func TestLoadServerConfigRejectsUnorderedRadii(t *testing.T) {
	t.Setenv("DISPATCH_RADII_M", "5000,2000")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected error for non-increasing radii")
	}
}

func TestLoadServerConfigRejectsBadDuration(t *testing.T) {
	t.Setenv("DISPATCH_PHASE_WAIT", "soon")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected error for bad duration")
	}
}
