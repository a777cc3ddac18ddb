package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cragtrack.toml")
	data := "[tuning]\nproximity_threshold = 30\ntouch_duration_s = 1.5\n[inbound]\nurl = \"ws://file:1\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CRAGTRACK_TOUCH_DURATION_S", "3")
	t.Setenv("CRAGTRACK_INBOUND_URL", "ws://env:2")

	cfg, gotPath, err := loadConfig([]string{
		"-config", path,
		"-input", "ws://flag:3",
		"-queue-limit", "5",
		"-touched-only",
	})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if gotPath != path {
		t.Errorf("config path = %q, want %q", gotPath, path)
	}
	if cfg.Tuning.ProximityThreshold != 30 {
		t.Errorf("proximity = %v, want 30 from file", cfg.Tuning.ProximityThreshold)
	}
	if cfg.Tuning.TouchDurationS != 3 {
		t.Errorf("duration = %v, want 3 from env", cfg.Tuning.TouchDurationS)
	}
	if cfg.Inbound.URL != "ws://flag:3" {
		t.Errorf("inbound = %q, want flag value", cfg.Inbound.URL)
	}
	if cfg.Outbound.QueueLimit != 5 {
		t.Errorf("queue limit = %d, want 5", cfg.Outbound.QueueLimit)
	}
	if !cfg.Output.TouchedOnly || cfg.Output.NoLandmarks {
		t.Errorf("output = %+v, want touched-only only", cfg.Output)
	}
}

func TestLoadConfig_BadFlagValue(t *testing.T) {
	if _, _, err := loadConfig([]string{"-proximity", "near"}); err == nil {
		t.Fatal("loadConfig() error = nil, want parse error")
	}
}

func TestRun_SetupFailureExitsNonZero(t *testing.T) {
	// No endpoints and no wall: configuration validation fails.
	if code := run([]string{"-log-level", "error"}); code != 1 {
		t.Errorf("run() = %d, want 1", code)
	}
}

func TestRun_Help(t *testing.T) {
	if code := run([]string{"-h"}); code != 0 {
		t.Errorf("run(-h) = %d, want 0", code)
	}
}
