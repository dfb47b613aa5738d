package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyServerEnvOverlaysDefaults(t *testing.T) {
	t.Setenv("FRAGNET_TICK_RATE", "30")
	t.Setenv("FRAGNET_ANTICHEAT", "false")
	t.Setenv("FRAGNET_SNAPSHOT_HISTORY", "1s")

	c := DefaultServer()
	if err := ApplyServerEnv(&c); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if c.TickRate != 30 || c.AntiCheatEnabled || c.SnapshotHistory != time.Second {
		t.Fatalf("overlay not applied: tick=%d anticheat=%v history=%s", c.TickRate, c.AntiCheatEnabled, c.SnapshotHistory)
	}
	if c.SnapshotCapacity() != 30 {
		t.Fatalf("capacity = %d, want 30", c.SnapshotCapacity())
	}
	if c.MaxPlayers != 16 {
		t.Fatalf("unset variable changed MaxPlayers to %d", c.MaxPlayers)
	}
}

func TestMaxInputGapDefaultAndOverlay(t *testing.T) {
	c := DefaultServer()
	if c.AntiCheat.MaxInputGap != time.Second {
		t.Fatalf("default gap = %s, want 1s", c.AntiCheat.MaxInputGap)
	}
	t.Setenv("FRAGNET_MAX_INPUT_GAP", "250ms")
	if err := ApplyServerEnv(&c); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if c.AntiCheat.MaxInputGap != 250*time.Millisecond {
		t.Fatalf("gap = %s, want 250ms", c.AntiCheat.MaxInputGap)
	}
}

func TestApplyClientEnvRejectsGarbage(t *testing.T) {
	t.Setenv("FRAGNET_RECONNECT_ATTEMPTS", "three")
	c := DefaultClient()
	if err := ApplyClientEnv(&c); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("FRAGNET_TEST_LOAD_ENV=yes\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("FRAGNET_TEST_LOAD_ENV") })

	if err := LoadEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("FRAGNET_TEST_LOAD_ENV"); got != "yes" {
		t.Fatalf("variable = %q, want yes", got)
	}
}

func TestDefaultSnapshotCapacityCoversTwoSeconds(t *testing.T) {
	if got := DefaultServer().SnapshotCapacity(); got != 120 {
		t.Fatalf("capacity = %d, want 120", got)
	}
}
