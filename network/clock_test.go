package network

import (
	"testing"
	"time"
)

func TestSyncClockFirstSample(t *testing.T) {
	var c SyncClock
	if c.Synced() {
		t.Fatal("synced before any sample")
	}

	// Ping left at 1000, server stamped 5050, pong back at 1100.
	c.Observe(1000, 5050, time.UnixMilli(1100))
	if !c.Synced() {
		t.Fatal("not synced after a sample")
	}
	if c.RTT() != 100*time.Millisecond {
		t.Fatalf("rtt = %v, want 100ms", c.RTT())
	}
	if got := c.Now(time.UnixMilli(2000)); got != 6000 {
		t.Fatalf("now = %d, want 6000", got)
	}
}

func TestSyncClockSmoothsOutliers(t *testing.T) {
	var c SyncClock
	c.Observe(1000, 5050, time.UnixMilli(1100))
	c.Observe(2000, 6050, time.UnixMilli(2500))

	if rtt := c.RTT(); rtt <= 100*time.Millisecond || rtt >= 200*time.Millisecond {
		t.Fatalf("rtt = %v, want a smoothed value between 100ms and 200ms", rtt)
	}
	if c.Jitter() == 0 {
		t.Fatal("jitter not updated")
	}
}

func TestSyncClockIgnoresNegativeRTT(t *testing.T) {
	var c SyncClock
	c.Observe(2000, 5000, time.UnixMilli(1000))
	if c.Synced() {
		t.Fatal("sample with negative rtt accepted")
	}
}

func TestTimersDueInOrder(t *testing.T) {
	base := time.UnixMilli(0)
	var tm timers
	tm.schedule(base.Add(2*time.Second), timerReconnect)
	tm.schedule(base.Add(time.Second), timerPing)
	tm.schedule(base.Add(3*time.Second), timerPing) // replaces

	if due := tm.due(base.Add(2 * time.Second)); len(due) != 1 || due[0] != timerReconnect {
		t.Fatalf("due = %v, want [reconnect]", due)
	}
	if at, ok := tm.at(timerPing); !ok || !at.Equal(base.Add(3*time.Second)) {
		t.Fatalf("ping at %v ok=%v", at, ok)
	}
	tm.cancel(timerPing)
	if due := tm.due(base.Add(time.Hour)); len(due) != 0 {
		t.Fatalf("due = %v after cancel", due)
	}
}

func TestTokenKeySanitizes(t *testing.T) {
	if got := tokenKey("ws://localhost:7373/game"); got != "token_ws___localhost_7373_game" {
		t.Fatalf("key = %q", got)
	}
}
