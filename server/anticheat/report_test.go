package anticheat

import (
	"fmt"
	"testing"
)

func TestLogReporterThrottlesPerPlayer(t *testing.T) {
	r := NewLogReporter(0.001)
	var lines []string
	r.logf = func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	for i := 0; i < 5; i++ {
		r.Report(Report{PlayerID: 1, Reason: InvalidMovement})
	}
	r.Report(Report{PlayerID: 2, Reason: InvalidAction})

	if len(lines) != 2 {
		t.Fatalf("logged %d lines, want 2 (one per player): %v", len(lines), lines)
	}
	if r.suppressed[1] != 4 {
		t.Fatalf("suppressed = %d, want 4", r.suppressed[1])
	}

	r.Forget(1)
	r.Report(Report{PlayerID: 1, Reason: InvalidMovement})
	if len(lines) != 3 {
		t.Fatalf("forgotten player was still throttled")
	}
}
