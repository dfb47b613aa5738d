package network

import (
	"math"
	"testing"
	"time"

	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/automoto/fragnet/shared/messages"
	"github.com/automoto/fragnet/shared/netcomponents"
)

func updateAt(tick uint64, ts int64, x float64) messages.StateUpdate {
	return messages.StateUpdate{
		Tick:      tick,
		Timestamp: ts,
		Players: map[netcomponents.PlayerID]messages.PlayerView{
			2: {Position: gamemath.V(x, 0, 0), Alive: true, Health: 100},
		},
		Projectiles: map[netcomponents.ProjectileID]messages.ProjectileView{},
	}
}

func TestInterpolatorUnsyncedReturnsLatest(t *testing.T) {
	it := NewInterpolator(100*time.Millisecond, 3)
	it.Push(updateAt(1, 1000, 0), time.Time{})
	it.Push(updateAt(2, 1050, 5), time.Time{})

	got, ok := it.Sample(1000, false)
	if !ok || got.Tick != 2 {
		t.Fatalf("got tick %d ok=%v, want latest tick 2", got.Tick, ok)
	}
}

func TestInterpolatorBlendsAtDisplayTime(t *testing.T) {
	it := NewInterpolator(100*time.Millisecond, 3)
	it.Push(updateAt(1, 1000, 0), time.Time{})
	it.Push(updateAt(2, 1100, 10), time.Time{})

	got, ok := it.Sample(1150, true)
	if !ok {
		t.Fatal("no sample")
	}
	if x := got.Players[2].Position.X; math.Abs(x-5) > 1e-4 {
		t.Fatalf("x = %v, want 5 halfway between updates", x)
	}
}

func TestInterpolatorClampsToBufferedRange(t *testing.T) {
	it := NewInterpolator(100*time.Millisecond, 3)
	it.Push(updateAt(1, 1000, 0), time.Time{})
	it.Push(updateAt(2, 1100, 10), time.Time{})

	tests := []struct {
		name string
		now  int64
		want float64
	}{
		{"before oldest", 900, 0},
		{"past newest", 5000, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := it.Sample(tt.now, true)
			if x := got.Players[2].Position.X; x != tt.want {
				t.Fatalf("x = %v, want %v", x, tt.want)
			}
		})
	}
}

func TestInterpolatorBufferIsBounded(t *testing.T) {
	it := NewInterpolator(100*time.Millisecond, 3)
	for i := 0; i < 10; i++ {
		it.Push(updateAt(uint64(i+1), int64(1000+i*16), float64(i)), time.Time{})
	}
	if it.Len() != 3 {
		t.Fatalf("len = %d, want 3", it.Len())
	}

	// Older than everything buffered and the buffer is full.
	it.Push(updateAt(99, 10, 0), time.Time{})
	got, _ := it.Sample(0, true)
	if got.Tick == 99 {
		t.Fatal("stale update was buffered")
	}
}

func TestInterpolatorNewerTickWinsSharedTimestamp(t *testing.T) {
	it := NewInterpolator(100*time.Millisecond, 3)
	it.Push(updateAt(5, 1000, 0), time.Time{})
	it.Push(updateAt(6, 1000, 1), time.Time{})

	if it.Len() != 1 {
		t.Fatalf("len = %d, want 1", it.Len())
	}
	got, _ := it.Sample(0, false)
	if got.Tick != 6 {
		t.Fatalf("newest tick = %d, want 6", got.Tick)
	}

	// A repeated or older tick does not displace it.
	it.Push(updateAt(6, 1016, 9), time.Time{})
	it.Push(updateAt(4, 1000, 9), time.Time{})
	got, _ = it.Sample(0, false)
	if it.Len() != 1 || got.Tick != 6 || got.Players[2].Position.X != 1 {
		t.Fatalf("len %d tick %d x %v, want tick 6 kept", it.Len(), got.Tick, got.Players[2].Position.X)
	}
}

func TestInterpolatorDeadPlayerNotBlended(t *testing.T) {
	it := NewInterpolator(0, 3)
	a := updateAt(1, 1000, 0)
	b := updateAt(2, 1100, 10)
	v := b.Players[2]
	v.Alive = false
	b.Players[2] = v
	it.Push(a, time.Time{})
	it.Push(b, time.Time{})

	got, _ := it.Sample(1050, true)
	if x := got.Players[2].Position.X; x != 10 {
		t.Fatalf("x = %v, want 10 from the newer update", x)
	}
}
