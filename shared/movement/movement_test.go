package movement

import (
	"math"
	"testing"

	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/automoto/fragnet/shared/messages"
	"github.com/automoto/fragnet/shared/netcomponents"
)

var params = Params{MaxSpeed: 10, StepSeconds: 0.016}

func TestApplyMovesHorizontally(t *testing.T) {
	p := netcomponents.NetPlayerData{Alive: true}
	cmd := messages.InputCommand{Sequence: 3, Movement: gamemath.V(6.25, 4, 0), Aim: gamemath.V(0, 0, 2)}

	got := Apply(p, cmd, params)
	if math.Abs(got.Position.X-0.1) > 1e-9 || got.Position.Y != 0 {
		t.Fatalf("position = %+v, want x=0.1 y=0", got.Position)
	}
	if got.Rotation != gamemath.V(0, 0, 1) {
		t.Fatalf("rotation = %+v, want unit z", got.Rotation)
	}
	if got.LastSequence != 3 {
		t.Fatalf("LastSequence = %d, want 3", got.LastSequence)
	}
}

func TestApplyClampsSpeed(t *testing.T) {
	p := netcomponents.NetPlayerData{Alive: true}
	got := Apply(p, messages.InputCommand{Movement: gamemath.V(100, 0, 0)}, params)
	if math.Abs(got.Position.X-0.16) > 1e-9 {
		t.Fatalf("position.x = %v, want 0.16", got.Position.X)
	}
}

func TestApplyIgnoresDeadPlayer(t *testing.T) {
	p := netcomponents.NetPlayerData{Position: gamemath.V(1, 0, 1)}
	got := Apply(p, messages.InputCommand{Sequence: 9, Movement: gamemath.V(5, 0, 0)}, params)
	if got != p {
		t.Fatalf("dead player changed: %+v", got)
	}
}
