package network

import (
	"math"
	"testing"
	"time"

	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/automoto/fragnet/shared/messages"
	"github.com/automoto/fragnet/shared/movement"
	"github.com/automoto/fragnet/shared/netcomponents"
)

var testParams = movement.Params{MaxSpeed: 10, StepSeconds: 0.1}

func newTestPredictor() *Predictor {
	p := NewPredictor(testParams, 0.05, 200*time.Millisecond)
	p.Reset(netcomponents.NetPlayerData{ID: 1, Health: 100, Alive: true, Ammo: 10})
	return p
}

func step(seq uint32, ts int64) messages.InputCommand {
	return messages.InputCommand{Sequence: seq, Movement: gamemath.V(1, 0, 0), Timestamp: ts}
}

func TestPredictAppliesImmediately(t *testing.T) {
	p := newTestPredictor()
	got := p.Apply(step(1, 1000))
	if math.Abs(got.Position.X-0.1) > 1e-9 {
		t.Fatalf("x = %v, want 0.1", got.Position.X)
	}
	if p.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", p.Pending())
	}
}

func TestReconcileAdoptsServerStateAndReplays(t *testing.T) {
	p := newTestPredictor()
	for seq := uint32(1); seq <= 3; seq++ {
		p.Apply(step(seq, int64(1000+seq)))
	}

	// The server processed input 1 but the player took a hit meanwhile.
	auth := p.Records()[0].Predicted
	auth.Health = 80

	var replayed []uint32
	corrected := p.Reconcile(auth, 1, func(cmd messages.InputCommand) {
		replayed = append(replayed, cmd.Sequence)
	})
	if !corrected {
		t.Fatal("expected a correction")
	}
	if len(replayed) != 2 || replayed[0] != 2 || replayed[1] != 3 {
		t.Fatalf("replayed = %v, want [2 3]", replayed)
	}
	state := p.State()
	if state.Health != 80 {
		t.Fatalf("health = %d, want 80", state.Health)
	}
	if math.Abs(state.Position.X-0.3) > 1e-9 {
		t.Fatalf("x = %v, want 0.3 after replay", state.Position.X)
	}
	if p.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", p.Pending())
	}

	// Reconciling against the same state again changes nothing.
	before := p.State()
	if p.Reconcile(auth, 1, nil) {
		t.Fatal("second reconcile reported a correction")
	}
	if p.State() != before {
		t.Fatalf("state changed: %+v -> %+v", before, p.State())
	}
}

func TestReconcileWithinToleranceKeepsPrediction(t *testing.T) {
	p := newTestPredictor()
	p.Apply(step(1, 1000))
	p.Apply(step(2, 1001))

	auth := p.Records()[0].Predicted
	auth.Position.X += 0.01

	if p.Reconcile(auth, 1, nil) {
		t.Fatal("small error should not be corrected")
	}
	if math.Abs(p.State().Position.X-0.2) > 1e-9 {
		t.Fatalf("x = %v, want prediction kept at 0.2", p.State().Position.X)
	}
	if p.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", p.Pending())
	}
}

func TestReconcileAcceptedShotIsNotCorrected(t *testing.T) {
	p := newTestPredictor()
	shot := step(1, 1000)
	shot.Fire = true
	p.Apply(shot)
	p.Apply(step(2, 1001))

	// The server spent a round for the shot.
	auth := p.Records()[0].Predicted
	auth.Ammo = 9

	replays := 0
	if p.Reconcile(auth, 1, func(messages.InputCommand) { replays++ }) {
		t.Fatal("an accepted shot was reported as a misprediction")
	}
	if replays != 0 {
		t.Fatalf("replayed %d inputs, want 0", replays)
	}
	state := p.State()
	if state.Ammo != 9 {
		t.Fatalf("ammo = %d, want 9 from the server", state.Ammo)
	}
	if math.Abs(state.Position.X-0.2) > 1e-9 {
		t.Fatalf("x = %v, want prediction kept at 0.2", state.Position.X)
	}
}

func TestReconcileUnknownAckReplaysLaterInputs(t *testing.T) {
	p := newTestPredictor()
	p.Apply(step(4, 1000))
	p.Apply(step(5, 1001))

	auth := netcomponents.NetPlayerData{ID: 1, Health: 100, Alive: true, Ammo: 10, Position: gamemath.V(5, 0, 0)}
	if !p.Reconcile(auth, 3, nil) {
		t.Fatal("expected a correction")
	}
	if math.Abs(p.State().Position.X-5.2) > 1e-9 {
		t.Fatalf("x = %v, want 5.2", p.State().Position.X)
	}
}

func TestPruneDropsInputsPastHorizon(t *testing.T) {
	p := newTestPredictor()
	p.Apply(step(1, 1000))
	p.Apply(step(2, 1100))
	p.Apply(step(3, 1250))

	if n := p.Prune(1199); n != 0 {
		t.Fatalf("pruned %d at 1199, want 0", n)
	}
	if n := p.Prune(1301); n != 2 {
		t.Fatalf("pruned %d at 1301, want 2", n)
	}
	if recs := p.Records(); len(recs) != 1 || recs[0].Input.Sequence != 3 {
		t.Fatalf("records = %+v, want only sequence 3", recs)
	}
}

func TestDeadPlayerDoesNotMove(t *testing.T) {
	p := NewPredictor(testParams, 0.05, time.Second)
	p.Reset(netcomponents.NetPlayerData{ID: 1})
	if got := p.Apply(step(1, 1000)); got.Position != (gamemath.Vec3{}) {
		t.Fatalf("dead player moved to %+v", got.Position)
	}
}
