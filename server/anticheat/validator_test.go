package anticheat

import (
	"testing"

	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/automoto/fragnet/shared/messages"
	"github.com/automoto/fragnet/shared/netcomponents"
)

var testLimits = Limits{
	MaxSpeed:          10,
	PositionTolerance: 0.5,
	FireRateTolerance: 0.8,
	StepSeconds:       0.016,
	MaxElapsed:        1,
}

func armedPlayer() netcomponents.NetPlayerData {
	return netcomponents.NetPlayerData{
		ID:        1,
		Alive:     true,
		Health:    100,
		MaxHealth: 100,
		Ammo:      30,
		Weapon:    netcomponents.Weapon{Type: "rifle", Damage: 20, FireRateRPM: 600, MagazineSize: 30},
	}
}

func TestRejectsMovementAboveMaxSpeed(t *testing.T) {
	v := NewValidator(testLimits)
	moves := []gamemath.Vec3{
		gamemath.V(10.01, 0, 0),
		gamemath.V(0, 0, -11),
		gamemath.V(8, 0, 8),
		gamemath.V(0, 50, 0),
		gamemath.V(-7, 5, -6),
	}
	for _, m := range moves {
		verdict := v.Validate(armedPlayer(), messages.InputCommand{Sequence: 1, Movement: m, Timestamp: 1000})
		if verdict.Accepted || verdict.Reason != InvalidMovement {
			t.Errorf("movement %+v: verdict %+v, want %s", m, verdict, InvalidMovement)
		}
	}
}

func TestAcceptsMovementAtMaxSpeed(t *testing.T) {
	v := NewValidator(testLimits)
	verdict := v.Validate(armedPlayer(), messages.InputCommand{Sequence: 1, Movement: gamemath.V(0, 0, 10), Timestamp: 1000})
	if !verdict.Accepted {
		t.Fatalf("rejected: %+v", verdict)
	}
}

func TestRejectsNonFiniteInput(t *testing.T) {
	v := NewValidator(testLimits)
	nan := gamemath.V(0, 0, 0)
	nan.X = nan.X / nan.X // NaN at runtime
	verdict := v.Validate(armedPlayer(), messages.InputCommand{Movement: nan})
	if verdict.Accepted || verdict.Reason != InvalidMovement {
		t.Fatalf("verdict %+v, want %s", verdict, InvalidMovement)
	}
}

func TestTeleportCheck(t *testing.T) {
	v := NewValidator(testLimits)
	p := armedPlayer()
	p.LastInputTimestamp = 1000

	tests := []struct {
		name    string
		claimed gamemath.Vec3
		accept  bool
	}{
		{"teleport", gamemath.V(50, 0, 0), false},
		{"small step", gamemath.V(0.1, 0, 0), true},
		{"just inside tolerance", gamemath.V(0.65, 0, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := messages.InputCommand{
				Sequence:    2,
				Movement:    gamemath.V(6.25, 0, 0),
				Timestamp:   1016,
				Position:    tt.claimed,
				HasPosition: true,
			}
			verdict := v.Validate(p, cmd)
			if verdict.Accepted != tt.accept {
				t.Fatalf("verdict %+v, want accepted=%v", verdict, tt.accept)
			}
			if !tt.accept && verdict.Reason != InvalidMovement {
				t.Fatalf("reason %s, want %s", verdict.Reason, InvalidMovement)
			}
		})
	}
}

func TestTravelAllowanceGrowsWithElapsedTime(t *testing.T) {
	v := NewValidator(testLimits)
	p := armedPlayer()
	p.LastInputTimestamp = 1000

	// 5 m needs at least ~450 ms at 10 m/s with 0.5 m tolerance.
	cmd := messages.InputCommand{Sequence: 2, Timestamp: 1500, Position: gamemath.V(5, 0, 0), HasPosition: true}
	if verdict := v.Validate(p, cmd); !verdict.Accepted {
		t.Fatalf("rejected after 500ms: %+v", verdict)
	}
	cmd.Timestamp = 1100
	if verdict := v.Validate(p, cmd); verdict.Accepted {
		t.Fatalf("accepted 5m after 100ms")
	}
}

func TestTravelAllowanceIsCapped(t *testing.T) {
	v := NewValidator(testLimits)
	p := armedPlayer()
	p.LastInputTimestamp = 1000

	// A timestamp ten seconds ahead earns no more than a second of travel.
	cmd := messages.InputCommand{Sequence: 2, Timestamp: 11_000, Position: gamemath.V(50, 0, 0), HasPosition: true}
	verdict := v.Validate(p, cmd)
	if verdict.Accepted || verdict.Reason != InvalidMovement {
		t.Fatalf("verdict %+v, want %s", verdict, InvalidMovement)
	}

	cmd.Position = gamemath.V(10, 0, 0)
	if verdict := v.Validate(p, cmd); !verdict.Accepted {
		t.Fatalf("10m within the capped allowance rejected: %+v", verdict)
	}
}

func TestFireRateGuard(t *testing.T) {
	v := NewValidator(testLimits)
	p := armedPlayer()
	p.LastShotTimestamp = 10_000
	p.LastInputTimestamp = 10_000

	early := messages.InputCommand{Sequence: 2, Fire: true, Aim: gamemath.V(1, 0, 0), Timestamp: 10_070}
	verdict := v.Validate(p, early)
	if verdict.Accepted || verdict.Reason != InvalidAction {
		t.Fatalf("shot after 70ms: %+v, want %s", verdict, InvalidAction)
	}

	onTime := early
	onTime.Timestamp = 10_085
	if verdict := v.Validate(p, onTime); !verdict.Accepted {
		t.Fatalf("shot after 85ms rejected: %+v", verdict)
	}
}

func TestFireRequiresAmmo(t *testing.T) {
	v := NewValidator(testLimits)
	p := armedPlayer()
	p.Ammo = 0
	verdict := v.Validate(p, messages.InputCommand{Fire: true, Timestamp: 5000})
	if verdict.Accepted || verdict.Reason != InvalidAction {
		t.Fatalf("verdict %+v, want %s", verdict, InvalidAction)
	}

	p = armedPlayer()
	p.Reloading = true
	verdict = v.Validate(p, messages.InputCommand{Fire: true, Timestamp: 5000})
	if verdict.Accepted || verdict.Reason != InvalidAction {
		t.Fatalf("fire while reloading: %+v, want %s", verdict, InvalidAction)
	}
}

func TestMovementCheckedBeforeFire(t *testing.T) {
	v := NewValidator(testLimits)
	p := armedPlayer()
	p.Ammo = 0
	verdict := v.Validate(p, messages.InputCommand{Fire: true, Movement: gamemath.V(99, 0, 0), Timestamp: 5000})
	if verdict.Reason != InvalidMovement {
		t.Fatalf("reason %s, want %s first", verdict.Reason, InvalidMovement)
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	v := NewValidator(testLimits)
	p := armedPlayer()
	before := p
	v.Validate(p, messages.InputCommand{Fire: true, Movement: gamemath.V(3, 0, 0), Timestamp: 5000})
	if p != before {
		t.Fatalf("player state mutated")
	}
}
