// Package anticheat classifies client input commands against kinematic and
// weapon-rate bounds before the simulation trusts them. Checks are
// heuristic; the validator never mutates state.
package anticheat

import (
	"fmt"

	"github.com/automoto/fragnet/config"
	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/automoto/fragnet/shared/messages"
	"github.com/automoto/fragnet/shared/movement"
	"github.com/automoto/fragnet/shared/netcomponents"
)

// Reason names why an input or state was rejected.
type Reason string

const (
	InvalidMovement Reason = "invalid_movement"
	InvalidAction   Reason = "invalid_action"
	InvalidState    Reason = "invalid_state"
)

// Verdict is the outcome of validating one command.
type Verdict struct {
	Accepted bool
	Reason   Reason
	Detail   string
}

func accept() Verdict { return Verdict{Accepted: true} }

func reject(reason Reason, format string, args ...any) Verdict {
	return Verdict{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Limits are the bounds one command is checked against.
type Limits struct {
	MaxSpeed          float64 // m/s
	PositionTolerance float64 // metres
	FireRateTolerance float64 // fraction of the nominal fire interval
	StepSeconds       float64 // simulation step a single command covers
	MaxElapsed        float64 // seconds; caps the travel time between commands, 0 is uncapped
}

// LimitsFrom builds Limits from configuration and the server tick length.
func LimitsFrom(c config.AntiCheatConfig, stepSeconds float64) Limits {
	return Limits{
		MaxSpeed:          c.MaxSpeed,
		PositionTolerance: c.PositionTolerance,
		FireRateTolerance: c.FireRateTolerance,
		StepSeconds:       stepSeconds,
		MaxElapsed:        c.MaxInputGap.Seconds(),
	}
}

// Validator checks commands against a fixed set of limits. It holds no
// per-player state, so one instance serves every player.
type Validator struct {
	limits Limits
}

func NewValidator(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// Limits returns the bounds the validator was built with.
func (v *Validator) Limits() Limits { return v.limits }

// Validate checks cmd against the player's state before it is applied. Checks
// run in order and stop at the first failure.
func (v *Validator) Validate(before netcomponents.NetPlayerData, cmd messages.InputCommand) Verdict {
	if verdict := v.checkSpeed(cmd); !verdict.Accepted {
		return verdict
	}
	if verdict := v.checkTravel(before, cmd); !verdict.Accepted {
		return verdict
	}
	if cmd.Fire {
		if verdict := v.checkFire(before, cmd); !verdict.Accepted {
			return verdict
		}
	}
	return accept()
}

func (v *Validator) checkSpeed(cmd messages.InputCommand) Verdict {
	if !cmd.Movement.IsFinite() || !cmd.Aim.IsFinite() {
		return reject(InvalidMovement, "non-finite movement")
	}
	if speed := cmd.Movement.Len(); speed > v.limits.MaxSpeed {
		return reject(InvalidMovement, "speed %.2f exceeds %.2f", speed, v.limits.MaxSpeed)
	}
	return accept()
}

// checkTravel rejects claimed positions the player could not have reached
// from its last valid position in the elapsed time.
func (v *Validator) checkTravel(before netcomponents.NetPlayerData, cmd messages.InputCommand) Verdict {
	claimed := before.Position.Add(movement.Displacement(cmd, movement.Params{
		MaxSpeed:    v.limits.MaxSpeed,
		StepSeconds: v.limits.StepSeconds,
	}))
	if cmd.HasPosition {
		if !cmd.Position.IsFinite() {
			return reject(InvalidMovement, "non-finite position")
		}
		claimed = cmd.Position
	}

	elapsed := v.limits.StepSeconds
	if before.LastInputTimestamp > 0 {
		if dt := float64(cmd.Timestamp-before.LastInputTimestamp) / 1000; dt > elapsed {
			elapsed = dt
		}
	}
	if limit := v.limits.MaxElapsed; limit > 0 && elapsed > limit {
		elapsed = limit
	}

	travel := claimed.Horizontal().Dist(before.LastValidPosition.Horizontal())
	allowed := v.limits.MaxSpeed*elapsed + v.limits.PositionTolerance
	if travel > allowed {
		return reject(InvalidMovement, "moved %.2fm in %.3fs, allowed %.2fm", travel, elapsed, allowed)
	}
	return accept()
}

func (v *Validator) checkFire(before netcomponents.NetPlayerData, cmd messages.InputCommand) Verdict {
	if before.LastShotTimestamp > 0 {
		minInterval := gamemath.FireInterval(before.Weapon.FireRateRPM) * v.limits.FireRateTolerance
		if since := float64(cmd.Timestamp - before.LastShotTimestamp); since < minInterval {
			return reject(InvalidAction, "shot %.0fms after previous, minimum %.0fms", since, minInterval)
		}
	}
	if before.Reloading {
		return reject(InvalidAction, "fired while reloading")
	}
	if before.Ammo <= 0 {
		return reject(InvalidAction, "fired with empty magazine")
	}
	return accept()
}
