// Package movement applies an input command to a player state. The server
// runs it for every accepted command and the client runs it for prediction
// and replay, so the two must never diverge for the same input.
package movement

import (
	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/automoto/fragnet/shared/messages"
	"github.com/automoto/fragnet/shared/netcomponents"
)

// Params are the kinematic bounds shared by client and server.
type Params struct {
	MaxSpeed    float64 // m/s
	StepSeconds float64 // duration of one simulation step
}

// Apply moves p by one step of cmd. Movement is horizontal and clamped to
// MaxSpeed; the aim direction becomes the new rotation. Dead players are
// returned unchanged.
func Apply(p netcomponents.NetPlayerData, cmd messages.InputCommand, params Params) netcomponents.NetPlayerData {
	if !p.Alive {
		return p
	}

	vel := cmd.Movement.Horizontal().ClampLen(params.MaxSpeed)
	p.Position = p.Position.Add(vel.Scale(params.StepSeconds))

	if aim := cmd.Aim.Normalize(); aim != (gamemath.Vec3{}) {
		p.Rotation = aim
	}
	p.LastSequence = cmd.Sequence
	return p
}

// Displacement returns how far cmd moves a player in one step.
func Displacement(cmd messages.InputCommand, params Params) gamemath.Vec3 {
	return cmd.Movement.Horizontal().ClampLen(params.MaxSpeed).Scale(params.StepSeconds)
}
