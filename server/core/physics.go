package core

import (
	"github.com/automoto/fragnet/shared/gamemath"
)

// stepPhysics integrates gravity and physics velocity (knockback) for every
// living player. Input movement is not velocity; it is applied separately
// when commands are processed.
func (s *Simulation) stepPhysics() {
	phys := s.cfg.Physics

	for _, id := range s.order {
		p := s.state(id)
		if p == nil || !p.Alive {
			continue
		}

		// --- Gravity ---
		p.Velocity.Y -= phys.Gravity * s.dt
		if p.Velocity.Y < -phys.MaxFallSpeed {
			p.Velocity.Y = -phys.MaxFallSpeed
		}

		pos := p.Position
		pos.Y += p.Velocity.Y * s.dt

		// --- Floor ---
		if pos.Y <= phys.Floor {
			pos.Y = phys.Floor
			p.Velocity.Y = 0
			p.OnGround = true
		} else {
			p.OnGround = false
		}

		// --- Friction (ground only) ---
		if p.OnGround {
			p.Velocity.X = gamemath.ApplyFriction(p.Velocity.X, phys.Friction)
			p.Velocity.Z = gamemath.ApplyFriction(p.Velocity.Z, phys.Friction)
		}

		// --- Horizontal collision ---
		if delta := p.Velocity.Horizontal().Scale(s.dt); delta != (gamemath.Vec3{}) {
			resolved, blockedX, blockedZ := s.level.Move(s.players[id].body, pos, delta)
			if blockedX {
				p.Velocity.X = 0
			}
			if blockedZ {
				p.Velocity.Z = 0
			}
			pos = resolved
		}

		if pos != p.Position {
			p.Position = pos
			p.LastValidPosition = pos
		}
	}
}
