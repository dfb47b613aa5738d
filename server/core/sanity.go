package core

import (
	"fmt"
	"time"

	"github.com/automoto/fragnet/server/anticheat"
	"github.com/automoto/fragnet/shared/netcomponents"
)

// checkSanity verifies whole-state invariants after a tick. Violations are
// reported, never corrected.
func (s *Simulation) checkSanity(now time.Time) {
	for _, id := range s.order {
		p := s.state(id)
		if p == nil {
			continue
		}
		if detail, ok := s.saneState(*p); !ok {
			s.report(now, *p, anticheat.InvalidState, detail)
		}
	}
}

func (s *Simulation) saneState(p netcomponents.NetPlayerData) (string, bool) {
	if p.Health < 0 || p.Health > p.MaxHealth {
		return fmt.Sprintf("health %d outside [0,%d]", p.Health, p.MaxHealth), false
	}
	if p.Ammo < 0 {
		return fmt.Sprintf("negative ammo %d", p.Ammo), false
	}
	if !p.Position.IsFinite() {
		return "non-finite position", false
	}
	lo, hi := s.cfg.Physics.BoundsMin, s.cfg.Physics.BoundsMax
	for _, v := range [...]float64{p.Position.X, p.Position.Y, p.Position.Z} {
		if v < lo || v > hi {
			return fmt.Sprintf("position (%.1f,%.1f,%.1f) outside arena bounds",
				p.Position.X, p.Position.Y, p.Position.Z), false
		}
	}
	return "", true
}
