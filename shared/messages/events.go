package messages

import (
	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/automoto/fragnet/shared/netcomponents"
)

// EventKind tags a discrete simulation event.
type EventKind string

const (
	EventDamage  EventKind = "damage"
	EventKill    EventKind = "kill"
	EventImpact  EventKind = "impact"
	EventSpawn   EventKind = "spawn"
	EventDespawn EventKind = "despawn"
	EventRespawn EventKind = "respawn"
	EventFire    EventKind = "fire"
	EventReload  EventKind = "reload"
)

// Event is a discrete occurrence emitted during a tick and broadcast with the
// state update of that tick.
//
//	damage:  Source hit Target for Amount, Target left with Health
//	kill:    Source killed Target
//	impact:  Projectile stopped at Position; Target is 0 for world hits
//	spawn, despawn, respawn, reload: Target is the affected player
//	fire:    Source fired; Projectile is 0 for hitscan weapons
type Event struct {
	Kind       EventKind                  `json:"kind"`
	Tick       uint64                     `json:"tick"`
	Source     netcomponents.PlayerID     `json:"source,omitempty"`
	Target     netcomponents.PlayerID     `json:"target,omitempty"`
	Amount     int                        `json:"amount,omitempty"`
	Health     int                        `json:"health,omitempty"`
	Position   gamemath.Vec3              `json:"position"`
	Projectile netcomponents.ProjectileID `json:"projectile,omitempty"`
}
