package messages

import (
	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/automoto/fragnet/shared/netcomponents"
)

// PlayerView is the synchronised projection of a player.
type PlayerView struct {
	Position     gamemath.Vec3 `json:"position"`
	Rotation     gamemath.Vec3 `json:"rotation"`
	Velocity     gamemath.Vec3 `json:"velocity"`
	Health       int           `json:"health"`
	Alive        bool          `json:"alive"`
	Ammo         int           `json:"ammo"`
	Reloading    bool          `json:"reloading"`
	LastSequence uint32        `json:"lastSequence"` // last input processed for this player
}

// ProjectileView is the synchronised projection of a projectile.
type ProjectileView struct {
	Position gamemath.Vec3 `json:"position"`
	Velocity gamemath.Vec3 `json:"velocity"`
}

// StateUpdate is broadcast to every client once per tick.
type StateUpdate struct {
	Tick        uint64                                        `json:"tick"`
	Timestamp   int64                                         `json:"timestamp"` // server Unix ms
	Players     map[netcomponents.PlayerID]PlayerView         `json:"players"`
	Projectiles map[netcomponents.ProjectileID]ProjectileView `json:"projectiles"`
	Events      []Event                                       `json:"events,omitempty"`
}

// ViewOf projects a player state onto its wire view.
func ViewOf(p netcomponents.NetPlayerData) PlayerView {
	return PlayerView{
		Position:     p.Position,
		Rotation:     p.Rotation,
		Velocity:     p.Velocity,
		Health:       p.Health,
		Alive:        p.Alive,
		Ammo:         p.Ammo,
		Reloading:    p.Reloading,
		LastSequence: p.LastSequence,
	}
}

// Apply overwrites the synchronised fields of p with the view.
func (v PlayerView) Apply(p netcomponents.NetPlayerData) netcomponents.NetPlayerData {
	p.Position = v.Position
	p.Rotation = v.Rotation
	p.Velocity = v.Velocity
	p.Health = v.Health
	p.Alive = v.Alive
	p.Ammo = v.Ammo
	p.Reloading = v.Reloading
	p.LastSequence = v.LastSequence
	return p
}

// LerpPlayerView interpolates positions and rotation; discrete fields come from to.
func LerpPlayerView(from, to PlayerView, t float64) PlayerView {
	out := to
	out.Position = gamemath.Lerp(from.Position, to.Position, t)
	out.Velocity = gamemath.Lerp(from.Velocity, to.Velocity, t)
	if r := gamemath.Lerp(from.Rotation, to.Rotation, t).Normalize(); r != (gamemath.Vec3{}) {
		out.Rotation = r
	}
	return out
}

// LerpProjectileView interpolates between two projectile views
func LerpProjectileView(from, to ProjectileView, t float64) ProjectileView {
	return ProjectileView{
		Position: gamemath.Lerp(from.Position, to.Position, t),
		Velocity: to.Velocity,
	}
}
