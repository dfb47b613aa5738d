package netcomponents

import (
	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/yohamta/donburi"
)

// ProjectileID is derived from the spawning tick and owner, so replays of the
// same tick always produce the same ids.
type ProjectileID uint64

// NewProjectileID packs tick and owner into a projectile id. A player fires at
// most once per tick.
func NewProjectileID(tick uint64, owner PlayerID) ProjectileID {
	return ProjectileID(tick<<16 | uint64(owner&0xffff))
}

type NetProjectileData struct {
	ID       ProjectileID
	OwnerID  PlayerID
	Position gamemath.Vec3
	Velocity gamemath.Vec3
	Damage   int
	Lifetime float64 // seconds remaining
}

var NetProjectile = donburi.NewComponentType[NetProjectileData]()

// LerpNetProjectile interpolates between two projectile states
func LerpNetProjectile(from, to NetProjectileData, t float64) NetProjectileData {
	out := to
	out.Position = gamemath.Lerp(from.Position, to.Position, t)
	return out
}
