package netcomponents

import (
	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/yohamta/donburi"
)

// PlayerID identifies a player for the lifetime of a match. Everything outside
// the simulation refers to players only through this id.
type PlayerID uint32

// Weapon describes the firing characteristics of a player's current weapon.
type Weapon struct {
	Type           string  `json:"type"`
	Damage         int     `json:"damage"`
	MuzzleVelocity float64 `json:"muzzleVelocity"` // m/s
	FireRateRPM    float64 `json:"fireRateRpm"`
	MagazineSize   int     `json:"magazineSize"`
	ReloadMillis   int64   `json:"reloadMillis"`
	Hitscan        bool    `json:"hitscan"`
	Range          float64 `json:"range"` // hitscan only
}

// NetPlayerData is the canonical state of one player. The server owns the
// only mutable copy; clients hold read-only projections of it.
type NetPlayerData struct {
	ID        PlayerID
	Position  gamemath.Vec3
	Rotation  gamemath.Vec3 // unit aim direction
	Velocity  gamemath.Vec3 // physics only (gravity, knockback), never input
	OnGround  bool
	Health    int
	MaxHealth int
	Ammo      int
	Weapon    Weapon
	Reloading bool
	Alive     bool
	Kills     int
	Deaths    int

	LastValidPosition  gamemath.Vec3
	LastInputTimestamp int64  // client ms of the last processed input
	LastShotTimestamp  int64  // client ms of the last accepted shot
	LastSequence       uint32 // last input sequence processed by the server
	Suspicion          int
}

var NetPlayer = donburi.NewComponentType[NetPlayerData]()

// LerpNetPlayer interpolates the continuous fields between two player states.
// Discrete fields are taken from to.
func LerpNetPlayer(from, to NetPlayerData, t float64) NetPlayerData {
	out := to
	out.Position = gamemath.Lerp(from.Position, to.Position, t)
	out.Rotation = gamemath.Lerp(from.Rotation, to.Rotation, t).Normalize()
	if out.Rotation == (gamemath.Vec3{}) {
		out.Rotation = to.Rotation
	}
	out.Velocity = gamemath.Lerp(from.Velocity, to.Velocity, t)
	return out
}
