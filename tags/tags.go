package tags

import "github.com/yohamta/donburi"

var (
	Player     = donburi.NewTag().SetName("Player")
	Projectile = donburi.NewTag().SetName("Projectile")
)

// Resolv tags for physics collision
const (
	ResolvSolid  = "solid"
	ResolvPlayer = "player"
	ResolvProbe  = "probe"
)
