// Package leveldata provides TMX arena parsing. It has no dependencies on the
// simulation, donburi or resolv; pure data only.
//
// Arenas are authored top-down: the map's X axis is world X and the map's Y
// axis is world Z. One tile is one metre.
package leveldata

// ArenaData holds all collision-relevant data parsed from a TMX arena file.
type ArenaData struct {
	Solids      []SolidRect
	SpawnPoints []SpawnPoint
	Width       float64 // metres along X
	Depth       float64 // metres along Z
}

// SolidRect is an axis-aligned wall footprint on the ground plane.
type SolidRect struct {
	X, Z, W, D float64
	Height     float64 // 0 means unbounded
}

// SpawnPoint is a player spawn location on the ground plane.
type SpawnPoint struct {
	X, Z  float64
	Index int
}
