package core

import (
	"fmt"
	"io/fs"
	"log"
	"math"

	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/automoto/fragnet/shared/leveldata"
	"github.com/automoto/fragnet/tags"
	"github.com/solarlune/resolv"
)

// The resolv space works on the ground plane (world X, world Z) in
// decimetres so that sub-metre bodies get their own cells.
const (
	spaceScale  = 10.0
	spaceCell   = 5
	spaceMargin = 64.0 // metres of open ground around the authored arena
)

// Geometry answers collision queries against static level geometry.
type Geometry interface {
	// Raycast returns the fraction along from→to of the first solid hit.
	Raycast(from, to gamemath.Vec3) (float64, bool)
	// Overlap reports whether a sphere intersects any solid.
	Overlap(center gamemath.Vec3, radius float64) bool
}

// Level holds the server's collision space and spawn data for an arena.
type Level struct {
	Space       *resolv.Space
	SpawnPoints []leveldata.SpawnPoint
	Width       float64
	Depth       float64

	solids map[*resolv.Object]leveldata.SolidRect
	origin float64 // metres the arena is shifted by inside the space
}

// Body is a player's collision footprint in the level.
type Body struct {
	Object *resolv.Object
	Height float64
}

// NewLevel builds a resolv.Space from parsed arena data. A nil arena yields an
// empty open level.
func NewLevel(data *leveldata.ArenaData) *Level {
	if data == nil {
		data = &leveldata.ArenaData{}
	}

	w := int(math.Ceil((data.Width + 2*spaceMargin) * spaceScale))
	h := int(math.Ceil((data.Depth + 2*spaceMargin) * spaceScale))

	l := &Level{
		Space:       resolv.NewSpace(w, h, spaceCell, spaceCell),
		SpawnPoints: data.SpawnPoints,
		Width:       data.Width,
		Depth:       data.Depth,
		solids:      make(map[*resolv.Object]leveldata.SolidRect, len(data.Solids)),
		origin:      spaceMargin,
	}

	for _, r := range data.Solids {
		x, y := l.toSpace(r.X, r.Z)
		obj := resolv.NewObject(x, y, r.W*spaceScale, r.D*spaceScale, tags.ResolvSolid)
		obj.SetShape(resolv.NewRectangle(0, 0, obj.W, obj.H))
		l.Space.Add(obj)
		l.solids[obj] = r
	}

	log.Printf("[level] %d solids, %d spawn points, %.0fx%.0fm arena",
		len(data.Solids), len(data.SpawnPoints), data.Width, data.Depth)

	return l
}

// LoadLevel loads arena name from the .tmx files at the root of fsys. An
// empty name picks the first arena in alphabetical order.
func LoadLevel(fsys fs.FS, name string) (*Level, error) {
	arenas, names, err := leveldata.LoadAllArenas(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("load arenas: %w", err)
	}
	if name == "" && len(names) > 0 {
		name = names[0]
	}
	data, ok := arenas[name]
	if !ok {
		return nil, fmt.Errorf("arena %q not found (have %v)", name, names)
	}
	return NewLevel(data), nil
}

// Spawn returns the n-th spawn point, cycling through the authored ones.
func (l *Level) Spawn(n int) gamemath.Vec3 {
	if len(l.SpawnPoints) == 0 {
		return gamemath.Vec3{}
	}
	sp := l.SpawnPoints[n%len(l.SpawnPoints)]
	return gamemath.V(sp.X, 0, sp.Z)
}

func (l *Level) toSpace(x, z float64) (float64, float64) {
	return (x + l.origin) * spaceScale, (z + l.origin) * spaceScale
}

func (l *Level) fromSpace(x, y float64) (float64, float64) {
	return x/spaceScale - l.origin, y/spaceScale - l.origin
}

// AddBody places a square footprint of the given radius centred on pos.
func (l *Level) AddBody(pos gamemath.Vec3, radius, height float64) *Body {
	size := 2 * radius * spaceScale
	x, y := l.toSpace(pos.X-radius, pos.Z-radius)
	obj := resolv.NewObject(x, y, size, size, tags.ResolvPlayer)
	obj.SetShape(resolv.NewRectangle(0, 0, size, size))
	l.Space.Add(obj)
	return &Body{Object: obj, Height: height}
}

func (l *Level) RemoveBody(b *Body) {
	if b == nil {
		return
	}
	l.Space.Remove(b.Object)
}

// Place teleports a body to pos without collision.
func (l *Level) Place(b *Body, pos gamemath.Vec3) {
	half := b.Object.W / 2
	x, y := l.toSpace(pos.X, pos.Z)
	b.Object.X = x - half
	b.Object.Y = y - half
	b.Object.Update()
}

// Move slides the body horizontally from pos by delta, first along X then
// along Z, stopping at world solids and other bodies. It returns the resolved
// position and which axes were blocked.
func (l *Level) Move(b *Body, pos, delta gamemath.Vec3) (gamemath.Vec3, bool, bool) {
	l.Place(b, pos)

	dx := l.sweep(b, pos.Y, delta.X*spaceScale, 0)
	b.Object.X += dx
	b.Object.Update()

	dz := l.sweep(b, pos.Y, 0, delta.Z*spaceScale)
	b.Object.Y += dz
	b.Object.Update()

	half := b.Object.W / 2
	x, z := l.fromSpace(b.Object.X+half, b.Object.Y+half)
	out := gamemath.V(x, pos.Y+delta.Y, z)
	blockedX := math.Abs(dx-delta.X*spaceScale) > 1e-9
	blockedZ := math.Abs(dz-delta.Z*spaceScale) > 1e-9
	return out, blockedX, blockedZ
}

// sweep clamps a single-axis move so the body ends touching, not inside,
// anything in its way. The whole swept box is queried so fast bodies cannot
// pass through thin walls. Obstacles the body already overlaps are ignored so
// embedded bodies can walk out.
func (l *Level) sweep(b *Body, feet, dx, dy float64) float64 {
	if dx == 0 && dy == 0 {
		return 0
	}
	o := b.Object
	x, y := math.Min(o.X, o.X+dx), math.Min(o.Y, o.Y+dy)
	w, h := o.W+math.Abs(dx), o.H+math.Abs(dy)

	for _, other := range l.query(x, y, w, h, tags.ResolvSolid, tags.ResolvPlayer) {
		if other == o {
			continue
		}
		if r, ok := l.solids[other]; ok && r.Height > 0 && feet >= r.Height {
			continue
		}
		if dx != 0 {
			if !spanOverlap(o.Y, o.H, other.Y, other.H) {
				continue
			}
			switch {
			case dx > 0 && o.X+o.W <= other.X:
				dx = math.Min(dx, other.X-(o.X+o.W))
			case dx < 0 && o.X >= other.X+other.W:
				dx = math.Max(dx, other.X+other.W-o.X)
			}
		} else {
			if !spanOverlap(o.X, o.W, other.X, other.W) {
				continue
			}
			switch {
			case dy > 0 && o.Y+o.H <= other.Y:
				dy = math.Min(dy, other.Y-(o.Y+o.H))
			case dy < 0 && o.Y >= other.Y+other.H:
				dy = math.Max(dy, other.Y+other.H-o.Y)
			}
		}
	}
	return dx + dy
}

func spanOverlap(a, aw, b, bw float64) bool {
	return a < b+bw && b < a+aw
}

// Raycast tests the segment against solid footprints, honouring wall height.
func (l *Level) Raycast(from, to gamemath.Vec3) (float64, bool) {
	best, hit := 1.0, false
	for _, obj := range l.candidates(from, to, 0) {
		r := l.solids[obj]
		if t, ok := segmentBox(from, to, r); ok && t <= best {
			best, hit = t, true
		}
	}
	return best, hit
}

// Overlap reports whether the sphere touches any solid footprint.
func (l *Level) Overlap(center gamemath.Vec3, radius float64) bool {
	for _, obj := range l.candidates(center, center, radius) {
		r := l.solids[obj]
		if r.Height > 0 && center.Y-radius >= r.Height {
			continue
		}
		cx := gamemath.Clamp(center.X, r.X, r.X+r.W)
		cz := gamemath.Clamp(center.Z, r.Z, r.Z+r.D)
		dx, dz := center.X-cx, center.Z-cz
		if dx*dx+dz*dz <= radius*radius {
			return true
		}
	}
	return false
}

// candidates collects the solids sharing cells with the query's bounding box.
func (l *Level) candidates(a, b gamemath.Vec3, pad float64) []*resolv.Object {
	minX, maxX := math.Min(a.X, b.X)-pad, math.Max(a.X, b.X)+pad
	minZ, maxZ := math.Min(a.Z, b.Z)-pad, math.Max(a.Z, b.Z)+pad

	x, y := l.toSpace(minX, minZ)
	return l.query(x, y, (maxX-minX)*spaceScale, (maxZ-minZ)*spaceScale, tags.ResolvSolid)
}

// query drops a temporary probe over a box in space units and returns the
// objects carrying any of with that share its cells.
func (l *Level) query(x, y, w, h float64, with ...string) []*resolv.Object {
	probe := resolv.NewObject(x, y, math.Max(w, 1), math.Max(h, 1), tags.ResolvProbe)
	l.Space.Add(probe)
	defer l.Space.Remove(probe)

	check := probe.Check(0, 0, with...)
	if check == nil {
		return nil
	}
	return check.ObjectsByTags(with...)
}

// segmentBox is a slab test of a segment against a solid's box. Solids with no
// height extend upward without bound.
func segmentBox(from, to gamemath.Vec3, r leveldata.SolidRect) (float64, bool) {
	top := math.Inf(1)
	if r.Height > 0 {
		top = r.Height
	}
	lo := [3]float64{r.X, math.Inf(-1), r.Z}
	hi := [3]float64{r.X + r.W, top, r.Z + r.D}
	p := [3]float64{from.X, from.Y, from.Z}
	d := [3]float64{to.X - from.X, to.Y - from.Y, to.Z - from.Z}

	tmin, tmax := 0.0, 1.0
	for i := 0; i < 3; i++ {
		if d[i] == 0 {
			if p[i] < lo[i] || p[i] > hi[i] {
				return 0, false
			}
			continue
		}
		t1 := (lo[i] - p[i]) / d[i]
		t2 := (hi[i] - p[i]) / d[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}
