// Package gamemath holds the vector and intersection helpers shared by the
// server simulation and client prediction. It must stay free of transport and
// ECS dependencies so both sides compute identical results.
package gamemath

import "math"

// Vec3 is a position, velocity or direction in world space. Y is up.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func V(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) LenSq() float64 { return v.Dot(v) }

func (v Vec3) Len() float64 { return math.Sqrt(v.LenSq()) }

// Dist returns the euclidean distance between v and o.
func (v Vec3) Dist(o Vec3) float64 { return v.Sub(o).Len() }

// Normalize returns the unit vector of v, or the zero vector if v has no length.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// ClampLen shortens v to at most max while keeping its direction.
func (v Vec3) ClampLen(max float64) Vec3 {
	l := v.Len()
	if l <= max || l == 0 {
		return v
	}
	return v.Scale(max / l)
}

// Horizontal drops the vertical component.
func (v Vec3) Horizontal() Vec3 { return Vec3{X: v.X, Z: v.Z} }

// IsFinite reports whether no component is NaN or infinite.
func (v Vec3) IsFinite() bool {
	for _, c := range [...]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Lerp interpolates between from and to by t in [0,1].
func Lerp(from, to Vec3, t float64) Vec3 {
	return Vec3{
		X: from.X + (to.X-from.X)*t,
		Y: from.Y + (to.Y-from.Y)*t,
		Z: from.Z + (to.Z-from.Z)*t,
	}
}

// SegmentSphere tests the segment a→b against a sphere. It returns the
// fraction along the segment of the first contact.
func SegmentSphere(a, b, center Vec3, radius float64) (float64, bool) {
	d := b.Sub(a)
	f := a.Sub(center)
	rr := radius * radius

	// Start already inside the sphere.
	if f.LenSq() <= rr {
		return 0, true
	}

	dd := d.LenSq()
	if dd == 0 {
		return 0, false
	}

	fd := f.Dot(d)
	disc := fd*fd - dd*(f.LenSq()-rr)
	if disc < 0 {
		return 0, false
	}
	t := (-fd - math.Sqrt(disc)) / dd
	if t < 0 || t > 1 {
		return 0, false
	}
	return t, true
}
