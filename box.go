package dynbvh

import (
	"math"

	"github.com/golang/geo/r3"
)

// Box is an axis-aligned 3D bounding box.
type Box struct {
	Min r3.Vector
	Max r3.Vector
}

// InvertedBox returns a box that contains nothing. Taking the union of it with any other box
// yields that other box, so it is the starting point for accumulating bounds.
func InvertedBox() Box {
	return Box{
		Min: r3.Vector{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64},
		Max: r3.Vector{X: -math.MaxFloat64, Y: -math.MaxFloat64, Z: -math.MaxFloat64},
	}
}

// BoxFromSphere returns the tight box around a sphere.
func BoxFromSphere(center r3.Vector, radius float64) Box {
	ext := r3.Vector{X: radius, Y: radius, Z: radius}
	return Box{Min: center.Sub(ext), Max: center.Add(ext)}
}

// IsEmpty is true for inverted boxes, which contain no points.
func (a Box) IsEmpty() bool {
	return a.Min.X > a.Max.X || a.Min.Y > a.Max.Y || a.Min.Z > a.Max.Z
}

// Union returns the smallest box containing both a and b.
func (a Box) Union(b Box) Box {
	return Box{
		Min: r3.Vector{X: min(a.Min.X, b.Min.X), Y: min(a.Min.Y, b.Min.Y), Z: min(a.Min.Z, b.Min.Z)},
		Max: r3.Vector{X: max(a.Max.X, b.Max.X), Y: max(a.Max.Y, b.Max.Y), Z: max(a.Max.Z, b.Max.Z)},
	}
}

// SurfaceArea of the box. Empty boxes have zero area.
func (a Box) SurfaceArea() float64 {
	if a.IsEmpty() {
		return 0
	}
	d := a.Max.Sub(a.Min)
	return 2 * (d.X*d.Y + d.X*d.Z + d.Y*d.Z)
}

// Center of the box.
func (a Box) Center() r3.Vector {
	return a.Min.Add(a.Max).Mul(0.5)
}

// Overlaps is true if the two boxes share at least one point. Touching faces count.
func (a Box) Overlaps(b Box) bool {
	return b.Max.X >= a.Min.X && b.Min.X <= a.Max.X &&
		b.Max.Y >= a.Min.Y && b.Min.Y <= a.Max.Y &&
		b.Max.Z >= a.Min.Z && b.Min.Z <= a.Max.Z
}

// OverlapsSphere is true if the sphere touches or intersects the box.
func (a Box) OverlapsSphere(center r3.Vector, radius float64) bool {
	if a.IsEmpty() {
		return false
	}
	closest := r3.Vector{
		X: math.Max(a.Min.X, math.Min(center.X, a.Max.X)),
		Y: math.Max(a.Min.Y, math.Min(center.Y, a.Max.Y)),
		Z: math.Max(a.Min.Z, math.Min(center.Z, a.Max.Z)),
	}
	return closest.Sub(center).Norm2() <= radius*radius
}

// Contains is true if b lies entirely inside a.
func (a Box) Contains(b Box) bool {
	return a.Min.X <= b.Min.X && a.Min.Y <= b.Min.Y && a.Min.Z <= b.Min.Z &&
		a.Max.X >= b.Max.X && a.Max.Y >= b.Max.Y && a.Max.Z >= b.Max.Z
}

// AlmostEqual compares both corners component-wise within eps.
func (a Box) AlmostEqual(b Box, eps float64) bool {
	return vectorAlmostEqual(a.Min, b.Min, eps) && vectorAlmostEqual(a.Max, b.Max, eps)
}

func vectorAlmostEqual(a, b r3.Vector, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps && math.Abs(a.Z-b.Z) <= eps
}

// axisValue picks the X, Y or Z component of v.
func axisValue(v r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}
