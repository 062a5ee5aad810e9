package dynbvh

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
)

func TestInvertedBox(t *testing.T) {
	inv := InvertedBox()
	require.True(t, inv.IsEmpty())
	require.Equal(t, 0.0, inv.SurfaceArea())

	b := BoxFromSphere(r3.Vector{X: 1, Y: 2, Z: 3}, 1)
	require.Equal(t, b, inv.Union(b))
	require.Equal(t, b, b.Union(inv))
	require.False(t, inv.Overlaps(b))
	require.False(t, b.Overlaps(inv))
	require.False(t, inv.OverlapsSphere(r3.Vector{}, 1e9))
}

func TestBoxFromSphere(t *testing.T) {
	b := BoxFromSphere(r3.Vector{}, 1)
	require.Equal(t, r3.Vector{X: -1, Y: -1, Z: -1}, b.Min)
	require.Equal(t, r3.Vector{X: 1, Y: 1, Z: 1}, b.Max)
	require.InDelta(t, itemCost(1), b.SurfaceArea(), 1e-12)
	require.InDelta(t, 24.0, b.SurfaceArea(), 1e-12)
	require.Equal(t, r3.Vector{}, b.Center())
}

func TestBoxOverlap(t *testing.T) {
	a := Box{Min: r3.Vector{}, Max: r3.Vector{X: 1, Y: 1, Z: 1}}

	// touching faces count
	touching := Box{Min: r3.Vector{X: 1}, Max: r3.Vector{X: 2, Y: 1, Z: 1}}
	require.True(t, a.Overlaps(touching))
	require.True(t, touching.Overlaps(a))

	for _, shift := range []r3.Vector{{X: 2}, {Y: 2}, {Z: 2}, {X: -2}, {Y: -2}, {Z: -2}} {
		other := Box{Min: a.Min.Add(shift), Max: a.Max.Add(shift)}
		require.False(t, a.Overlaps(other), "shift %v", shift)
	}

	inner := Box{Min: r3.Vector{X: 0.25, Y: 0.25, Z: 0.25}, Max: r3.Vector{X: 0.5, Y: 0.5, Z: 0.5}}
	require.True(t, a.Overlaps(inner))
	require.True(t, a.Contains(inner))
	require.False(t, inner.Contains(a))
}

func TestBoxOverlapsSphere(t *testing.T) {
	a := Box{Min: r3.Vector{}, Max: r3.Vector{X: 1, Y: 1, Z: 1}}
	require.True(t, a.OverlapsSphere(r3.Vector{X: 0.5, Y: 0.5, Z: 0.5}, 0.1))
	require.True(t, a.OverlapsSphere(r3.Vector{X: 2, Y: 0.5, Z: 0.5}, 1))
	require.False(t, a.OverlapsSphere(r3.Vector{X: 2, Y: 0.5, Z: 0.5}, 0.9))
	// the corner is sqrt(3) away from (2,2,2)
	require.False(t, a.OverlapsSphere(r3.Vector{X: 2, Y: 2, Z: 2}, 1.7))
	require.True(t, a.OverlapsSphere(r3.Vector{X: 2, Y: 2, Z: 2}, 1.75))
}

func TestBoxSurfaceArea(t *testing.T) {
	b := Box{Min: r3.Vector{}, Max: r3.Vector{X: 1, Y: 2, Z: 3}}
	require.InDelta(t, 22.0, b.SurfaceArea(), 1e-12)
	require.True(t, b.AlmostEqual(Box{Min: r3.Vector{X: 1e-10}, Max: r3.Vector{X: 1, Y: 2, Z: 3}}, 1e-9))
	require.False(t, b.AlmostEqual(Box{Min: r3.Vector{X: 1e-3}, Max: r3.Vector{X: 1, Y: 2, Z: 3}}, 1e-9))
}
