package dynbvh

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type sphere struct {
	id     int
	pos    r3.Vector
	radius float64
}

func (s *sphere) Position() r3.Vector { return s.pos }
func (s *sphere) Radius() float64     { return s.radius }
func (s *sphere) String() string      { return fmt.Sprintf("sphere#%d", s.id) }

func newSphere(id int, x, y, z, radius float64) *sphere {
	return &sphere{id: id, pos: r3.Vector{X: x, Y: y, Z: z}, radius: radius}
}

func randomSphere(rng *rand.Rand, id int, extent float64) *sphere {
	return newSphere(id,
		rng.Float64()*extent, rng.Float64()*extent, rng.Float64()*extent,
		0.1+rng.Float64()*2)
}

func newTestTree(t testing.TB, cfg Config) *BVH[*sphere] {
	t.Helper()
	if cfg.Logger == nil {
		// debug output from structural changes is too chatty for large trees
		cfg.Logger = zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	}
	tree, err := New[*sphere](cfg)
	require.NoError(t, err)
	return tree
}

// allNodes returns every node in the tree, in traversal order.
func allNodes(tree *BVH[*sphere]) []NodeView[*sphere] {
	return tree.Traverse(func(Box) bool { return true })
}

func requireValid(t testing.TB, tree *BVH[*sphere]) {
	t.Helper()
	require.NoError(t, tree.Validate())
}
