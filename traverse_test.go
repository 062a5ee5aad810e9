package dynbvh

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
)

func randomQueryBox(rng *rand.Rand, extent float64) Box {
	c := r3.Vector{X: rng.Float64() * extent, Y: rng.Float64() * extent, Z: rng.Float64() * extent}
	half := r3.Vector{X: rng.Float64() * extent / 5, Y: rng.Float64() * extent / 5, Z: rng.Float64() * extent / 5}
	return Box{Min: c.Sub(half), Max: c.Add(half)}
}

func bruteForceSearch(items []*sphere, query Box) []*sphere {
	found := []*sphere{}
	for _, s := range items {
		if BoxFromSphere(s.pos, s.radius).Overlaps(query) {
			found = append(found, s)
		}
	}
	return found
}

func buildRandomTree(t testing.TB, rng *rand.Rand, n, leafSize int, extent float64) (*BVH[*sphere], []*sphere) {
	tree := newTestTree(t, ConfigForItems(n, leafSize))
	items := []*sphere{}
	for i := 0; i < n; i++ {
		s := randomSphere(rng, i, extent)
		items = append(items, s)
		require.NoError(t, tree.Add(s))
	}
	return tree, items
}

func TestSearchMatchesBruteForce(t *testing.T) {
	for _, leafSize := range []int{1, 5} {
		rng := rand.New(rand.NewSource(int64(10 + leafSize)))
		tree, items := buildRandomTree(t, rng, 1000, leafSize, 100)

		results := []*sphere{}
		for q := 0; q < 200; q++ {
			query := randomQueryBox(rng, 100)
			want := bruteForceSearch(items, query)
			require.ElementsMatch(t, want, tree.Search(query))
			results = tree.SearchFast(query, results)
			require.ElementsMatch(t, want, results)
		}

		// moves without Optimize still give exact answers
		for _, s := range items[:300] {
			s.pos = s.pos.Add(r3.Vector{X: rng.NormFloat64() * 20, Y: rng.NormFloat64() * 20})
			require.NoError(t, tree.MarkMoved(s))
		}
		for q := 0; q < 100; q++ {
			query := randomQueryBox(rng, 100)
			require.ElementsMatch(t, bruteForceSearch(items, query), tree.Search(query))
		}
	}
}

func TestSearchSphere(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	tree, items := buildRandomTree(t, rng, 500, 1, 100)

	results := []*sphere{}
	for q := 0; q < 100; q++ {
		center := r3.Vector{X: rng.Float64() * 100, Y: rng.Float64() * 100, Z: rng.Float64() * 100}
		radius := rng.Float64() * 20
		want := []*sphere{}
		for _, s := range items {
			if BoxFromSphere(s.pos, s.radius).OverlapsSphere(center, radius) {
				want = append(want, s)
			}
		}
		results = tree.SearchSphere(center, radius, results)
		require.ElementsMatch(t, want, results)
	}
}

func TestTraverseIsExact(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	tree, _ := buildRandomTree(t, rng, 300, 2, 100)
	all := allNodes(tree)
	require.Len(t, all, tree.Stats().Nodes)

	results := []NodeView[*sphere]{}
	for q := 0; q < 100; q++ {
		query := randomQueryBox(rng, 100)
		want := []Handle{}
		for _, n := range all {
			if n.Box.Overlaps(query) {
				want = append(want, n.Handle)
			}
		}
		results = tree.TraverseFast(OverlapsBox(query), results)
		got := []Handle{}
		for _, n := range results {
			got = append(got, n.Handle)
		}
		// same nodes, in the same pre-order
		require.Equal(t, want, got)
	}

	center := r3.Vector{X: 50, Y: 50, Z: 50}
	for _, n := range tree.Traverse(OverlapsSphere(center, 10)) {
		require.True(t, n.Box.OverlapsSphere(center, 10))
	}
}

// A predicate that rejects a parent does not hide children that match.
func TestTraverseTestsEveryNode(t *testing.T) {
	tree := newTestTree(t, ConfigForItems(4, 1))
	a := newSphere(0, 0, 0, 0, 1)
	b := newSphere(1, 100, 0, 0, 1)
	require.NoError(t, tree.Add(a))
	require.NoError(t, tree.Add(b))

	onlyLeaves := func(box Box) bool {
		return box.Max.X-box.Min.X <= 2
	}
	nodes := tree.Traverse(onlyLeaves)
	require.Len(t, nodes, 2)
	for _, n := range nodes {
		require.True(t, n.Leaf)
		require.Equal(t, 1, n.Depth)
	}
}

func TestSearchFastDoesNotAllocate(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	tree, _ := buildRandomTree(t, rng, 1000, 1, 100)
	query := randomQueryBox(rng, 100)
	results := make([]*sphere, 0, 1000)
	nodes := make([]NodeView[*sphere], 0, tree.Stats().Nodes)
	pred := OverlapsBox(query)

	allocs := testing.AllocsPerRun(100, func() {
		results = tree.SearchFast(query, results)
		results = tree.SearchSphere(query.Center(), 10, results)
		nodes = tree.TraverseFast(pred, nodes)
	})
	require.Equal(t, 0.0, allocs)
}

func TestMutationsDoNotAllocate(t *testing.T) {
	rng := rand.New(rand.NewSource(51))
	tree, items := buildRandomTree(t, rng, 500, 1, 100)

	allocs := testing.AllocsPerRun(50, func() {
		s := items[rng.Intn(len(items))]
		s.pos = s.pos.Add(r3.Vector{X: 1})
		if err := tree.MarkMoved(s); err != nil {
			panic(err)
		}
		if err := tree.Optimize(); err != nil {
			panic(err)
		}
		if err := tree.Remove(items[0]); err != nil {
			panic(err)
		}
		if err := tree.Add(items[0]); err != nil {
			panic(err)
		}
	})
	require.Equal(t, 0.0, allocs)
	requireValid(t, tree)
}

func BenchmarkSearch(b *testing.B) {
	rng := rand.New(rand.NewSource(0))
	tree, _ := buildRandomTree(b, rng, 100000, 1, 1000)
	queries := []Box{}
	for i := 0; i < 1000; i++ {
		queries = append(queries, randomQueryBox(rng, 100))
	}
	results := []*sphere{}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		results = tree.SearchFast(queries[i%len(queries)], results)
	}
}

func BenchmarkMoveAndOptimize(b *testing.B) {
	rng := rand.New(rand.NewSource(0))
	tree, items := buildRandomTree(b, rng, 10000, 1, 1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := 0; j < 100; j++ {
			s := items[rng.Intn(len(items))]
			s.pos = s.pos.Add(r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()})
			if err := tree.MarkMoved(s); err != nil {
				b.Fatal(err)
			}
		}
		if err := tree.Optimize(); err != nil {
			b.Fatal(err)
		}
	}
}
