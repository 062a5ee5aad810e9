package dynbvh

import "github.com/golang/geo/r3"

// Predicate decides whether a node's box is of interest.
type Predicate func(box Box) bool

// OverlapsBox matches nodes whose box overlaps query.
func OverlapsBox(query Box) Predicate {
	return func(box Box) bool {
		return box.Overlaps(query)
	}
}

// OverlapsSphere matches nodes whose box touches the sphere.
func OverlapsSphere(center r3.Vector, radius float64) Predicate {
	return func(box Box) bool {
		return box.OverlapsSphere(center, radius)
	}
}

// NodeView is a read-only snapshot of a node returned by Traverse.
// Items aliases the leaf's bucket and is only valid until the tree is next modified.
type NodeView[T Item] struct {
	Handle Handle
	Box    Box
	Depth  int
	Leaf   bool
	Items  []T
}

// Traverse returns every node whose own box satisfies pred. Children are tested regardless of
// whether their parent matched, so the result is exact at every depth.
func (t *BVH[T]) Traverse(pred Predicate) []NodeView[T] {
	results := []NodeView[T]{}
	return t.TraverseFast(pred, results)
}

// TraverseFast accepts a 'results' as input. If you are performing millions of queries,
// then reusing a 'results' slice will reduce the number of allocations.
// Nodes come back in pre-order, left before right.
func (t *BVH[T]) TraverseFast(pred Predicate, results []NodeView[T]) []NodeView[T] {
	results = results[:0]
	if t.disposed {
		return results
	}

	stack := append(t.stack[:0], t.root)
	for len(stack) != 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.nodes.at(h)
		if pred(n.box) {
			view := NodeView[T]{Handle: h, Box: n.box, Depth: n.depth, Leaf: n.isLeaf()}
			if view.Leaf {
				view.Items = t.buckets.at(n.bucket).items
			}
			results = append(results, view)
		}
		if !n.isLeaf() {
			// right first, so that left comes off the stack first
			stack = append(stack, n.right, n.left)
		}
	}
	t.stack = stack[:0]
	return results
}

// Search for all items whose bounding box overlaps the query box.
func (t *BVH[T]) Search(query Box) []T {
	results := []T{}
	return t.SearchFast(query, results)
}

// SearchFast is Search that appends to a reused 'results' slice, after truncating it.
func (t *BVH[T]) SearchFast(query Box, results []T) []T {
	results = results[:0]
	if t.disposed {
		return results
	}
	return t.search(itemQuery{box: query}, results)
}

// SearchSphere finds all items whose bounding box touches the sphere, appending them to the truncated 'results'.
func (t *BVH[T]) SearchSphere(center r3.Vector, radius float64, results []T) []T {
	results = results[:0]
	if t.disposed {
		return results
	}
	return t.search(itemQuery{sphere: true, center: center, radius: radius}, results)
}

// itemQuery is a box or sphere query. A plain struct keeps the search loop free of closures.
type itemQuery struct {
	box    Box
	sphere bool
	center r3.Vector
	radius float64
}

func (q itemQuery) test(box Box) bool {
	if q.sphere {
		return box.OverlapsSphere(q.center, q.radius)
	}
	return box.Overlaps(q.box)
}

// search descends only into nodes that pass the test, since a child's box lies inside its parent's.
func (t *BVH[T]) search(q itemQuery, results []T) []T {
	stack := append(t.stack[:0], t.root)
	for len(stack) != 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.nodes.at(h)
		if !q.test(n.box) {
			continue
		}
		if !n.isLeaf() {
			stack = append(stack, n.right, n.left)
			continue
		}
		for _, item := range t.buckets.at(n.bucket).items {
			if q.test(BoxFromSphere(item.Position(), item.Radius())) {
				results = append(results, item)
			}
		}
	}
	t.stack = stack[:0]
	return results
}
