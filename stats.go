package dynbvh

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Stats summarizes the shape of the tree.
type Stats struct {
	Nodes    int
	Branches int
	Leaves   int
	Items    int
	MaxDepth int

	// BranchSurfaceArea is the sum of the surface areas of all branch boxes, the quantity Optimize reduces.
	BranchSurfaceArea float64
}

// CountNodes returns the number of leaves that hold items.
// With one item per leaf this equals the number of stored items.
func (t *BVH[T]) CountNodes() int {
	if t.disposed {
		return 0
	}
	count := 0
	t.walk(func(h Handle, n *node) {
		if n.isLeaf() && len(t.buckets.at(n.bucket).items) > 0 {
			count++
		}
	})
	return count
}

// Stats walks the whole tree.
func (t *BVH[T]) Stats() Stats {
	s := Stats{}
	if t.disposed {
		return s
	}
	t.walk(func(h Handle, n *node) {
		s.Nodes++
		s.MaxDepth = max(s.MaxDepth, n.depth)
		if n.isLeaf() {
			s.Leaves++
			s.Items += len(t.buckets.at(n.bucket).items)
		} else {
			s.Branches++
			s.BranchSurfaceArea += n.box.SurfaceArea()
		}
	})
	return s
}

func (t *BVH[T]) walk(visit func(h Handle, n *node)) {
	stack := append(t.stack[:0], t.root)
	for len(stack) != 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.nodes.at(h)
		visit(h, n)
		if !n.isLeaf() {
			stack = append(stack, n.right, n.left)
		}
	}
	t.stack = stack[:0]
}

// Validate checks every structural invariant of the tree and returns all violations found,
// each wrapping ErrInvariantViolation. It is meant for tests and debug builds; it allocates.
func (t *BVH[T]) Validate() error {
	if t.disposed {
		return ErrDisposed
	}
	var err error
	fail := func(format string, args ...interface{}) {
		err = multierr.Append(err, errors.Wrapf(ErrInvariantViolation, format, args...))
	}

	if !t.nodes.valid(t.root) {
		fail("root %v is not a live node", t.root)
		return err
	}
	if root := t.nodes.at(t.root); !root.parent.IsNil() || root.depth != 0 {
		fail("root %v has parent %v and depth %d", t.root, root.parent, root.depth)
	}

	seen := make(map[Handle]bool, t.nodes.used())
	items, leaves := 0, 0
	stack := []Handle{t.root}
	for len(stack) != 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[h] {
			fail("node %v reached twice", h)
			continue
		}
		seen[h] = true
		n := t.nodes.at(h)

		if n.isLeaf() {
			if !n.left.IsNil() || !n.right.IsNil() {
				fail("leaf %v has children", h)
			}
			if !t.buckets.valid(n.bucket) {
				fail("leaf %v has dead bucket %v", h, n.bucket)
				continue
			}
			b := t.buckets.at(n.bucket)
			if len(b.items) > t.cfg.MaxItemsPerLeaf {
				fail("leaf %v holds %d items, limit is %d", h, len(b.items), t.cfg.MaxItemsPerLeaf)
			}
			if len(b.items) == 0 && h != t.root {
				fail("empty leaf %v is not the root", h)
			}
			for _, item := range b.items {
				if leaf, ok := t.leaves[item]; !ok || leaf != h {
					fail("item %v in leaf %v maps to %v", item, h, leaf)
				}
			}
			items += len(b.items)
			leaves++
		} else {
			if !t.nodes.valid(n.left) || !t.nodes.valid(n.right) {
				fail("branch %v has dead children %v, %v", h, n.left, n.right)
				continue
			}
			for _, c := range []Handle{n.left, n.right} {
				cn := t.nodes.at(c)
				if cn.parent != h {
					fail("child %v of %v points to parent %v", c, h, cn.parent)
				}
				if cn.depth != n.depth+1 {
					fail("child %v of %v has depth %d, want %d", c, h, cn.depth, n.depth+1)
				}
			}
			stack = append(stack, n.left, n.right)
		}
		if box := t.computeBox(n); box != n.box {
			fail("node %v box %v is not the tight bound %v", h, n.box, box)
		}
	}

	if items != t.count {
		fail("tree holds %d items, count is %d", items, t.count)
	}
	if len(t.leaves) != t.count {
		fail("identity map has %d entries for %d items", len(t.leaves), t.count)
	}
	if leaves != t.buckets.used() {
		fail("%d leaves, %d buckets allocated", leaves, t.buckets.used())
	}
	if len(seen) != t.nodes.used() {
		fail("%d nodes reachable, %d allocated", len(seen), t.nodes.used())
	}
	return err
}
