package dynbvh

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Add inserts item. It descends from the root choosing the child whose surface area grows least,
// or wraps a branch's children and hangs the item next to them when that is much cheaper.
// A full leaf is split. On error the tree is unchanged.
func (t *BVH[T]) Add(item T) error {
	if err := t.checkUsable(); err != nil {
		return err
	}
	if _, ok := t.leaves[item]; ok {
		return errors.Wrapf(ErrDuplicateItem, "add %v", item)
	}

	box := BoxFromSphere(item.Position(), item.Radius())
	cost := itemCost(item.Radius())

	h := t.root
	for {
		n := t.nodes.at(h)
		if n.isLeaf() {
			break
		}
		left := t.nodes.at(n.left).box
		right := t.nodes.at(n.right).box

		sendLeft := right.SurfaceArea() + left.Union(box).SurfaceArea()
		sendRight := left.SurfaceArea() + right.Union(box).SurfaceArea()
		merged := left.Union(right).SurfaceArea() + cost

		if merged < MergeDiscount*min(sendLeft, sendRight) {
			return t.pushdown(h, item, box)
		}
		if sendLeft <= sendRight {
			h = n.left
		} else {
			h = n.right
		}
	}
	return t.addToLeaf(h, item)
}

// itemCost is the surface area of the box around a sphere of radius r: 6·(2r)².
func itemCost(r float64) float64 {
	d := 2 * r
	return 6 * d * d
}

func (t *BVH[T]) addToLeaf(h Handle, item T) error {
	n := t.nodes.at(h)
	b := t.buckets.at(n.bucket)
	if len(b.items) < t.cfg.MaxItemsPerLeaf {
		b.items = append(b.items, item)
		t.mapLeaf(item, h)
		t.count++
		t.refitVolume(h)
		return nil
	}

	// the leaf overflows: it turns into a branch over two new leaves, the left one reusing its bucket
	if err := t.ensureCapacity(2, 1); err != nil {
		return errors.WithMessage(err, "split leaf")
	}
	t.splitNode(h, item)
	t.count++
	return nil
}

// pushdown moves the two children of branch h under a new branch, and puts item in a new leaf
// that becomes h's other child.
//
//	    h               h
//	   / \     =>      / \
//	  L   R          mid  leaf(item)
//	                 / \
//	                L   R
func (t *BVH[T]) pushdown(h Handle, item T, box Box) error {
	if err := t.ensureCapacity(2, 1); err != nil {
		return errors.WithMessage(err, "pushdown")
	}
	mid := t.newBranch()
	leaf, err := t.newLeaf()
	if err != nil {
		violation("leaf allocation after capacity check: %v", err)
	}

	n := t.nodes.at(h)
	m := t.nodes.at(mid)
	m.left, m.right = n.left, n.right
	m.parent = h
	t.nodes.at(m.left).parent = mid
	t.nodes.at(m.right).parent = mid
	m.box = t.computeBox(m)

	l := t.nodes.at(leaf)
	l.parent = h
	l.box = box
	b := t.buckets.at(l.bucket)
	b.items = append(b.items, item)
	t.mapLeaf(item, leaf)

	n.left, n.right = mid, leaf
	t.setDepth(mid, n.depth+1)
	l.depth = n.depth + 1
	t.count++
	t.refitVolume(h)

	if ce := t.logger.Check(zap.DebugLevel, "pushdown"); ce != nil {
		ce.Write(zap.Stringer("branch", h), zap.Int("depth", n.depth))
	}
	return nil
}
