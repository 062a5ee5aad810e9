package dynbvh

import (
	"math"
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type rotation int

// Rotations swap a child of a node with one of its grandchildren on the other side,
// or two grandchildren across sides. Names read "swap A with B".
const (
	rotNone rotation = iota
	rotLWithRL
	rotLWithRR
	rotRWithLL
	rotRWithLR
	rotLLWithRR
	rotLLWithRL
	numRotations
)

var rotationNames = [numRotations]string{"none", "L<->RL", "L<->RR", "R<->LL", "R<->LR", "LL<->RR", "LL<->RL"}

func (r rotation) String() string {
	return rotationNames[r]
}

// MarkMoved tells the tree that item's position or radius changed.
// The item's leaf and its ancestors are refit immediately, and the leaf's parent is queued for the next Optimize.
func (t *BVH[T]) MarkMoved(item T) error {
	if err := t.checkUsable(); err != nil {
		return err
	}
	h, ok := t.leaves[item]
	if !ok {
		return errors.Wrapf(ErrItemNotFound, "mark moved %v", item)
	}
	t.refitVolume(h)
	if p := t.nodes.at(h).parent; !p.IsNil() {
		t.enqueue(p)
	}
	return nil
}

// Pending is the number of nodes queued for Optimize. Entries for nodes that were removed since are included.
func (t *BVH[T]) Pending() int {
	return len(t.queue)
}

// Optimize drains the queue built up by MarkMoved, deepest nodes first. Each queued branch gets the
// best of seven local rotations if that shrinks the total surface area of the branches enough,
// then its parent is queued. The set of stored items and their leaves never change.
// Optimize requires MaxItemsPerLeaf == 1.
func (t *BVH[T]) Optimize() error {
	if err := t.checkUsable(); err != nil {
		return err
	}
	if t.cfg.MaxItemsPerLeaf != 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "optimize needs max_items_per_leaf == 1, have %d", t.cfg.MaxItemsPerLeaf)
	}

	passes, visited, rotations := 0, 0, 0
	for {
		t.dropStale()
		if len(t.queue) == 0 {
			break
		}
		slices.SortStableFunc(t.queue, func(a, b Handle) int {
			return t.nodes.at(b).depth - t.nodes.at(a).depth
		})
		depth := t.nodes.at(t.queue[0]).depth
		k := 1
		for k < len(t.queue) && t.nodes.at(t.queue[k]).depth == depth {
			k++
		}

		// move this pass's nodes out of the queue so that their parents can be queued behind them
		batch := append(t.stack[:0], t.queue[:k]...)
		t.queue = append(t.queue[:0], t.queue[k:]...)
		passes++

		for _, h := range batch {
			if !t.nodes.valid(h) {
				continue
			}
			n := t.nodes.at(h)
			n.queued = false
			visited++
			if !n.isLeaf() && t.tryRotate(h) {
				rotations++
			}
			if !n.parent.IsNil() {
				t.enqueue(n.parent)
			}
		}
	}
	t.stack = t.stack[:0]

	if ce := t.logger.Check(zap.DebugLevel, "optimized"); ce != nil {
		ce.Write(zap.Int("passes", passes), zap.Int("visited", visited), zap.Int("rotations", rotations))
	}
	return nil
}

func (t *BVH[T]) enqueue(h Handle) {
	n := t.nodes.at(h)
	if n.queued {
		return
	}
	if len(t.queue) == cap(t.queue) {
		t.dropStale()
		if len(t.queue) == cap(t.queue) {
			violation("optimize queue full with %d live entries", len(t.queue))
		}
	}
	n.queued = true
	t.queue = append(t.queue, h)
}

// dropStale removes queue entries whose nodes were freed.
func (t *BVH[T]) dropStale() {
	t.queue = slices.DeleteFunc(t.queue, func(h Handle) bool {
		return !t.nodes.valid(h)
	})
}

// tryRotate applies the best rotation at branch h, if it is worth it.
// Candidates are scored by how much they change the total surface area of all branches, which for
// a rotation is just the change in area of the one or two child branches that get rebuilt.
func (t *BVH[T]) tryRotate(h Handle) bool {
	n := *t.nodes.at(h)
	l := *t.nodes.at(n.left)
	r := *t.nodes.at(n.right)
	lBranch, rBranch := !l.isLeaf(), !r.isLeaf()
	if !lBranch && !rBranch {
		return false
	}

	saL, saR := l.box.SurfaceArea(), r.box.SurfaceArea()
	current := saL + saR

	var delta [numRotations]float64
	for i := range delta {
		delta[i] = math.Inf(1)
	}
	delta[rotNone] = 0

	var ll, lr, rl, rr Box
	if rBranch {
		rl, rr = t.nodes.at(r.left).box, t.nodes.at(r.right).box
		delta[rotLWithRL] = l.box.Union(rr).SurfaceArea() - saR
		delta[rotLWithRR] = l.box.Union(rl).SurfaceArea() - saR
	}
	if lBranch {
		ll, lr = t.nodes.at(l.left).box, t.nodes.at(l.right).box
		delta[rotRWithLL] = r.box.Union(lr).SurfaceArea() - saL
		delta[rotRWithLR] = r.box.Union(ll).SurfaceArea() - saL
	}
	if lBranch && rBranch {
		delta[rotLLWithRR] = rr.Union(lr).SurfaceArea() + rl.Union(ll).SurfaceArea() - current
		delta[rotLLWithRL] = rl.Union(lr).SurfaceArea() + ll.Union(rr).SurfaceArea() - current
	}

	best := rotNone
	for rot := rotNone + 1; rot < numRotations; rot++ {
		if delta[rot] < delta[best] {
			best = rot
		}
	}
	if best == rotNone || -delta[best] <= RotationThreshold*current {
		return false
	}

	t.applyRotation(h, n, l, r, best)

	if ce := t.logger.Check(zap.DebugLevel, "rotated"); ce != nil {
		ce.Write(zap.Stringer("node", h), zap.Stringer("rotation", best), zap.Float64("gain", -delta[best]))
	}
	return true
}

// applyRotation relinks the two swapped subtrees. n, l and r are copies of h and its children taken before any write.
func (t *BVH[T]) applyRotation(h Handle, n, l, r node, rot rotation) {
	switch rot {
	case rotLWithRL:
		t.setLeft(h, r.left)
		t.setLeft(n.right, n.left)
		t.refitLocal(n.right)
		t.setDepth(r.left, n.depth+1)
		t.setDepth(n.left, n.depth+2)
	case rotLWithRR:
		t.setLeft(h, r.right)
		t.setRight(n.right, n.left)
		t.refitLocal(n.right)
		t.setDepth(r.right, n.depth+1)
		t.setDepth(n.left, n.depth+2)
	case rotRWithLL:
		t.setRight(h, l.left)
		t.setLeft(n.left, n.right)
		t.refitLocal(n.left)
		t.setDepth(l.left, n.depth+1)
		t.setDepth(n.right, n.depth+2)
	case rotRWithLR:
		t.setRight(h, l.right)
		t.setRight(n.left, n.right)
		t.refitLocal(n.left)
		t.setDepth(l.right, n.depth+1)
		t.setDepth(n.right, n.depth+2)
	case rotLLWithRR:
		t.setLeft(n.left, r.right)
		t.setRight(n.right, l.left)
		t.refitLocal(n.left)
		t.refitLocal(n.right)
	case rotLLWithRL:
		t.setLeft(n.left, r.left)
		t.setLeft(n.right, l.left)
		t.refitLocal(n.left)
		t.refitLocal(n.right)
	default:
		violation("unknown rotation %d", rot)
	}
}

func (t *BVH[T]) setLeft(parent, child Handle) {
	t.nodes.at(parent).left = child
	t.nodes.at(child).parent = parent
}

func (t *BVH[T]) setRight(parent, child Handle) {
	t.nodes.at(parent).right = child
	t.nodes.at(child).parent = parent
}
