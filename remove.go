package dynbvh

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Remove deletes item from the tree. A leaf left empty is collapsed into its sibling,
// except for the root, which stays behind as an empty leaf.
func (t *BVH[T]) Remove(item T) error {
	if err := t.checkUsable(); err != nil {
		return err
	}
	h, ok := t.leaves[item]
	if !ok {
		return errors.Wrapf(ErrItemNotFound, "remove %v", item)
	}
	if err := t.unmapLeaf(item); err != nil {
		return err
	}

	n := t.nodes.at(h)
	b := t.buckets.at(n.bucket)
	idx := -1
	for i := range b.items {
		if b.items[i] == item {
			idx = i
			break
		}
	}
	if idx < 0 {
		violation("item %v mapped to leaf %v but not in its bucket", item, h)
	}
	last := len(b.items) - 1
	copy(b.items[idx:], b.items[idx+1:])
	var zero T
	b.items[last] = zero
	b.items = b.items[:last]
	t.count--

	if len(b.items) > 0 || h == t.root {
		t.refitVolume(h)
		return nil
	}
	t.collapse(h)
	return nil
}

// collapse removes the empty leaf h together with its parent branch. The sibling takes the parent's place.
//
//	    gp              gp
//	    |               |
//	    p       =>     sib
//	   / \
//	  h   sib
func (t *BVH[T]) collapse(h Handle) {
	p := t.nodes.at(h).parent
	sib := t.sibling(h)
	pn := t.nodes.at(p)
	gp := pn.parent
	depth := pn.depth

	if gp.IsNil() {
		t.root = sib
	} else {
		g := t.nodes.at(gp)
		if g.left == p {
			g.left = sib
		} else {
			g.right = sib
		}
	}
	t.nodes.at(sib).parent = gp
	t.setDepth(sib, depth)

	t.freeNode(h)
	t.freeNode(p)

	if !gp.IsNil() {
		t.refitVolume(gp)
	}

	if ce := t.logger.Check(zap.DebugLevel, "collapse"); ce != nil {
		ce.Write(zap.Stringer("promoted", sib), zap.Int("depth", depth))
	}
}
