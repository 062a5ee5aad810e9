package dynbvh

// computeBox recomputes a node's box from its own content without writing it.
func (t *BVH[T]) computeBox(n *node) Box {
	if !n.isLeaf() {
		return t.nodes.at(n.left).box.Union(t.nodes.at(n.right).box)
	}
	box := InvertedBox()
	for _, item := range t.buckets.at(n.bucket).items {
		box = box.Union(BoxFromSphere(item.Position(), item.Radius()))
	}
	return box
}

// refitVolume recomputes h's box and keeps going up while boxes change.
// It stops at the first ancestor whose box is already correct, so it runs at most tree-height steps.
// Returns true if h's own box changed.
func (t *BVH[T]) refitVolume(h Handle) bool {
	changed := false
	for cur := h; !cur.IsNil(); {
		n := t.nodes.at(cur)
		box := t.computeBox(n)
		if box == n.box {
			break
		}
		n.box = box
		if cur == h {
			changed = true
		}
		cur = n.parent
	}
	return changed
}

// refitLocal recomputes h's box without touching its ancestors.
func (t *BVH[T]) refitLocal(h Handle) {
	n := t.nodes.at(h)
	n.box = t.computeBox(n)
}
