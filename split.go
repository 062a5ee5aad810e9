package dynbvh

import (
	"math"

	"go.uber.org/zap"
)

// splitNode turns the full leaf h into a branch over two leaves holding its items plus extra.
// The items are ordered along whichever axis gives the lowest count-weighted surface area
// when cut at the median. The caller has checked that 2 nodes and 1 bucket are free.
func (t *BVH[T]) splitNode(h Handle, extra T) {
	n := t.nodes.at(h)
	b := t.buckets.at(n.bucket)

	items := append(t.splitItems[:0], b.items...)
	items = append(items, extra)
	for _, item := range b.items {
		if err := t.unmapLeaf(item); err != nil {
			violation("split: %v", err)
		}
	}
	mid := len(items) / 2

	bestAxis, bestCost := 0, math.Inf(1)
	for axis := 0; axis < 3; axis++ {
		if cost := t.splitCost(items, axis, mid); cost < bestCost {
			bestAxis, bestCost = axis, cost
		}
	}
	if bestAxis != 2 {
		// the last axis tried leaves the items in Z order
		t.sortAlongAxis(items, bestAxis)
	}

	left := t.newBranch()
	right, err := t.newLeaf()
	if err != nil {
		violation("leaf allocation after capacity check: %v", err)
	}

	// the left child takes over the bucket of the node being split
	ln := t.nodes.at(left)
	ln.bucket = n.bucket
	n.bucket = Handle{}
	n.left, n.right = left, right
	t.fillLeaf(left, h, n.depth+1, items[:mid])
	t.fillLeaf(right, h, n.depth+1, items[mid:])

	clear(t.splitItems[:cap(t.splitItems)])
	t.refitVolume(h)

	if ce := t.logger.Check(zap.DebugLevel, "split leaf"); ce != nil {
		ce.Write(zap.Stringer("node", h), zap.Int("axis", bestAxis), zap.Int("items", len(items)), zap.Float64("cost", bestCost))
	}
}

func (t *BVH[T]) fillLeaf(h, parent Handle, depth int, items []T) {
	n := t.nodes.at(h)
	n.parent = parent
	n.depth = depth
	b := t.buckets.at(n.bucket)
	clear(b.items)
	b.items = append(b.items[:0], items...)
	for _, item := range items {
		t.mapLeaf(item, h)
	}
	n.box = t.computeBox(n)
}

// splitCost sorts items along axis and scores the median cut as SA(left)·|left| + SA(right)·|right|.
func (t *BVH[T]) splitCost(items []T, axis, mid int) float64 {
	t.sortAlongAxis(items, axis)
	left, right := InvertedBox(), InvertedBox()
	for i, item := range items {
		box := BoxFromSphere(item.Position(), item.Radius())
		if i < mid {
			left = left.Union(box)
		} else {
			right = right.Union(box)
		}
	}
	return left.SurfaceArea()*float64(mid) + right.SurfaceArea()*float64(len(items)-mid)
}

func (t *BVH[T]) sortAlongAxis(items []T, axis int) {
	keys := t.splitKeys[:len(items)]
	for i, item := range items {
		keys[i] = axisValue(item.Position(), axis)
	}
	sortByKey(keys, items, 0, len(items)-1)
}

// custom quicksort that sorts values alongside their keys, without allocating
func sortByKey[K float64 | uint32, V any](keys []K, values []V, left, right int) {
	if left >= right {
		return
	}

	pivot := keys[(left+right)>>1]
	i := left - 1
	j := right + 1

	for {
		i++
		for keys[i] < pivot {
			i++
		}
		j--
		for keys[j] > pivot {
			j--
		}
		if i >= j {
			break
		}
		keys[i], keys[j] = keys[j], keys[i]
		values[i], values[j] = values[j], values[i]
	}

	sortByKey(keys, values, left, j)
	sortByKey(keys, values, j+1, right)
}
