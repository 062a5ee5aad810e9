package dynbvh

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// AddAll sorts items along a Hilbert curve through their centers, then inserts them median first:
// the middle of the curve, then the middles of each half, and so on. Early inserts span the whole
// batch and later ones fill in between them, so Add's cost heuristic never sees a long run of
// neighbours, which would grow the tree into a spine.
// It stops at the first failing Add and returns how many items were inserted before it.
// Unlike Add, AddAll allocates.
func (t *BVH[T]) AddAll(items []T) (int, error) {
	if err := t.checkUsable(); err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	bounds := lo.Reduce(items, func(acc Box, item T, _ int) Box {
		return acc.Union(BoxFromSphere(item.Position(), item.Radius()))
	}, InvertedBox())

	// project onto the two widest axes
	ext := bounds.Max.Sub(bounds.Min)
	axes := []int{0, 1, 2}
	widths := []float64{ext.X, ext.Y, ext.Z}
	sortByKey(widths, axes, 0, 2)
	ax, ay := axes[2], axes[1]
	width := max(axisValue(ext, ax), 1e-12)
	height := max(axisValue(ext, ay), 1e-12)

	ordered := make([]T, len(items))
	copy(ordered, items)
	hilbertValues := make([]uint32, len(ordered))
	hilbertMax := float64((1 << 16) - 1)

	// map item centers into Hilbert coordinate space and calculate Hilbert values
	for i, item := range ordered {
		c := item.Position()
		x := uint32(hilbertMax * (axisValue(c, ax) - axisValue(bounds.Min, ax)) / width)
		y := uint32(hilbertMax * (axisValue(c, ay) - axisValue(bounds.Min, ay)) / height)
		hilbertValues[i] = hilbertXYToIndex(16, x, y)
	}
	sortByKey(hilbertValues, ordered, 0, len(ordered)-1)

	for i, idx := range medianFirst(len(ordered)) {
		if err := t.Add(ordered[idx]); err != nil {
			return i, errors.WithMessagef(err, "batch item %d of %d", i, len(ordered))
		}
	}
	return len(ordered), nil
}

// medianFirst returns the indices 0..n-1 in breadth-first order of the midpoints of a
// recursive halving of [0, n).
func medianFirst(n int) []int {
	type span struct{ lo, hi int } // half-open
	order := make([]int, 0, n)
	queue := make([]span, 0, n)
	queue = append(queue, span{0, n})
	for head := 0; head < len(queue); head++ {
		s := queue[head]
		if s.lo >= s.hi {
			continue
		}
		mid := (s.lo + s.hi) / 2
		order = append(order, mid)
		queue = append(queue, span{s.lo, mid}, span{mid + 1, s.hi})
	}
	return order
}

func hilbertXYToIndex(n uint32, x uint32, y uint32) uint32 {
	x = x << (16 - n)
	y = y << (16 - n)

	var A, B, C, D uint32

	// Initial prefix scan round, prime with x and y
	{
		a := uint32(x ^ y)
		b := uint32(0xFFFF ^ a)
		c := uint32(0xFFFF ^ (x | y))
		d := uint32(x & (y ^ 0xFFFF))

		A = a | (b >> 1)
		B = (a >> 1) ^ a

		C = ((c >> 1) ^ (b & (d >> 1))) ^ c
		D = ((a & (c >> 1)) ^ (d >> 1)) ^ d
	}

	{
		a := A
		b := B
		c := C
		d := D

		A = ((a & (a >> 2)) ^ (b & (b >> 2)))
		B = ((a & (b >> 2)) ^ (b & ((a ^ b) >> 2)))

		C ^= ((a & (c >> 2)) ^ (b & (d >> 2)))
		D ^= ((b & (c >> 2)) ^ ((a ^ b) & (d >> 2)))
	}

	{
		a := A
		b := B
		c := C
		d := D

		A = ((a & (a >> 4)) ^ (b & (b >> 4)))
		B = ((a & (b >> 4)) ^ (b & ((a ^ b) >> 4)))

		C ^= ((a & (c >> 4)) ^ (b & (d >> 4)))
		D ^= ((b & (c >> 4)) ^ ((a ^ b) & (d >> 4)))
	}

	// Final round and projection
	{
		a := A
		b := B
		c := C
		d := D

		C ^= ((a & (c >> 8)) ^ (b & (d >> 8)))
		D ^= ((b & (c >> 8)) ^ ((a ^ b) & (d >> 8)))
	}

	// Undo transformation prefix scan
	a := uint32(C ^ (C >> 1))
	b := uint32(D ^ (D >> 1))

	// Recover index bits
	i0 := uint32(x ^ y)
	i1 := uint32(b | (0xFFFF ^ (i0 | a)))

	return ((interleave(i1) << 1) | interleave(i0)) >> (32 - 2*n)
}

// From https://github.com/rawrunprotected/hilbert_curves (public domain)
func interleave(x uint32) uint32 {
	x = (x | (x << 8)) & 0x00FF00FF
	x = (x | (x << 4)) & 0x0F0F0F0F
	x = (x | (x << 2)) & 0x33333333
	x = (x | (x << 1)) & 0x55555555
	return x
}
