package dynbvh

// Package dynbvh is a dynamic bounding volume hierarchy over spheres.
// Items are inserted and removed one at a time, moved items are refit in place,
// and Optimize improves the tree shape with local rotations instead of rebuilding it.
// All storage lives in fixed-size pools that are allocated once, in New.

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Item is anything with a bounding sphere. Identity is Go equality, so items that move are usually pointers.
type Item interface {
	comparable
	Position() r3.Vector
	Radius() float64
}

const (
	// MergeDiscount weighs the merge-and-pushdown cost against descending into a child during Add.
	// Pushdown is only chosen when it is much cheaper, since it deepens the whole subtree.
	MergeDiscount = 0.3

	// RotationThreshold is the minimum relative surface area gain for Optimize to apply a rotation.
	RotationThreshold = 0.1
)

type node struct {
	box    Box
	depth  int
	bucket Handle // nil for branches
	parent Handle
	left   Handle
	right  Handle
	queued bool // present in the optimize queue
}

func (n *node) isLeaf() bool {
	return !n.bucket.IsNil()
}

type bucket[T Item] struct {
	items []T
}

// BVH is a dynamic bounding volume hierarchy. It is not safe for concurrent use, including concurrent queries.
// Queries share one scratch stack, so a Predicate must not call back into the tree it is traversing.
type BVH[T Item] struct {
	cfg    Config
	logger *zap.Logger

	nodes   *pool[node]
	buckets *pool[bucket[T]]
	leaves  map[T]Handle // item identity -> owning leaf
	root    Handle
	count   int

	queue []Handle // nodes awaiting Optimize, deduplicated by node.queued

	// scratch space, sized in New so that mutations and queries don't allocate
	splitItems []T
	splitKeys  []float64
	stack      []Handle

	disposed bool
}

// New creates an empty tree: a single leaf with an empty bucket.
func New[T Item](cfg Config) (*BVH[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &BVH[T]{
		cfg:        cfg,
		logger:     logger.Named("dynbvh"),
		nodes:      newPool[node]("node", cfg.MaxNodes),
		buckets:    newPool[bucket[T]]("bucket", cfg.MaxBuckets),
		leaves:     make(map[T]Handle, cfg.MaxBuckets*cfg.MaxItemsPerLeaf),
		queue:      make([]Handle, 0, cfg.MaxNodes),
		splitItems: make([]T, 0, cfg.MaxItemsPerLeaf+1),
		splitKeys:  make([]float64, 0, cfg.MaxItemsPerLeaf+1),
		stack:      make([]Handle, 0, cfg.MaxNodes),
	}
	for i := range t.buckets.slots {
		t.buckets.slots[i].items = make([]T, 0, cfg.MaxItemsPerBucket)
	}

	var err error
	if t.root, err = t.newLeaf(); err != nil {
		return nil, err
	}
	return t, nil
}

// Dispose releases all storage at once. Every later call returns ErrDisposed.
func (t *BVH[T]) Dispose() {
	if t.disposed {
		return
	}
	t.logger.Debug("disposing", zap.Int("items", t.count), zap.Int("nodes", t.nodes.used()))
	t.nodes = nil
	t.buckets = nil
	t.leaves = nil
	t.queue = nil
	t.splitItems = nil
	t.splitKeys = nil
	t.stack = nil
	t.root = Handle{}
	t.count = 0
	t.disposed = true
}

// Config returns the construction parameters.
func (t *BVH[T]) Config() Config {
	return t.cfg
}

// Len is the number of stored items.
func (t *BVH[T]) Len() int {
	return t.count
}

// Root returns the handle of the root node.
func (t *BVH[T]) Root() Handle {
	return t.root
}

// Bounds is the box around every stored item. An empty tree has an inverted box.
func (t *BVH[T]) Bounds() Box {
	if t.disposed {
		return InvertedBox()
	}
	return t.nodes.at(t.root).box
}

// FreeNodes is the number of unused node slots.
func (t *BVH[T]) FreeNodes() int {
	if t.disposed {
		return 0
	}
	return t.nodes.available()
}

// FreeBuckets is the number of unused bucket slots.
func (t *BVH[T]) FreeBuckets() int {
	if t.disposed {
		return 0
	}
	return t.buckets.available()
}

// TryGetLeaf returns the leaf that holds item.
func (t *BVH[T]) TryGetLeaf(item T) (Handle, bool) {
	h, ok := t.leaves[item]
	return h, ok
}

// Contains is true if item is stored in the tree.
func (t *BVH[T]) Contains(item T) bool {
	_, ok := t.leaves[item]
	return ok
}

func (t *BVH[T]) mapLeaf(item T, leaf Handle) {
	t.leaves[item] = leaf
}

func (t *BVH[T]) unmapLeaf(item T) error {
	if _, ok := t.leaves[item]; !ok {
		return errors.Wrapf(ErrItemNotFound, "unmap %v", item)
	}
	delete(t.leaves, item)
	return nil
}

// newLeaf allocates a node and a bucket for it. The caller checks capacity first when atomicity matters.
func (t *BVH[T]) newLeaf() (Handle, error) {
	if t.nodes.available() < 1 || t.buckets.available() < 1 {
		return Handle{}, t.capacityError(1, 1)
	}
	h, _ := t.nodes.allocate()
	b, _ := t.buckets.allocate()
	*t.nodes.at(h) = node{box: InvertedBox(), bucket: b}
	return h, nil
}

func (t *BVH[T]) newBranch() Handle {
	h, err := t.nodes.allocate()
	if err != nil {
		violation("branch allocation after capacity check: %v", err)
	}
	*t.nodes.at(h) = node{box: InvertedBox()}
	return h
}

// freeNode returns a node, and its bucket if it is a leaf, to the pools.
func (t *BVH[T]) freeNode(h Handle) {
	n := t.nodes.at(h)
	if n.isLeaf() {
		b := t.buckets.at(n.bucket)
		clear(b.items)
		b.items = b.items[:0]
		t.buckets.release(n.bucket)
	}
	*n = node{}
	t.nodes.release(h)
}

// ensureCapacity fails with ErrCapacityExceeded unless the pools can supply the given slots.
func (t *BVH[T]) ensureCapacity(nodes, buckets int) error {
	if t.nodes.available() < nodes || t.buckets.available() < buckets {
		return t.capacityError(nodes, buckets)
	}
	return nil
}

func (t *BVH[T]) capacityError(nodes, buckets int) error {
	err := errors.Wrapf(ErrCapacityExceeded, "need %d node(s) and %d bucket(s), have %d and %d free",
		nodes, buckets, t.nodes.available(), t.buckets.available())
	t.logger.Warn("pool exhausted",
		zap.Int("maxNodes", t.cfg.MaxNodes),
		zap.Int("maxBuckets", t.cfg.MaxBuckets),
		zap.Int("items", t.count))
	return err
}

func (t *BVH[T]) sibling(h Handle) Handle {
	p := t.nodes.at(t.nodes.at(h).parent)
	if p.left == h {
		return p.right
	}
	return p.left
}

// setDepth writes depth to h and the matching depths to everything below it.
func (t *BVH[T]) setDepth(h Handle, depth int) {
	n := t.nodes.at(h)
	n.depth = depth
	if !n.isLeaf() {
		t.setDepth(n.left, depth+1)
		t.setDepth(n.right, depth+1)
	}
}

func (t *BVH[T]) checkUsable() error {
	if t.disposed {
		return ErrDisposed
	}
	return nil
}
