package dynbvh

import (
	"fmt"

	"github.com/pkg/errors"
)

// Handle refers to a slot in one of the tree's pools.
// The zero Handle is nil. A handle goes stale when its slot is freed, even if the slot is reused later.
type Handle struct {
	slot uint32 // index+1, so that the zero value is nil
	gen  uint32
}

// IsNil is true for the zero Handle.
func (h Handle) IsNil() bool {
	return h.slot == 0
}

func (h Handle) index() int {
	return int(h.slot) - 1
}

func (h Handle) String() string {
	if h.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("%d@%d", h.index(), h.gen)
}

// pool is a fixed-capacity arena of S with a LIFO free list.
// All storage is allocated up front; allocate and free never touch the heap.
type pool[S any] struct {
	name  string
	slots []S
	gens  []uint32
	live  []bool
	free  []uint32 // free slot indices, top of stack at the end
}

func newPool[S any](name string, capacity int) *pool[S] {
	p := &pool[S]{
		name:  name,
		slots: make([]S, capacity),
		gens:  make([]uint32, capacity),
		live:  make([]bool, capacity),
		free:  make([]uint32, capacity),
	}
	// push in reverse so that slot 0 is handed out first
	for i := 0; i < capacity; i++ {
		p.free[i] = uint32(capacity - 1 - i)
	}
	return p
}

func (p *pool[S]) capacity() int {
	return len(p.slots)
}

func (p *pool[S]) available() int {
	return len(p.free)
}

func (p *pool[S]) used() int {
	return len(p.slots) - len(p.free)
}

func (p *pool[S]) allocate() (Handle, error) {
	if len(p.free) == 0 {
		return Handle{}, errors.Wrapf(ErrCapacityExceeded, "%s pool is full (%d slots)", p.name, len(p.slots))
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.live[idx] = true
	return Handle{slot: idx + 1, gen: p.gens[idx]}, nil
}

// release returns h's slot to the free list. The caller must already have cleared the slot's content.
func (p *pool[S]) release(h Handle) {
	if !p.valid(h) {
		violation("%s pool: release of invalid handle %v", p.name, h)
	}
	idx := h.index()
	p.live[idx] = false
	p.gens[idx]++
	p.free = append(p.free, uint32(idx))
}

func (p *pool[S]) valid(h Handle) bool {
	idx := h.index()
	return idx >= 0 && idx < len(p.slots) && p.live[idx] && p.gens[idx] == h.gen
}

// at resolves h to its slot. The pointer stays valid for the pool's lifetime since slots never move.
func (p *pool[S]) at(h Handle) *S {
	if !p.valid(h) {
		violation("%s pool: stale or nil handle %v", p.name, h)
	}
	return &p.slots[h.index()]
}
