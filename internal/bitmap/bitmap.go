// Package bitmap implements the fixed-range id allocators backing IPCP ids
// (0-255), port ids and CEP ids (0-65535 each): "find first zero bit,
// set it, hand back its index."
package bitmap

import (
	"sync"

	coreerr "github.com/dif-systems/rina-core/errors"
)

// Allocator hands out integer ids in [0, size) on a first-fit basis.
type Allocator struct {
	mu   sync.Mutex
	bits []uint64
	size int
}

// New creates an Allocator over the id range [0, size).
func New(size int) *Allocator {
	words := (size + 63) / 64
	return &Allocator{bits: make([]uint64, words), size: size}
}

// Alloc finds the lowest-indexed unset bit, sets it, and returns its index.
// Returns a NoSpace error when every id in range is in use.
func (a *Allocator) Alloc() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	nwords := len(a.bits)
	for w := 0; w < nwords; w++ {
		if a.bits[w] == ^uint64(0) {
			continue
		}
		for b := 0; b < 64; b++ {
			id := w*64 + b
			if id >= a.size {
				break
			}
			if a.bits[w]&(1<<uint(b)) == 0 {
				a.bits[w] |= 1 << uint(b)
				return id, nil
			}
		}
	}
	return 0, coreerr.New("bitmap.Alloc", coreerr.NoSpace, "id range exhausted")
}

// Reserve marks id as in-use without going through Alloc's first-fit scan,
// used to stake out well-known ids before general allocation begins.
func (a *Allocator) Reserve(id int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id < 0 || id >= a.size {
		return coreerr.New("bitmap.Reserve", coreerr.Invalid, "id out of range")
	}
	w, b := id/64, id%64
	if a.bits[w]&(1<<uint(b)) != 0 {
		return coreerr.New("bitmap.Reserve", coreerr.Busy, "id already in use")
	}
	a.bits[w] |= 1 << uint(b)
	return nil
}

// Free clears id's bit, making it available for reuse. Freeing an id that
// is not currently allocated is a no-op.
func (a *Allocator) Free(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id < 0 || id >= a.size {
		return
	}
	w, b := id/64, id%64
	a.bits[w] &^= 1 << uint(b)
}

// InUse reports whether id is currently allocated.
func (a *Allocator) InUse(id int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id < 0 || id >= a.size {
		return false
	}
	w, b := id/64, id%64
	return a.bits[w]&(1<<uint(b)) != 0
}

// Count returns the number of ids currently allocated.
func (a *Allocator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, w := range a.bits {
		for w != 0 {
			n++
			w &= w - 1
		}
	}
	return n
}
