// Package buddy implements a buddy-system memory allocator operating in a
// single arena provisioned from an upstream allocator, grounded on
// original_source/allocator/allocator_buddies_system. Block metadata (an
// exponent byte and an occupied byte) lives inside the managed bytes
// themselves; the arena's own collaborators (upstream
// allocator, logger, fit policy, mutex) are ordinary Go struct fields
// rather than bytes packed into the buffer, since Go has no use for
// reimplementing struct layout by hand the way the original C++ does.
package buddy

import (
	"math/bits"
	"sync"
	"unsafe"

	"github.com/evakaiing/FA-sub001/heap"
	"github.com/evakaiing/FA-sub001/logx"
)

// blockHeaderSize is the number of bytes of metadata prefixed to every
// block: one byte for the size exponent k (the block is 2^k bytes,
// header included), one byte for the occupied flag.
const blockHeaderSize = 2

// Arena owns a single contiguous byte region requested from an upstream
// heap.Allocator and manages it with buddy-system splitting/coalescing.
type Arena struct {
	mu         sync.Mutex
	buf        []byte
	base       unsafe.Pointer
	k          uint8 // log2 of total payload size
	upstream   heap.Allocator
	log        logx.Logger
	fit        FitPolicy
	closed     bool
	generation uint32
}

// BlockInfo describes one block as reported by InspectBlocks.
type BlockInfo struct {
	Size     int
	Occupied bool
}

// New constructs an Arena with a payload of at least size bytes, rounded
// up to the next power of two. Scenario: requesting 100 yields an
// internal K=7 (128-byte payload).
func New(size int, opts ...Option) (*Arena, error) {
	cfg := config{log: logx.Nop{}, fit: FirstFit}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logx.Nop{}
	}
	if cfg.upstream == nil {
		cfg.upstream = heap.NewSystem(cfg.log)
	}

	cfg.log.Debug("buddy.New: begin")

	k := nearestK(size)
	payload := 1 << k
	if payload < blockHeaderSize {
		cfg.log.Error("buddy.New: rounded payload %d smaller than block header %d", payload, blockHeaderSize)
		return nil, &ErrBadRequestSize{Requested: size, Payload: payload}
	}

	buf, err := cfg.upstream.Allocate(payload)
	if err != nil {
		cfg.log.Error("buddy.New: upstream allocation failed: %v", err)
		return nil, err
	}

	a := &Arena{
		buf:      buf,
		base:     unsafe.Pointer(&buf[0]),
		k:        k,
		upstream: cfg.upstream,
		log:      cfg.log,
		fit:      cfg.fit,
	}
	a.buf[0] = k
	a.buf[1] = 0 // free

	cfg.log.Information("Initial memory: %d", payload)
	cfg.log.Debug("buddy.New: end")
	return a, nil
}

// SetFitPolicy changes the policy future allocations are served under.
func (a *Arena) SetFitPolicy(p FitPolicy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fit = p
}

// Generation returns a counter bumped once per successful Allocate or
// Deallocate (after any splits or merges that call made), letting a caller
// detect "has anything changed" without taking a full InspectBlocks
// snapshot.
func (a *Arena) Generation() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generation
}

// Close releases the arena's payload back to its upstream allocator. The
// arena must not be used afterwards.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.log.Debug("buddy.Arena.Close: begin")
	err := a.upstream.Deallocate(a.buf)
	a.log.Information("Free %d bytes", 1<<a.k)
	a.log.Debug("buddy.Arena.Close: end")
	return err
}

// Allocate reserves a block able to hold n bytes and returns a slice over
// it. The slice's capacity may exceed n (it is the full usable size of
// the block chosen for this request) but its length is exactly n.
func (a *Arena) Allocate(n int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, &ErrInvalidState{}
	}

	a.log.Debug("buddy.Arena.Allocate: begin")
	need := nearestK(n + blockHeaderSize)
	if need > a.k {
		a.log.Error("buddy.Arena.Allocate: requested %d bytes exceeds payload", n)
		return nil, &ErrBadRequestSize{Requested: n, Payload: 1 << a.k}
	}

	off, found := a.findFit(need)
	if !found {
		a.log.Error("buddy.Arena.Allocate: out of memory for %d bytes", n)
		return nil, &ErrOutOfMemory{Requested: n}
	}

	for a.buf[off] > need {
		a.split(off)
	}
	a.buf[off] = need
	a.buf[off+1] = 1
	a.generation++

	blockSize := 1 << need
	ptr := unsafe.Add(a.base, off+blockHeaderSize)
	result := unsafe.Slice((*byte)(ptr), blockSize-blockHeaderSize)[:n]

	a.log.Information("Allocate %d bytes", n)
	a.log.Debug("buddy.Arena.Allocate: end")
	return result, nil
}

// findFit walks the arena applying a.fit, returning the offset of a free
// block with exponent >= need.
func (a *Arena) findFit(need uint8) (off int, ok bool) {
	switch a.fit {
	case BestFit:
		bestOff, bestK := -1, uint8(255)
		a.walk(func(o int, k uint8, occupied bool) bool {
			if !occupied && k >= need && k < bestK {
				bestOff, bestK = o, k
				if bestK == need {
					return false
				}
			}
			return true
		})
		if bestOff < 0 {
			return 0, false
		}
		return bestOff, true
	case WorstFit:
		worstOff, worstK := -1, uint8(0)
		first := true
		a.walk(func(o int, k uint8, occupied bool) bool {
			if !occupied && k >= need && (first || k > worstK) {
				worstOff, worstK, first = o, k, false
			}
			return true
		})
		if worstOff < 0 {
			return 0, false
		}
		return worstOff, true
	default: // FirstFit
		found := -1
		a.walk(func(o int, k uint8, occupied bool) bool {
			if !occupied && k >= need {
				found = o
				return false
			}
			return true
		})
		if found < 0 {
			return 0, false
		}
		return found, true
	}
}

// walk invokes fn for every block in ascending address order until fn
// returns false or the arena is exhausted.
func (a *Arena) walk(fn func(off int, k uint8, occupied bool) bool) {
	off := 0
	end := len(a.buf)
	for off < end {
		k := a.buf[off]
		occupied := a.buf[off+1] != 0
		if !fn(off, k, occupied) {
			return
		}
		off += 1 << k
	}
}

// split halves the free block at off, writing two free sibling headers of
// exponent k-1.
func (a *Arena) split(off int) {
	k := a.buf[off]
	newK := k - 1
	half := 1 << newK
	a.buf[off] = newK
	a.buf[off+1] = 0
	a.buf[off+half] = newK
	a.buf[off+half+1] = 0
}

// Deallocate returns a block previously returned by Allocate on this
// arena. p must be exactly the slice Allocate returned (not a re-sliced
// or re-capacity-extended view of it).
func (a *Arena) Deallocate(p []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return &ErrInvalidState{}
	}

	a.log.Debug("buddy.Arena.Deallocate: begin")
	data := unsafe.SliceData(p)
	if data == nil {
		a.log.Trace("buddy.Arena.Deallocate: nil pointer, nothing to do")
		a.log.Debug("buddy.Arena.Deallocate: end")
		return nil
	}

	off := int(uintptr(unsafe.Pointer(data))-uintptr(a.base)) - blockHeaderSize
	if off < 0 || off >= len(a.buf) {
		a.log.Error("buddy.Arena.Deallocate: pointer does not belong to this arena")
		return &ErrForeignPointer{}
	}

	a.buf[off+1] = 0
	a.mergeWithBuddy(off)
	a.generation++

	a.log.Debug("buddy.Arena.Deallocate: end")
	return nil
}

// mergeWithBuddy recursively coalesces the free block at off with its
// buddy, computed by XORing the block's offset within the payload with
// its size, as long as the buddy is itself free and of equal size.
func (a *Arena) mergeWithBuddy(off int) {
	k := a.buf[off]
	if k >= a.k {
		return
	}
	size := 1 << k
	buddyOff := off ^ size
	if buddyOff < 0 || buddyOff >= len(a.buf) {
		return
	}
	buddyK := a.buf[buddyOff]
	buddyOccupied := a.buf[buddyOff+1] != 0
	if buddyOccupied || buddyK != k {
		return
	}

	left := off
	if buddyOff < off {
		left = buddyOff
	}
	a.buf[left] = k + 1
	a.buf[left+1] = 0
	a.mergeWithBuddy(left)
}

// InspectBlocks returns a snapshot, in arena traversal order, of every
// block's size and occupancy.
func (a *Arena) InspectBlocks() []BlockInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []BlockInfo
	a.walk(func(off int, k uint8, occupied bool) bool {
		out = append(out, BlockInfo{Size: 1 << k, Occupied: occupied})
		return true
	})
	return out
}

// nearestK returns the smallest k such that 1<<k >= n (0 for n <= 1).
func nearestK(n int) uint8 {
	if n <= 1 {
		return 0
	}
	return uint8(bits.Len(uint(n - 1)))
}
