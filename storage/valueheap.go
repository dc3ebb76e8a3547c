package storage

import (
	"encoding/binary"

	"github.com/golang/snappy"
)

// ValueHeap is an atom/handle-addressed allocator over a Filer, used for
// the B-tree's P.data file to hold values too large to inline in a fixed
// node-record slot. It is a simplified descendant of cznic-exp/lldb's
// Allocator/FLT: the same head-tagged, atom-granular block layout and
// free-list reuse, with block relocation and the pluggable free-list-table
// abstraction dropped (see DESIGN.md) in favor of one singly-bucketed,
// doubly linked free list searched first-fit.
//
// Blocks are multiples of atomSize (16) bytes, addressed by a handle that
// is the 1-based atom index of the block (handle 0 means "no block").
// A used block's first atom holds a 1-byte tag, a 4-byte content length
// and the 4-byte block size in atoms, followed by the (optionally
// Snappy-compressed) content and zero padding to an atom boundary. Every
// block, used or free, is at least two atoms. A free block's first atom
// holds tag, size-in-atoms, and the doubly linked free-list pointers (all
// as uint32 atom indices); the last five bytes of the block repeat tag and
// size as a footer, which lets release walk backward from end of file
// without a full linear scan from the start, mirroring the "head tag /
// tail tag" scheme of cznic-exp/lldb/falloc.go.
type ValueHeap struct {
	f Filer

	// CompressThreshold is the minimum content length, in bytes, above
	// which Alloc attempts Snappy compression; 0 disables compression.
	CompressThreshold int
}

const (
	atomSize = 16

	tagUsed        byte = 0x00
	tagUsedSnappy  byte = 0x01
	tagFree        byte = 0xff
	usedHeaderSize      = 1 + 4 + 4 // tag + content length + block size in atoms
	freeHeaderSize      = 1 + 4 + 4 + 4
	freeFooterSize      = 1 + 4
	minFreeAtoms        = 2
)

// heapHeaderSize reserves atom 0 for the free-list head; real blocks start
// at atom 1 so handle 0 can mean "nil".
const heapHeaderSize = atomSize

// NewValueHeap opens (or creates, if empty) a ValueHeap backed by f.
func NewValueHeap(f Filer) (*ValueHeap, error) {
	if f.Size() < heapHeaderSize {
		if err := f.Truncate(heapHeaderSize); err != nil {
			return nil, err
		}
	}
	return &ValueHeap{f: f}, nil
}

func (h *ValueHeap) freeHead() uint32 {
	var b [4]byte
	h.f.ReadAt(b[:], 0)
	return binary.BigEndian.Uint32(b[:])
}

func (h *ValueHeap) setFreeHead(a uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], a)
	_, err := h.f.WriteAt(b[:], 0)
	return err
}

func atomOffset(atom uint32) int64 { return int64(atom) * atomSize }

// Alloc stores data and returns a handle usable with Get and Free.
func (h *ValueHeap) Alloc(data []byte) (int64, error) {
	content := data
	tag := tagUsed
	if h.CompressThreshold > 0 && len(data) >= h.CompressThreshold {
		c := snappy.Encode(nil, data)
		if len(c) < len(data) {
			content = c
			tag = tagUsedSnappy
		}
	}

	need := atomsFor(usedHeaderSize + len(content))
	if need < minFreeAtoms {
		need = minFreeAtoms
	}
	atom, blockSize, err := h.findFree(need)
	if err != nil {
		return 0, err
	}
	if atom == 0 {
		// Grow the file.
		sz := h.f.Size()
		atom = uint32(sz / atomSize)
		blockSize = need
		if err := h.f.Truncate(sz + int64(need)*atomSize); err != nil {
			return 0, err
		}
	}

	// Zero the whole block before writing the header: a block taken from
	// the free list may be larger than usedHeaderSize+len(content) (an
	// unsplittable remainder was absorbed into it), and without this its
	// tail would still carry the old free-block footer, which a later
	// Free of the block that follows could mistake for this block's.
	buf := make([]byte, int(blockSize)*atomSize)
	buf[0] = tag
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(content)))
	binary.BigEndian.PutUint32(buf[5:9], blockSize)
	copy(buf[9:], content)
	if _, err := h.f.WriteAt(buf, atomOffset(atom)); err != nil {
		return 0, err
	}
	return int64(atom), nil
}

// Get returns the value stored under handle.
func (h *ValueHeap) Get(handle int64) ([]byte, error) {
	if handle <= 0 {
		return nil, &ErrINVAL{Src: "ValueHeap.Get handle", Val: handle}
	}
	atom := uint32(handle)
	var hdr [usedHeaderSize]byte
	if _, err := h.f.ReadAt(hdr[:], atomOffset(atom)); err != nil {
		return nil, err
	}
	tag := hdr[0]
	if tag != tagUsed && tag != tagUsedSnappy {
		return nil, &ErrCorrupt{Src: "ValueHeap.Get: not a used block"}
	}
	n := binary.BigEndian.Uint32(hdr[1:5])
	content := make([]byte, n)
	if _, err := h.f.ReadAt(content, atomOffset(atom)+usedHeaderSize); err != nil {
		return nil, err
	}
	if tag == tagUsedSnappy {
		return snappy.Decode(nil, content)
	}
	return content, nil
}

// Free releases the block referenced by handle. handle must not be reused
// afterwards.
func (h *ValueHeap) Free(handle int64) error {
	if handle <= 0 {
		return &ErrINVAL{Src: "ValueHeap.Free handle", Val: handle}
	}
	atom := uint32(handle)
	var hdr [usedHeaderSize]byte
	if _, err := h.f.ReadAt(hdr[:], atomOffset(atom)); err != nil {
		return err
	}
	if hdr[0] != tagUsed && hdr[0] != tagUsedSnappy {
		return &ErrCorrupt{Src: "ValueHeap.Free: not a used block"}
	}
	size := binary.BigEndian.Uint32(hdr[5:9])
	return h.release(atom, size)
}

// release marks the block [atom, atom+size) free, coalescing forward with
// the free blocks that follow it. If the resulting free run reaches end of
// file it is truncated away instead, and the free blocks immediately
// before it are absorbed and truncated too — so a sequence of Allocs/Frees
// that empties the heap also shrinks the file back to heapHeaderSize. A
// block freed away from end of file is not merged with a free block that
// precedes it.
func (h *ValueHeap) release(atom, size uint32) error {
	// Forward coalesce: if the block immediately following is free,
	// absorb it (after unlinking it from the free list).
	for {
		next := atom + size
		if atomOffset(next) >= h.f.Size() {
			break
		}
		fsize, ok, err := h.peekFree(next)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := h.unlink(next); err != nil {
			return err
		}
		size += fsize
	}

	// If the merged block now ends the file, discard it by truncation
	// instead of registering it, then walk backward absorbing any
	// run of free blocks that newly became the tail.
	for {
		if atomOffset(atom+size) == h.f.Size() {
			if err := h.f.Truncate(atomOffset(atom)); err != nil {
				return err
			}
			if atom <= 1 {
				return nil
			}
			prevAtom, prevSize, ok, err := h.peekFooter(atom)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if err := h.unlink(prevAtom); err != nil {
				return err
			}
			atom, size = prevAtom, prevSize
			continue
		}
		break
	}

	return h.linkFree(atom, size)
}

// peekFree reports whether the block at atom is currently free, and its
// size in atoms.
func (h *ValueHeap) peekFree(atom uint32) (size uint32, ok bool, err error) {
	var hdr [freeHeaderSize]byte
	if _, err = h.f.ReadAt(hdr[:], atomOffset(atom)); err != nil {
		return 0, false, err
	}
	if hdr[0] != tagFree {
		return 0, false, nil
	}
	return binary.BigEndian.Uint32(hdr[1:5]), true, nil
}

// peekFooter reads the footer that should immediately precede atom,
// reporting the preceding free block's start atom and size if present.
func (h *ValueHeap) peekFooter(atom uint32) (prevAtom, size uint32, ok bool, err error) {
	off := atomOffset(atom) - freeFooterSize
	if off < heapHeaderSize {
		return 0, 0, false, nil
	}
	var ft [freeFooterSize]byte
	if _, err = h.f.ReadAt(ft[:], off); err != nil {
		return 0, 0, false, err
	}
	if ft[0] != tagFree {
		return 0, 0, false, nil
	}
	size = binary.BigEndian.Uint32(ft[1:5])
	start := atom - size
	head, ok2, err := h.peekFree(start)
	if err != nil || !ok2 || head != size {
		return 0, 0, false, err
	}
	return start, size, true, nil
}

// findFree pops the first free block with at least `need` atoms off the
// free list, splitting off and re-linking any remainder of >= minFreeAtoms
// atoms. Returns atom == 0 if nothing suitable is free; otherwise blockSize
// is the full size, in atoms, the caller must record in the used block's
// own header (it may exceed need if a too-small remainder was absorbed).
func (h *ValueHeap) findFree(need uint32) (atom uint32, blockSize uint32, err error) {
	cur := h.freeHead()
	for cur != 0 {
		size, ok, perr := h.peekFree(cur)
		if perr != nil {
			return 0, 0, perr
		}
		if !ok {
			return 0, 0, &ErrCorrupt{Src: "ValueHeap: free list entry not tagged free"}
		}
		if size >= need {
			if err := h.unlink(cur); err != nil {
				return 0, 0, err
			}
			rem := size - need
			if rem >= minFreeAtoms {
				if err := h.linkFree(cur+need, rem); err != nil {
					return 0, 0, err
				}
				return cur, need, nil
			}
			// Remainder too small to stand alone as a free block;
			// hand the whole thing to the caller.
			return cur, size, nil
		}
		_, _, next, lerr := h.freeLinks(cur)
		if lerr != nil {
			return 0, 0, lerr
		}
		cur = next
	}
	return 0, 0, nil
}

func (h *ValueHeap) freeLinks(atom uint32) (size, prev, next uint32, err error) {
	var hdr [freeHeaderSize]byte
	if _, err = h.f.ReadAt(hdr[:], atomOffset(atom)); err != nil {
		return
	}
	size = binary.BigEndian.Uint32(hdr[1:5])
	prev = binary.BigEndian.Uint32(hdr[5:9])
	next = binary.BigEndian.Uint32(hdr[9:13])
	return
}

// linkFree writes a free block header+footer covering [atom, atom+size)
// and pushes it onto the head of the free list.
func (h *ValueHeap) linkFree(atom, size uint32) error {
	oldHead := h.freeHead()
	var hdr [freeHeaderSize]byte
	hdr[0] = tagFree
	binary.BigEndian.PutUint32(hdr[1:5], size)
	binary.BigEndian.PutUint32(hdr[5:9], 0)
	binary.BigEndian.PutUint32(hdr[9:13], oldHead)
	if _, err := h.f.WriteAt(hdr[:], atomOffset(atom)); err != nil {
		return err
	}
	if oldHead != 0 {
		if err := h.setFreePrev(oldHead, atom); err != nil {
			return err
		}
	}
	var ft [freeFooterSize]byte
	ft[0] = tagFree
	binary.BigEndian.PutUint32(ft[1:5], size)
	if _, err := h.f.WriteAt(ft[:], atomOffset(atom+size)-freeFooterSize); err != nil {
		return err
	}
	return h.setFreeHead(atom)
}

func (h *ValueHeap) setFreePrev(atom, prev uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], prev)
	_, err := h.f.WriteAt(b[:], atomOffset(atom)+5)
	return err
}

func (h *ValueHeap) setFreeNext(atom, next uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], next)
	_, err := h.f.WriteAt(b[:], atomOffset(atom)+9)
	return err
}

// unlink removes atom from the free list. Caller must already know it is
// free (peekFree/findFree).
func (h *ValueHeap) unlink(atom uint32) error {
	_, prev, next, err := h.freeLinks(atom)
	if err != nil {
		return err
	}
	if prev == 0 {
		if err := h.setFreeHead(next); err != nil {
			return err
		}
	} else if err := h.setFreeNext(prev, next); err != nil {
		return err
	}
	if next != 0 {
		if err := h.setFreePrev(next, prev); err != nil {
			return err
		}
	}
	return nil
}

// Size reports the current logical size of the backing Filer, in bytes.
func (h *ValueHeap) Size() int64 { return h.f.Size() }

func atomsFor(bytes int) uint32 {
	return uint32((bytes + atomSize - 1) / atomSize)
}
