package storage

import (
	"bytes"
	"fmt"
	"io"

	"github.com/cznic/mathutil"
)

const (
	pgBits = 12
	pgSize = 1 << pgBits
	pgMask = pgSize - 1
)

var zeroPage [pgSize]byte

type memFilerMap map[int64]*[pgSize]byte

// MemFiler is a memory-backed Filer. BeginUpdate/EndUpdate/Rollback are
// no-ops — it has no transactional story of its own; wrap it in a TxFiler
// for that. Used as the default backing for ValueHeap's own tests and for
// exercising the btree package without touching a filesystem.
type MemFiler struct {
	m    memFilerMap
	size int64
}

var _ Filer = (*MemFiler)(nil)

// NewMemFiler returns an empty MemFiler.
func NewMemFiler() *MemFiler { return &MemFiler{m: memFilerMap{}} }

func (f *MemFiler) BeginUpdate() error { return nil }
func (f *MemFiler) Close() error       { return nil }
func (f *MemFiler) EndUpdate() error   { return nil }
func (f *MemFiler) Rollback() error    { return nil }
func (f *MemFiler) Name() string       { return fmt.Sprintf("%p.memfiler", f) }
func (f *MemFiler) Size() int64        { return f.size }

func (f *MemFiler) ReadAt(b []byte, off int64) (n int, err error) {
	avail := f.size - off
	if avail <= 0 {
		return 0, io.EOF
	}
	pgI := off >> pgBits
	pgO := int(off & pgMask)
	rem := len(b)
	if int64(rem) > avail {
		rem = int(avail)
		err = io.EOF
	}
	for rem != 0 && avail > 0 {
		pg := f.m[pgI]
		if pg == nil {
			pg = &zeroPage
		}
		nc := copy(b[:mathutil.Min(rem, pgSize)], pg[pgO:])
		pgI++
		pgO = 0
		rem -= nc
		n += nc
		b = b[nc:]
	}
	return
}

func (f *MemFiler) WriteAt(b []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, &ErrINVAL{Src: f.Name() + ":WriteAt off", Val: off}
	}
	pgI := off >> pgBits
	pgO := int(off & pgMask)
	n = len(b)
	rem := n
	var nc int
	for rem != 0 {
		if pgO == 0 && rem >= pgSize && bytes.Equal(b[:pgSize], zeroPage[:]) {
			delete(f.m, pgI)
			nc = pgSize
		} else {
			pg := f.m[pgI]
			if pg == nil {
				pg = new([pgSize]byte)
				f.m[pgI] = pg
			}
			nc = copy((*pg)[pgO:], b)
		}
		pgI++
		pgO = 0
		rem -= nc
		b = b[nc:]
	}
	f.size = mathutil.MaxInt64(f.size, off+int64(n))
	return
}

func (f *MemFiler) Truncate(size int64) error {
	if size < 0 {
		return &ErrINVAL{Src: f.Name() + ":Truncate size", Val: size}
	}
	if size == 0 {
		f.m = memFilerMap{}
		f.size = 0
		return nil
	}

	first := size >> pgBits
	if size&pgMask != 0 {
		first++
	}
	last := f.size >> pgBits
	if f.size&pgMask != 0 {
		last++
	}
	for ; first < last; first++ {
		delete(f.m, first)
	}
	f.size = size
	return nil
}
