// Package storage provides the paged, handle-addressed file substrate that
// backs the disk B-tree's index and data files. It is not aware of B-tree
// semantics: it exposes a byte-addressed, offset-accessed file abstraction
// (Filer) plus three concrete backings (in-memory, os.File-backed, and a
// transactional shadow over either) and one higher-level allocator
// (ValueHeap) for out-of-line values that don't fit in a fixed record slot.
package storage

import "fmt"

// A Filer is a []byte-like model of a file. In contrast to a file stream, a
// Filer is addressed by offset rather than accessed sequentially: ReadAt and
// WriteAt always take an explicit offset and are assumed to behave
// atomically with respect to each other. A Filer is not safe for concurrent
// use — callers (the btree package) serialize access themselves.
//
// BeginUpdate, EndUpdate and Rollback delimit a structural transaction. A
// Filer that does not support rolling back treats them as no-ops; one that
// does (TxFiler) requires every WriteAt/Truncate to happen inside a matching
// BeginUpdate/EndUpdate (or Rollback) pair.
type Filer interface {
	// BeginUpdate opens a transaction. Calls must be balanced by exactly
	// one of EndUpdate or Rollback.
	BeginUpdate() error

	// Close releases the underlying resource. TxFiler rolls back a
	// transaction that is still open before closing.
	Close() error

	// EndUpdate commits the innermost open transaction.
	EndUpdate() error

	// Name identifies the Filer, for logging and error messages.
	Name() string

	// ReadAt reads len(b) bytes starting at off. Short reads past the
	// current size are zero-filled up to Size(); reads entirely past
	// Size() return n == 0.
	ReadAt(b []byte, off int64) (n int, err error)

	// Rollback discards all changes made since the matching BeginUpdate.
	Rollback() error

	// Size reports the current logical size of the Filer.
	Size() int64

	// Truncate changes the logical size.
	Truncate(size int64) error

	// WriteAt writes b at off, growing the Filer if necessary.
	WriteAt(b []byte, off int64) (n int, err error)
}

// InnerFiler is a Filer that rebases every access of an outer Filer by a
// fixed offset, making a sub-region of a larger Filer look like a
// self-contained one. Nothing in this module uses it: the btree package
// reads and writes its control record at offset 0 of the index Filer
// directly.
type InnerFiler struct {
	outer Filer
	off   int64
}

var _ Filer = (*InnerFiler)(nil)

// NewInnerFiler returns an InnerFiler over outer, adding off to every
// access. inner.Size() == outer.Size() - off: the inner Filer pretends the
// first off bytes of outer don't exist.
func NewInnerFiler(outer Filer, off int64) *InnerFiler {
	return &InnerFiler{outer: outer, off: off}
}

func (f *InnerFiler) BeginUpdate() error { return f.outer.BeginUpdate() }
func (f *InnerFiler) Close() error       { return nil } // only the outer Filer may actually close
func (f *InnerFiler) EndUpdate() error   { return f.outer.EndUpdate() }
func (f *InnerFiler) Name() string       { return f.outer.Name() }

func (f *InnerFiler) ReadAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, &ErrINVAL{Src: fmt.Sprintf("%s:ReadAt off", f.outer.Name()), Val: off}
	}
	return f.outer.ReadAt(b, f.off+off)
}

func (f *InnerFiler) Rollback() error { return f.outer.Rollback() }

func (f *InnerFiler) Size() int64 {
	if n := f.outer.Size() - f.off; n > 0 {
		return n
	}
	return 0
}

func (f *InnerFiler) Truncate(size int64) error { return f.outer.Truncate(size + f.off) }

func (f *InnerFiler) WriteAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, &ErrINVAL{Src: fmt.Sprintf("%s:WriteAt off", f.outer.Name()), Val: off}
	}
	return f.outer.WriteAt(b, f.off+off)
}
