package storage

import "fmt"

// ErrINVAL reports an invalid argument to a Filer or ValueHeap method:
// a negative offset, a size that doesn't fit the destination, and so on.
type ErrINVAL struct {
	Src string
	Val any
}

func (e *ErrINVAL) Error() string { return fmt.Sprintf("%s: invalid value %v", e.Src, e.Val) }

// ErrPERM reports a misuse of the transaction protocol: EndUpdate or
// Rollback without a matching BeginUpdate, a nested BeginUpdate, or a write
// or truncate outside of any open transaction on a Filer that requires one.
type ErrPERM struct {
	Src string
}

func (e *ErrPERM) Error() string { return e.Src + ": operation not permitted" }

// ErrIO wraps an I/O failure from the underlying os.File, distinguishing it
// from the structural errors above so callers can tell "your arguments were
// wrong" apart from "the disk failed".
type ErrIO struct {
	Src string
	Err error
}

func (e *ErrIO) Error() string { return fmt.Sprintf("%s: i/o failure: %v", e.Src, e.Err) }
func (e *ErrIO) Unwrap() error { return e.Err }

// ErrCorrupt reports that a block or record read back from storage fails a
// structural check (bad tag, size inconsistent with its own header, free
// list cycle, etc).
type ErrCorrupt struct {
	Src string
}

func (e *ErrCorrupt) Error() string { return e.Src + ": corrupted storage" }
