package btree

import "fmt"

// ErrConfig is returned by Open when a required Option is missing or a
// supplied one is out of range (no comparator, no codec, t < 2).
type ErrConfig struct {
	Msg string
}

func (e *ErrConfig) Error() string { return "btree: " + e.Msg }

// ErrClosed is returned by any operation invoked on a Tree after Close.
type ErrClosed struct{}

func (e *ErrClosed) Error() string { return "btree: tree is closed" }

// ErrInvalidIterator is returned by Iterator.Key/Value when called on the
// end sentinel, which designates no position.
type ErrInvalidIterator struct{}

func (e *ErrInvalidIterator) Error() string { return "btree: iterator does not refer to a key" }

// errf wraps a lower-layer error with the operation it occurred under, in
// the style of storage.ErrIO's Src/Unwrap pairing.
type errf struct {
	op  string
	err error
}

func (e *errf) Error() string { return fmt.Sprintf("btree: %s: %v", e.op, e.err) }
func (e *errf) Unwrap() error { return e.err }
