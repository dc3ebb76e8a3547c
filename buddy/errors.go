package buddy

import "fmt"

// ErrBadRequestSize is returned by Allocate when the requested size,
// plus block header overhead, exceeds the arena's total payload.
type ErrBadRequestSize struct {
	Requested int
	Payload   int
}

func (e *ErrBadRequestSize) Error() string {
	return fmt.Sprintf("buddy: requested %d bytes exceeds arena payload of %d bytes", e.Requested, e.Payload)
}

// ErrOutOfMemory is returned by Allocate when no free block of
// sufficient size exists, even though the request itself is satisfiable
// in principle.
type ErrOutOfMemory struct {
	Requested int
}

func (e *ErrOutOfMemory) Error() string {
	return fmt.Sprintf("buddy: no free block available for %d bytes", e.Requested)
}

// ErrForeignPointer is returned by Deallocate when the given slice does
// not point into this arena's payload.
type ErrForeignPointer struct{}

func (e *ErrForeignPointer) Error() string { return "buddy: pointer does not belong to this arena" }

// ErrInvalidState is returned by any operation performed on an arena that
// has already been closed.
type ErrInvalidState struct{}

func (e *ErrInvalidState) Error() string { return "buddy: arena is in an invalid (closed) state" }
