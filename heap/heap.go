// Package heap provides the upstream allocator contract that a buddy
// arena provisions its backing storage from, mirroring the parent
// allocator collaborator of the original allocator_global_heap type.
package heap

import (
	"fmt"

	"github.com/evakaiing/FA-sub001/logx"
)

// Allocator is anything that can hand out and take back byte slices. The
// buddy package depends only on this interface, not on any concrete
// allocator, so an arena's backing storage can be swapped for a test
// double or another allocator implementation without touching buddy.
type Allocator interface {
	Allocate(n int) ([]byte, error)
	Deallocate(b []byte) error
}

// System is an Allocator backed directly by the Go runtime's heap. Go has
// no explicit free, so Deallocate is a documented no-op: it only
// validates that b was actually produced by this allocator, matching the
// thin-wrapper framing of the original global-heap allocator (whose
// do_deallocate_sm also did nothing beyond bookkeeping once ::operator
// delete returned).
type System struct {
	log    logx.Logger
	issued map[*byte]int
}

// NewSystem returns a System that logs through log (logx.Nop{} if nil).
func NewSystem(log logx.Logger) *System {
	if log == nil {
		log = logx.Nop{}
	}
	return &System{log: log, issued: map[*byte]int{}}
}

var _ Allocator = (*System)(nil)

// Allocate returns a freshly zeroed slice of length n.
func (s *System) Allocate(n int) ([]byte, error) {
	s.log.Debug("heap.System.Allocate: begin")
	if n < 0 {
		s.log.Error("heap.System.Allocate: negative size %d", n)
		return nil, fmt.Errorf("heap: negative allocation size %d", n)
	}
	b := make([]byte, n)
	if n > 0 {
		s.issued[&b[0]] = n
	}
	s.log.Trace("heap.System.Allocate: issued %d bytes", n)
	s.log.Debug("heap.System.Allocate: end")
	return b, nil
}

// Deallocate validates that b was returned by Allocate on this System and
// forgets it. It does not release memory itself; the garbage collector
// does that once the last reference to b is gone.
func (s *System) Deallocate(b []byte) error {
	s.log.Debug("heap.System.Deallocate: begin")
	if len(b) == 0 {
		s.log.Trace("heap.System.Deallocate: empty slice, nothing to do")
		s.log.Debug("heap.System.Deallocate: end")
		return nil
	}
	if _, ok := s.issued[&b[0]]; !ok {
		s.log.Error("heap.System.Deallocate: slice not issued by this allocator")
		return fmt.Errorf("heap: slice was not allocated by this System")
	}
	delete(s.issued, &b[0])
	s.log.Debug("heap.System.Deallocate: end")
	return nil
}
