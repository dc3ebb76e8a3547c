package buddy

import (
	"github.com/evakaiing/FA-sub001/heap"
	"github.com/evakaiing/FA-sub001/logx"
)

// FitPolicy selects which free block a walk over the arena commits to
// once it has found at least one candidate of sufficient size.
type FitPolicy int

const (
	// FirstFit commits to the first free block encountered whose size is
	// at least the requested exponent.
	FirstFit FitPolicy = iota
	// BestFit scans the whole arena and commits to the smallest free
	// block that still satisfies the request, stopping early on an exact
	// match.
	BestFit
	// WorstFit scans the whole arena and commits to the largest free
	// block that satisfies the request.
	WorstFit
)

type config struct {
	upstream heap.Allocator
	log      logx.Logger
	fit      FitPolicy
}

// Option amends the construction of an Arena. The zero value of config
// (system heap, no-op logger, first-fit) matches New's behavior when no
// options are given, mirroring cznic-exp/dbm's Options pattern adapted to
// functional options instead of a struct literal, since New takes a size
// argument the struct-literal form would have to carry too.
type Option func(*config)

// WithUpstream supplies the allocator the arena requests its backing
// payload from. If omitted, New uses heap.NewSystem(logger).
func WithUpstream(a heap.Allocator) Option {
	return func(c *config) { c.upstream = a }
}

// WithLogger supplies the Logger the arena reports lifecycle and error
// events to. If omitted, the arena logs nowhere (logx.Nop{}).
func WithLogger(l logx.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithFitPolicy sets the initial fit policy. The default is FirstFit.
func WithFitPolicy(p FitPolicy) Option {
	return func(c *config) { c.fit = p }
}
