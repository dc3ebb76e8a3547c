package btree

import (
	"github.com/evakaiing/FA-sub001/logx"
	"github.com/evakaiing/FA-sub001/storage"
)

// Comparator reports the sign of a-b: negative if a<b, zero if equal,
// positive if a>b. Explicit rather than a cmp.Ordered constraint so callers
// can order e.g. case-insensitive strings or composite keys, mirroring the
// original C++ template's explicit comparator parameter.
type Comparator[K any] func(a, b K) int

const (
	// ACIDNone is the default durability level: best-effort, fsync at
	// Close, no journal. Matches spec's mandated default exactly.
	ACIDNone = iota

	// ACIDTransactions wraps the index file in storage.TxFiler so every
	// mutating call (Insert, Erase) is all-or-nothing: a failure midway
	// leaves the index file byte-identical to its pre-call state. Never
	// the default; opt-in only.
	ACIDTransactions
)

// defaultMinDegree is used when WithMinDegree is not supplied.
const defaultMinDegree = 32

// maxInlineValueWidth is the threshold above which a value codec's fixed
// width causes values to be stored out-of-line in P.data (via ValueHeap)
// instead of inline in the node record. Below it, an 8-byte handle slot
// would waste more space than it saves.
const maxInlineValueWidth = 64

type config[K, V any] struct {
	cmp      Comparator[K]
	keyCodec storage.Codec[K]
	valCodec storage.Codec[V]
	t        int
	acid     int
	log      logx.Logger
}

// Option amends the construction of a Tree. Mirrors cznic-exp/dbm's
// Options/ACID pattern, adapted to functional options parameterized over
// K, V since Open is itself generic.
type Option[K, V any] func(*config[K, V])

// WithComparator supplies the order keys are compared under. Required.
func WithComparator[K, V any](cmp Comparator[K]) Option[K, V] {
	return func(c *config[K, V]) { c.cmp = cmp }
}

// WithKeyCodec supplies the fixed-width encoding for keys. Required.
func WithKeyCodec[K, V any](codec storage.Codec[K]) Option[K, V] {
	return func(c *config[K, V]) { c.keyCodec = codec }
}

// WithValueCodec supplies the fixed-width encoding for values. Required.
func WithValueCodec[K, V any](codec storage.Codec[V]) Option[K, V] {
	return func(c *config[K, V]) { c.valCodec = codec }
}

// WithMinDegree sets the B-tree's minimum degree t (t >= 2). The default
// is 32 if omitted.
func WithMinDegree[K, V any](t int) Option[K, V] {
	return func(c *config[K, V]) { c.t = t }
}

// WithACID sets the durability level (ACIDNone or ACIDTransactions). The
// default is ACIDNone.
func WithACID[K, V any](level int) Option[K, V] {
	return func(c *config[K, V]) { c.acid = level }
}

// WithLogger supplies the Logger the tree reports lifecycle and error
// events to. If omitted, the tree logs nowhere (logx.Nop{}).
func WithLogger[K, V any](l logx.Logger) Option[K, V] {
	return func(c *config[K, V]) { c.log = l }
}
