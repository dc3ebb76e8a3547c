// Package btree implements a disk-backed B-tree persisting an ordered
// key->value index across two files, base path P: P.tree (the node index)
// and P.data (out-of-line value storage for values too wide to inline).
//
// Grounded on original_source/b_tree_disk_tests.cpp for exact observable
// behavior of insert/erase/iteration/find_range/at, and on
// cznic-exp/lldb's handle-addressed, Filer-backed persistence model for
// the index file's layout and write-through caching discipline.
package btree

import (
	"encoding/binary"

	"github.com/evakaiing/FA-sub001/logx"
	"github.com/evakaiing/FA-sub001/storage"
)

// Tree is a disk-backed B-tree of minimum degree t, generic over key type
// K and value type V.
type Tree[K, V any] struct {
	idx       storage.Filer
	dataFiler storage.Filer
	dataHeap  *storage.ValueHeap

	cmp      Comparator[K]
	keyCodec storage.Codec[K]
	valCodec storage.Codec[V]

	t            int
	useHeap      bool
	keyWidth     int
	valSlotWidth int
	keysOff      int
	valsOff      int
	childrenOff  int
	recordSize   int64

	rootID int64
	nextID int64
	cache  map[int64]*node[K, V]

	log    logx.Logger
	acid   int
	closed bool
}

// Open opens the B-tree rooted at basePath, creating P.tree and P.data if
// they don't exist. WithComparator, WithKeyCodec and WithValueCodec are
// required; WithMinDegree, WithACID and WithLogger are optional.
func Open[K, V any](basePath string, opts ...Option[K, V]) (*Tree[K, V], error) {
	cfg := config[K, V]{t: defaultMinDegree, acid: ACIDNone, log: logx.Nop{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logx.Nop{}
	}
	if cfg.cmp == nil {
		return nil, &ErrConfig{Msg: "WithComparator is required"}
	}
	if cfg.keyCodec == nil {
		return nil, &ErrConfig{Msg: "WithKeyCodec is required"}
	}
	if cfg.valCodec == nil {
		return nil, &ErrConfig{Msg: "WithValueCodec is required"}
	}
	if cfg.t < 2 {
		return nil, &ErrConfig{Msg: "minimum degree must be >= 2"}
	}

	cfg.log.Debug("btree.Open: begin %s", basePath)

	indexFiler, err := storage.OpenDiskFiler(basePath + ".tree")
	if err != nil {
		cfg.log.Error("btree.Open: index file: %v", err)
		return nil, err
	}
	dataFiler, err := storage.OpenDiskFiler(basePath + ".data")
	if err != nil {
		cfg.log.Error("btree.Open: data file: %v", err)
		indexFiler.Close()
		return nil, err
	}

	var idx storage.Filer = indexFiler
	if cfg.acid == ACIDTransactions {
		idx = storage.NewTxFiler(indexFiler)
	}

	tr, err := newTree(idx, indexFiler.Size(), dataFiler, cfg)
	if err != nil {
		return nil, err
	}

	cfg.log.Information("btree.Open: opened %s (t=%d)", basePath, cfg.t)
	cfg.log.Debug("btree.Open: end")
	return tr, nil
}

// newTree builds a Tree over already-open idx/dataFiler Filers, computing
// the fixed-record layout from cfg and either initializing an empty index
// (indexSize below one record) or loading its control record. Factored out
// of Open so tests can exercise the tree atop storage.MemFiler and
// fault-injecting Filer wrappers without touching a filesystem.
func newTree[K, V any](idx storage.Filer, indexSize int64, dataFiler storage.Filer, cfg config[K, V]) (*Tree[K, V], error) {
	dataHeap, err := storage.NewValueHeap(dataFiler)
	if err != nil {
		return nil, err
	}

	keyWidth := cfg.keyCodec.Width()
	rawValWidth := cfg.valCodec.Width()
	useHeap := rawValWidth > maxInlineValueWidth
	valSlotWidth := rawValWidth
	if useHeap {
		valSlotWidth = 8
	}

	keysOff := nodeHeaderSize
	valsOff := keysOff + (2*cfg.t-1)*keyWidth
	childrenOff := valsOff + (2*cfg.t-1)*valSlotWidth
	recordSize := int64(childrenOff + 2*cfg.t*8)

	tr := &Tree[K, V]{
		idx:          idx,
		dataFiler:    dataFiler,
		dataHeap:     dataHeap,
		cmp:          cfg.cmp,
		keyCodec:     cfg.keyCodec,
		valCodec:     cfg.valCodec,
		t:            cfg.t,
		useHeap:      useHeap,
		keyWidth:     keyWidth,
		valSlotWidth: valSlotWidth,
		keysOff:      keysOff,
		valsOff:      valsOff,
		childrenOff:  childrenOff,
		recordSize:   recordSize,
		cache:        map[int64]*node[K, V]{},
		log:          cfg.log,
		acid:         cfg.acid,
	}

	if indexSize < recordSize {
		if err := tr.initEmpty(); err != nil {
			return nil, err
		}
	} else if err := tr.loadControl(); err != nil {
		return nil, err
	}

	return tr, nil
}

func (t *Tree[K, V]) initEmpty() error {
	if err := t.idx.BeginUpdate(); err != nil {
		return err
	}
	t.rootID = 1
	t.nextID = 2
	root := &node[K, V]{id: t.rootID, leaf: true}
	if err := t.store(root); err != nil {
		t.idx.Rollback()
		return err
	}
	if err := t.writeControl(); err != nil {
		t.idx.Rollback()
		return err
	}
	return t.idx.EndUpdate()
}

func (t *Tree[K, V]) loadControl() error {
	var ctl [16]byte
	if _, err := t.idx.ReadAt(ctl[:], 0); err != nil {
		return err
	}
	t.rootID = int64(binary.BigEndian.Uint64(ctl[0:8]))
	t.nextID = int64(binary.BigEndian.Uint64(ctl[8:16]))
	return nil
}

func (t *Tree[K, V]) writeControl() error {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(t.rootID))
	binary.BigEndian.PutUint64(b[8:16], uint64(t.nextID))
	_, err := t.idx.WriteAt(b[:], 0)
	return err
}

// Close flushes and closes both underlying files. The tree must not be
// used afterwards.
func (t *Tree[K, V]) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.log.Debug("btree.Tree.Close: begin")
	if err := t.idx.Close(); err != nil {
		return err
	}
	err := t.dataFiler.Close()
	t.log.Debug("btree.Tree.Close: end")
	return err
}

func (t *Tree[K, V]) allocate() int64 {
	id := t.nextID
	t.nextID++
	return id
}

func (t *Tree[K, V]) load(id int64) (*node[K, V], error) {
	if n, ok := t.cache[id]; ok {
		return n, nil
	}
	buf := make([]byte, t.recordSize)
	if _, err := t.idx.ReadAt(buf, id*t.recordSize); err != nil {
		return nil, &errf{op: "load node", err: err}
	}
	n, err := t.decodeNode(id, buf)
	if err != nil {
		return nil, err
	}
	t.cache[id] = n
	return n, nil
}

func (t *Tree[K, V]) store(n *node[K, V]) error {
	buf, err := t.encodeNode(n)
	if err != nil {
		return err
	}
	if _, err := t.idx.WriteAt(buf, n.id*t.recordSize); err != nil {
		return &errf{op: "store node", err: err}
	}
	t.cache[n.id] = n
	return nil
}

// mutate wraps fn in the tree's transaction protocol: a single
// BeginUpdate/EndUpdate pair around the whole logical operation, so under
// ACIDTransactions an Insert or Erase either persists completely or (on
// error) leaves the index file exactly as it was.
func (t *Tree[K, V]) mutate(fn func() (bool, error)) (bool, error) {
	if t.closed {
		return false, &ErrClosed{}
	}
	if err := t.idx.BeginUpdate(); err != nil {
		return false, err
	}
	ok, err := fn()
	if err != nil {
		t.idx.Rollback()
		t.invalidateCache()
		return false, err
	}
	if err := t.writeControl(); err != nil {
		t.idx.Rollback()
		t.invalidateCache()
		return false, err
	}
	if err := t.idx.EndUpdate(); err != nil {
		return false, err
	}
	return ok, nil
}

// invalidateCache drops every cached node, forcing the next load to read
// back from idx. Called after a rolled-back mutation so a node object an
// aborted fn() constructed in memory (and may have already cached on a
// partial success within that same mutation) can never be served again —
// the only authority on tree shape after a rollback is what idx actually
// persisted.
func (t *Tree[K, V]) invalidateCache() {
	t.cache = map[int64]*node[K, V]{}
}

// search returns the smallest index idx such that entries[idx].key >= k
// (len(entries) if none), and whether entries[idx].key == k.
func (t *Tree[K, V]) search(entries []entry[K, V], k K) (idx int, found bool) {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(entries[mid].key, k) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(entries) && t.cmp(entries[lo].key, k) == 0 {
		return lo, true
	}
	return lo, false
}

// At returns the value stored for k, if present.
func (t *Tree[K, V]) At(k K) (V, bool, error) {
	var zero V
	if t.closed {
		return zero, false, &ErrClosed{}
	}
	id := t.rootID
	for {
		n, err := t.load(id)
		if err != nil {
			return zero, false, err
		}
		idx, found := t.search(n.entries, k)
		if found {
			return n.entries[idx].val, true, nil
		}
		if n.leaf {
			return zero, false, nil
		}
		id = n.children[idx]
	}
}

// PathStep is one (node id, slot index) pair on the descent from root to
// the node containing (or that would contain) a key.
type PathStep struct {
	NodeID int64
	Slot   int
}

// FindPath descends from the root accumulating PathStep entries, and
// reports the terminal slot and whether the key was found there.
func (t *Tree[K, V]) FindPath(k K) (path []PathStep, slot int, found bool, err error) {
	if t.closed {
		return nil, 0, false, &ErrClosed{}
	}
	id := t.rootID
	for {
		n, lerr := t.load(id)
		if lerr != nil {
			return nil, 0, false, lerr
		}
		idx, ok := t.search(n.entries, k)
		path = append(path, PathStep{NodeID: id, Slot: idx})
		if ok {
			return path, idx, true, nil
		}
		if n.leaf {
			return path, idx, false, nil
		}
		id = n.children[idx]
	}
}

// Insert adds k/v, returning true if the key was not already present.
func (t *Tree[K, V]) Insert(k K, v V) (bool, error) {
	ok, err := t.mutate(func() (bool, error) { return t.insertRoot(k, v) })
	if err != nil {
		t.log.Error("btree.Tree.Insert: %v", err)
	}
	return ok, err
}

func (t *Tree[K, V]) insertRoot(k K, v V) (bool, error) {
	root, err := t.load(t.rootID)
	if err != nil {
		return false, err
	}
	if len(root.entries) == 2*t.t-1 {
		newRootID := t.allocate()
		newRoot := &node[K, V]{id: newRootID, leaf: false, children: []int64{root.id}}
		root.parent = newRootID
		if err := t.splitChild(newRoot, 0, root); err != nil {
			return false, err
		}
		t.rootID = newRootID
		root = newRoot
	}
	return t.insertNonFull(root, k, v)
}

// splitChild splits the full child at parent.children[i], promoting its
// median entry into parent at slot i and installing the new right sibling
// at i+1.
func (t *Tree[K, V]) splitChild(parent *node[K, V], i int, child *node[K, V]) error {
	mid := t.t - 1
	newChildID := t.allocate()
	newChild := &node[K, V]{id: newChildID, leaf: child.leaf, parent: parent.id}
	newChild.entries = append([]entry[K, V]{}, child.entries[mid+1:]...)
	median := child.entries[mid]
	child.entries = child.entries[:mid]

	if !child.leaf {
		newChild.children = append([]int64{}, child.children[t.t:]...)
		child.children = child.children[:t.t]
		for _, cid := range newChild.children {
			cn, err := t.load(cid)
			if err != nil {
				return err
			}
			cn.parent = newChildID
			if err := t.store(cn); err != nil {
				return err
			}
		}
	}

	parent.entries = insertEntryAt(parent.entries, i, median)
	parent.children = insertInt64At(parent.children, i+1, newChildID)

	if err := t.store(child); err != nil {
		return err
	}
	if err := t.store(newChild); err != nil {
		return err
	}
	return t.store(parent)
}

func (t *Tree[K, V]) insertNonFull(n *node[K, V], k K, v V) (bool, error) {
	idx, found := t.search(n.entries, k)
	if found {
		return false, nil
	}

	if n.leaf {
		var handle int64
		if t.useHeap {
			h, err := t.dataHeap.Alloc(t.valCodec.Encode(v))
			if err != nil {
				return false, err
			}
			handle = h
		}
		n.entries = insertEntryAt(n.entries, idx, entry[K, V]{key: k, val: v, handle: handle})
		if err := t.store(n); err != nil {
			return false, err
		}
		return true, nil
	}

	childIdx := idx
	child, err := t.load(n.children[childIdx])
	if err != nil {
		return false, err
	}
	if len(child.entries) == 2*t.t-1 {
		if err := t.splitChild(n, childIdx, child); err != nil {
			return false, err
		}
		idx2, found2 := t.search(n.entries, k)
		if found2 {
			return false, nil
		}
		childIdx = idx2
		child, err = t.load(n.children[childIdx])
		if err != nil {
			return false, err
		}
	}
	return t.insertNonFull(child, k, v)
}

// Erase removes k, returning true if it was present.
func (t *Tree[K, V]) Erase(k K) (bool, error) {
	ok, err := t.mutate(func() (bool, error) { return t.eraseRoot(k) })
	if err != nil {
		t.log.Error("btree.Tree.Erase: %v", err)
	}
	return ok, err
}

func (t *Tree[K, V]) eraseRoot(k K) (bool, error) {
	root, err := t.load(t.rootID)
	if err != nil {
		return false, err
	}
	deleted, err := t.eraseFrom(root, k)
	if err != nil || !deleted {
		return deleted, err
	}

	root, err = t.load(t.rootID)
	if err != nil {
		return false, err
	}
	if len(root.entries) == 0 && !root.leaf {
		newRootID := root.children[0]
		newRoot, err := t.load(newRootID)
		if err != nil {
			return false, err
		}
		newRoot.parent = 0
		if err := t.store(newRoot); err != nil {
			return false, err
		}
		delete(t.cache, root.id)
		t.rootID = newRootID
	}
	return true, nil
}

func (t *Tree[K, V]) eraseFrom(n *node[K, V], k K) (bool, error) {
	idx, found := t.search(n.entries, k)
	if found {
		if n.leaf {
			if t.useHeap {
				if err := t.dataHeap.Free(n.entries[idx].handle); err != nil {
					return false, err
				}
			}
			n.entries = removeEntryAt(n.entries, idx)
			if err := t.store(n); err != nil {
				return false, err
			}
			return true, nil
		}

		left, err := t.load(n.children[idx])
		if err != nil {
			return false, err
		}
		if len(left.entries) >= t.t {
			if t.useHeap {
				if err := t.dataHeap.Free(n.entries[idx].handle); err != nil {
					return false, err
				}
			}
			pred, err := t.removeMax(left.id)
			if err != nil {
				return false, err
			}
			n.entries[idx] = pred
			return true, t.store(n)
		}

		right, err := t.load(n.children[idx+1])
		if err != nil {
			return false, err
		}
		if len(right.entries) >= t.t {
			if t.useHeap {
				if err := t.dataHeap.Free(n.entries[idx].handle); err != nil {
					return false, err
				}
			}
			succ, err := t.removeMin(right.id)
			if err != nil {
				return false, err
			}
			n.entries[idx] = succ
			return true, t.store(n)
		}

		mergedID, err := t.mergeChildren(n, idx)
		if err != nil {
			return false, err
		}
		merged, err := t.load(mergedID)
		if err != nil {
			return false, err
		}
		return t.eraseFrom(merged, k)
	}

	if n.leaf {
		return false, nil
	}
	childID, err := t.ensureDescendable(n, idx)
	if err != nil {
		return false, err
	}
	child, err := t.load(childID)
	if err != nil {
		return false, err
	}
	return t.eraseFrom(child, k)
}

// removeMax deletes and returns the maximum entry of the subtree rooted at
// nodeID, pre-emptively borrowing/merging along the descent exactly like
// eraseFrom so every node recursed into already has >= t keys.
func (t *Tree[K, V]) removeMax(nodeID int64) (entry[K, V], error) {
	n, err := t.load(nodeID)
	if err != nil {
		return entry[K, V]{}, err
	}
	if n.leaf {
		last := len(n.entries) - 1
		e := n.entries[last]
		n.entries = n.entries[:last]
		return e, t.store(n)
	}
	childID, err := t.ensureDescendable(n, len(n.children)-1)
	if err != nil {
		return entry[K, V]{}, err
	}
	return t.removeMax(childID)
}

func (t *Tree[K, V]) removeMin(nodeID int64) (entry[K, V], error) {
	n, err := t.load(nodeID)
	if err != nil {
		return entry[K, V]{}, err
	}
	if n.leaf {
		e := n.entries[0]
		n.entries = n.entries[1:]
		return e, t.store(n)
	}
	childID, err := t.ensureDescendable(n, 0)
	if err != nil {
		return entry[K, V]{}, err
	}
	return t.removeMin(childID)
}

// ensureDescendable guarantees n.children[idx] has >= t keys before the
// caller descends into it, borrowing from a sibling with spare keys or
// merging with one otherwise, and returns the id to actually descend into
// (unchanged unless a merge with the left sibling occurred).
func (t *Tree[K, V]) ensureDescendable(n *node[K, V], idx int) (int64, error) {
	child, err := t.load(n.children[idx])
	if err != nil {
		return 0, err
	}
	if len(child.entries) >= t.t {
		return child.id, nil
	}

	if idx > 0 {
		left, err := t.load(n.children[idx-1])
		if err != nil {
			return 0, err
		}
		if len(left.entries) >= t.t {
			if err := t.borrowFromLeft(n, idx, left, child); err != nil {
				return 0, err
			}
			return child.id, nil
		}
	}
	if idx < len(n.children)-1 {
		right, err := t.load(n.children[idx+1])
		if err != nil {
			return 0, err
		}
		if len(right.entries) >= t.t {
			if err := t.borrowFromRight(n, idx, child, right); err != nil {
				return 0, err
			}
			return child.id, nil
		}
	}

	if idx > 0 {
		return t.mergeChildren(n, idx-1)
	}
	return t.mergeChildren(n, idx)
}

func (t *Tree[K, V]) borrowFromLeft(n *node[K, V], idx int, left, child *node[K, V]) error {
	sep := n.entries[idx-1]
	child.entries = insertEntryAt(child.entries, 0, sep)
	n.entries[idx-1] = left.entries[len(left.entries)-1]
	left.entries = left.entries[:len(left.entries)-1]

	if !child.leaf {
		movedID := left.children[len(left.children)-1]
		left.children = left.children[:len(left.children)-1]
		child.children = insertInt64At(child.children, 0, movedID)
		mc, err := t.load(movedID)
		if err != nil {
			return err
		}
		mc.parent = child.id
		if err := t.store(mc); err != nil {
			return err
		}
	}

	if err := t.store(left); err != nil {
		return err
	}
	if err := t.store(child); err != nil {
		return err
	}
	return t.store(n)
}

func (t *Tree[K, V]) borrowFromRight(n *node[K, V], idx int, child, right *node[K, V]) error {
	sep := n.entries[idx]
	child.entries = append(child.entries, sep)
	n.entries[idx] = right.entries[0]
	right.entries = right.entries[1:]

	if !child.leaf {
		movedID := right.children[0]
		right.children = right.children[1:]
		child.children = append(child.children, movedID)
		mc, err := t.load(movedID)
		if err != nil {
			return err
		}
		mc.parent = child.id
		if err := t.store(mc); err != nil {
			return err
		}
	}

	if err := t.store(right); err != nil {
		return err
	}
	if err := t.store(child); err != nil {
		return err
	}
	return t.store(n)
}

// mergeChildren folds n.children[leftIdx+1] and the separator n.entries[leftIdx]
// into n.children[leftIdx], returning the merged node's id. The right
// sibling's id is simply dropped from the cache: node ids are append-only
// (see DESIGN.md), so its index-file slot becomes an unreachable hole
// rather than being reclaimed.
func (t *Tree[K, V]) mergeChildren(n *node[K, V], leftIdx int) (int64, error) {
	left, err := t.load(n.children[leftIdx])
	if err != nil {
		return 0, err
	}
	right, err := t.load(n.children[leftIdx+1])
	if err != nil {
		return 0, err
	}

	sep := n.entries[leftIdx]
	left.entries = append(left.entries, sep)
	left.entries = append(left.entries, right.entries...)
	if !left.leaf {
		left.children = append(left.children, right.children...)
		for _, cid := range right.children {
			cn, err := t.load(cid)
			if err != nil {
				return 0, err
			}
			cn.parent = left.id
			if err := t.store(cn); err != nil {
				return 0, err
			}
		}
	}

	n.entries = removeEntryAt(n.entries, leftIdx)
	n.children = removeInt64At(n.children, leftIdx+1)

	if err := t.store(left); err != nil {
		return 0, err
	}
	if err := t.store(n); err != nil {
		return 0, err
	}
	delete(t.cache, right.id)
	return left.id, nil
}
