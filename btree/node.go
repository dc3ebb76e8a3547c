package btree

import "encoding/binary"

// nodeHeaderSize is the fixed prefix of every node record: a leaf flag
// (1 byte), a key count (4 bytes), and a parent node id (8 bytes).
const nodeHeaderSize = 1 + 4 + 8

// entry is one key/value slot in a node. handle is only meaningful when
// the tree stores values out-of-line (Tree.useHeap); it travels with the
// key/value pair through splits, borrows and merges so that moving an
// entry between nodes never touches the value heap - only Insert (new
// entry) and Erase (removed entry, whether it sat in a leaf or in an
// internal node) allocate or free a handle.
type entry[K, V any] struct {
	key    K
	val    V
	handle int64
}

// node is the in-memory form of one node record: leafFlag, keyCount and
// parentID unpacked, keys/child ids materialized as slices sized to the
// node's actual occupancy rather than the record's full reserved width.
type node[K, V any] struct {
	id       int64
	leaf     bool
	parent   int64
	entries  []entry[K, V]
	children []int64 // len == len(entries)+1 when !leaf; nil when leaf
}

// encodeNode serializes n into a t.recordSize-byte fixed-slot record:
// leaf_flag:u8 | key_count:u32 | parent_id:u64 | keys[2t-1] |
// values[2t-1] | child_ids[2t].
func (t *Tree[K, V]) encodeNode(n *node[K, V]) ([]byte, error) {
	buf := make([]byte, t.recordSize)
	if n.leaf {
		buf[0] = 1
	}
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(n.entries)))
	binary.BigEndian.PutUint64(buf[5:13], uint64(n.parent))

	for i, e := range n.entries {
		kb := t.keyCodec.Encode(e.key)
		copy(buf[t.keysOff+i*t.keyWidth:], kb)
		if t.useHeap {
			binary.BigEndian.PutUint64(buf[t.valsOff+i*t.valSlotWidth:], uint64(e.handle))
		} else {
			vb := t.valCodec.Encode(e.val)
			copy(buf[t.valsOff+i*t.valSlotWidth:], vb)
		}
	}
	for i, c := range n.children {
		binary.BigEndian.PutUint64(buf[t.childrenOff+i*8:], uint64(c))
	}
	return buf, nil
}

// decodeNode parses a record previously written by encodeNode, following
// handles out to the value heap when the tree stores values out-of-line.
func (t *Tree[K, V]) decodeNode(id int64, buf []byte) (*node[K, V], error) {
	leaf := buf[0] == 1
	cnt := int(binary.BigEndian.Uint32(buf[1:5]))
	parent := int64(binary.BigEndian.Uint64(buf[5:13]))

	entries := make([]entry[K, V], cnt)
	for i := 0; i < cnt; i++ {
		kb := buf[t.keysOff+i*t.keyWidth : t.keysOff+(i+1)*t.keyWidth]
		key, err := t.keyCodec.Decode(kb)
		if err != nil {
			return nil, &errf{op: "decodeNode: key", err: err}
		}

		var val V
		var handle int64
		if t.useHeap {
			handle = int64(binary.BigEndian.Uint64(buf[t.valsOff+i*t.valSlotWidth:]))
			raw, err := t.dataHeap.Get(handle)
			if err != nil {
				return nil, &errf{op: "decodeNode: value heap read", err: err}
			}
			val, err = t.valCodec.Decode(raw)
			if err != nil {
				return nil, &errf{op: "decodeNode: value", err: err}
			}
		} else {
			vb := buf[t.valsOff+i*t.valSlotWidth : t.valsOff+(i+1)*t.valSlotWidth]
			val, err = t.valCodec.Decode(vb)
			if err != nil {
				return nil, &errf{op: "decodeNode: value", err: err}
			}
		}
		entries[i] = entry[K, V]{key: key, val: val, handle: handle}
	}

	var children []int64
	if !leaf {
		children = make([]int64, cnt+1)
		for i := 0; i <= cnt; i++ {
			children[i] = int64(binary.BigEndian.Uint64(buf[t.childrenOff+i*8:]))
		}
	}

	return &node[K, V]{id: id, leaf: leaf, parent: parent, entries: entries, children: children}, nil
}

func insertEntryAt[K, V any](s []entry[K, V], idx int, e entry[K, V]) []entry[K, V] {
	s = append(s, entry[K, V]{})
	copy(s[idx+1:], s[idx:])
	s[idx] = e
	return s
}

func removeEntryAt[K, V any](s []entry[K, V], idx int) []entry[K, V] {
	copy(s[idx:], s[idx+1:])
	return s[:len(s)-1]
}

func insertInt64At(s []int64, idx int, v int64) []int64 {
	s = append(s, 0)
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

func removeInt64At(s []int64, idx int) []int64 {
	copy(s[idx:], s[idx+1:])
	return s[:len(s)-1]
}

func indexOfInt64(s []int64, v int64) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
