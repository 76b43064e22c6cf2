package interval

import (
	"bytes"

	"github.com/iamqiss/rangelog/model"
)

// Tree is an interval tree: a treap keyed by the Interval ordering with a
// max-end augmentation for intersection queries. Duplicate intervals are
// allowed (the same range touched by many transactions). Not safe for
// concurrent use; the owning group's lock covers it.
type Tree struct {
	root *node
	size int
	rng  uint64
}

type node struct {
	entry Entry
	prio  uint64
	// maxEnd is the largest End in this subtree; subtrees whose maxEnd
	// is <= the query start cannot intersect and are pruned.
	maxEnd []byte
	left   *node
	right  *node
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{rng: 0x9E3779B97F4A7C15}
}

// Len returns the number of entries.
func (t *Tree) Len() int {
	return t.size
}

// nextPrio is a splitmix64 step; treap priorities only need to be
// well-scattered, not cryptographic.
func (t *Tree) nextPrio() uint64 {
	t.rng += 0x9E3779B97F4A7C15
	z := t.rng
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// Add inserts an entry. Equal intervals coexist; their relative iteration
// order is unspecified.
func (t *Tree) Add(iv Interval, id model.TxnID) {
	t.root = t.insert(t.root, &node{
		entry: Entry{Interval: iv, TxnID: id},
		prio:  t.nextPrio(),
	})
	t.size++
}

func (t *Tree) insert(n, nu *node) *node {
	if n == nil {
		nu.maxEnd = nu.entry.Interval.End
		return nu
	}
	if Compare(nu.entry.Interval, n.entry.Interval) < 0 {
		n.left = t.insert(n.left, nu)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = t.insert(n.right, nu)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	n.refreshMaxEnd()
	return n
}

func rotateRight(n *node) *node {
	l := n.left
	n.left = l.right
	l.right = n
	n.refreshMaxEnd()
	l.refreshMaxEnd()
	return l
}

func rotateLeft(n *node) *node {
	r := n.right
	n.right = r.left
	r.left = n
	n.refreshMaxEnd()
	r.refreshMaxEnd()
	return r
}

func (n *node) refreshMaxEnd() {
	m := n.entry.Interval.End
	if n.left != nil && bytes.Compare(n.left.maxEnd, m) > 0 {
		m = n.left.maxEnd
	}
	if n.right != nil && bytes.Compare(n.right.maxEnd, m) > 0 {
		m = n.right.maxEnd
	}
	n.maxEnd = m
}

// SearchRange calls fn for every entry whose interval intersects
// [qStart, qEnd) under the (start-exclusive, end-inclusive] contract.
func (t *Tree) SearchRange(qStart, qEnd []byte, fn func(Entry)) {
	searchRange(t.root, qStart, qEnd, fn)
}

func searchRange(n *node, qStart, qEnd []byte, fn func(Entry)) {
	if n == nil {
		return
	}
	// Every End below is <= qStart: nothing here intersects.
	if bytes.Compare(n.maxEnd, qStart) <= 0 {
		return
	}
	searchRange(n.left, qStart, qEnd, fn)
	if n.entry.Interval.Intersects(qStart, qEnd) {
		fn(n.entry)
	}
	// Starts only grow to the right; once Start >= qEnd nothing further
	// can intersect.
	if bytes.Compare(n.entry.Interval.Start, qEnd) < 0 {
		searchRange(n.right, qStart, qEnd, fn)
	}
}

// SearchPoint calls fn for every entry whose interval contains key.
func (t *Tree) SearchPoint(key []byte, fn func(Entry)) {
	searchPoint(t.root, key, fn)
}

func searchPoint(n *node, key []byte, fn func(Entry)) {
	if n == nil {
		return
	}
	if bytes.Compare(n.maxEnd, key) < 0 {
		return
	}
	searchPoint(n.left, key, fn)
	if n.entry.Interval.Contains(key) {
		fn(n.entry)
	}
	// Contains needs Start < key strictly.
	if bytes.Compare(n.entry.Interval.Start, key) < 0 {
		searchPoint(n.right, key, fn)
	}
}

// Ascend calls fn for every entry in Interval order until fn returns
// false. The order among equal intervals is unspecified.
func (t *Tree) Ascend(fn func(Entry) bool) {
	ascend(t.root, fn)
}

func ascend(n *node, fn func(Entry) bool) bool {
	if n == nil {
		return true
	}
	if !ascend(n.left, fn) {
		return false
	}
	if !fn(n.entry) {
		return false
	}
	return ascend(n.right, fn)
}

// Entries returns all entries. Iteration order is unspecified; callers
// that need sorted output must sort (see SortEntries).
func (t *Tree) Entries() []Entry {
	out := make([]Entry, 0, t.size)
	t.Ascend(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}
