// Package radix implements a compressed radix tree ("rax") keyed by raw
// byte strings — used by the stream engine to store entries ordered by
// their 16-byte (ms, seq) IDs (spec.md §4.3). Structured as tree-of-owned
// children with no back-pointers, per spec.md §9's guidance for graph
// structures in this codebase.
package radix

import "sort"

// Tree is a single-writer-at-a-time ordered map from byte-string key to an
// arbitrary payload. Readers may operate concurrently with each other under
// an external lock (the stream/keyspace layer above provides that); Tree
// itself does no locking.
type Tree struct {
	root *node
	size int
}

type node struct {
	isKey    bool
	data     any
	children map[byte]*edge
}

type edge struct {
	label []byte
	node  *node
}

func newNode() *node {
	return &node{children: map[byte]*edge{}}
}

func New() *Tree {
	return &Tree{root: newNode()}
}

func (t *Tree) Len() int      { return t.size }
func (t *Tree) IsEmpty() bool { return t.size == 0 }

// Insert stores data at key, returning the previous value if key already
// existed.
func (t *Tree) Insert(key []byte, data any) (any, bool) {
	prev, existed := t.root.insert(key, data, &t.size)
	return prev, existed
}

func (t *Tree) Get(key []byte) (any, bool) {
	return t.root.get(key)
}

func (t *Tree) Remove(key []byte) (any, bool) {
	return t.root.remove(key, &t.size)
}

// Pair is one (key, value) result from a range query.
type Pair struct {
	Key   []byte
	Value any
}

// Range returns all entries with start <= key <= end in ascending order.
func (t *Tree) Range(start, end []byte) []Pair {
	var out []Pair
	cur := make([]byte, 0, 16)
	t.root.walkAsc(start, end, cur, &out)
	return out
}

// RevRange returns all entries with start <= key <= end in descending
// order: children are visited in reverse byte order, and each node's own
// key (if any) is emitted after its subtree — the mirror image of Range.
func (t *Tree) RevRange(start, end []byte) []Pair {
	var out []Pair
	cur := make([]byte, 0, 16)
	t.root.walkDesc(start, end, cur, &out)
	return out
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func (n *node) insert(key []byte, data any, size *int) (any, bool) {
	if len(key) == 0 {
		if !n.isKey {
			n.isKey = true
			n.data = data
			*size++
			return nil, false
		}
		prev := n.data
		n.data = data
		return prev, true
	}

	first := key[0]
	e, ok := n.children[first]
	if !ok {
		child := newNode()
		child.insert(nil, data, size)
		n.children[first] = &edge{label: append([]byte(nil), key...), node: child}
		return nil, false
	}

	common := commonPrefixLen(e.label, key)
	if common == len(e.label) {
		return e.node.insert(key[common:], data, size)
	}

	// Split the edge at the common prefix.
	oldNode := e.node
	oldLabel := e.label
	commonPart := append([]byte(nil), oldLabel[:common]...)
	suffixPart := append([]byte(nil), oldLabel[common:]...)
	keySuffix := key[common:]

	split := newNode()
	split.children[suffixPart[0]] = &edge{label: suffixPart, node: oldNode}

	var prev any
	var existed bool
	if len(keySuffix) == 0 {
		split.isKey = true
		split.data = data
		*size++
	} else {
		prev, existed = split.insert(keySuffix, data, size)
	}

	n.children[first] = &edge{label: commonPart, node: split}
	return prev, existed
}

func (n *node) get(key []byte) (any, bool) {
	if len(key) == 0 {
		if n.isKey {
			return n.data, true
		}
		return nil, false
	}
	e, ok := n.children[key[0]]
	if !ok {
		return nil, false
	}
	common := commonPrefixLen(e.label, key)
	if common != len(e.label) {
		return nil, false
	}
	return e.node.get(key[common:])
}

func (n *node) remove(key []byte, size *int) (any, bool) {
	if len(key) == 0 {
		if n.isKey {
			prev := n.data
			n.isKey = false
			n.data = nil
			*size--
			return prev, true
		}
		return nil, false
	}
	e, ok := n.children[key[0]]
	if !ok {
		return nil, false
	}
	common := commonPrefixLen(e.label, key)
	if common != len(e.label) {
		return nil, false
	}
	return e.node.remove(key[common:], size)
}

func inRange(key, start, end []byte) bool {
	return bytesCompare(key, start) >= 0 && bytesCompare(key, end) <= 0
}

func bytesCompare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

func (n *node) sortedChildBytes() []byte {
	bs := make([]byte, 0, len(n.children))
	for b := range n.children {
		bs = append(bs, b)
	}
	sort.Slice(bs, func(i, j int) bool { return bs[i] < bs[j] })
	return bs
}

func (n *node) walkAsc(start, end, cur []byte, out *[]Pair) {
	if n.isKey && inRange(cur, start, end) {
		*out = append(*out, Pair{Key: append([]byte(nil), cur...), Value: n.data})
	}
	for _, b := range n.sortedChildBytes() {
		e := n.children[b]
		next := append(cur, e.label...)
		e.node.walkAsc(start, end, next, out)
		cur = next[:len(cur)]
	}
}

func (n *node) walkDesc(start, end, cur []byte, out *[]Pair) {
	bs := n.sortedChildBytes()
	for i := len(bs) - 1; i >= 0; i-- {
		e := n.children[bs[i]]
		next := append(cur, e.label...)
		e.node.walkDesc(start, end, next, out)
		cur = next[:len(cur)]
	}
	if n.isKey && inRange(cur, start, end) {
		*out = append(*out, Pair{Key: append([]byte(nil), cur...), Value: n.data})
	}
}
