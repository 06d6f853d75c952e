package flamez

import (
	"errors"
	"iter"
)

var (
	// ErrRootExists is returned when a root is inserted into a non-empty trie.
	// Only the first node of a generation lacks a parent.
	ErrRootExists = errors.New("flamez: trie already has a root")

	// ErrStaleHandle is returned when a handle from before the last Clear is used.
	ErrStaleHandle = errors.New("flamez: stale trie handle")
)

const noIndex = -1

// Handle references a trie node. It is only valid for the generation
// it was issued in; the zero Handle is never valid.
type Handle struct {
	index int
	gen   uint32
}

type trieNode[K comparable, V any] struct {
	key         K
	value       V
	firstChild  int
	nextSibling int
}

// Trie is an append-only tree stored in a flat slice. Each edge is
// labelled with a K and each node holds a V. Nodes can only be added;
// Clear discards all of them at once and starts a new generation.
//
// Children are kept in a singly linked sibling list in insertion order.
// Lookup is linear in the number of siblings.
//
// Trie is NOT safe for concurrent use.
type Trie[K comparable, V any] struct {
	nodes []trieNode[K, V]
	gen   uint32
}

// NewTrie creates an empty trie.
func NewTrie[K comparable, V any]() *Trie[K, V] {
	return &Trie[K, V]{gen: 1}
}

// Len returns the number of nodes in the current generation.
func (t *Trie[K, V]) Len() int {
	return len(t.nodes)
}

// Generation returns the current generation counter.
func (t *Trie[K, V]) Generation() uint32 {
	return t.gen
}

// Valid reports whether h addresses a node of the current generation.
func (t *Trie[K, V]) Valid(h Handle) bool {
	return h.gen == t.gen && h.index >= 0 && h.index < len(t.nodes)
}

// InsertRoot creates the root node. The trie must be empty.
func (t *Trie[K, V]) InsertRoot(key K) (Handle, error) {
	if len(t.nodes) != 0 {
		return Handle{}, ErrRootExists
	}
	return t.handle(t.push(key)), nil
}

// InsertChild returns the child of parent labelled key, creating it as
// the last sibling if no such child exists yet.
func (t *Trie[K, V]) InsertChild(parent Handle, key K) (Handle, error) {
	if !t.Valid(parent) {
		return Handle{}, ErrStaleHandle
	}

	child := t.nodes[parent.index].firstChild
	if child == noIndex {
		idx := t.push(key)
		t.nodes[parent.index].firstChild = idx
		return t.handle(idx), nil
	}

	for {
		if t.nodes[child].key == key {
			return t.handle(child), nil
		}
		next := t.nodes[child].nextSibling
		if next == noIndex {
			break
		}
		child = next
	}

	idx := t.push(key)
	t.nodes[child].nextSibling = idx
	return t.handle(idx), nil
}

// Value returns a pointer to the value stored at h.
// The pointer must not be retained across a Clear.
func (t *Trie[K, V]) Value(h Handle) (*V, error) {
	if !t.Valid(h) {
		return nil, ErrStaleHandle
	}
	return &t.nodes[h.index].value, nil
}

// Root returns a read-only view of the root node, if any.
func (t *Trie[K, V]) Root() (Node[K, V], bool) {
	if len(t.nodes) == 0 {
		return Node[K, V]{}, false
	}
	return Node[K, V]{trie: t, index: 0, gen: t.gen}, true
}

// Clear discards every node. Capacity is kept for the next generation.
func (t *Trie[K, V]) Clear() {
	clear(t.nodes)
	t.nodes = t.nodes[:0]
	t.gen++
	if t.gen == 0 {
		t.gen = 1
	}
}

func (t *Trie[K, V]) push(key K) int {
	var zero V
	t.nodes = append(t.nodes, trieNode[K, V]{
		key:         key,
		value:       zero,
		firstChild:  noIndex,
		nextSibling: noIndex,
	})
	return len(t.nodes) - 1
}

func (t *Trie[K, V]) handle(idx int) Handle {
	return Handle{index: idx, gen: t.gen}
}

// Node is a read-only view of a trie node. A Node taken before a Clear
// reports Valid() == false and yields zero values.
type Node[K comparable, V any] struct {
	trie  *Trie[K, V]
	index int
	gen   uint32
}

// Valid reports whether the node still belongs to the trie's current generation.
func (n Node[K, V]) Valid() bool {
	return n.trie != nil && n.trie.Valid(Handle{index: n.index, gen: n.gen})
}

// Handle returns the node's handle.
func (n Node[K, V]) Handle() Handle {
	return Handle{index: n.index, gen: n.gen}
}

// Key returns the edge label leading to this node.
func (n Node[K, V]) Key() K {
	if !n.Valid() {
		var zero K
		return zero
	}
	return n.trie.nodes[n.index].key
}

// Value returns a copy of the node's value.
func (n Node[K, V]) Value() V {
	if !n.Valid() {
		var zero V
		return zero
	}
	return n.trie.nodes[n.index].value
}

// Children iterates over the node's direct children in insertion order.
func (n Node[K, V]) Children() iter.Seq[Node[K, V]] {
	return func(yield func(Node[K, V]) bool) {
		if !n.Valid() {
			return
		}
		for idx := n.trie.nodes[n.index].firstChild; idx != noIndex; idx = n.trie.nodes[idx].nextSibling {
			if !yield(Node[K, V]{trie: n.trie, index: idx, gen: n.gen}) {
				return
			}
			// The yield body may have cleared the trie.
			if !n.Valid() {
				return
			}
		}
	}
}
