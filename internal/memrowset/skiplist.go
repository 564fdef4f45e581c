package memrowset

import (
	"cmp"
	"math/rand"
	"sync/atomic"
)

const (
	// maxHeight is the maximum height for skip list nodes.
	maxHeight = 12

	// branchingFactor: on average 1/branchingFactor nodes are promoted to
	// the next level.
	branchingFactor = 4
)

// skipNode is a node holding one key/value pair and its forward pointers.
type skipNode[K cmp.Ordered, V any] struct {
	key   K
	value V
	next  []atomic.Pointer[skipNode[K, V]]
}

func newSkipNode[K cmp.Ordered, V any](key K, value V, height int) *skipNode[K, V] {
	return &skipNode[K, V]{
		key:   key,
		value: value,
		next:  make([]atomic.Pointer[skipNode[K, V]], height),
	}
}

// skipList is an ordered map with lock-free reads.
// Writes require external synchronization. Nodes are never removed.
type skipList[K cmp.Ordered, V any] struct {
	head      *skipNode[K, V]
	height    atomic.Int32
	count     atomic.Int64
	rng       *rand.Rand
	scaledInv uint32
}

func newSkipList[K cmp.Ordered, V any]() *skipList[K, V] {
	var zeroK K
	var zeroV V
	sl := &skipList[K, V]{
		head:      newSkipNode(zeroK, zeroV, maxHeight),
		rng:       rand.New(rand.NewSource(0xDEADBEEF)),
		scaledInv: uint32(0xFFFFFFFF) / branchingFactor,
	}
	sl.height.Store(1)
	return sl
}

// insert adds key with value. It reports false and leaves the list
// unchanged if key is already present.
// REQUIRES: External synchronization.
func (sl *skipList[K, V]) insert(key K, value V) bool {
	var prev [maxHeight]*skipNode[K, V]
	x := sl.findGreaterOrEqual(key, prev[:])
	if x != nil && x.key == key {
		return false
	}

	height := sl.randomHeight()
	cur := int(sl.height.Load())
	if height > cur {
		for i := cur; i < height; i++ {
			prev[i] = sl.head
		}
		sl.height.Store(int32(height))
	}

	node := newSkipNode(key, value, height)
	for i := range height {
		node.next[i].Store(prev[i].next[i].Load())
		prev[i].next[i].Store(node)
	}
	sl.count.Add(1)
	return true
}

// get returns the value stored under key.
func (sl *skipList[K, V]) get(key K) (V, bool) {
	x := sl.findGreaterOrEqual(key, nil)
	if x != nil && x.key == key {
		return x.value, true
	}
	var zero V
	return zero, false
}

func (sl *skipList[K, V]) len() int {
	return int(sl.count.Load())
}

// findGreaterOrEqual finds the first node with key >= given key.
// If prev is not nil, fills in prev[level] with the predecessor at each level.
func (sl *skipList[K, V]) findGreaterOrEqual(key K, prev []*skipNode[K, V]) *skipNode[K, V] {
	x := sl.head
	level := int(sl.height.Load()) - 1
	for {
		next := x.next[level].Load()
		if next != nil && next.key < key {
			x = next
			continue
		}
		if prev != nil {
			prev[level] = x
		}
		if level == 0 {
			return next
		}
		level--
	}
}

func (sl *skipList[K, V]) randomHeight() int {
	height := 1
	for height < maxHeight && sl.rng.Uint32() < sl.scaledInv {
		height++
	}
	return height
}

// iterator walks the list in key order.
type iterator[K cmp.Ordered, V any] struct {
	list *skipList[K, V]
	node *skipNode[K, V]
}

func (sl *skipList[K, V]) newIterator() *iterator[K, V] {
	return &iterator[K, V]{list: sl}
}

func (it *iterator[K, V]) valid() bool { return it.node != nil }

func (it *iterator[K, V]) seekToFirst() { it.node = it.list.head.next[0].Load() }

// seek positions the iterator at the first entry with key >= target.
func (it *iterator[K, V]) seek(target K) { it.node = it.list.findGreaterOrEqual(target, nil) }

func (it *iterator[K, V]) next() { it.node = it.node.next[0].Load() }

func (it *iterator[K, V]) key() K { return it.node.key }

func (it *iterator[K, V]) value() V { return it.node.value }
