package memrowset

import (
	"math/rand"
	"sort"
	"testing"
)

func TestSkipListEmpty(t *testing.T) {
	sl := newSkipList[int32, string]()

	if sl.len() != 0 {
		t.Errorf("len = %d, want 0", sl.len())
	}
	if _, ok := sl.get(1); ok {
		t.Error("Empty list should not contain any key")
	}
	it := sl.newIterator()
	it.seekToFirst()
	if it.valid() {
		t.Error("Iterator should be invalid on empty list")
	}
}

func TestSkipListDuplicateInsert(t *testing.T) {
	sl := newSkipList[int32, string]()

	if !sl.insert(5, "a") {
		t.Fatal("first insert failed")
	}
	if sl.insert(5, "b") {
		t.Fatal("duplicate insert should report false")
	}
	if v, _ := sl.get(5); v != "a" {
		t.Errorf("get(5) = %q, want a", v)
	}
	if sl.len() != 1 {
		t.Errorf("len = %d, want 1", sl.len())
	}
}

func TestSkipListOrderAndSeek(t *testing.T) {
	sl := newSkipList[int32, int32]()
	rng := rand.New(rand.NewSource(42))

	seen := map[int32]bool{}
	for range 500 {
		k := rng.Int31n(2000) - 1000
		if sl.insert(k, k*2) != !seen[k] {
			t.Fatalf("insert(%d) result disagrees with set membership", k)
		}
		seen[k] = true
	}

	want := make([]int32, 0, len(seen))
	for k := range seen {
		want = append(want, k)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	it := sl.newIterator()
	i := 0
	for it.seekToFirst(); it.valid(); it.next() {
		if it.key() != want[i] || it.value() != want[i]*2 {
			t.Fatalf("position %d = (%d,%d), want key %d", i, it.key(), it.value(), want[i])
		}
		i++
	}
	if i != len(want) {
		t.Fatalf("iterated %d keys, want %d", i, len(want))
	}

	target := want[len(want)/2] + 1
	it.seek(target)
	idx := sort.Search(len(want), func(i int) bool { return want[i] >= target })
	if idx == len(want) {
		if it.valid() {
			t.Errorf("seek(%d) should be past the end", target)
		}
	} else if !it.valid() || it.key() != want[idx] {
		t.Errorf("seek(%d) landed on wrong key", target)
	}
}
