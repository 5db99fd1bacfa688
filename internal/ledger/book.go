package ledger

import (
	"cmp"
	"sort"
	"sync"
	"time"
)

// Row is anything a Book can hold: a keyed record with a creation time.
type Row[K comparable] interface {
	Key() K
	Timestamp() time.Time
}

// Book holds rows keyed by id so that a manual refetch and a realtime push
// of the same row never produce duplicates. Safe for concurrent use.
type Book[K comparable, R Row[K]] struct {
	mu   sync.RWMutex
	rows map[K]R
	less func(a, b K) bool
}

func NewBook[K cmp.Ordered, R Row[K]]() *Book[K, R] {
	return NewBookFunc[K, R](cmp.Less[K])
}

// NewBookFunc builds a Book whose keys have no natural order; less breaks
// ties between rows created at the same instant.
func NewBookFunc[K comparable, R Row[K]](less func(a, b K) bool) *Book[K, R] {
	return &Book[K, R]{rows: make(map[K]R), less: less}
}

// Merge inserts r or replaces the stored row with the same key.
func (b *Book[K, R]) Merge(r R) {
	b.mu.Lock()
	b.rows[r.Key()] = r
	b.mu.Unlock()
}

// Replace discards every row and loads rows, as after a full refetch.
func (b *Book[K, R]) Replace(rows []R) {
	m := make(map[K]R, len(rows))
	for _, r := range rows {
		m[r.Key()] = r
	}
	b.mu.Lock()
	b.rows = m
	b.mu.Unlock()
}

func (b *Book[K, R]) Remove(key K) {
	b.mu.Lock()
	delete(b.rows, key)
	b.mu.Unlock()
}

// RemoveFunc drops every row for which match returns true and reports how
// many went.
func (b *Book[K, R]) RemoveFunc(match func(R) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for k, r := range b.rows {
		if match(r) {
			delete(b.rows, k)
			n++
		}
	}
	return n
}

func (b *Book[K, R]) Get(key K) (R, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.rows[key]
	return r, ok
}

func (b *Book[K, R]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rows)
}

// Sorted returns the rows newest first; ties break on key, descending.
func (b *Book[K, R]) Sorted() []R {
	b.mu.RLock()
	out := make([]R, 0, len(b.rows))
	for _, r := range b.rows {
		out = append(out, r)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Timestamp(), out[j].Timestamp()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return b.less(out[j].Key(), out[i].Key())
	})
	return out
}
