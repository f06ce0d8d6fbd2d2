package kv

import (
	"slices"

	"github.com/roach88/ledgerd/internal/ir"
)

// Map is a journaled single-key record map.
type Map[K comparable, V any] struct {
	j     *Journal
	cmp   func(a, b K) int
	items map[K]V

	enc    func(K, V) ir.Value
	digest Digest
}

// NewMap creates a map attached to j. cmp orders keys for Keys and
// therefore for state snapshots.
func NewMap[K comparable, V any](j *Journal, cmp func(a, b K) int) *Map[K, V] {
	return &Map[K, V]{j: j, cmp: cmp, items: make(map[K]V)}
}

// Digested makes the map keep a running Digest of its entries. enc renders
// one entry and must include the key, so distinct entries never collide.
func (m *Map[K, V]) Digested(enc func(K, V) ir.Value) *Map[K, V] {
	m.enc = enc
	m.digest = Digest{}
	for k, v := range m.items {
		m.digest.Add(EntryDigest(enc(k, v)))
	}
	return m
}

// Digest returns the running digest. It is zero for maps that are not
// Digested.
func (m *Map[K, V]) Digest() Digest {
	return m.digest
}

// Get returns the record stored at k.
func (m *Map[K, V]) Get(k K) (V, bool) {
	v, ok := m.items[k]
	return v, ok
}

// Contains reports whether k is present.
func (m *Map[K, V]) Contains(k K) bool {
	_, ok := m.items[k]
	return ok
}

// Insert stores v at k, replacing any previous record.
func (m *Map[K, V]) Insert(k K, v V) {
	prev, had := m.items[k]
	digest := m.digest
	m.j.record(func() {
		if had {
			m.items[k] = prev
		} else {
			delete(m.items, k)
		}
		m.digest = digest
	})
	m.items[k] = v
	if m.enc != nil {
		if had {
			m.digest.Sub(EntryDigest(m.enc(k, prev)))
		}
		m.digest.Add(EntryDigest(m.enc(k, v)))
	}
}

// Remove deletes k. It reports whether k was present.
func (m *Map[K, V]) Remove(k K) bool {
	prev, had := m.items[k]
	if !had {
		return false
	}
	digest := m.digest
	m.j.record(func() {
		m.items[k] = prev
		m.digest = digest
	})
	delete(m.items, k)
	if m.enc != nil {
		m.digest.Sub(EntryDigest(m.enc(k, prev)))
	}
	return true
}

// Len returns the number of records.
func (m *Map[K, V]) Len() int {
	return len(m.items)
}

// Keys returns every key in cmp order.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, m.cmp)
	return keys
}
