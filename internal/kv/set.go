package kv

import (
	"cmp"

	"github.com/roach88/ledgerd/internal/ir"
)

// Set is a journaled presence set. Composite keys use Pair.
type Set[K comparable] struct {
	m *Map[K, struct{}]
}

// NewSet creates a set attached to j.
func NewSet[K comparable](j *Journal, cmp func(a, b K) int) *Set[K] {
	return &Set[K]{m: NewMap[K, struct{}](j, cmp)}
}

// Digested makes the set keep a running Digest of its members. enc renders
// one member.
func (s *Set[K]) Digested(enc func(K) ir.Value) *Set[K] {
	s.m.Digested(func(k K, _ struct{}) ir.Value { return enc(k) })
	return s
}

// Digest returns the running digest.
func (s *Set[K]) Digest() Digest {
	return s.m.Digest()
}

// Add inserts k. It reports whether k was newly added.
func (s *Set[K]) Add(k K) bool {
	if s.m.Contains(k) {
		return false
	}
	s.m.Insert(k, struct{}{})
	return true
}

// Remove deletes k. It reports whether k was present.
func (s *Set[K]) Remove(k K) bool {
	return s.m.Remove(k)
}

// Contains reports whether k is present.
func (s *Set[K]) Contains(k K) bool {
	return s.m.Contains(k)
}

// Len returns the number of members.
func (s *Set[K]) Len() int {
	return s.m.Len()
}

// Keys returns every member in order.
func (s *Set[K]) Keys() []K {
	return s.m.Keys()
}

// Pair is a composite key such as (poll_id, voter) or (follower, followed).
type Pair[A, B comparable] struct {
	First  A
	Second B
}

// P builds a Pair.
func P[A, B comparable](a A, b B) Pair[A, B] {
	return Pair[A, B]{First: a, Second: b}
}

// ComparePairs orders pairs by First, then Second.
func ComparePairs[A, B cmp.Ordered](x, y Pair[A, B]) int {
	if c := cmp.Compare(x.First, y.First); c != 0 {
		return c
	}
	return cmp.Compare(x.Second, y.Second)
}

// Seconds returns the Second of every member whose First equals a, in order.
func Seconds[A, B comparable](s *Set[Pair[A, B]], a A) []B {
	var out []B
	for _, k := range s.Keys() {
		if k.First == a {
			out = append(out, k.Second)
		}
	}
	return out
}

// Firsts returns the First of every member whose Second equals b, in order.
func Firsts[A, B comparable](s *Set[Pair[A, B]], b B) []A {
	var out []A
	for _, k := range s.Keys() {
		if k.Second == b {
			out = append(out, k.First)
		}
	}
	return out
}
