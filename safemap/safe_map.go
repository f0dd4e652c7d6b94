// Package safemap provides a type-safe, concurrent map built on sync.Map.
// gpiod keys its live TCP sessions and its broadcast roster by session id
// with it.
package safemap

import (
	"cmp"
	"slices"
	"sync"
)

// SafeMap is a concurrent map that is safe for use by multiple goroutines.
// It wraps sync.Map and exposes a generic, type-safe API.
//
// SafeMap must not be copied after first use. Len, Values and Range are O(n)
// in the number of entries.
type SafeMap[K comparable, V any] struct {
	m sync.Map
}

// New returns an empty SafeMap ready for use.
func New[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{}
}

// Store sets the value for key k, overwriting any existing value.
func (m *SafeMap[K, V]) Store(k K, v V) {
	m.m.Store(k, v)
}

// Load returns the value for key k and whether it was present. A missing
// key yields the zero value of V.
//
// Parameters:
//   - k: The key to look up
//
// Returns:
//   - The value associated with k, or the zero value of V if not found
//   - true if the key was present
func (m *SafeMap[K, V]) Load(k K) (V, bool) {
	v, found := m.m.Load(k)
	if !found {
		var empty V
		return empty, false
	}

	return v.(V), true
}

// Has reports whether key k is present.
func (m *SafeMap[K, V]) Has(k K) bool {
	_, found := m.m.Load(k)
	return found
}

// Delete removes the entry for key k. Deleting a missing key is a no-op.
func (m *SafeMap[K, V]) Delete(k K) {
	m.m.Delete(k)
}

// CompareAndDelete removes the entry for k only if its value equals old. V
// must be a comparable type at run time, such as a pointer or an interface
// holding one.
//
// Parameters:
//   - k: The key to remove
//   - old: The value k must currently map to
//
// Returns:
//   - true if the entry was removed
func (m *SafeMap[K, V]) CompareAndDelete(k K, old V) bool {
	return m.m.CompareAndDelete(k, old)
}

// Range calls f for each entry until f returns false. Entries stored or
// deleted during the walk may or may not be visited.
func (m *SafeMap[K, V]) Range(f func(k K, v V) bool) {
	m.m.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}

// Len returns the number of entries.
func (m *SafeMap[K, V]) Len() int {
	n := 0
	m.m.Range(func(_, _ any) bool {
		n++
		return true
	})

	return n
}

// Values returns every value ordered by key.
func Values[K cmp.Ordered, V any](m *SafeMap[K, V]) []V {
	type entry struct {
		k K
		v V
	}

	var entries []entry
	m.Range(func(k K, v V) bool {
		entries = append(entries, entry{k, v})
		return true
	})

	slices.SortFunc(entries, func(a, b entry) int { return cmp.Compare(a.k, b.k) })

	out := make([]V, len(entries))
	for i, e := range entries {
		out[i] = e.v
	}

	return out
}
