// Package service holds small generic helpers shared by the hub monitor and
// the popup manager.
package service

// Filter keeps the items fn accepts, in order. A nil slice comes back when
// nothing matches.
func Filter[T any](items []T, fn func(T) bool) []T {
	var result []T
	for _, v := range items {
		if fn(v) {
			result = append(result, v)
		}
	}
	return result
}

// Count reports how many items fn accepts.
func Count[T any](items []T, fn func(T) bool) int {
	n := 0
	for _, v := range items {
		if fn(v) {
			n++
		}
	}
	return n
}

// FilterMap returns a new map with the entries fn accepts.
func FilterMap[K comparable, V any](m map[K]V, fn func(K, V) bool) map[K]V {
	result := make(map[K]V, len(m))
	for k, v := range m {
		if fn(k, v) {
			result[k] = v
		}
	}
	return result
}
