// Package sliceutil provides small slice manipulation utilities.
package sliceutil

// Dedupe removes duplicates from a slice. Order is preserved.
//
// Example:
//
//	Dedupe([]int64{3, 1, 3, 2, 1})
//	// Returns: []int64{3, 1, 2}
func Dedupe[T comparable](values []T) []T {
	if len(values) == 0 {
		return values
	}

	seen := make(map[T]struct{}, len(values))
	result := make([]T, 0, len(values))

	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}

	return result
}
