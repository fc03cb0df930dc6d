package utils

// Chunk splits a slice into consecutive batches of at most size elements,
// preserving order. The last batch holds the remainder.
// A size below 1 yields a single batch with every element.
func Chunk[T any](slice []T, size int) [][]T {
	if len(slice) == 0 {
		return nil
	}
	if size < 1 || size >= len(slice) {
		return [][]T{slice}
	}

	batches := make([][]T, 0, (len(slice)+size-1)/size)
	for start := 0; start < len(slice); start += size {
		end := start + size
		if end > len(slice) {
			end = len(slice)
		}
		batches = append(batches, slice[start:end:end])
	}
	return batches
}
