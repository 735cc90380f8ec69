// Package batch splits work into fixed-size chunks.
package batch

// DefaultSize is used when a caller passes a size below 1.
const DefaultSize = 100

// Split partitions items into consecutive chunks of at most size elements,
// preserving order. Chunks share the backing array of items.
func Split[T any](items []T, size int) [][]T {
	if size < 1 {
		size = DefaultSize
	}
	if len(items) == 0 {
		return nil
	}

	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}
