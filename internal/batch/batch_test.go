package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}, {7}}, Split(items, 3))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5, 6, 7}}, Split(items, 7))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5, 6, 7}}, Split(items, 50))
	assert.Nil(t, Split([]int{}, 3))
}

func TestSplitDefaultsSize(t *testing.T) {
	items := make([]int, 250)
	for _, size := range []int{0, -4} {
		chunks := Split(items, size)
		assert.Len(t, chunks, 3)
		assert.Len(t, chunks[0], DefaultSize)
		assert.Len(t, chunks[2], 50)
	}
}

func TestSplitPreservesEveryElementInOrder(t *testing.T) {
	items := make([]int, 101)
	for i := range items {
		items[i] = i
	}

	for _, size := range []int{1, 2, 7, 100, 101, 1000} {
		var flat []int
		for _, c := range Split(items, size) {
			assert.LessOrEqual(t, len(c), size)
			flat = append(flat, c...)
		}
		assert.Equal(t, items, flat, "size %d", size)
	}
}

func TestSplitChunksDoNotAlias(t *testing.T) {
	chunks := Split([]int{1, 2, 3, 4}, 2)
	chunks[0] = append(chunks[0], 99)
	assert.Equal(t, []int{3, 4}, chunks[1])
}
