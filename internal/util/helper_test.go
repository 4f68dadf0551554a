package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneSlice(t *testing.T) {
	src := []float64{1, 2, 3}

	clone := CloneSlice(src, 0)
	assert.Equal(t, src, clone)

	clone[0] = 42
	assert.Equal(t, 1.0, src[0], "clone must not alias the source")

	padded := CloneSlice(src, 5)
	assert.Equal(t, []float64{1, 2, 3, 0, 0}, padded)

	assert.Empty(t, CloneSlice([]int(nil), 0))
}
