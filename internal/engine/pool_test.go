package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolSize(t *testing.T) {
	assert.Equal(t, 4, poolSize(4, 10), "work beyond the limit uses every worker")
	assert.Equal(t, 2, poolSize(4, 2), "small task lists do not spawn idle workers")
	assert.Equal(t, 1, poolSize(4, 0), "a pool always has one worker")
}
