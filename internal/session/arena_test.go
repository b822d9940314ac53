package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArenaStoreWithinCapacity(t *testing.T) {
	a := NewArena(16)

	got, ok := a.Store("hello")
	assert.True(t, ok)
	assert.Equal(t, "hello", got)
	assert.Equal(t, 11, a.Remaining())
}

func TestArenaStoreExceedingCapacityFails(t *testing.T) {
	a := NewArena(4)

	_, ok := a.Store("too long for this arena")
	assert.False(t, ok)
	assert.Equal(t, 4, a.Remaining())
}

func TestArenaStoreDoesNotAliasInput(t *testing.T) {
	a := NewArena(64)
	buf := []byte("mutable")
	got, ok := a.Store(string(buf))
	assert.True(t, ok)

	buf[0] = 'X'
	assert.Equal(t, "mutable", got)
}
