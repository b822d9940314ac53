package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolMapLoadMiss(t *testing.T) {
	var c symbolMap
	_, ok := c.load("execve")
	assert.False(t, ok)
}

func TestSymbolMapStoreThenLoad(t *testing.T) {
	var c symbolMap
	c.store("execve", Symbol(nil))
	sym, ok := c.load("execve")
	assert.True(t, ok)
	assert.Nil(t, sym)
}
