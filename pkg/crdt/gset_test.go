package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGSet_AddAndQuery(t *testing.T) {
	s := NewGSet()
	mustUpdate(t, s, GSetOp{Element: "x"})
	mustUpdate(t, s, GSetOp{Element: "y"})
	assert.ElementsMatch(t, []string{"x", "y"}, s.Query().([]string))
}

func TestGSet_AddIsIdempotent(t *testing.T) {
	s := NewGSet()
	changed, err := s.LocalUpdate(GSetOp{Element: "x"})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.LocalUpdate(GSetOp{Element: "x"})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestGSet_MergeUnion(t *testing.T) {
	a := NewGSet()
	mustUpdate(t, a, GSetOp{Element: "x"})
	b := NewGSet()
	mustUpdate(t, b, GSetOp{Element: "y"})

	_, err := a.Merge(b)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, a.Query().([]string))
}
