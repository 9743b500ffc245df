package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoPhaseSet_RemoveUnknownElementIsRejected(t *testing.T) {
	s := NewTwoPhaseSet()
	_, err := s.LocalUpdate(TwoPhaseSetOp{Element: "x", Remove: true})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestTwoPhaseSet_ScenarioS3_Irrevocability(t *testing.T) {
	a := NewTwoPhaseSet()
	mustUpdate(t, a, TwoPhaseSetOp{Element: "x"})
	mustUpdate(t, a, TwoPhaseSetOp{Element: "y"})

	b := NewTwoPhaseSet()
	_, err := b.Merge(a)
	require.NoError(t, err)
	mustUpdate(t, b, TwoPhaseSetOp{Element: "y", Remove: true})

	_, err = a.Merge(b)
	require.NoError(t, err)

	// Re-adding "y" at a is accepted into Added but stays invisible.
	changed, err := a.LocalUpdate(TwoPhaseSetOp{Element: "y"})
	require.NoError(t, err)
	assert.False(t, changed, "add of an already-Added element is a no-op")

	_, err = b.Merge(a)
	require.NoError(t, err)

	assert.Equal(t, []string{"x"}, a.Query())
	assert.Equal(t, []string{"x"}, b.Query())
}

func TestTwoPhaseSet_Idempotence(t *testing.T) {
	a := NewTwoPhaseSet()
	mustUpdate(t, a, TwoPhaseSetOp{Element: "x"})
	b := NewTwoPhaseSet()
	_, _ = b.Merge(a)

	before, err := b.Encode()
	require.NoError(t, err)
	_, err = b.Merge(a)
	require.NoError(t, err)
	after, err := b.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}
