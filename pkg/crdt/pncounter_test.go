package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNCounter_ScenarioS2(t *testing.T) {
	// a:+10, b:+4, a:-3, b:-1 — after full gossip, query is 10 everywhere.
	a, b := NewPNCounter(), NewPNCounter()
	mustUpdate(t, a, PNCounterOp{NodeID: "a", Delta: 10})
	mustUpdate(t, b, PNCounterOp{NodeID: "b", Delta: 4})
	mustUpdate(t, a, PNCounterOp{NodeID: "a", Delta: 3, Decrement: true})
	mustUpdate(t, b, PNCounterOp{NodeID: "b", Delta: 1, Decrement: true})

	_, err := a.Merge(b)
	require.NoError(t, err)
	_, err = b.Merge(a)
	require.NoError(t, err)

	assert.Equal(t, int64(10), a.Query())
	assert.Equal(t, int64(10), b.Query())
}

func TestPNCounter_DecrementThenIncrementRestoresQuery(t *testing.T) {
	c := NewPNCounter()
	mustUpdate(t, c, PNCounterOp{NodeID: "a", Delta: 5})
	before := c.Query()

	mustUpdate(t, c, PNCounterOp{NodeID: "a", Delta: 3, Decrement: true})
	mustUpdate(t, c, PNCounterOp{NodeID: "a", Delta: 3})

	assert.Equal(t, before, c.Query())
}

func TestPNCounter_Commutative(t *testing.T) {
	a, b := NewPNCounter(), NewPNCounter()
	mustUpdate(t, a, PNCounterOp{NodeID: "a", Delta: 7})
	mustUpdate(t, b, PNCounterOp{NodeID: "b", Delta: 2, Decrement: true})

	ab := NewPNCounter()
	_, _ = ab.Merge(a)
	_, _ = ab.Merge(b)

	ba := NewPNCounter()
	_, _ = ba.Merge(b)
	_, _ = ba.Merge(a)

	assert.Equal(t, ab.Query(), ba.Query())
	assert.Equal(t, ab.P, ba.P)
	assert.Equal(t, ab.N, ba.N)
}
