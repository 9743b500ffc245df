package crdt

import (
	"testing"

	"github.com/cuemby/crdtsync/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(config.Kind("bogus"), "n1")
	assert.Error(t, err)
}

func TestNew_AllKinds(t *testing.T) {
	kinds := []config.Kind{
		config.KindGCounter,
		config.KindPNCounter,
		config.KindGSet,
		config.KindTwoPhaseSet,
		config.KindORSet,
		config.KindLWW,
	}
	for _, k := range kinds {
		v, err := New(k, "n1")
		require.NoErrorf(t, err, "kind %s", k)
		require.NotNil(t, v)
	}
}

func TestDecode_RoundTripsThroughEncode(t *testing.T) {
	kinds := []config.Kind{
		config.KindGCounter,
		config.KindPNCounter,
		config.KindGSet,
		config.KindTwoPhaseSet,
		config.KindORSet,
		config.KindLWW,
	}
	for _, k := range kinds {
		v, err := New(k, "n1")
		require.NoError(t, err)

		data, err := v.Encode()
		require.NoErrorf(t, err, "kind %s", k)

		decoded, err := Decode(k, data)
		require.NoErrorf(t, err, "kind %s", k)
		require.NotNil(t, decoded)
	}
}

func TestMerge_CommutativeForGCounter(t *testing.T) {
	a := NewGCounter()
	a.Counters["a"] = 3
	b := NewGCounter()
	b.Counters["b"] = 5

	ab := NewGCounter()
	_, _ = ab.Merge(a)
	_, _ = ab.Merge(b)

	ba := NewGCounter()
	_, _ = ba.Merge(b)
	_, _ = ba.Merge(a)

	assert.Equal(t, ab.Counters, ba.Counters)
}

func TestMerge_AssociativeForGSet(t *testing.T) {
	mk := func(e string) *GSet {
		s := NewGSet()
		mustUpdate(t, s, GSetOp{Element: e})
		return s
	}
	x, y, z := mk("x"), mk("y"), mk("z")

	left := NewGSet()
	_, _ = left.Merge(x)
	_, _ = left.Merge(y)
	_, _ = left.Merge(z)

	right := NewGSet()
	_, _ = right.Merge(y)
	_, _ = right.Merge(z)
	_, _ = right.Merge(x)

	assert.ElementsMatch(t, left.Query().([]string), right.Query().([]string))
}
