package crdt

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestLWW_ScenarioS5_NewerContentWins(t *testing.T) {
	l := NewLWW()
	mustUpdate(t, l, LWWPutOp{Path: "r/a.txt", Timestamp: "2026-01-01T00:00:00.000Z", Content: b64("A1")})

	remote := NewLWW()
	remote.Entries["r/a.txt"] = LWWEntry{Timestamp: "2026-01-01T00:00:01.000Z", Content: b64("A2")}

	changed, err := l.Merge(remote)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "A2", decode(t, l.Entries["r/a.txt"].Content))
}

func TestLWW_EqualTimestampIsNoChange(t *testing.T) {
	l := NewLWW()
	l.Entries["k"] = LWWEntry{Timestamp: "2026-01-01T00:00:00.000Z", Content: b64("v1")}

	remote := NewLWW()
	remote.Entries["k"] = LWWEntry{Timestamp: "2026-01-01T00:00:00.000Z", Content: b64("v2")}

	changed, err := l.Merge(remote)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "v1", decode(t, l.Entries["k"].Content))
}

func TestLWW_ScenarioS6_TombstoneOverwritesContent(t *testing.T) {
	l := NewLWW()
	l.Entries["doc"] = LWWEntry{Timestamp: "2026-01-01T00:00:00.000Z", Content: b64("hello")}

	remote := NewLWW()
	remote.Entries["doc"] = LWWEntry{Timestamp: "2026-01-01T00:00:05.000Z", Tombstone: true}

	changed, err := l.Merge(remote)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, l.Entries["doc"].Tombstone)
	assert.NotContains(t, l.Query(), "doc")
}

func TestLWW_EncodeDecodeRoundTrip(t *testing.T) {
	l := NewLWW()
	l.Entries["a"] = LWWEntry{Timestamp: "2026-01-01T00:00:00.000Z", Content: b64("x")}
	l.Entries["b"] = LWWEntry{Timestamp: "2026-01-01T00:00:00.000Z", Tombstone: true}

	data, err := l.Encode()
	require.NoError(t, err)

	decoded, err := DecodeLWW(data)
	require.NoError(t, err)
	assert.Equal(t, l.Entries["a"], decoded.Entries["a"])
	assert.True(t, decoded.Entries["b"].Tombstone)
}

func TestLWW_DecodeEmptyPayloadIsNoOp(t *testing.T) {
	decoded, err := DecodeLWW(nil)
	require.NoError(t, err)
	assert.Empty(t, decoded.Entries)
}

func decode(t *testing.T, content string) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(content)
	require.NoError(t, err)
	return string(raw)
}
