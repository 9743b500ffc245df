package lwwsync

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/crdtsync/pkg/crdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func TestEngine_ScanPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")

	e := NewEngine(dir)
	changed, err := e.LocalUpdate(ScanOp{})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"a.txt"}, e.Query())
}

func TestEngine_ScanIgnoresStateFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")

	e := NewEngine(dir)
	_, err := e.LocalUpdate(ScanOp{})
	require.NoError(t, err)

	_, err = os.Stat(e.statePath)
	require.NoError(t, err)

	e2 := NewEngine(dir)
	_, err = e2.LocalUpdate(ScanOp{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, e2.Query())
}

func TestEngine_ScanTombstonesRemovedFileOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")

	e := NewEngine(dir)
	_, err := e.LocalUpdate(ScanOp{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.txt")))
	changed, err := e.LocalUpdate(ScanOp{})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, e.value.Entries["a.txt"].Tombstone)
	stamp := e.value.Entries["a.txt"].Timestamp

	// A second scan with the file still absent must not rebump the
	// tombstone timestamp, or convergence would never settle.
	changed, err = e.LocalUpdate(ScanOp{})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, stamp, e.value.Entries["a.txt"].Timestamp)
}

func TestEngine_DeleteRemovesFileAndTombstones(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")

	e := NewEngine(dir)
	_, err := e.LocalUpdate(ScanOp{})
	require.NoError(t, err)

	changed, err := e.LocalUpdate(DeleteOp{Path: "a.txt"})
	require.NoError(t, err)
	assert.True(t, changed)

	_, statErr := os.Stat(filepath.Join(dir, "a.txt"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, e.Query())
}

func TestEngine_MergeWritesNewerRemoteContent(t *testing.T) {
	dir := t.TempDir()
	e := NewEngine(dir)

	remote := crdt.NewLWW()
	remote.Entries["docs/readme.txt"] = crdt.LWWEntry{
		Timestamp: "2026-01-01T00:00:00.000Z",
		Content:   base64.StdEncoding.EncodeToString([]byte("hi there")),
	}

	changed, err := e.Merge(remote)
	require.NoError(t, err)
	assert.True(t, changed)

	data, err := os.ReadFile(filepath.Join(dir, "docs/readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi there", string(data))
}

func TestEngine_MergeThenScanDoesNotReBumpTimestamp(t *testing.T) {
	dir := t.TempDir()
	e := NewEngine(dir)

	remote := crdt.NewLWW()
	remote.Entries["docs/readme.txt"] = crdt.LWWEntry{
		Timestamp: "2026-01-01T00:00:00.000Z",
		Content:   base64.StdEncoding.EncodeToString([]byte("hi there")),
	}

	changed, err := e.Merge(remote)
	require.NoError(t, err)
	assert.True(t, changed)
	adopted := e.value.Entries["docs/readme.txt"].Timestamp

	// The merge-written file's mtime must be pinned to the adopted
	// timestamp, or the next scan reads "now" as a newer mtime and
	// re-bumps the entry, gossiping it back out forever.
	changed, err = e.LocalUpdate(ScanOp{})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, adopted, e.value.Entries["docs/readme.txt"].Timestamp)

	// A second scan confirms the state is stable, not just one tick behind.
	changed, err = e.LocalUpdate(ScanOp{})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestEngine_MergeTombstoneRemovesLocalFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")

	e := NewEngine(dir)
	_, err := e.LocalUpdate(ScanOp{})
	require.NoError(t, err)

	remote := crdt.NewLWW()
	remote.Entries["a.txt"] = crdt.LWWEntry{Timestamp: "2099-01-01T00:00:00.000Z", Tombstone: true}

	changed, err := e.Merge(remote)
	require.NoError(t, err)
	assert.True(t, changed)

	_, statErr := os.Stat(filepath.Join(dir, "a.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestEngine_MergeIgnoresOlderRemote(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "newer")

	e := NewEngine(dir)
	_, err := e.LocalUpdate(ScanOp{})
	require.NoError(t, err)
	e.value.Entries["a.txt"] = crdt.LWWEntry{Timestamp: "2026-06-01T00:00:00.000Z"}

	remote := crdt.NewLWW()
	remote.Entries["a.txt"] = crdt.LWWEntry{
		Timestamp: "2020-01-01T00:00:00.000Z",
		Content:   base64.StdEncoding.EncodeToString([]byte("older")),
	}

	changed, err := e.Merge(remote)
	require.NoError(t, err)
	assert.False(t, changed)

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "newer", string(data))
}

func TestEngine_EncodeReadsFreshContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "v1")

	e := NewEngine(dir)
	_, err := e.LocalUpdate(ScanOp{})
	require.NoError(t, err)

	writeFile(t, dir, "a.txt", "v2")

	data, err := e.Encode()
	require.NoError(t, err)

	decoded, err := crdt.DecodeLWW(data)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(decoded.Entries["a.txt"].Content)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(raw))
}

func TestEngine_PersistSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")

	e := NewEngine(dir)
	_, err := e.LocalUpdate(ScanOp{})
	require.NoError(t, err)

	e2 := NewEngine(dir)
	changed, err := e2.LocalUpdate(ScanOp{})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []string{"a.txt"}, e2.Query())
}
