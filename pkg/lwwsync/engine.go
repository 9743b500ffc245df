/*
Package lwwsync is the LWW file-sync engine: it reflects a local directory
tree into a crdt.LWW value and applies merged remote state back onto
disk. This is the delicate component spec calls out by name — scanning
must never resurrect a tombstone, encoding must cope with a file that
disappears mid-read, and merging must never write a file over a strictly
newer local one.

Engine owns a *crdt.LWW purely for the join algebra (spec §4.1's
contract); everything filesystem-specific — walking the folder, reading
bytes, writing atomically, persisting .lww_state.json — lives here so the
crdt package stays free of I/O.
*/
package lwwsync

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/crdtsync/pkg/clock"
	"github.com/cuemby/crdtsync/pkg/crdt"
	"github.com/cuemby/crdtsync/pkg/log"
	"github.com/cuemby/crdtsync/pkg/snapshot"
)

// stateFileName is the reserved file inside the sync folder holding the
// path-to-timestamp map (never content) so tombstones survive a restart.
const stateFileName = ".lww_state.json"

const readRetries = 3
const readRetryBackoff = 20 * time.Millisecond

var engineLog = log.WithComponent("lwwsync")

// Engine implements crdt.Value for the "lww" kind, backed by folder.
type Engine struct {
	folder    string
	statePath string
	value     *crdt.LWW
}

// ScanOp triggers a directory rescan; it is the operation the replica's
// scan timer passes to LocalUpdate.
type ScanOp struct{}

// DeleteOp records a host-triggered local delete, pre-empting the
// scanner so the tombstone is gossiped on the very next round.
type DeleteOp struct {
	Path string
}

// NewEngine returns an Engine rooted at folder. The folder is created by
// the first scan if missing; state is empty until that scan, which also
// restores .lww_state.json.
func NewEngine(folder string) *Engine {
	return &Engine{
		folder:    folder,
		statePath: filepath.Join(folder, stateFileName),
		value:     crdt.NewLWW(),
	}
}

func isReserved(relpath string) bool {
	base := filepath.Base(relpath)
	if base == stateFileName {
		return true
	}
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, ".swp") {
		return true
	}
	return false
}

func toSlash(p string) string {
	return filepath.ToSlash(p)
}

// LocalUpdate accepts ScanOp (rescan the folder) or DeleteOp (immediate
// tombstone of one path).
func (e *Engine) LocalUpdate(op any) (bool, error) {
	switch o := op.(type) {
	case ScanOp:
		return e.scan()
	case DeleteOp:
		return e.delete(o.Path)
	default:
		panic(fmt.Sprintf("lwwsync: unsupported op %T", op))
	}
}

// scan implements spec §4.3's scan algorithm.
func (e *Engine) scan() (bool, error) {
	if err := os.MkdirAll(e.folder, 0755); err != nil {
		return false, fmt.Errorf("mkdir sync folder %s: %w", e.folder, err)
	}

	now := clock.Now()
	current, err := e.listCurrent()
	if err != nil {
		return false, fmt.Errorf("scan sync folder %s: %w", e.folder, err)
	}

	if len(e.value.Entries) == 0 {
		if loaded, err := e.loadPersisted(); err == nil && len(loaded) > 0 {
			e.value.Entries = loaded
		}
	}

	if len(e.value.Entries) == 0 {
		for path, mtime := range current {
			e.value.Entries[path] = crdt.LWWEntry{Timestamp: mtime}
		}
		return true, e.persist()
	}

	changed := false

	for path, mtime := range current {
		existing, ok := e.value.Entries[path]
		if !ok || mtime > existing.Timestamp {
			e.value.Entries[path] = crdt.LWWEntry{Timestamp: mtime}
			changed = true
		}
	}

	for path, existing := range e.value.Entries {
		if _, present := current[path]; present {
			continue
		}
		if existing.Tombstone {
			// Already recorded as gone; don't keep bumping the
			// timestamp every scan, or convergence would never
			// settle on a stable tombstone timestamp.
			continue
		}
		e.value.Entries[path] = crdt.LWWEntry{Timestamp: now, Tombstone: true}
		changed = true
	}

	if changed {
		if err := e.persist(); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

func (e *Engine) listCurrent() (map[string]string, error) {
	current := make(map[string]string)
	err := filepath.WalkDir(e.folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(e.folder, path)
		if err != nil {
			return err
		}
		rel = toSlash(rel)
		if isReserved(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		current[rel] = clock.Format(info.ModTime())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

// delete records an immediate local tombstone for path and removes the
// file from disk if present.
func (e *Engine) delete(path string) (bool, error) {
	path = toSlash(path)
	full := filepath.Join(e.folder, filepath.FromSlash(path))
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("delete %s: %w", path, err)
	}
	e.value.Entries[path] = crdt.LWWEntry{Timestamp: clock.Now(), Tombstone: true}
	return true, e.persist()
}

// Merge applies a decoded remote *crdt.LWW: newer entries adopt the
// remote timestamp and, for live content, write/overwrite the file; for
// tombstones, remove the file if present. Entries whose write fails keep
// their old timestamp so the next merge retries.
func (e *Engine) Merge(remote crdt.Value) (bool, error) {
	r, ok := remote.(*crdt.LWW)
	if !ok {
		return false, fmt.Errorf("lwwsync: cannot merge %T", remote)
	}

	changed := false
	for path, rentry := range r.Entries {
		if isReserved(path) {
			continue
		}
		local, has := e.value.Entries[path]
		if has && !(rentry.Timestamp > local.Timestamp) {
			continue
		}

		if rentry.Tombstone {
			full := filepath.Join(e.folder, filepath.FromSlash(path))
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				engineLog.Error().Err(err).Str("path", full).Msg("remove during merge failed")
				continue
			}
			e.value.Entries[path] = crdt.LWWEntry{Timestamp: rentry.Timestamp, Tombstone: true}
			changed = true
			continue
		}

		data, err := base64.StdEncoding.DecodeString(rentry.Content)
		if err != nil {
			engineLog.Error().Err(err).Str("path", path).Msg("invalid base64 content during merge")
			continue
		}
		full := filepath.Join(e.folder, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			engineLog.Error().Err(err).Str("path", full).Msg("mkdir during merge failed")
			continue
		}
		if err := snapshot.Write(full, data); err != nil {
			engineLog.Error().Err(err).Str("path", full).Msg("write during merge failed")
			continue
		}
		// Pin mtime to the adopted timestamp so the next scan sees
		// mtime == stored timestamp, not "now" — otherwise scan would
		// read the write time as a newer mtime and re-bump the entry,
		// gossiping it right back out forever.
		if t, err := clock.Parse(rentry.Timestamp); err == nil {
			if err := os.Chtimes(full, t, t); err != nil {
				engineLog.Error().Err(err).Str("path", full).Msg("chtimes during merge failed")
			}
		}
		e.value.Entries[path] = crdt.LWWEntry{Timestamp: rentry.Timestamp}
		changed = true
	}

	if changed {
		if err := e.persist(); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// Query returns the live (non-tombstoned) paths.
func (e *Engine) Query() any {
	return e.value.Query()
}

// Encode re-reads each live path's current bytes from disk (so gossip
// always carries fresh content, not whatever was cached at last scan)
// and emits the wire format described in the external interfaces. A read
// that fails after retrying is sent as a tombstone-shaped payload for
// that key only — safe, because a peer only adopts it if its timestamp
// is strictly newer than what it already has.
func (e *Engine) Encode() ([]byte, error) {
	wire := make(map[string]*[2]any, len(e.value.Entries))
	for path, entry := range e.value.Entries {
		if entry.Tombstone {
			wire[path] = &[2]any{entry.Timestamp, nil}
			continue
		}
		content, err := e.readWithRetry(path)
		if err != nil {
			engineLog.Error().Err(err).Str("path", path).Msg("read for encode failed after retries")
			wire[path] = &[2]any{entry.Timestamp, nil}
			continue
		}
		encoded := base64.StdEncoding.EncodeToString(content)
		wire[path] = &[2]any{entry.Timestamp, encoded}
	}
	return json.Marshal(wire)
}

func (e *Engine) readWithRetry(path string) ([]byte, error) {
	full := filepath.Join(e.folder, filepath.FromSlash(path))
	var lastErr error
	for attempt := 0; attempt < readRetries; attempt++ {
		data, err := os.ReadFile(full)
		if err == nil {
			return data, nil
		}
		lastErr = err
		time.Sleep(readRetryBackoff)
	}
	return nil, lastErr
}

// Summary describes the engine for operators.
func (e *Engine) Summary() string {
	live := e.value.Query().([]string)
	return fmt.Sprintf("lwwsync(%s, %d live, %d tombstoned)", e.folder, len(live), len(e.value.Entries)-len(live))
}

type persistedEntry struct {
	Timestamp string `json:"timestamp"`
	Tombstone bool   `json:"tombstone"`
}

// persist atomically writes .lww_state.json: path to timestamp (and
// tombstone flag), never content, so restoring it on the next boot is
// cheap and can't resurrect a deleted file.
func (e *Engine) persist() error {
	out := make(map[string]persistedEntry, len(e.value.Entries))
	for path, entry := range e.value.Entries {
		out[path] = persistedEntry{Timestamp: entry.Timestamp, Tombstone: entry.Tombstone}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", stateFileName, err)
	}
	if err := snapshot.Write(e.statePath, data); err != nil {
		return fmt.Errorf("persist %s: %w", stateFileName, err)
	}
	return nil
}

func (e *Engine) loadPersisted() (map[string]crdt.LWWEntry, error) {
	data, err := snapshot.Read(e.statePath)
	if err != nil {
		return nil, err
	}
	var in map[string]persistedEntry
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse %s: %w", stateFileName, err)
	}
	out := make(map[string]crdt.LWWEntry, len(in))
	for path, pe := range in {
		out[path] = crdt.LWWEntry{Timestamp: pe.Timestamp, Tombstone: pe.Tombstone}
	}
	return out, nil
}
