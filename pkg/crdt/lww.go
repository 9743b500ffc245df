package crdt

import (
	"encoding/json"
	"fmt"
	"sort"
)

// LWW is the last-writer-wins file-sync set: a map of relative path to
// (timestamp, content-or-tombstone). It is the pure join algebra for the
// variant described in spec §4.3 — package lwwsync wraps it with the
// filesystem scan/apply behaviour that makes it reflect a real directory.
//
// Content is base64 when present; a tombstone carries no content and
// means "this path was deleted at Timestamp". Equal timestamps are left
// as a no-op (see LWWEntry.Timestamp comparison in Merge): this
// deployment resolves ties by "no change" rather than a
// (timestamp, node-id) secondary order.
type LWW struct {
	Entries map[string]LWWEntry
}

// LWWEntry is one path's state: a timestamp and either base64 content or,
// for Tombstone, none.
type LWWEntry struct {
	Timestamp string
	Tombstone bool
	Content   string // base64; meaningless when Tombstone is true
}

func NewLWW() *LWW {
	return &LWW{Entries: make(map[string]LWWEntry)}
}

// LWWPutOp sets one path under newer-wins: the write is applied
// only if Timestamp is strictly greater than any existing entry's.
type LWWPutOp struct {
	Path      string
	Timestamp string
	Tombstone bool
	Content   string
}

func (l *LWW) LocalUpdate(op any) (bool, error) {
	o, ok := op.(LWWPutOp)
	if !ok {
		panic(fmt.Sprintf("lww: unsupported op %T", op))
	}
	existing, has := l.Entries[o.Path]
	if has && !(o.Timestamp > existing.Timestamp) {
		return false, nil
	}
	l.Entries[o.Path] = LWWEntry{Timestamp: o.Timestamp, Tombstone: o.Tombstone, Content: o.Content}
	return true, nil
}

// Merge joins remote in: for every path, the strictly newer timestamp
// wins; equal timestamps leave the receiver unchanged.
func (l *LWW) Merge(remote Value) (bool, error) {
	r, ok := remote.(*LWW)
	if !ok {
		return false, fmt.Errorf("lww: cannot merge %T", remote)
	}
	changed := false
	for path, rentry := range r.Entries {
		lentry, has := l.Entries[path]
		if !has || rentry.Timestamp > lentry.Timestamp {
			l.Entries[path] = rentry
			changed = true
		}
	}
	return changed, nil
}

// Query returns every path that is not currently a tombstone.
func (l *LWW) Query() any {
	out := make([]string, 0, len(l.Entries))
	for path, e := range l.Entries {
		if !e.Tombstone {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// lwwWireEntry renders [timestamp, content-or-null] as required by the
// wire/snapshot format.
type lwwWireEntry struct {
	Timestamp string
	Content   *string
}

func (e lwwWireEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Timestamp, e.Content})
}

func (e *lwwWireEntry) UnmarshalJSON(data []byte) error {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[0], &e.Timestamp); err != nil {
		return err
	}
	var content *string
	if err := json.Unmarshal(tuple[1], &content); err != nil {
		return err
	}
	e.Content = content
	return nil
}

func (l *LWW) Encode() ([]byte, error) {
	wire := make(map[string]lwwWireEntry, len(l.Entries))
	for path, e := range l.Entries {
		we := lwwWireEntry{Timestamp: e.Timestamp}
		if !e.Tombstone {
			content := e.Content
			we.Content = &content
		}
		wire[path] = we
	}
	return json.Marshal(wire)
}

func DecodeLWW(data []byte) (*LWW, error) {
	if len(data) == 0 {
		return NewLWW(), nil
	}
	var wire map[string]lwwWireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode lww: %w", err)
	}
	l := NewLWW()
	for path, we := range wire {
		if we.Content == nil {
			l.Entries[path] = LWWEntry{Timestamp: we.Timestamp, Tombstone: true}
		} else {
			l.Entries[path] = LWWEntry{Timestamp: we.Timestamp, Content: *we.Content}
		}
	}
	return l, nil
}

func (l *LWW) Summary() string {
	live := l.Query().([]string)
	return fmt.Sprintf("lww(%d live, %d tombstoned)", len(live), len(l.Entries)-len(live))
}
