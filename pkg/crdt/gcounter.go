package crdt

import (
	"encoding/json"
	"fmt"
)

// GCounter is a grow-only counter: a map of node id to a non-negative
// count, queried as the sum, joined by per-node maximum.
type GCounter struct {
	Counters map[string]uint64
}

// NewGCounter returns an empty G-Counter.
func NewGCounter() *GCounter {
	return &GCounter{Counters: make(map[string]uint64)}
}

// GCounterOp increments this node's own entry by a positive amount.
// Decrement is not representable: a G-Counter only grows.
type GCounterOp struct {
	NodeID string
	Delta  uint64
}

func (g *GCounter) LocalUpdate(op any) (bool, error) {
	o, ok := op.(GCounterOp)
	if !ok {
		panic(fmt.Sprintf("gcounter: unsupported op %T", op))
	}
	if o.Delta == 0 {
		return false, nil
	}
	g.Counters[o.NodeID] += o.Delta
	return true, nil
}

func (g *GCounter) Merge(remote Value) (bool, error) {
	r, ok := remote.(*GCounter)
	if !ok {
		return false, fmt.Errorf("gcounter: cannot merge %T", remote)
	}
	changed := false
	for node, val := range r.Counters {
		if val > g.Counters[node] {
			g.Counters[node] = val
			changed = true
		}
	}
	return changed, nil
}

func (g *GCounter) Query() any {
	var total uint64
	for _, v := range g.Counters {
		total += v
	}
	return total
}

type gcounterWire struct {
	Counters      map[string]uint64 `json:"counters"`
	LastFileCount int               `json:"last_file_count"`
}

func (g *GCounter) Encode() ([]byte, error) {
	return json.Marshal(gcounterWire{Counters: g.Counters})
}

// DecodeGCounter parses the wire/snapshot JSON shape for a G-Counter.
// last_file_count is accepted for wire compatibility but unused outside
// the LWW variant's lineage; pure counters never populate it.
func DecodeGCounter(data []byte) (*GCounter, error) {
	var w gcounterWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode gcounter: %w", err)
	}
	if w.Counters == nil {
		w.Counters = make(map[string]uint64)
	}
	return &GCounter{Counters: w.Counters}, nil
}

func (g *GCounter) Summary() string {
	total := g.Query().(uint64)
	return fmt.Sprintf("gcounter(%d nodes, total=%d)", len(g.Counters), total)
}
