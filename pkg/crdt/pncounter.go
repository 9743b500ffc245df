package crdt

import (
	"encoding/json"
	"fmt"
)

// PNCounter supports both increment and decrement by pairing two
// G-Counters: P tracks increments, N tracks decrements, and the query is
// their difference.
type PNCounter struct {
	P map[string]uint64
	N map[string]uint64
}

func NewPNCounter() *PNCounter {
	return &PNCounter{P: make(map[string]uint64), N: make(map[string]uint64)}
}

// PNCounterOp increments P (Decrement=false) or N (Decrement=true) for
// NodeID by Delta, which must be positive.
type PNCounterOp struct {
	NodeID    string
	Delta     uint64
	Decrement bool
}

func (c *PNCounter) LocalUpdate(op any) (bool, error) {
	o, ok := op.(PNCounterOp)
	if !ok {
		panic(fmt.Sprintf("pncounter: unsupported op %T", op))
	}
	if o.Delta == 0 {
		return false, nil
	}
	if o.Decrement {
		c.N[o.NodeID] += o.Delta
	} else {
		c.P[o.NodeID] += o.Delta
	}
	return true, nil
}

func mergeCounterMap(dst, src map[string]uint64) bool {
	changed := false
	for node, val := range src {
		if val > dst[node] {
			dst[node] = val
			changed = true
		}
	}
	return changed
}

func (c *PNCounter) Merge(remote Value) (bool, error) {
	r, ok := remote.(*PNCounter)
	if !ok {
		return false, fmt.Errorf("pncounter: cannot merge %T", remote)
	}
	changedP := mergeCounterMap(c.P, r.P)
	changedN := mergeCounterMap(c.N, r.N)
	return changedP || changedN, nil
}

func sumCounterMap(m map[string]uint64) uint64 {
	var total uint64
	for _, v := range m {
		total += v
	}
	return total
}

func (c *PNCounter) Query() any {
	return int64(sumCounterMap(c.P)) - int64(sumCounterMap(c.N))
}

type pncounterWire struct {
	PCounters map[string]uint64 `json:"p_counters"`
	NCounters map[string]uint64 `json:"n_counters"`
}

func (c *PNCounter) Encode() ([]byte, error) {
	return json.Marshal(pncounterWire{PCounters: c.P, NCounters: c.N})
}

func DecodePNCounter(data []byte) (*PNCounter, error) {
	var w pncounterWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode pncounter: %w", err)
	}
	if w.PCounters == nil {
		w.PCounters = make(map[string]uint64)
	}
	if w.NCounters == nil {
		w.NCounters = make(map[string]uint64)
	}
	return &PNCounter{P: w.PCounters, N: w.NCounters}, nil
}

func (c *PNCounter) Summary() string {
	return fmt.Sprintf("pncounter(query=%d)", c.Query())
}
