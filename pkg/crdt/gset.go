package crdt

import (
	"encoding/json"
	"fmt"
	"sort"
)

// GSet is a grow-only set: elements can be added, never removed.
type GSet struct {
	Elements map[string]struct{}
}

func NewGSet() *GSet {
	return &GSet{Elements: make(map[string]struct{})}
}

// GSetOp is the only operation a G-Set supports.
type GSetOp struct {
	Element string
}

func (s *GSet) LocalUpdate(op any) (bool, error) {
	o, ok := op.(GSetOp)
	if !ok {
		panic(fmt.Sprintf("gset: unsupported op %T", op))
	}
	if _, exists := s.Elements[o.Element]; exists {
		return false, nil
	}
	s.Elements[o.Element] = struct{}{}
	return true, nil
}

func (s *GSet) Merge(remote Value) (bool, error) {
	r, ok := remote.(*GSet)
	if !ok {
		return false, fmt.Errorf("gset: cannot merge %T", remote)
	}
	changed := false
	for e := range r.Elements {
		if _, exists := s.Elements[e]; !exists {
			s.Elements[e] = struct{}{}
			changed = true
		}
	}
	return changed, nil
}

func (s *GSet) Query() any {
	out := make([]string, 0, len(s.Elements))
	for e := range s.Elements {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

type gsetWire struct {
	Elements []string `json:"elements"`
}

func (s *GSet) Encode() ([]byte, error) {
	return json.Marshal(gsetWire{Elements: s.Query().([]string)})
}

func DecodeGSet(data []byte) (*GSet, error) {
	var w gsetWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode gset: %w", err)
	}
	s := NewGSet()
	for _, e := range w.Elements {
		s.Elements[e] = struct{}{}
	}
	return s, nil
}

func (s *GSet) Summary() string {
	return fmt.Sprintf("gset(%d elements)", len(s.Elements))
}
