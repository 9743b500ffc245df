package crdt

import (
	"encoding/json"
	"fmt"
	"sort"
)

// TwoPhaseSet pairs an "added" G-Set with a "removed" G-Set. Query is
// Added minus Removed. Per the classical 2P-Set rule an element can be
// re-added to Added after removal, but it stays invisible in Query
// because Removed is never cleared: once gone, always gone.
type TwoPhaseSet struct {
	Added   map[string]struct{}
	Removed map[string]struct{}
}

func NewTwoPhaseSet() *TwoPhaseSet {
	return &TwoPhaseSet{Added: make(map[string]struct{}), Removed: make(map[string]struct{})}
}

// TwoPhaseSetOp adds Element when Remove is false. When Remove is true it
// removes Element, but only if Element is currently in Added — removing
// something never added is rejected.
type TwoPhaseSetOp struct {
	Element string
	Remove  bool
}

func (s *TwoPhaseSet) LocalUpdate(op any) (bool, error) {
	o, ok := op.(TwoPhaseSetOp)
	if !ok {
		panic(fmt.Sprintf("two_phase_set: unsupported op %T", op))
	}
	if o.Remove {
		if _, inAdded := s.Added[o.Element]; !inAdded {
			return false, ErrRejected
		}
		if _, already := s.Removed[o.Element]; already {
			return false, nil
		}
		s.Removed[o.Element] = struct{}{}
		return true, nil
	}
	if _, exists := s.Added[o.Element]; exists {
		return false, nil
	}
	s.Added[o.Element] = struct{}{}
	return true, nil
}

func (s *TwoPhaseSet) Merge(remote Value) (bool, error) {
	r, ok := remote.(*TwoPhaseSet)
	if !ok {
		return false, fmt.Errorf("two_phase_set: cannot merge %T", remote)
	}
	changed := false
	for e := range r.Added {
		if _, exists := s.Added[e]; !exists {
			s.Added[e] = struct{}{}
			changed = true
		}
	}
	for e := range r.Removed {
		if _, exists := s.Removed[e]; !exists {
			s.Removed[e] = struct{}{}
			changed = true
		}
	}
	return changed, nil
}

func (s *TwoPhaseSet) Query() any {
	out := make([]string, 0, len(s.Added))
	for e := range s.Added {
		if _, removed := s.Removed[e]; !removed {
			out = append(out, e)
		}
	}
	sort.Strings(out)
	return out
}

type twoPhaseSetWire struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

func setKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for e := range m {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func (s *TwoPhaseSet) Encode() ([]byte, error) {
	return json.Marshal(twoPhaseSetWire{Added: setKeys(s.Added), Removed: setKeys(s.Removed)})
}

func DecodeTwoPhaseSet(data []byte) (*TwoPhaseSet, error) {
	var w twoPhaseSetWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode two_phase_set: %w", err)
	}
	s := NewTwoPhaseSet()
	for _, e := range w.Added {
		s.Added[e] = struct{}{}
	}
	for _, e := range w.Removed {
		s.Removed[e] = struct{}{}
	}
	return s, nil
}

func (s *TwoPhaseSet) Summary() string {
	return fmt.Sprintf("two_phase_set(added=%d removed=%d visible=%d)", len(s.Added), len(s.Removed), len(s.Query().([]string)))
}
