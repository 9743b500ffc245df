package crdt

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// ORSet is an observed-remove set. Each add mints a tag unique across the
// cluster; remove tombstones every tag currently observed for that
// element at the calling replica. An add that races a remove at another
// replica is never tombstoned, because its tag was never observed there.
type ORSet struct {
	nodeID string

	// Elements maps an element to every tag known to have been minted for
	// it. A local remove leaves the tags here and only adds them to
	// Tombstoned; Merge drops an element once all of its tags are
	// tombstoned.
	Elements map[string]map[string]struct{}

	// Tombstoned holds every tag that has been removed anywhere.
	Tombstoned map[string]struct{}
}

// NewORSet returns an empty OR-Set. nodeID is embedded in every tag this
// replica mints so tags are unique cluster-wide.
func NewORSet(nodeID string) *ORSet {
	return &ORSet{
		nodeID:     nodeID,
		Elements:   make(map[string]map[string]struct{}),
		Tombstoned: make(map[string]struct{}),
	}
}

func (s *ORSet) newTag() string {
	return fmt.Sprintf("%s:%s", s.nodeID, uuid.NewString())
}

// ORSetAddOp adds Element, minting a fresh tag.
type ORSetAddOp struct {
	Element string
}

// ORSetRemoveOp tombstones every tag this replica currently observes for
// Element.
type ORSetRemoveOp struct {
	Element string
}

func (s *ORSet) LocalUpdate(op any) (bool, error) {
	switch o := op.(type) {
	case ORSetAddOp:
		tag := s.newTag()
		if s.Elements[o.Element] == nil {
			s.Elements[o.Element] = make(map[string]struct{})
		}
		s.Elements[o.Element][tag] = struct{}{}
		return true, nil
	case ORSetRemoveOp:
		tags, ok := s.liveTags(o.Element)
		if !ok || len(tags) == 0 {
			return false, ErrRejected
		}
		for tag := range tags {
			s.Tombstoned[tag] = struct{}{}
		}
		return true, nil
	default:
		panic(fmt.Sprintf("or_set: unsupported op %T", op))
	}
}

// liveTags returns the tags observed for element that are not already
// tombstoned.
func (s *ORSet) liveTags(element string) (map[string]struct{}, bool) {
	tags, ok := s.Elements[element]
	if !ok {
		return nil, false
	}
	live := make(map[string]struct{})
	for tag := range tags {
		if _, dead := s.Tombstoned[tag]; !dead {
			live[tag] = struct{}{}
		}
	}
	return live, true
}

func (s *ORSet) Merge(remote Value) (bool, error) {
	r, ok := remote.(*ORSet)
	if !ok {
		return false, fmt.Errorf("or_set: cannot merge %T", remote)
	}
	changed := false

	for tag := range r.Tombstoned {
		if _, already := s.Tombstoned[tag]; !already {
			s.Tombstoned[tag] = struct{}{}
			changed = true
		}
	}

	for element, tags := range r.Elements {
		if s.Elements[element] == nil {
			s.Elements[element] = make(map[string]struct{})
		}
		for tag := range tags {
			if _, exists := s.Elements[element][tag]; !exists {
				s.Elements[element][tag] = struct{}{}
				changed = true
			}
		}
	}

	// Garbage-collect elements whose every known tag is now tombstoned;
	// the tags themselves stay in Tombstoned forever.
	for element, tags := range s.Elements {
		allDead := true
		for tag := range tags {
			if _, dead := s.Tombstoned[tag]; !dead {
				allDead = false
				break
			}
		}
		if allDead && len(tags) > 0 {
			delete(s.Elements, element)
			changed = true
		}
	}

	return changed, nil
}

func (s *ORSet) Query() any {
	out := make([]string, 0, len(s.Elements))
	for element := range s.Elements {
		if live, _ := s.liveTags(element); len(live) > 0 {
			out = append(out, element)
		}
	}
	sort.Strings(out)
	return out
}

type orSetWire struct {
	Elements    map[string][]string `json:"elements"`
	RemovedTags []string            `json:"removed_tags"`
}

func (s *ORSet) Encode() ([]byte, error) {
	elements := make(map[string][]string, len(s.Elements))
	for element, tags := range s.Elements {
		list := make([]string, 0, len(tags))
		for tag := range tags {
			list = append(list, tag)
		}
		sort.Strings(list)
		elements[element] = list
	}
	removed := setKeys(s.Tombstoned)
	return json.Marshal(orSetWire{Elements: elements, RemovedTags: removed})
}

// DecodeORSet parses the wire/snapshot JSON shape. The decoded value has
// no node id of its own since it only ever plays the "remote" role in a
// Merge; it never mints new tags.
func DecodeORSet(data []byte) (*ORSet, error) {
	var w orSetWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode or_set: %w", err)
	}
	s := NewORSet("")
	for element, tags := range w.Elements {
		set := make(map[string]struct{}, len(tags))
		for _, tag := range tags {
			set[tag] = struct{}{}
		}
		s.Elements[element] = set
	}
	for _, tag := range w.RemovedTags {
		s.Tombstoned[tag] = struct{}{}
	}
	return s, nil
}

func (s *ORSet) Summary() string {
	return fmt.Sprintf("or_set(%d elements, %d tombstoned tags)", len(s.Query().([]string)), len(s.Tombstoned))
}
