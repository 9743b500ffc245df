/*
Package crdt implements the six state-based CRDT variants a replica can
run: G-Counter, PN-Counter, G-Set, 2P-Set, OR-Set, and the LWW file-sync
set. Each variant is a concrete type satisfying Value; there is no runtime
reflection — New and Decode dispatch on the config.Kind discriminator with
an explicit switch, so a gossip listener can route decoded bytes to the
right type before touching the payload further.

Every local mutation only moves state up the join lattice: merges never
reject, but local operations that violate a variant's precondition (a
2P-Set remove of an element never added, an OR-Set remove of an element
with no live tag) return ErrRejected instead of mutating anything. A
G-Counter decrement and a G-Set remove have no operation type at all.
*/
package crdt

import (
	"errors"
	"fmt"

	"github.com/cuemby/crdtsync/pkg/config"
)

// ErrRejected signals that a local operation violated its variant's
// precondition. It is not a failure of the system — callers should log it
// at most, never treat it as an unexpected error.
var ErrRejected = errors.New("operation rejected by crdt precondition")

// Value is the shared contract every CRDT variant satisfies.
type Value interface {
	// LocalUpdate applies a user- or scan-originated operation. op's
	// concrete type must match the variant (GCounterOp for a GCounter,
	// and so on); a mismatched type is a programmer error and panics.
	// Returns whether the state changed, or ErrRejected if op violated
	// a precondition.
	LocalUpdate(op any) (bool, error)

	// Merge joins remote into the receiver in place. remote must be the
	// same concrete type. Merge never rejects: pre-images may be
	// invalid, but the join is always defined. Returns whether the
	// state changed.
	Merge(remote Value) (bool, error)

	// Query returns the observable value: an integer for counters, a
	// sorted slice of strings for set variants, the sorted live
	// (non-tombstoned) paths for LWW.
	Query() any

	// Encode serialises the value to the wire/snapshot JSON shape
	// described in the external interfaces.
	Encode() ([]byte, error)

	// Summary is a short operator-facing description, e.g. "gcounter(3
	// nodes, total=11)".
	Summary() string
}

// New constructs an empty Value of the given kind. nodeID is only
// consulted by OR-Set, which mints tags of the form nodeID:uuid; other
// variants ignore it.
func New(kind config.Kind, nodeID string) (Value, error) {
	switch kind {
	case config.KindGCounter:
		return NewGCounter(), nil
	case config.KindPNCounter:
		return NewPNCounter(), nil
	case config.KindGSet:
		return NewGSet(), nil
	case config.KindTwoPhaseSet:
		return NewTwoPhaseSet(), nil
	case config.KindORSet:
		return NewORSet(nodeID), nil
	case config.KindLWW:
		return NewLWW(), nil
	default:
		return nil, fmt.Errorf("unknown crdt kind %q", kind)
	}
}

// Decode parses wire/snapshot bytes into a Value of the given kind.
func Decode(kind config.Kind, data []byte) (Value, error) {
	switch kind {
	case config.KindGCounter:
		return DecodeGCounter(data)
	case config.KindPNCounter:
		return DecodePNCounter(data)
	case config.KindGSet:
		return DecodeGSet(data)
	case config.KindTwoPhaseSet:
		return DecodeTwoPhaseSet(data)
	case config.KindORSet:
		return DecodeORSet(data)
	case config.KindLWW:
		return DecodeLWW(data)
	default:
		return nil, fmt.Errorf("unknown crdt kind %q", kind)
	}
}
