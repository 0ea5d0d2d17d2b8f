package mpc

import (
	"fmt"

	"github.com/luxfi/mpc/pkg/party"
)

// ErrKind enumerates the protocol-level fatal conditions of spec.md §7.
// Field-layer conditions (InvalidThreshold, DuplicateIndex, ZeroIndex,
// NotEnoughShares) live in pkg/field.ShareError instead, since they are
// raised by pure arithmetic, not by a running protocol instance.
type ErrKind int

const (
	// InvalidConfiguration: empty participants, threshold outside [1,n],
	// vector size <= 0.
	InvalidConfiguration ErrKind = iota
	// MissingShare: a required secret ID is absent from storage at the
	// moment a local computation needs it.
	MissingShare
	// DuplicateSignal: a barrier received two signals from the same sender.
	DuplicateSignal
	// StaleMessage: a message arrived for a protocol ID that has been
	// evicted, and the message is flagged completion. Per spec.md §4.3 /
	// §4.7 this is silently ignored by the runtime, not surfaced as an
	// error to protocol logic; the Kind exists for completeness/logging.
	StaleMessage
	// ReconstructionFailure: Lagrange inversion failed (non-prime p,
	// duplicate or zero indices).
	ReconstructionFailure
)

func (k ErrKind) String() string {
	switch k {
	case InvalidConfiguration:
		return "InvalidConfiguration"
	case MissingShare:
		return "MissingShare"
	case DuplicateSignal:
		return "DuplicateSignal"
	case StaleMessage:
		return "StaleMessage"
	case ReconstructionFailure:
		return "ReconstructionFailure"
	default:
		return "Unknown"
	}
}

// Error is the failure a protocol instance reports: per spec.md §7, a
// failed protocol sets complete=true, successful=false, and the error
// propagates to the caller, naming the protocol type, ID, and cause so the
// user-visible report in §7 can be produced without a partial result.
type Error struct {
	Kind         ErrKind
	ProtocolType string
	ProtocolID   string
	Culprits     party.IDSlice
	Err          error
}

func (e *Error) Error() string {
	if len(e.Culprits) > 0 {
		return fmt.Sprintf("mpc: %s protocol %s (%s) failed: %s (culprits: %v)",
			e.ProtocolType, e.ProtocolID, e.Kind, e.Err, e.Culprits)
	}
	return fmt.Sprintf("mpc: %s protocol %s (%s) failed: %s", e.ProtocolType, e.ProtocolID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error for protocol (type, id) with the given kind,
// wrapped cause, and optional culprit party IDs.
func NewError(kind ErrKind, protocolType, protocolID string, err error, culprits ...party.ID) *Error {
	return &Error{Kind: kind, ProtocolType: protocolType, ProtocolID: protocolID, Culprits: culprits, Err: err}
}
