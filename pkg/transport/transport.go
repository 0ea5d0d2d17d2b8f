// Package transport defines the framework-agnostic message transport
// contract (spec.md §4.4, §6) and ships one reference implementation
// (an in-memory hub) for tests, simulation, and the cmd/mpc-sim driver.
package transport

import (
	"github.com/luxfi/mpc/pkg/mpc"
	"github.com/luxfi/mpc/pkg/party"
)

// LocalCallback is invoked synchronously when a node sends a message to
// itself, preserving the uniform send path described in spec.md §4.3: an
// initiator broadcasts to the full participant list including itself, and
// the locally embedded responder handles its own copy through the same
// code path as a remote participant.
type LocalCallback func(msg *mpc.Message, senderID party.ID)

// Transport is the contract every protocol instance relies on. It says
// nothing about protocol semantics; it only moves Messages between nodes.
type Transport interface {
	// LocalID returns this node's own ID.
	LocalID() party.ID

	// Send unicasts msg to recipientID. If recipientID == LocalID() and a
	// local callback is installed, the callback is invoked synchronously
	// instead of going through the external fabric.
	Send(msg *mpc.Message, recipientID party.ID)

	// Multicast is equivalent to iterated Send.
	Multicast(msg *mpc.Message, recipients party.IDSlice)

	// Broadcast sends msg to every neighbor (not including self; callers
	// that want self-inclusion use Multicast(msg, Participants())).
	Broadcast(msg *mpc.Message)

	// Neighbors returns the reachable node IDs, excluding self.
	Neighbors() party.IDSlice

	// Participants returns Neighbors() union {LocalID()}.
	Participants() party.IDSlice

	// SetLocalCallback installs the self-loopback handler.
	SetLocalCallback(cb LocalCallback)
}
