package transport

import (
	"fmt"

	"github.com/luxfi/mpc/pkg/mpc"
	"github.com/luxfi/mpc/pkg/party"
)

// InboundHandler is the shape of a node's runtime entry point
// (pkg/runtime.Manager.HandleIncomingMessage), which the Hub calls to
// deliver a message arriving over the external fabric.
type InboundHandler func(msg *mpc.Message, senderID party.ID)

// Hub is a fully connected, reliable, in-order, non-duplicating in-memory
// fabric connecting every node registered with it — the "implementation of
// the transport interface" spec.md §1 treats the simulation harness as,
// scoped down to just enough to drive the core's own tests and the
// cmd/mpc-sim demo. It is not a network simulator: there is no latency,
// partitioning, or loss model, only direct synchronous delivery honoring
// per-pair FIFO ordering (trivially true since delivery is synchronous).
type Hub struct {
	nodes map[party.ID]*InMemoryTransport
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{nodes: make(map[party.ID]*InMemoryTransport)}
}

// Join registers a new node with the hub and returns its Transport. The
// participant set is every node ever joined to the hub at the moment
// Neighbors()/Participants() is called (implementations SHOULD cache; this
// one recomputes lazily since hub membership in a simulation is static
// once setup completes).
func (h *Hub) Join(id party.ID) *InMemoryTransport {
	t := &InMemoryTransport{self: id, hub: h}
	h.nodes[id] = t
	return t
}

// Bind installs inbound as the node's runtime entry point, called by the
// Hub when another node sends it a message over the external fabric.
func (h *Hub) Bind(id party.ID, inbound InboundHandler) {
	if t, ok := h.nodes[id]; ok {
		t.inbound = inbound
	}
}

func (h *Hub) deliver(recipient party.ID, msg *mpc.Message, sender party.ID) {
	t, ok := h.nodes[recipient]
	if !ok {
		panic(fmt.Sprintf("transport: no such node %v registered with hub", recipient))
	}
	if t.inbound == nil {
		panic(fmt.Sprintf("transport: node %v has no bound inbound handler", recipient))
	}
	t.inbound(msg, sender)
}

// InMemoryTransport is the Hub-backed Transport for a single node.
type InMemoryTransport struct {
	self          party.ID
	hub           *Hub
	inbound       InboundHandler
	localCallback LocalCallback
}

var _ Transport = (*InMemoryTransport)(nil)

// LocalID implements Transport.
func (t *InMemoryTransport) LocalID() party.ID { return t.self }

// SetLocalCallback implements Transport.
func (t *InMemoryTransport) SetLocalCallback(cb LocalCallback) { t.localCallback = cb }

// Send implements Transport.
func (t *InMemoryTransport) Send(msg *mpc.Message, recipientID party.ID) {
	if recipientID == t.self && t.localCallback != nil {
		t.localCallback(msg, t.self)
		return
	}
	t.hub.deliver(recipientID, msg, t.self)
}

// Multicast implements Transport.
func (t *InMemoryTransport) Multicast(msg *mpc.Message, recipients party.IDSlice) {
	for _, r := range recipients {
		t.Send(msg, r)
	}
}

// Broadcast implements Transport.
func (t *InMemoryTransport) Broadcast(msg *mpc.Message) {
	t.Multicast(msg, t.Neighbors())
}

// Neighbors implements Transport.
func (t *InMemoryTransport) Neighbors() party.IDSlice {
	ids := make(party.IDSlice, 0, len(t.hub.nodes)-1)
	for id := range t.hub.nodes {
		if id != t.self {
			ids = append(ids, id)
		}
	}
	return ids.Sorted()
}

// Participants implements Transport.
func (t *InMemoryTransport) Participants() party.IDSlice {
	all := make(party.IDSlice, 0, len(t.hub.nodes))
	for id := range t.hub.nodes {
		all = append(all, id)
	}
	return all.Sorted()
}
