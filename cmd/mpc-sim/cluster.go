package main

import (
	"log"

	"github.com/luxfi/mpc/pkg/mpc"
	"github.com/luxfi/mpc/pkg/party"
	"github.com/luxfi/mpc/pkg/runtime"
	"github.com/luxfi/mpc/pkg/share"
	"github.com/luxfi/mpc/pkg/transport"
	"github.com/luxfi/mpc/protocols/arith"
	"github.com/luxfi/mpc/protocols/barrier"
	"github.com/luxfi/mpc/protocols/compare"
	"github.com/luxfi/mpc/protocols/distribute"
	"github.com/luxfi/mpc/protocols/huddle"
	"github.com/luxfi/mpc/protocols/meta"
	"github.com/luxfi/mpc/protocols/reconstruct"
)

// cluster is the in-process simulation harness: one Manager per simulated
// node, all connected by a single transport.Hub.
type cluster struct {
	ids      party.IDSlice
	hub      *transport.Hub
	managers map[party.ID]*runtime.Manager
	stores   map[party.ID]*share.Store
}

// newCluster builds a fully-wired cluster of n nodes, every node's Manager
// carrying the complete leaf and meta protocol catalogue.
func newCluster(ids party.IDSlice) *cluster {
	c := &cluster{
		ids:      ids,
		hub:      transport.NewHub(),
		managers: make(map[party.ID]*runtime.Manager),
		stores:   make(map[party.ID]*share.Store),
	}
	for _, id := range ids {
		t := c.hub.Join(id)
		store := share.NewStore()
		m := runtime.NewManager(id, t, store)
		registerCatalogue(m)
		c.hub.Bind(id, func(msg *mpc.Message, senderID party.ID) {
			if err := m.HandleIncomingMessage(msg, senderID, nil); err != nil {
				log.Printf("node %v: %v", m.SelfID(), err)
			}
		})
		c.managers[id] = m
		c.stores[id] = store
	}
	return c
}

func registerCatalogue(m *runtime.Manager) {
	m.RegisterFactory(distribute.ProtocolType, distribute.Factory())
	m.RegisterFactory(distribute.VectorProtocolType, distribute.VectorFactory())
	m.RegisterFactory(reconstruct.ProtocolType, reconstruct.Factory())
	m.RegisterFactory(arith.AddProtocolType, arith.AddFactory())
	m.RegisterFactory(arith.SubProtocolType, arith.SubFactory())
	m.RegisterFactory(arith.KnownSubProtocolType, arith.KnownSubFactory())
	m.RegisterFactory(arith.MultiplyProtocolType, arith.MultiplyFactory())
	compare.RegisterFactories(m)
	m.RegisterFactory(barrier.ProtocolType, barrier.Factory())
	m.RegisterFactory(huddle.ProtocolType, huddle.Factory())
	meta.RegisterDotProductFactories(m)
	meta.RegisterFindExtremumFactories(m)
}

// leader returns the lowest-ID node, which every scenario command uses as
// the local coordinator issuing StartProtocol calls.
func (c *cluster) leader() *runtime.Manager {
	return c.managers[c.ids.Sorted()[0]]
}
