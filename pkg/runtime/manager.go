// Package runtime implements the per-node protocol lifecycle manager
// described in spec.md §4.3: it routes inbound messages to protocol
// instances, instantiates responders on demand, and supplies each instance
// with the shared infrastructure (transport, share storage, itself).
package runtime

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/luxfi/mpc/pkg/mpc"
	"github.com/luxfi/mpc/pkg/party"
	"github.com/luxfi/mpc/pkg/share"
	"github.com/luxfi/mpc/pkg/transport"
)

// Params is the key->value bag passed to Instance.Initialize. The runtime
// always injects "protocolId", "agentId", "transport", "manager", and
// "participants"; callers and message payloads contribute the rest.
type Params map[string]interface{}

// Instance is a single protocol execution — initiator or responder, the
// two roles sharing one state-machine shape per spec.md §9's Design Notes.
// It is created on first message/startProtocol call for its protocolId and
// evicted from the active map once Complete() reports true.
type Instance interface {
	// Initialize configures the instance from params (which always
	// includes the infrastructure keys listed above) and may itself
	// synthesize outbound messages (e.g. an initiator's first broadcast).
	Initialize(params Params) error

	// HandleMessage advances the instance's internal state machine in
	// response to an inbound message for this protocolId.
	HandleMessage(msg *mpc.Message) error

	// Complete reports whether this instance has finished — successfully
	// or not. Once true the runtime evicts it from the active map.
	Complete() bool
}

// Factory builds new protocol instances for one protocolType.
// NewResponder is mandatory; NewInitiator is optional (nil if this
// protocol type is never started locally, only responded to).
type Factory struct {
	NewInitiator func() Instance
	NewResponder func() Instance
}

// Manager is the per-node runtime. Each node owns exactly one Manager —
// these are never process-global, even when multiple nodes share a
// process, as in simulation (spec.md §9 Design Notes).
type Manager struct {
	selfID    party.ID
	transport transport.Transport
	store     *share.Store

	active    map[string]Instance
	factories map[string]Factory
}

// NewManager builds a Manager for node selfID, bound to t and storing
// shares in store.
func NewManager(selfID party.ID, t transport.Transport, store *share.Store) *Manager {
	m := &Manager{
		selfID:    selfID,
		transport: t,
		store:     store,
		active:    make(map[string]Instance),
		factories: make(map[string]Factory),
	}
	t.SetLocalCallback(func(msg *mpc.Message, senderID party.ID) {
		// Self-loopback: deliver synchronously through the same path a
		// remote message would take, per spec.md §4.3/§5.
		_ = m.HandleIncomingMessage(msg, senderID, nil)
	})
	return m
}

// SelfID returns this node's ID.
func (m *Manager) SelfID() party.ID { return m.selfID }

// Transport returns the bound transport.
func (m *Manager) Transport() transport.Transport { return m.transport }

// Store returns the bound share storage.
func (m *Manager) Store() *share.Store { return m.store }

// RegisterFactory registers type's instance builders. Idempotent: a second
// registration for an already-registered type is a no-op, so meta-protocols
// can declare their leaf dependencies transitively without worrying about
// duplicate registration (spec.md §4.3).
func (m *Manager) RegisterFactory(protocolType string, f Factory) {
	if _, exists := m.factories[protocolType]; exists {
		return
	}
	m.factories[protocolType] = f
}

// StartProtocol assigns a fresh protocolId (unless params already carries
// one), augments params with the infrastructure keys, registers the
// instance into the active map BEFORE calling Initialize (so a self-message
// synthesized during init can be looked up), and evicts it immediately if
// it is already complete after Initialize.
func (m *Manager) StartProtocol(instance Instance, params Params, participants party.IDSlice) (string, error) {
	if params == nil {
		params = Params{}
	}
	id, _ := params["protocolId"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	params["protocolId"] = id
	params["agentId"] = m.selfID
	params["transport"] = m.transport
	params["manager"] = m
	params["participants"] = participants

	m.active[id] = instance
	err := instance.Initialize(params)
	if err != nil {
		delete(m.active, id)
		return id, err
	}
	if instance.Complete() {
		delete(m.active, id)
	}
	return id, nil
}

// HandleIncomingMessage looks up msg.ProtocolID in the active map. If
// absent and msg.IsCompletionMessage() is true, the message is a stale ACK
// for a completed protocol and is dropped silently. If absent otherwise, a
// responder is instantiated via the factory registered for
// msg.ProtocolType, initialized with params composed from the
// infrastructure keys, the caller-supplied resources, and
// msg.ExtractParams() (msg's own params win on key collision, since they
// are the most specific to this protocol instance). The responder is
// registered into the active map BEFORE Initialize for the same reason as
// StartProtocol.
func (m *Manager) HandleIncomingMessage(msg *mpc.Message, senderID party.ID, resources Params) error {
	msg.SenderID = senderID

	inst, ok := m.active[msg.ProtocolID]
	if !ok {
		if msg.IsCompletionMessage() {
			return nil
		}
		factory, ok := m.factories[msg.ProtocolType]
		if !ok || factory.NewResponder == nil {
			return mpc.NewError(mpc.InvalidConfiguration, msg.ProtocolType, msg.ProtocolID,
				fmt.Errorf("no responder factory registered for protocol type %q", msg.ProtocolType))
		}
		inst = factory.NewResponder()

		params := Params{}
		params["protocolId"] = msg.ProtocolID
		params["agentId"] = m.selfID
		params["transport"] = m.transport
		params["manager"] = m
		for k, v := range resources {
			params[k] = v
		}
		for k, v := range msg.ExtractParams() {
			params[k] = v
		}
		if _, ok := params["participants"]; !ok {
			params["participants"] = m.transport.Participants()
		}

		m.active[msg.ProtocolID] = inst
		if err := inst.Initialize(params); err != nil {
			delete(m.active, msg.ProtocolID)
			return err
		}
		if inst.Complete() {
			delete(m.active, msg.ProtocolID)
			return nil
		}
	}

	err := inst.HandleMessage(msg)
	if inst.Complete() {
		delete(m.active, msg.ProtocolID)
	}
	return err
}

// ActiveInstance returns the currently active instance for protocolID, if
// any. Used by identity-driven protocols (e.g. the barrier, whose protocol
// ID is computed independently by every participant rather than assigned
// by an initiator) to detect that a remote message already caused this
// node to auto-construct its instance before local code got a chance to.
func (m *Manager) ActiveInstance(protocolID string) (Instance, bool) {
	inst, ok := m.active[protocolID]
	return inst, ok
}

// RemoveProtocol evicts protocolID from the active map without regard to
// its completion state. Hosting code may use this to clean up stalled
// instances.
func (m *Manager) RemoveProtocol(protocolID string) {
	delete(m.active, protocolID)
}

// ClearCompletedProtocols evicts every instance reporting Complete() true.
func (m *Manager) ClearCompletedProtocols() {
	for id, inst := range m.active {
		if inst.Complete() {
			delete(m.active, id)
		}
	}
}

// ClearAllProtocols evicts every active instance, regardless of state.
func (m *Manager) ClearAllProtocols() {
	m.active = make(map[string]Instance)
}

// ActiveCount returns the number of currently active protocol instances.
func (m *Manager) ActiveCount() int {
	return len(m.active)
}
