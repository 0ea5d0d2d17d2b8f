// Package barrier implements the Barrier collective primitive of spec.md
// §4.5: a symmetric, identity-driven rendezvous with no initiator.
package barrier

import (
	"fmt"

	"github.com/luxfi/mpc/internal/xhash"
	"github.com/luxfi/mpc/pkg/mpc"
	"github.com/luxfi/mpc/pkg/party"
	"github.com/luxfi/mpc/pkg/runtime"
	"github.com/luxfi/mpc/pkg/transport"
)

// ProtocolType is the Barrier discriminant.
const ProtocolType = "Barrier"

// Signal is the single message every participant broadcasts exactly once.
type Signal struct{}

// ExtractParams implements mpc.Payload; Signal carries no data.
func (s *Signal) ExtractParams() map[string]interface{} { return map[string]interface{}{} }

// Instance is the single state machine shared by every participant: there
// is no initiator/responder split, since construction itself is the act of
// joining (spec.md §4.5, §9 Design Notes).
type Instance struct {
	// Listener is invoked once, with a non-nil error only on a protocol
	// violation (DuplicateSignal), when every participant has signaled.
	Listener func(error)

	t        transport.Transport
	expected int
	signaled map[party.ID]bool
	complete bool
}

func newInstance() *Instance { return &Instance{} }

// NewResponder builds a blank Instance for on-demand auto-join: a remote
// peer's signal may arrive before this node calls Start locally, in which
// case the runtime constructs this instance itself, which then sends out
// this node's own signal exactly as an explicit Start call would.
func NewResponder() runtime.Instance { return newInstance() }

// Factory registers Barrier with a Manager. There is no NewInitiator: this
// protocol is never started via Manager.StartProtocol directly by callers
// — use Start, which handles the auto-join race explicitly.
func Factory() runtime.Factory {
	return runtime.Factory{NewResponder: NewResponder}
}

// Initialize implements runtime.Instance. Whether reached via an explicit
// Start call or via on-demand auto-join, it broadcasts this node's own
// signal to the full participant set, including itself.
func (b *Instance) Initialize(params runtime.Params) error {
	b.t = params.Transport()
	b.signaled = make(map[party.ID]bool)

	participants := params.Participants()
	if len(participants) == 0 {
		return b.fail(mpc.NewError(mpc.InvalidConfiguration, ProtocolType, params.ProtocolID(), fmt.Errorf("empty participants")))
	}
	b.expected = len(participants)

	msg := &mpc.Message{ProtocolID: params.ProtocolID(), ProtocolType: ProtocolType, Payload: &Signal{}}
	b.t.Multicast(msg, participants)
	return nil
}

func (b *Instance) fail(err error) error {
	b.complete = true
	if b.Listener != nil {
		b.Listener(err)
	}
	return err
}

// HandleMessage implements runtime.Instance.
func (b *Instance) HandleMessage(msg *mpc.Message) error {
	if _, ok := msg.Payload.(*Signal); !ok {
		return mpc.NewError(mpc.InvalidConfiguration, ProtocolType, msg.ProtocolID, fmt.Errorf("unexpected payload %T", msg.Payload))
	}
	if b.signaled[msg.SenderID] {
		return b.fail(mpc.NewError(mpc.DuplicateSignal, ProtocolType, msg.ProtocolID, fmt.Errorf("duplicate signal"), msg.SenderID))
	}
	b.signaled[msg.SenderID] = true
	if len(b.signaled) >= b.expected {
		b.complete = true
		if b.Listener != nil {
			b.Listener(nil)
		}
	}
	return nil
}

// Complete implements runtime.Instance.
func (b *Instance) Complete() bool { return b.complete }

// Start joins the barrier named name: it computes the shared protocol ID
// deterministically from name (internal/xhash.BarrierProtocolID) so every
// participant arrives at the same ID independently, then either attaches
// listener to an instance a remote peer's signal already auto-constructed
// here, or constructs and starts a fresh one.
func Start(m *runtime.Manager, name string, participants party.IDSlice, listener func(error)) (string, error) {
	id := xhash.BarrierProtocolID(name)
	if inst, ok := m.ActiveInstance(id); ok {
		if b, ok := inst.(*Instance); ok {
			b.Listener = listener
			return id, nil
		}
	}
	instance := newInstance()
	instance.Listener = listener
	_, err := m.StartProtocol(instance, runtime.Params{"protocolId": id}, participants)
	return id, err
}
