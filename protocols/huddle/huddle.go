// Package huddle implements the CostContributionHuddle collective primitive
// of spec.md §4.5: every participant broadcasts its own contribution vector
// to the full participant set (itself included), accumulates every
// incoming contribution into its own keyed-by-component shares, and once
// its own slot has all n contributions (n−1 remote plus its own, delivered
// via the same self-loop path as everything else), broadcasts a Ready
// signal. Each participant declares the huddle complete for itself only
// once n Ready signals — including its own reflexive one — have arrived.
// This off-by-one is deliberate; do not "fix" it (spec.md §9 Design Notes
// (a)).
package huddle

import (
	"fmt"

	"github.com/luxfi/mpc/pkg/field"
	"github.com/luxfi/mpc/pkg/mpc"
	"github.com/luxfi/mpc/pkg/party"
	"github.com/luxfi/mpc/pkg/runtime"
	"github.com/luxfi/mpc/pkg/share"
	"github.com/luxfi/mpc/pkg/transport"
)

// ProtocolType is the CostContributionHuddle discriminant.
const ProtocolType = "CostContributionHuddle"

// Contribution carries one sender's vector of share-contributions,
// addressed under a common output base ID.
type Contribution struct {
	BaseID   string
	Contribs []*field.Share
}

// ExtractParams implements mpc.Payload.
func (c *Contribution) ExtractParams() map[string]interface{} {
	return map[string]interface{}{"baseId": c.BaseID}
}

// Ready signals that the sender has fully accumulated its own slot.
type Ready struct {
	BaseID string
}

// ExtractParams implements mpc.Payload.
func (r *Ready) ExtractParams() map[string]interface{} {
	return map[string]interface{}{"baseId": r.BaseID}
}

func contribKey(baseID string, component int) string {
	return fmt.Sprintf("%s[%d]", baseID, component)
}

// Instance is the single symmetric state machine every participant runs:
// there is no initiator/responder split, every node both contributes and
// ingests (spec.md §9 Design Notes).
type Instance struct {
	// Listener is invoked once this node's own target slot is complete:
	// n Ready signals received, including its own.
	Listener func(error)

	store *share.Store
	t     transport.Transport

	expectedContribs int // n: n-1 remote plus this node's own
	contribsReceived map[party.ID]bool
	expectedReady    int // n, including this node's own reflexive Ready
	readyReceived    map[party.ID]bool
	readySent        bool
	complete         bool
}

// NewResponder builds a blank Instance for a Factory.
func NewResponder() runtime.Instance {
	return &Instance{contribsReceived: make(map[party.ID]bool), readyReceived: make(map[party.ID]bool)}
}

// Factory registers CostContributionHuddle with a Manager.
func Factory() runtime.Factory {
	return runtime.Factory{NewResponder: NewResponder}
}

// Initialize implements runtime.Instance.
func (in *Instance) Initialize(params runtime.Params) error {
	in.store = params.ShareStore()
	in.t = params.Transport()
	if in.contribsReceived == nil {
		in.contribsReceived = make(map[party.ID]bool)
	}
	if in.readyReceived == nil {
		in.readyReceived = make(map[party.ID]bool)
	}

	baseID, err := params.String(ProtocolType, "baseId")
	if err != nil {
		return in.fail(err)
	}

	contribs, ok := params["contributions"].([]*field.Share)
	if !ok || len(contribs) == 0 {
		return in.fail(mpc.NewError(mpc.InvalidConfiguration, ProtocolType, params.ProtocolID(), fmt.Errorf("missing or empty contributions")))
	}

	participants := params.Participants()
	if len(participants) == 0 {
		return in.fail(mpc.NewError(mpc.InvalidConfiguration, ProtocolType, params.ProtocolID(), fmt.Errorf("empty participants")))
	}
	in.expectedContribs = len(participants)
	in.expectedReady = len(participants)

	msg := &mpc.Message{ProtocolID: params.ProtocolID(), ProtocolType: ProtocolType, Payload: &Contribution{BaseID: baseID, Contribs: contribs}}
	for _, id := range participants {
		in.t.Send(msg, id)
	}
	return nil
}

func (in *Instance) fail(err error) error {
	in.complete = true
	if in.Listener != nil {
		in.Listener(err)
	}
	return err
}

// HandleMessage implements runtime.Instance.
func (in *Instance) HandleMessage(msg *mpc.Message) error {
	switch payload := msg.Payload.(type) {
	case *Contribution:
		if in.contribsReceived[msg.SenderID] {
			return in.fail(mpc.NewError(mpc.InvalidConfiguration, ProtocolType, msg.ProtocolID, fmt.Errorf("duplicate contribution"), msg.SenderID))
		}
		in.contribsReceived[msg.SenderID] = true
		for k, c := range payload.Contribs {
			key := contribKey(payload.BaseID, k)
			if acc, ok := in.store.Get(key); ok {
				in.store.PutPreserving(key, acc.Add(c), share.Sticky())
			} else {
				in.store.PutPreserving(key, c, share.Sticky())
			}
		}
		if len(in.contribsReceived) >= in.expectedContribs && !in.readySent {
			in.readySent = true
			in.t.Multicast(&mpc.Message{ProtocolID: msg.ProtocolID, ProtocolType: ProtocolType, Payload: &Ready{BaseID: payload.BaseID}}, in.t.Participants())
		}
		return nil

	case *Ready:
		in.readyReceived[msg.SenderID] = true
		if len(in.readyReceived) >= in.expectedReady {
			in.complete = true
			if in.Listener != nil {
				in.Listener(nil)
			}
		}
		return nil

	default:
		return mpc.NewError(mpc.InvalidConfiguration, ProtocolType, msg.ProtocolID, fmt.Errorf("unexpected payload %T", msg.Payload))
	}
}

// Complete implements runtime.Instance.
func (in *Instance) Complete() bool { return in.complete }

// Start joins the huddle under protocolID — a caller-agreed shared ID,
// since every participant must land on the same instance — contributing
// this node's own vector.
func Start(m *runtime.Manager, protocolID, baseID string, contributions []*field.Share, participants party.IDSlice, listener func(error)) (string, error) {
	instance := NewResponder().(*Instance)
	instance.Listener = listener
	params := runtime.Params{
		"protocolId":    protocolID,
		"baseId":        baseID,
		"contributions": contributions,
	}
	return m.StartProtocol(instance, params, participants)
}
