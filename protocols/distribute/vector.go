package distribute

import (
	"crypto/rand"
	"fmt"

	"github.com/luxfi/mpc/pkg/field"
	"github.com/luxfi/mpc/pkg/mpc"
	"github.com/luxfi/mpc/pkg/party"
	"github.com/luxfi/mpc/pkg/runtime"
	"github.com/luxfi/mpc/pkg/share"
	"github.com/luxfi/mpc/pkg/transport"
)

// VectorProtocolType is the VectorShareDistribution discriminant.
const VectorProtocolType = "VectorShareDistribution"

// VectorDistributionMessage carries one participant's shares of every
// secret in the vector, addressed under a common base ID: the recipient
// stores entry i under "base[i]" (spec.md §4.5).
type VectorDistributionMessage struct {
	BaseID     string
	Shares     []*field.Share
	StorageTag *string
}

// ExtractParams implements mpc.Payload.
func (m *VectorDistributionMessage) ExtractParams() map[string]interface{} {
	return map[string]interface{}{
		"baseId":     m.BaseID,
		"storageTag": m.StorageTag,
	}
}

func vectorKey(baseID string, i int) string {
	return fmt.Sprintf("%s[%d]", baseID, i)
}

func applyVectorDistribution(store *share.Store, vm *VectorDistributionMessage) {
	life := share.LifetimeFromTag(vm.StorageTag)
	for i, sh := range vm.Shares {
		store.PutPreserving(vectorKey(vm.BaseID, i), sh, life)
	}
}

func ackMessage(protocolID string) *mpc.Message {
	return &mpc.Message{
		ProtocolID:   protocolID,
		ProtocolType: VectorProtocolType,
		Completion:   true,
		Payload:      &mpc.Ack{OK: true},
	}
}

// VectorInitiator distributes Shamir shares of every secret in a vector to
// each participant in a single message per recipient, then waits for an Ack
// from every participant — including itself — before completing. Unlike
// the scalar ShareDistribution, this protocol is ACK-gated (spec.md §4.5).
type VectorInitiator struct {
	Listener func(error)

	store    *share.Store
	t        transport.Transport
	expected int
	acked    map[party.ID]bool
	complete bool
}

// NewVectorInitiator builds a blank VectorInitiator for a Factory.
func NewVectorInitiator() runtime.Instance { return &VectorInitiator{} }

// Initialize implements runtime.Instance.
func (in *VectorInitiator) Initialize(params runtime.Params) error {
	in.store = params.ShareStore()
	in.t = params.Transport()
	in.acked = make(map[party.ID]bool)

	baseID, err := params.String(VectorProtocolType, "baseId")
	if err != nil {
		return in.fail(err)
	}
	threshold, err := params.Int(VectorProtocolType, "threshold")
	if err != nil {
		return in.fail(err)
	}
	prime, ok := params["prime"].(*field.Prime)
	if !ok {
		return in.fail(vecInvalidConfig(params, "missing prime"))
	}
	secretValues, ok := params["secretValues"].([]*field.Elem)
	if !ok {
		return in.fail(vecInvalidConfig(params, "missing secretValues"))
	}
	var storageTag *string
	if v, ok := params["storageTag"].(*string); ok {
		storageTag = v
	}

	participants := params.Participants()
	if len(participants) == 0 {
		return in.fail(vecInvalidConfig(params, "empty participants"))
	}
	in.expected = len(participants)

	polys := make([]*field.Polynomial, len(secretValues))
	for i, secret := range secretValues {
		poly, err := field.ShareGen(prime, secret, threshold, len(participants), rand.Reader)
		if err != nil {
			return in.fail(mpc.NewError(mpc.InvalidConfiguration, VectorProtocolType, params.ProtocolID(), err))
		}
		polys[i] = poly
	}

	for _, id := range participants {
		shares := make([]*field.Share, len(polys))
		for i, poly := range polys {
			shares[i] = field.ShareAt(poly, int(id))
		}
		msg := &mpc.Message{
			ProtocolID:   params.ProtocolID(),
			ProtocolType: VectorProtocolType,
			Payload:      &VectorDistributionMessage{BaseID: baseID, Shares: shares, StorageTag: storageTag},
		}
		in.t.Send(msg, id)
	}
	return nil
}

func (in *VectorInitiator) fail(err error) error {
	in.complete = true
	if in.Listener != nil {
		in.Listener(err)
	}
	return err
}

// HandleMessage processes both the initiator's own self-delivered share
// message (storing it and ACKing, just as a remote Responder would) and the
// Ack replies that follow from every participant.
func (in *VectorInitiator) HandleMessage(msg *mpc.Message) error {
	switch payload := msg.Payload.(type) {
	case *VectorDistributionMessage:
		applyVectorDistribution(in.store, payload)
		in.t.Send(ackMessage(msg.ProtocolID), in.t.LocalID())
		return nil
	case *mpc.Ack:
		in.acked[msg.SenderID] = true
		if len(in.acked) >= in.expected {
			in.complete = true
			if in.Listener != nil {
				in.Listener(nil)
			}
		}
		return nil
	default:
		return vecInvalidConfigMsg(msg, "unexpected payload")
	}
}

// Complete implements runtime.Instance.
func (in *VectorInitiator) Complete() bool { return in.complete }

// VectorResponder stores the shares it receives and Acks back to the
// sender, completing once the Ack has been sent.
type VectorResponder struct {
	store    *share.Store
	t        transport.Transport
	complete bool
}

// NewVectorResponder builds a blank VectorResponder for a Factory.
func NewVectorResponder() runtime.Instance { return &VectorResponder{} }

// Initialize implements runtime.Instance.
func (r *VectorResponder) Initialize(params runtime.Params) error {
	r.store = params.ShareStore()
	r.t = params.Transport()
	return nil
}

// HandleMessage implements runtime.Instance.
func (r *VectorResponder) HandleMessage(msg *mpc.Message) error {
	vm, ok := msg.Payload.(*VectorDistributionMessage)
	if !ok {
		return vecInvalidConfigMsg(msg, "unexpected payload")
	}
	applyVectorDistribution(r.store, vm)
	r.t.Send(ackMessage(msg.ProtocolID), msg.SenderID)
	r.complete = true
	return nil
}

// Complete implements runtime.Instance.
func (r *VectorResponder) Complete() bool { return r.complete }

// VectorFactory is the registration convenience for
// pkg/runtime.Manager.RegisterFactory.
func VectorFactory() runtime.Factory {
	return runtime.Factory{NewInitiator: NewVectorInitiator, NewResponder: NewVectorResponder}
}

func vecInvalidConfig(params runtime.Params, msg string) error {
	return mpc.NewError(mpc.InvalidConfiguration, VectorProtocolType, params.ProtocolID(), fmt.Errorf("%s", msg))
}

func vecInvalidConfigMsg(msg *mpc.Message, reason string) error {
	return mpc.NewError(mpc.InvalidConfiguration, VectorProtocolType, msg.ProtocolID, fmt.Errorf("%s: got %T", reason, msg.Payload))
}
