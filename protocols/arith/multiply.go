package arith

import (
	"fmt"

	"github.com/luxfi/mpc/pkg/field"
	"github.com/luxfi/mpc/pkg/mpc"
	"github.com/luxfi/mpc/pkg/party"
	"github.com/luxfi/mpc/pkg/runtime"
	"github.com/luxfi/mpc/pkg/share"
	"github.com/luxfi/mpc/pkg/transport"
)

// MultiplyProtocolType is the SecureMultiply discriminant.
const MultiplyProtocolType = "SecureMultiply"

// MultiplyRequest is round 1's broadcast: compute a masked product share
// and send it back to the initiator.
type MultiplyRequest struct {
	SecretA    string
	SecretB    string
	SecretR    string
	SecretC    string
	StorageTag *string
}

// ExtractParams implements mpc.Payload.
func (m *MultiplyRequest) ExtractParams() map[string]interface{} {
	return map[string]interface{}{
		"secretA":    m.SecretA,
		"secretB":    m.SecretB,
		"secretR":    m.SecretR,
		"secretC":    m.SecretC,
		"storageTag": m.StorageTag,
	}
}

// MaskedProductShare is each participant's reply in round 1: its share of
// a·b + r on the doubled-degree polynomial.
type MaskedProductShare struct {
	Share *field.Share
}

// ExtractParams implements mpc.Payload.
func (m *MaskedProductShare) ExtractParams() map[string]interface{} { return map[string]interface{}{} }

// RevealMaskedProduct is round 2's broadcast: the initiator reconstructs
// c' = a·b + r from all n replies and reveals it so every participant can
// strip its share of r locally.
type RevealMaskedProduct struct {
	SecretR    string
	SecretC    string
	Value      *field.Elem
	StorageTag *string
}

// ExtractParams implements mpc.Payload.
func (m *RevealMaskedProduct) ExtractParams() map[string]interface{} {
	return map[string]interface{}{
		"secretR":    m.SecretR,
		"secretC":    m.SecretC,
		"storageTag": m.StorageTag,
	}
}

// MultiplyInstance is the shared Initiator/Responder state machine for the
// two-round r-mask-reveal SecureMultiply protocol (spec.md §4.5). It
// requires n ≥ 2t−1 and a pre-distributed sticky r-secret; reconstruction
// in round 2 MUST use all n replies, never a t-subset (spec.md §9 Design
// Notes (c)), since the masked-product polynomial has degree 2t−2.
type MultiplyInstance struct {
	isLeader bool

	// Listener is invoked once this instance completes, when built via
	// NewMultiplyInitiator. Optional.
	Listener func(error)

	store *share.Store
	t     transport.Transport
	prime *field.Prime

	secretR    string
	secretC    string
	storageTag *string

	expectedReplies int
	replies         []*field.Share

	expectedAcks int
	acked        map[party.ID]bool

	complete bool
}

// NewMultiplyInitiator / NewMultiplyResponder are the Factory constructors.
func NewMultiplyInitiator() runtime.Instance { return &MultiplyInstance{isLeader: true} }
func NewMultiplyResponder() runtime.Instance { return &MultiplyInstance{} }

// MultiplyFactory registers SecureMultiply with a Manager.
func MultiplyFactory() runtime.Factory {
	return runtime.Factory{NewInitiator: NewMultiplyInitiator, NewResponder: NewMultiplyResponder}
}

// Initialize implements runtime.Instance.
func (in *MultiplyInstance) Initialize(params runtime.Params) error {
	in.store = params.ShareStore()
	in.t = params.Transport()
	in.acked = make(map[party.ID]bool)

	if !in.isLeader {
		return nil
	}

	secretA, err := params.String(MultiplyProtocolType, "secretA")
	if err != nil {
		return in.fail(err)
	}
	secretB, err := params.String(MultiplyProtocolType, "secretB")
	if err != nil {
		return in.fail(err)
	}
	secretR, err := params.String(MultiplyProtocolType, "secretR")
	if err != nil {
		return in.fail(err)
	}
	secretC, err := params.String(MultiplyProtocolType, "secretC")
	if err != nil {
		return in.fail(err)
	}
	prime, ok := params["prime"].(*field.Prime)
	if !ok {
		return in.fail(invalidConfig(MultiplyProtocolType, params.ProtocolID(), "missing prime"))
	}
	in.prime = prime
	in.secretR = secretR
	in.secretC = secretC
	if v, ok := params["storageTag"].(*string); ok {
		in.storageTag = v
	}

	participants := params.Participants()
	if len(participants) == 0 {
		return in.fail(invalidConfig(MultiplyProtocolType, params.ProtocolID(), "empty participants"))
	}
	in.expectedReplies = len(participants)
	in.expectedAcks = len(participants)

	for _, id := range participants {
		msg := &mpc.Message{
			ProtocolID:   params.ProtocolID(),
			ProtocolType: MultiplyProtocolType,
			Payload: &MultiplyRequest{
				SecretA: secretA, SecretB: secretB, SecretR: secretR, SecretC: secretC, StorageTag: in.storageTag,
			},
		}
		in.t.Send(msg, id)
	}
	return nil
}

func maskedProductShare(store *share.Store, protocolType, secretA, secretB, secretR string) (*field.Share, error) {
	a, ok := store.Get(secretA)
	if !ok {
		return nil, mpc.NewError(mpc.MissingShare, protocolType, "", fmt.Errorf("no share for %q", secretA))
	}
	b, ok := store.Get(secretB)
	if !ok {
		return nil, mpc.NewError(mpc.MissingShare, protocolType, "", fmt.Errorf("no share for %q", secretB))
	}
	r, ok := store.Get(secretR)
	if !ok {
		return nil, mpc.NewError(mpc.MissingShare, protocolType, "", fmt.Errorf("no share for %q", secretR))
	}
	if a.Index != b.Index || a.Index != r.Index {
		return nil, mpc.NewError(mpc.InvalidConfiguration, protocolType, "", fmt.Errorf("mismatched share indices"))
	}
	product := a.Value.Mul(b.Value).Add(r.Value)
	return &field.Share{Index: a.Index, Value: product}, nil
}

func (in *MultiplyInstance) fail(err error) error {
	in.complete = true
	if in.Listener != nil {
		in.Listener(err)
	}
	return err
}

// HandleMessage implements runtime.Instance.
func (in *MultiplyInstance) HandleMessage(msg *mpc.Message) error {
	switch payload := msg.Payload.(type) {
	case *MultiplyRequest:
		sc, err := maskedProductShare(in.store, MultiplyProtocolType, payload.SecretA, payload.SecretB, payload.SecretR)
		if err != nil {
			return in.fail(err)
		}
		in.secretR = payload.SecretR
		in.secretC = payload.SecretC
		in.storageTag = payload.StorageTag
		in.t.Send(&mpc.Message{
			ProtocolID:   msg.ProtocolID,
			ProtocolType: MultiplyProtocolType,
			Payload:      &MaskedProductShare{Share: sc},
		}, msg.SenderID)
		return nil

	case *MaskedProductShare:
		in.replies = append(in.replies, payload.Share)
		if len(in.replies) < in.expectedReplies {
			return nil
		}
		// All n replies are in: reconstruct a·b+r using every one of them,
		// never a t-subset (spec.md §9 Design Notes (c)).
		revealed, err := field.Reconstruct(in.prime, in.replies)
		if err != nil {
			return in.fail(mpc.NewError(mpc.ReconstructionFailure, MultiplyProtocolType, msg.ProtocolID, err))
		}
		reveal := &mpc.Message{
			ProtocolID:   msg.ProtocolID,
			ProtocolType: MultiplyProtocolType,
			Payload:      &RevealMaskedProduct{SecretR: in.secretR, SecretC: in.secretC, Value: revealed, StorageTag: in.storageTag},
		}
		// Broadcast the reveal to every participant, including self.
		in.t.Multicast(reveal, in.t.Participants())
		return nil

	case *RevealMaskedProduct:
		if err := finalizeMultiplyShare(in.store, MultiplyProtocolType, payload); err != nil {
			return in.fail(err)
		}
		in.t.Send(ackFor(MultiplyProtocolType, msg.ProtocolID), msg.SenderID)
		if !in.isLeader {
			in.complete = true
		}
		return nil

	case *mpc.Ack:
		in.acked[msg.SenderID] = true
		if len(in.acked) >= in.expectedAcks {
			in.complete = true
			if in.Listener != nil {
				in.Listener(nil)
			}
		}
		return nil

	default:
		return invalidConfigMsg(msg, "unexpected payload")
	}
}

func finalizeMultiplyShare(store *share.Store, protocolType string, payload *RevealMaskedProduct) error {
	r, ok := store.Get(payload.SecretR)
	if !ok {
		return mpc.NewError(mpc.MissingShare, protocolType, "", fmt.Errorf("no share for %q", payload.SecretR))
	}
	cPrime := &field.Share{Index: r.Index, Value: payload.Value}
	c := cPrime.Sub(r)
	store.PutPreserving(payload.SecretC, c, share.LifetimeFromTag(payload.StorageTag))
	return nil
}

// Complete implements runtime.Instance.
func (in *MultiplyInstance) Complete() bool { return in.complete }
