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

// KnownSubProtocolType is the SecureKnownSub discriminant.
const KnownSubProtocolType = "SecureKnownSub"

// KnownSubRequest carries the public constant K, the shared operand's
// secret ID, the direction of subtraction, and the output ID.
type KnownSubRequest struct {
	K           *field.Elem
	Secret      string
	KnownIsLeft bool
	SecretC     string
	StorageTag  *string
}

// ExtractParams implements mpc.Payload.
func (m *KnownSubRequest) ExtractParams() map[string]interface{} {
	return map[string]interface{}{
		"k":           m.K,
		"secret":      m.Secret,
		"knownIsLeft": m.KnownIsLeft,
		"secretC":     m.SecretC,
		"storageTag":  m.StorageTag,
	}
}

// KnownSubInstance is the shared Initiator/Responder state machine. Each
// participant constructs an on-the-fly degree-0 share of K at its own
// index — a constant is already a valid sharing of itself — and subtracts
// in the requested direction (spec.md §4.5).
type KnownSubInstance struct {
	isLeader bool

	// Listener is invoked once this instance completes, when built via
	// NewKnownSubInitiator. Optional.
	Listener func(error)

	store    *share.Store
	t        transport.Transport
	self     party.ID
	expected int
	acked    map[party.ID]bool
	complete bool
}

// NewKnownSubInitiator / NewKnownSubResponder are the Factory constructors.
func NewKnownSubInitiator() runtime.Instance { return &KnownSubInstance{isLeader: true} }
func NewKnownSubResponder() runtime.Instance { return &KnownSubInstance{} }

// KnownSubFactory registers SecureKnownSub with a Manager.
func KnownSubFactory() runtime.Factory {
	return runtime.Factory{NewInitiator: NewKnownSubInitiator, NewResponder: NewKnownSubResponder}
}

// Initialize implements runtime.Instance.
func (in *KnownSubInstance) Initialize(params runtime.Params) error {
	in.store = params.ShareStore()
	in.t = params.Transport()
	in.self = in.t.LocalID()
	in.acked = make(map[party.ID]bool)

	if !in.isLeader {
		return nil
	}

	k, ok := params["k"].(*field.Elem)
	if !ok {
		return in.fail(invalidConfig(KnownSubProtocolType, params.ProtocolID(), "missing k"))
	}
	secret, err := params.String(KnownSubProtocolType, "secret")
	if err != nil {
		return in.fail(err)
	}
	secretC, err := params.String(KnownSubProtocolType, "secretC")
	if err != nil {
		return in.fail(err)
	}
	knownIsLeft, _ := params["knownIsLeft"].(bool)
	var storageTag *string
	if v, ok := params["storageTag"].(*string); ok {
		storageTag = v
	}

	if err := in.computeAndStore(k, secret, secretC, knownIsLeft, storageTag); err != nil {
		return in.fail(err)
	}

	participants := params.Participants()
	if len(participants) == 0 {
		return in.fail(invalidConfig(KnownSubProtocolType, params.ProtocolID(), "empty participants"))
	}
	in.expected = len(participants)
	for _, id := range participants {
		msg := &mpc.Message{
			ProtocolID:   params.ProtocolID(),
			ProtocolType: KnownSubProtocolType,
			Payload: &KnownSubRequest{
				K: k, Secret: secret, KnownIsLeft: knownIsLeft, SecretC: secretC, StorageTag: storageTag,
			},
		}
		in.t.Send(msg, id)
	}
	return nil
}

func (in *KnownSubInstance) computeAndStore(k *field.Elem, secret, secretC string, knownIsLeft bool, storageTag *string) error {
	s, ok := in.store.Get(secret)
	if !ok {
		return mpc.NewError(mpc.MissingShare, KnownSubProtocolType, "", fmt.Errorf("no share for %q", secret))
	}
	// A public constant is already a valid degree-0 share at every index.
	kShare := &field.Share{Index: s.Index, Value: k, WitnessSecret: k}

	var c *field.Share
	if knownIsLeft {
		c = kShare.Sub(s)
	} else {
		c = s.Sub(kShare)
	}
	in.store.PutPreserving(secretC, c, share.LifetimeFromTag(storageTag))
	return nil
}

func (in *KnownSubInstance) fail(err error) error {
	in.complete = true
	if in.Listener != nil {
		in.Listener(err)
	}
	return err
}

// HandleMessage implements runtime.Instance.
func (in *KnownSubInstance) HandleMessage(msg *mpc.Message) error {
	switch payload := msg.Payload.(type) {
	case *KnownSubRequest:
		if err := in.computeAndStore(payload.K, payload.Secret, payload.SecretC, payload.KnownIsLeft, payload.StorageTag); err != nil {
			return in.fail(err)
		}
		in.t.Send(ackFor(KnownSubProtocolType, msg.ProtocolID), msg.SenderID)
		if !in.isLeader {
			in.complete = true
		}
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
		return invalidConfigMsg(msg, "unexpected payload")
	}
}

// Complete implements runtime.Instance.
func (in *KnownSubInstance) Complete() bool { return in.complete }
