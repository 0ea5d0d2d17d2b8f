// Package arith implements the linear secure-arithmetic leaf protocols of
// spec.md §4.5: SecureAdd, SecureSub, and SecureKnownSub. All three are
// purely local — no share exchange occurs — and complete by ACK.
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

// AddProtocolType and SubProtocolType discriminate SecureAdd from SecureSub;
// both share an implementation parameterized by a sign.
const (
	AddProtocolType = "SecureAdd"
	SubProtocolType = "SecureSub"
)

// Request is the broadcast message for SecureAdd/SecureSub: every
// participant performs the same local linear combination under the
// identifiers it names.
type Request struct {
	SecretA    string
	SecretB    string
	SecretC    string
	StorageTag *string
}

// ExtractParams implements mpc.Payload.
func (m *Request) ExtractParams() map[string]interface{} {
	return map[string]interface{}{
		"secretA":    m.SecretA,
		"secretB":    m.SecretB,
		"secretC":    m.SecretC,
		"storageTag": m.StorageTag,
	}
}

// combiner performs the local combination; Add and Sub differ only here.
type combiner func(a, b *field.Share) *field.Share

func addCombiner(a, b *field.Share) *field.Share { return a.Add(b) }
func subCombiner(a, b *field.Share) *field.Share { return a.Sub(b) }

// Instance is the shared Initiator/Responder state machine for
// SecureAdd/SecureSub (spec.md §9 Design Notes: "two states, one machine").
// The initiator role additionally broadcasts the Request and counts Acks;
// the responder role only reacts to an inbound Request.
type Instance struct {
	protocolType string
	combine      combiner
	isLeader     bool

	// Listener is invoked once this instance completes when built via
	// NewAddInitiator/NewSubInitiator. Optional.
	Listener func(error)

	store    *share.Store
	t        transport.Transport
	expected int
	acked    map[party.ID]bool
	complete bool
}

// NewAddInitiator / NewAddResponder / NewSubInitiator / NewSubResponder are
// the Factory constructors for SecureAdd and SecureSub.
func NewAddInitiator() runtime.Instance {
	return &Instance{protocolType: AddProtocolType, combine: addCombiner, isLeader: true}
}
func NewAddResponder() runtime.Instance {
	return &Instance{protocolType: AddProtocolType, combine: addCombiner}
}
func NewSubInitiator() runtime.Instance {
	return &Instance{protocolType: SubProtocolType, combine: subCombiner, isLeader: true}
}
func NewSubResponder() runtime.Instance {
	return &Instance{protocolType: SubProtocolType, combine: subCombiner}
}

// AddFactory / SubFactory register both protocol types with a Manager.
func AddFactory() runtime.Factory {
	return runtime.Factory{NewInitiator: NewAddInitiator, NewResponder: NewAddResponder}
}
func SubFactory() runtime.Factory {
	return runtime.Factory{NewInitiator: NewSubInitiator, NewResponder: NewSubResponder}
}

// Initialize implements runtime.Instance. A responder only captures its
// resources here; the actual Request arrives via the HandleMessage call the
// runtime makes immediately afterward. An initiator does the full local
// computation and broadcast inline, since it already has every parameter.
func (in *Instance) Initialize(params runtime.Params) error {
	in.store = params.ShareStore()
	in.t = params.Transport()
	in.acked = make(map[party.ID]bool)

	if !in.isLeader {
		return nil
	}

	secretA, err := params.String(in.protocolType, "secretA")
	if err != nil {
		return in.fail(err)
	}
	secretB, err := params.String(in.protocolType, "secretB")
	if err != nil {
		return in.fail(err)
	}
	secretC, err := params.String(in.protocolType, "secretC")
	if err != nil {
		return in.fail(err)
	}
	var storageTag *string
	if v, ok := params["storageTag"].(*string); ok {
		storageTag = v
	}

	if err := in.computeAndStore(secretA, secretB, secretC, storageTag); err != nil {
		return in.fail(err)
	}

	participants := params.Participants()
	if len(participants) == 0 {
		return in.fail(invalidConfig(in.protocolType, params.ProtocolID(), "empty participants"))
	}
	in.expected = len(participants)
	for _, id := range participants {
		msg := &mpc.Message{
			ProtocolID:   params.ProtocolID(),
			ProtocolType: in.protocolType,
			Payload:      &Request{SecretA: secretA, SecretB: secretB, SecretC: secretC, StorageTag: storageTag},
		}
		in.t.Send(msg, id)
	}
	return nil
}

func (in *Instance) computeAndStore(secretA, secretB, secretC string, storageTag *string) error {
	a, ok := in.store.Get(secretA)
	if !ok {
		return mpc.NewError(mpc.MissingShare, in.protocolType, "", fmt.Errorf("no share for %q", secretA))
	}
	b, ok := in.store.Get(secretB)
	if !ok {
		return mpc.NewError(mpc.MissingShare, in.protocolType, "", fmt.Errorf("no share for %q", secretB))
	}
	c := in.combine(a, b)
	in.store.PutPreserving(secretC, c, share.LifetimeFromTag(storageTag))
	return nil
}

func ackFor(protocolType, protocolID string) *mpc.Message {
	return &mpc.Message{ProtocolID: protocolID, ProtocolType: protocolType, Completion: true, Payload: &mpc.Ack{OK: true}}
}

func (in *Instance) fail(err error) error {
	in.complete = true
	if in.Listener != nil {
		in.Listener(err)
	}
	return err
}

// HandleMessage implements runtime.Instance. Responders receive the
// Request and reply with an Ack; initiators only ever receive Acks
// (including their own, via self-loopback).
func (in *Instance) HandleMessage(msg *mpc.Message) error {
	switch payload := msg.Payload.(type) {
	case *Request:
		if err := in.computeAndStore(payload.SecretA, payload.SecretB, payload.SecretC, payload.StorageTag); err != nil {
			return in.fail(err)
		}
		in.t.Send(ackFor(in.protocolType, msg.ProtocolID), msg.SenderID)
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
func (in *Instance) Complete() bool { return in.complete }

func invalidConfig(protocolType, protocolID, msg string) error {
	return mpc.NewError(mpc.InvalidConfiguration, protocolType, protocolID, fmt.Errorf("%s", msg))
}

func invalidConfigMsg(msg *mpc.Message, reason string) error {
	return mpc.NewError(mpc.InvalidConfiguration, msg.ProtocolType, msg.ProtocolID, fmt.Errorf("%s: got %T", reason, msg.Payload))
}
