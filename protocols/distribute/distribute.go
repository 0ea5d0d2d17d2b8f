// Package distribute implements the ShareDistribution and
// VectorShareDistribution leaf protocols of spec.md §4.5.
package distribute

import (
	"crypto/rand"
	"fmt"

	"github.com/luxfi/mpc/pkg/field"
	"github.com/luxfi/mpc/pkg/mpc"
	"github.com/luxfi/mpc/pkg/runtime"
	"github.com/luxfi/mpc/pkg/share"
)

// ProtocolType is the ShareDistribution discriminant used by the runtime's
// factory registry.
const ProtocolType = "ShareDistribution"

// DistributionMessage carries one participant's scalar share.
type DistributionMessage struct {
	SecretID   string
	Share      *field.Share
	StorageTag *string
}

// ExtractParams implements mpc.Payload.
func (m *DistributionMessage) ExtractParams() map[string]interface{} {
	return map[string]interface{}{
		"secretId":   m.SecretID,
		"storageTag": m.StorageTag,
	}
}

func applyDistribution(store *share.Store, dm *DistributionMessage) {
	store.PutPreserving(dm.SecretID, dm.Share, share.LifetimeFromTag(dm.StorageTag))
}

// Initiator picks secretValue/secretId/t/p/storageTag, generates shares for
// every participant, and sends each its share via a DistributionMessage —
// including itself, over the uniform send path. It completes synchronously:
// no network ACKs are awaited (spec.md §4.5).
type Initiator struct {
	// Listener is invoked once this instance completes, nil error on
	// success. Optional.
	Listener func(error)

	store    *share.Store
	complete bool
}

// NewInitiator builds a blank Initiator for registration with a Factory.
func NewInitiator() runtime.Instance { return &Initiator{} }

// Initialize implements runtime.Instance.
func (in *Initiator) Initialize(params runtime.Params) error {
	in.store = params.ShareStore()

	secretID, err := params.String(ProtocolType, "secretId")
	if err != nil {
		return in.fail(err)
	}
	threshold, err := params.Int(ProtocolType, "threshold")
	if err != nil {
		return in.fail(err)
	}
	prime, ok := params["prime"].(*field.Prime)
	if !ok {
		return in.fail(invalidConfig(params, "missing prime"))
	}
	secretValue, ok := params["secretValue"].(*field.Elem)
	if !ok {
		return in.fail(invalidConfig(params, "missing secretValue"))
	}
	var storageTag *string
	if v, ok := params["storageTag"].(*string); ok {
		storageTag = v
	}

	participants := params.Participants()
	if len(participants) == 0 {
		return in.fail(invalidConfig(params, "empty participants"))
	}

	poly, err := field.ShareGen(prime, secretValue, threshold, len(participants), rand.Reader)
	if err != nil {
		return in.fail(mpc.NewError(mpc.InvalidConfiguration, ProtocolType, params.ProtocolID(), err))
	}

	t := params.Transport()
	for _, id := range participants {
		sh := field.ShareAt(poly, int(id))
		msg := &mpc.Message{
			ProtocolID:   params.ProtocolID(),
			ProtocolType: ProtocolType,
			Payload:      &DistributionMessage{SecretID: secretID, Share: sh, StorageTag: storageTag},
		}
		t.Send(msg, id)
	}

	in.complete = true
	if in.Listener != nil {
		in.Listener(nil)
	}
	return nil
}

func (in *Initiator) fail(err error) error {
	in.complete = true
	if in.Listener != nil {
		in.Listener(err)
	}
	return err
}

// HandleMessage processes the initiator's own self-delivered share — the
// "embedded responder" of spec.md §4.3's self-loopback design.
func (in *Initiator) HandleMessage(msg *mpc.Message) error {
	dm, ok := msg.Payload.(*DistributionMessage)
	if !ok {
		return invalidConfig0(msg, "unexpected payload")
	}
	applyDistribution(in.store, dm)
	return nil
}

// Complete implements runtime.Instance.
func (in *Initiator) Complete() bool { return in.complete }

// Responder stores the share it receives and completes immediately; there
// is no ACK in the scalar ShareDistribution protocol.
type Responder struct {
	store    *share.Store
	complete bool
}

// NewResponder builds a blank Responder for the factory registry.
func NewResponder() runtime.Instance { return &Responder{} }

// Initialize implements runtime.Instance.
func (r *Responder) Initialize(params runtime.Params) error {
	r.store = params.ShareStore()
	return nil
}

// HandleMessage implements runtime.Instance.
func (r *Responder) HandleMessage(msg *mpc.Message) error {
	dm, ok := msg.Payload.(*DistributionMessage)
	if !ok {
		return invalidConfig0(msg, "unexpected payload")
	}
	applyDistribution(r.store, dm)
	r.complete = true
	return nil
}

// Complete implements runtime.Instance.
func (r *Responder) Complete() bool { return r.complete }

// Factory is the registration convenience for pkg/runtime.Manager.RegisterFactory.
func Factory() runtime.Factory {
	return runtime.Factory{NewInitiator: NewInitiator, NewResponder: NewResponder}
}

func invalidConfig(params runtime.Params, msg string) error {
	return mpc.NewError(mpc.InvalidConfiguration, ProtocolType, params.ProtocolID(), fmt.Errorf("%s", msg))
}

func invalidConfig0(msg *mpc.Message, reason string) error {
	return mpc.NewError(mpc.InvalidConfiguration, ProtocolType, msg.ProtocolID, fmt.Errorf("%s: got %T", reason, msg.Payload))
}
