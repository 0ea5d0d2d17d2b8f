// Package reconstruct implements the ReconstructSecret leaf protocol of
// spec.md §4.5: every participant sends its share of a secret to the
// initiator, and only the initiator recovers the value.
package reconstruct

import (
	"fmt"

	"github.com/luxfi/mpc/pkg/field"
	"github.com/luxfi/mpc/pkg/mpc"
	"github.com/luxfi/mpc/pkg/runtime"
	"github.com/luxfi/mpc/pkg/share"
	"github.com/luxfi/mpc/pkg/transport"
)

// ProtocolType is the ReconstructSecret discriminant.
const ProtocolType = "ReconstructSecret"

// ShareMessage carries one participant's share of the secret being
// reconstructed.
type ShareMessage struct {
	SecretID string
	Share    *field.Share
}

// ExtractParams implements mpc.Payload.
func (m *ShareMessage) ExtractParams() map[string]interface{} {
	return map[string]interface{}{"secretId": m.SecretID}
}

// Initiator collects exactly one share from every participant (including
// itself) and Lagrange-reconstructs the secret once all have arrived. A
// participant missing its own share for secretId is a fatal local error —
// there is no partial/degraded reconstruction path (spec.md §4.5).
type Initiator struct {
	// Listener is invoked once with the reconstructed value on success, or
	// a non-nil error on failure. Only the initiator ever learns the
	// secret.
	Listener func(*field.Elem, error)

	prime    *field.Prime
	expected int
	shares   []*field.Share
	complete bool
}

// NewInitiator builds a blank Initiator for a Factory.
func NewInitiator() runtime.Instance { return &Initiator{} }

// Initialize implements runtime.Instance.
func (in *Initiator) Initialize(params runtime.Params) error {
	secretID, err := params.String(ProtocolType, "secretId")
	if err != nil {
		return in.fail(err)
	}
	prime, ok := params["prime"].(*field.Prime)
	if !ok {
		return in.fail(invalidConfig(params, "missing prime"))
	}
	in.prime = prime

	store := params.ShareStore()
	participants := params.Participants()
	if len(participants) == 0 {
		return in.fail(invalidConfig(params, "empty participants"))
	}
	in.expected = len(participants)

	t := params.Transport()
	for _, id := range participants {
		if id == t.LocalID() {
			sh, ok := store.Get(secretID)
			if !ok {
				return in.fail(mpc.NewError(mpc.MissingShare, ProtocolType, params.ProtocolID(), fmt.Errorf("no share for %q", secretID), id))
			}
			in.shares = append(in.shares, sh)
			continue
		}
		msg := &mpc.Message{
			ProtocolID:   params.ProtocolID(),
			ProtocolType: ProtocolType,
			Payload:      &ShareMessage{SecretID: secretID},
		}
		t.Send(msg, id)
	}
	if len(in.shares) == in.expected {
		return in.finish()
	}
	return nil
}

func (in *Initiator) fail(err error) error {
	in.complete = true
	if in.Listener != nil {
		in.Listener(nil, err)
	}
	return err
}

func (in *Initiator) finish() error {
	secret, err := field.Reconstruct(in.prime, in.shares)
	in.complete = true
	if err != nil {
		wrapped := mpc.NewError(mpc.ReconstructionFailure, ProtocolType, "", err)
		if in.Listener != nil {
			in.Listener(nil, wrapped)
		}
		return wrapped
	}
	if in.Listener != nil {
		in.Listener(secret, nil)
	}
	return nil
}

// HandleMessage implements runtime.Instance.
func (in *Initiator) HandleMessage(msg *mpc.Message) error {
	sm, ok := msg.Payload.(*ShareMessage)
	if !ok {
		return invalidConfigMsg(msg, "unexpected payload")
	}
	in.shares = append(in.shares, sm.Share)
	if len(in.shares) >= in.expected {
		return in.finish()
	}
	return nil
}

// Complete implements runtime.Instance.
func (in *Initiator) Complete() bool { return in.complete }

// Responder looks up its own share of the requested secret and replies to
// the requester. A missing share is fatal: spec.md §4.5 gives no fallback.
type Responder struct {
	store    *share.Store
	t        transport.Transport
	complete bool
}

// NewResponder builds a blank Responder for a Factory.
func NewResponder() runtime.Instance { return &Responder{} }

// Initialize implements runtime.Instance.
func (r *Responder) Initialize(params runtime.Params) error {
	r.store = params.ShareStore()
	r.t = params.Transport()
	return nil
}

// HandleMessage implements runtime.Instance.
func (r *Responder) HandleMessage(msg *mpc.Message) error {
	sm, ok := msg.Payload.(*ShareMessage)
	if !ok {
		return invalidConfigMsg(msg, "unexpected payload")
	}
	sh, ok := r.store.Get(sm.SecretID)
	if !ok {
		r.complete = true
		return mpc.NewError(mpc.MissingShare, ProtocolType, msg.ProtocolID, fmt.Errorf("no share for %q", sm.SecretID), r.t.LocalID())
	}
	r.t.Send(&mpc.Message{
		ProtocolID:   msg.ProtocolID,
		ProtocolType: ProtocolType,
		Payload:      &ShareMessage{SecretID: sm.SecretID, Share: sh},
	}, msg.SenderID)
	r.complete = true
	return nil
}

// Complete implements runtime.Instance.
func (r *Responder) Complete() bool { return r.complete }

// Factory is the registration convenience for
// pkg/runtime.Manager.RegisterFactory.
func Factory() runtime.Factory {
	return runtime.Factory{NewInitiator: NewInitiator, NewResponder: NewResponder}
}

func invalidConfig(params runtime.Params, msg string) error {
	return mpc.NewError(mpc.InvalidConfiguration, ProtocolType, params.ProtocolID(), fmt.Errorf("%s", msg))
}

func invalidConfigMsg(msg *mpc.Message, reason string) error {
	return mpc.NewError(mpc.InvalidConfiguration, ProtocolType, msg.ProtocolID, fmt.Errorf("%s: got %T", reason, msg.Payload))
}
