package meta

import (
	"fmt"

	"github.com/luxfi/mpc/pkg/field"
	"github.com/luxfi/mpc/pkg/mpc"
	"github.com/luxfi/mpc/pkg/party"
	"github.com/luxfi/mpc/pkg/runtime"
	"github.com/luxfi/mpc/pkg/share"
	"github.com/luxfi/mpc/pkg/transport"
	"github.com/luxfi/mpc/protocols/arith"
)

// DotProductSum is broadcast once every componentwise SecureMultiply has
// written its product share: every participant sums its own componentwise
// product shares locally (no share exchange needed, since addition of
// shares is linear) and ACKs.
type DotProductSum struct {
	ProductIDs []string
	SecretOut  string
	StorageTag *string
}

// ExtractParams implements mpc.Payload.
func (d *DotProductSum) ExtractParams() map[string]interface{} {
	return map[string]interface{}{"secretOut": d.SecretOut, "storageTag": d.StorageTag}
}

// dotProductSumInstance is a tiny symmetric broadcast/ACK instance: local
// work only, no leader/responder distinction beyond who started it.
type dotProductSumInstance struct {
	isLeader bool
	Listener func(error)

	store *share.Store
	t     transport.Transport

	expected int
	acked    map[party.ID]bool
	complete bool
}

const dotProductSumType = "DotProductSum"

func newDotProductSumInitiator() runtime.Instance {
	return &dotProductSumInstance{isLeader: true}
}
func newDotProductSumResponder() runtime.Instance { return &dotProductSumInstance{} }

func sumLocalProducts(store *share.Store, productIDs []string, secretOut string, storageTag *string) error {
	var sum *field.Share
	for _, id := range productIDs {
		sh, ok := store.Get(id)
		if !ok {
			return mpc.NewError(mpc.MissingShare, dotProductSumType, "", fmt.Errorf("no share for %q", id))
		}
		if sum == nil {
			sum = sh
			continue
		}
		sum = sum.Add(sh)
	}
	store.PutPreserving(secretOut, sum, share.LifetimeFromTag(storageTag))
	return nil
}

func (in *dotProductSumInstance) Initialize(params runtime.Params) error {
	in.store = params.ShareStore()
	in.t = params.Transport()
	in.acked = make(map[party.ID]bool)

	if !in.isLeader {
		return nil
	}

	productIDs, _ := params["productIds"].([]string)
	secretOut, err := params.String(dotProductSumType, "secretOut")
	if err != nil {
		return in.fail(err)
	}
	var storageTag *string
	if v, ok := params["storageTag"].(*string); ok {
		storageTag = v
	}
	participants := params.Participants()
	if len(participants) == 0 {
		return in.fail(mpc.NewError(mpc.InvalidConfiguration, dotProductSumType, params.ProtocolID(), fmt.Errorf("empty participants")))
	}
	in.expected = len(participants)
	for _, id := range participants {
		msg := &mpc.Message{
			ProtocolID: params.ProtocolID(), ProtocolType: dotProductSumType,
			Payload: &DotProductSum{ProductIDs: productIDs, SecretOut: secretOut, StorageTag: storageTag},
		}
		in.t.Send(msg, id)
	}
	return nil
}

func (in *dotProductSumInstance) fail(err error) error {
	in.complete = true
	if in.Listener != nil {
		in.Listener(err)
	}
	return err
}

func (in *dotProductSumInstance) HandleMessage(msg *mpc.Message) error {
	switch payload := msg.Payload.(type) {
	case *DotProductSum:
		if err := sumLocalProducts(in.store, payload.ProductIDs, payload.SecretOut, payload.StorageTag); err != nil {
			return in.fail(err)
		}
		in.t.Send(&mpc.Message{ProtocolID: msg.ProtocolID, ProtocolType: dotProductSumType, Completion: true, Payload: &mpc.Ack{OK: true}}, msg.SenderID)
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
		return mpc.NewError(mpc.InvalidConfiguration, dotProductSumType, msg.ProtocolID, fmt.Errorf("unexpected payload %T", msg.Payload))
	}
}

func (in *dotProductSumInstance) Complete() bool { return in.complete }

// dotProductSumFactory lets a Manager auto-respond to DotProductSum
// messages the same way it does for any other leaf protocol.
func dotProductSumFactory() runtime.Factory {
	return runtime.Factory{NewInitiator: newDotProductSumInitiator, NewResponder: newDotProductSumResponder}
}

// RegisterDotProductFactories registers the internal DotProductSum type
// this meta-protocol needs in addition to SecureMultiply, which callers
// must already have registered via arith.MultiplyFactory().
func RegisterDotProductFactories(m *runtime.Manager) {
	m.RegisterFactory(dotProductSumType, dotProductSumFactory())
}

// SecureDotProduct computes Σ_k a[k]·b[k] across d componentwise pairs of
// pre-shared secrets, per spec.md §4.6: d parallel SecureMultiply calls
// (one per component, each needing its own pre-distributed multiplication
// mask), then a DotProductSum broadcast so every participant locally sums
// its own product shares — addition needs no further communication since
// shares are additively homomorphic.
func SecureDotProduct(m *runtime.Manager, secretsA, secretsB, secretRs []string, secretOut string, prime *field.Prime, participants party.IDSlice, storageTag *string, listener func(error)) error {
	d := len(secretsA)
	if d == 0 || d != len(secretsB) || d != len(secretRs) {
		return mpc.NewError(mpc.InvalidConfiguration, "SecureDotProduct", "", fmt.Errorf("mismatched operand vector lengths"))
	}

	productIDs := make([]string, d)
	remaining := d
	var failed bool

	allDone := func(err error) {
		if failed {
			return
		}
		if err != nil {
			failed = true
			if listener != nil {
				listener(err)
			}
			return
		}
		remaining--
		if remaining > 0 {
			return
		}
		sumInst := newDotProductSumInitiator().(*dotProductSumInstance)
		sumInst.Listener = listener
		if err := startSub(m, sumInst, runtime.Params{
			"productIds": productIDs, "secretOut": secretOut, "storageTag": storageTag,
		}, participants); err != nil && listener != nil {
			listener(err)
		}
	}

	for k := 0; k < d; k++ {
		productIDs[k] = scopedID(secretOut, fmt.Sprintf("__prod%d", k))
		mulInst := arith.NewMultiplyInitiator().(*arith.MultiplyInstance)
		mulInst.Listener = allDone
		if err := startSub(m, mulInst, runtime.Params{
			"secretA": secretsA[k], "secretB": secretsB[k], "secretR": secretRs[k], "secretC": productIDs[k],
			"prime": prime, "storageTag": storageTag,
		}, participants); err != nil {
			return err
		}
	}
	return nil
}
