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
	"github.com/luxfi/mpc/protocols/compare"
)

// CopyShare broadcasts a request for every participant to alias one local
// share under a second ID: the seeding and final-aliasing steps of
// FindExtremum need this (the running (v, k) pair starts as arr[0] and ends
// under the caller's requested output IDs), and it is pure local bookkeeping
// — no arithmetic, no reconstruction — so it is its own minimal leaf rather
// than an awkward zero-operand SecureKnownSub.
type CopyShare struct {
	From       string
	To         string
	StorageTag *string
}

// ExtractParams implements mpc.Payload.
func (c *CopyShare) ExtractParams() map[string]interface{} {
	return map[string]interface{}{"from": c.From, "to": c.To, "storageTag": c.StorageTag}
}

const copyShareType = "CopyShare"

type copyShareInstance struct {
	isLeader bool
	Listener func(error)

	store *share.Store
	t     transport.Transport

	expected int
	acked    map[party.ID]bool
	complete bool
}

func newCopyShareInitiator() runtime.Instance { return &copyShareInstance{isLeader: true} }
func newCopyShareResponder() runtime.Instance { return &copyShareInstance{} }

func copyShareFactory() runtime.Factory {
	return runtime.Factory{NewInitiator: newCopyShareInitiator, NewResponder: newCopyShareResponder}
}

func applyCopyShare(store *share.Store, from, to string, storageTag *string) error {
	sh, ok := store.Get(from)
	if !ok {
		return mpc.NewError(mpc.MissingShare, copyShareType, "", fmt.Errorf("no share for %q", from))
	}
	store.PutPreserving(to, sh, share.LifetimeFromTag(storageTag))
	return nil
}

func (in *copyShareInstance) Initialize(params runtime.Params) error {
	in.store = params.ShareStore()
	in.t = params.Transport()
	in.acked = make(map[party.ID]bool)

	if !in.isLeader {
		return nil
	}

	from, err := params.String(copyShareType, "from")
	if err != nil {
		return in.fail(err)
	}
	to, err := params.String(copyShareType, "to")
	if err != nil {
		return in.fail(err)
	}
	var storageTag *string
	if v, ok := params["storageTag"].(*string); ok {
		storageTag = v
	}
	if err := applyCopyShare(in.store, from, to, storageTag); err != nil {
		return in.fail(err)
	}

	participants := params.Participants()
	if len(participants) == 0 {
		return in.fail(mpc.NewError(mpc.InvalidConfiguration, copyShareType, params.ProtocolID(), fmt.Errorf("empty participants")))
	}
	in.expected = len(participants)
	for _, id := range participants {
		msg := &mpc.Message{
			ProtocolID: params.ProtocolID(), ProtocolType: copyShareType,
			Payload: &CopyShare{From: from, To: to, StorageTag: storageTag},
		}
		in.t.Send(msg, id)
	}
	return nil
}

func (in *copyShareInstance) fail(err error) error {
	in.complete = true
	if in.Listener != nil {
		in.Listener(err)
	}
	return err
}

func (in *copyShareInstance) HandleMessage(msg *mpc.Message) error {
	switch payload := msg.Payload.(type) {
	case *CopyShare:
		if err := applyCopyShare(in.store, payload.From, payload.To, payload.StorageTag); err != nil {
			return in.fail(err)
		}
		in.t.Send(&mpc.Message{ProtocolID: msg.ProtocolID, ProtocolType: copyShareType, Completion: true, Payload: &mpc.Ack{OK: true}}, msg.SenderID)
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
		return mpc.NewError(mpc.InvalidConfiguration, copyShareType, msg.ProtocolID, fmt.Errorf("unexpected payload %T", msg.Payload))
	}
}

func (in *copyShareInstance) Complete() bool { return in.complete }

// SeedConstant broadcasts a request for every participant to materialize a
// public constant as a share under a new ID, reusing indexFrom's share
// purely to learn this node's own Shamir index — a constant is already a
// valid degree-0 sharing of itself at any index, so no arithmetic on
// indexFrom's value occurs.
type SeedConstant struct {
	IndexFrom  string
	Value      *field.Elem
	To         string
	StorageTag *string
}

// ExtractParams implements mpc.Payload.
func (s *SeedConstant) ExtractParams() map[string]interface{} {
	return map[string]interface{}{"indexFrom": s.IndexFrom, "to": s.To, "storageTag": s.StorageTag}
}

const seedConstantType = "SeedConstant"

type seedConstantInstance struct {
	isLeader bool
	Listener func(error)

	store *share.Store
	t     transport.Transport

	expected int
	acked    map[party.ID]bool
	complete bool
}

func newSeedConstantInitiator() runtime.Instance { return &seedConstantInstance{isLeader: true} }
func newSeedConstantResponder() runtime.Instance { return &seedConstantInstance{} }

func seedConstantFactory() runtime.Factory {
	return runtime.Factory{NewInitiator: newSeedConstantInitiator, NewResponder: newSeedConstantResponder}
}

func applySeedConstant(store *share.Store, indexFrom, to string, value *field.Elem, storageTag *string) error {
	idx, ok := store.Get(indexFrom)
	if !ok {
		return mpc.NewError(mpc.MissingShare, seedConstantType, "", fmt.Errorf("no share for %q", indexFrom))
	}
	store.PutPreserving(to, &field.Share{Index: idx.Index, Value: value, WitnessSecret: value}, share.LifetimeFromTag(storageTag))
	return nil
}

func (in *seedConstantInstance) Initialize(params runtime.Params) error {
	in.store = params.ShareStore()
	in.t = params.Transport()
	in.acked = make(map[party.ID]bool)

	if !in.isLeader {
		return nil
	}

	indexFrom, err := params.String(seedConstantType, "indexFrom")
	if err != nil {
		return in.fail(err)
	}
	to, err := params.String(seedConstantType, "to")
	if err != nil {
		return in.fail(err)
	}
	value, ok := params["value"].(*field.Elem)
	if !ok {
		return in.fail(mpc.NewError(mpc.InvalidConfiguration, seedConstantType, params.ProtocolID(), fmt.Errorf("missing value")))
	}
	var storageTag *string
	if v, ok := params["storageTag"].(*string); ok {
		storageTag = v
	}
	if err := applySeedConstant(in.store, indexFrom, to, value, storageTag); err != nil {
		return in.fail(err)
	}

	participants := params.Participants()
	if len(participants) == 0 {
		return in.fail(mpc.NewError(mpc.InvalidConfiguration, seedConstantType, params.ProtocolID(), fmt.Errorf("empty participants")))
	}
	in.expected = len(participants)
	for _, id := range participants {
		msg := &mpc.Message{
			ProtocolID: params.ProtocolID(), ProtocolType: seedConstantType,
			Payload: &SeedConstant{IndexFrom: indexFrom, Value: value, To: to, StorageTag: storageTag},
		}
		in.t.Send(msg, id)
	}
	return nil
}

func (in *seedConstantInstance) fail(err error) error {
	in.complete = true
	if in.Listener != nil {
		in.Listener(err)
	}
	return err
}

func (in *seedConstantInstance) HandleMessage(msg *mpc.Message) error {
	switch payload := msg.Payload.(type) {
	case *SeedConstant:
		if err := applySeedConstant(in.store, payload.IndexFrom, payload.To, payload.Value, payload.StorageTag); err != nil {
			return in.fail(err)
		}
		in.t.Send(&mpc.Message{ProtocolID: msg.ProtocolID, ProtocolType: seedConstantType, Completion: true, Payload: &mpc.Ack{OK: true}}, msg.SenderID)
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
		return mpc.NewError(mpc.InvalidConfiguration, seedConstantType, msg.ProtocolID, fmt.Errorf("unexpected payload %T", msg.Payload))
	}
}

func (in *seedConstantInstance) Complete() bool { return in.complete }

// RegisterFindExtremumFactories registers the internal leaf types
// FindExtremum needs in addition to the ones callers must already have
// registered (arith's four leaves).
func RegisterFindExtremumFactories(m *runtime.Manager) {
	m.RegisterFactory(copyShareType, copyShareFactory())
	m.RegisterFactory(seedConstantType, seedConstantFactory())
	compare.RegisterFactories(m)
	RegisterDotProductFactories(m)
}

func startCopy(m *runtime.Manager, from, to string, participants party.IDSlice, storageTag *string, listener func(error)) error {
	inst := newCopyShareInitiator().(*copyShareInstance)
	inst.Listener = listener
	_, err := m.StartProtocol(inst, runtime.Params{"from": from, "to": to, "storageTag": storageTag}, participants)
	return err
}

func startSeedConstant(m *runtime.Manager, indexFrom, to string, value *field.Elem, participants party.IDSlice, storageTag *string, listener func(error)) error {
	inst := newSeedConstantInitiator().(*seedConstantInstance)
	inst.Listener = listener
	_, err := m.StartProtocol(inst, runtime.Params{"indexFrom": indexFrom, "to": to, "value": value, "storageTag": storageTag}, participants)
	return err
}

// FindExtremumMasks is the full set of pre-distributed dealer masks one
// FindMin/FindMax run needs: one compare.Mask and one pair of
// multiplication masks per iteration (array length minus one), since both
// the β computation and the two scalings it gates (Δv, Δk) repeat every
// step.
type FindExtremumMasks struct {
	Compare []*compare.Mask
	MulDv   []string // multiplication mask for β·Δv, one per iteration
	MulDk   []string // multiplication mask for β·Δk, one per iteration
}

// FindExtremum computes (value, index) of the minimum (findMax=false) or
// maximum (findMax=true) element of the shared array arr, per spec.md §4.6
// and §9 Design Notes (b): the size-1 array is a base case returned
// immediately without any comparison; otherwise the running (v, k) pair is
// folded left-to-right across arr[1:], each step running three waves —
// compare+Δv+Δk, then the two scalings β·Δv and β·Δk, then the two updates
// v←v+γ and k←k+δ — each wave itself run as parallel leaf sub-protocols.
func FindExtremum(m *runtime.Manager, arr []string, findMax bool, secretOutV, secretOutK string, masks FindExtremumMasks, prime *field.Prime, participants party.IDSlice, storageTag *string, listener func(error)) error {
	n := len(arr)
	if n == 0 {
		return mpc.NewError(mpc.InvalidConfiguration, "FindExtremum", "", fmt.Errorf("empty array"))
	}
	if n == 1 {
		// Base case: no comparison needed at all (spec.md §9 Design Notes (b)).
		return seedBaseCase(m, arr[0], secretOutV, secretOutK, prime, participants, storageTag, listener)
	}
	if len(masks.Compare) < n-1 || len(masks.MulDv) < n-1 || len(masks.MulDk) < n-1 {
		return mpc.NewError(mpc.InvalidConfiguration, "FindExtremum", "", fmt.Errorf("not enough pre-distributed masks for %d iterations", n-1))
	}

	kZeroID := scopedID(secretOutK, "__kzero")
	var vDone, kDone bool
	var failed bool
	seedDone := func(err error, isV bool) {
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
		if isV {
			vDone = true
		} else {
			kDone = true
		}
		if vDone && kDone {
			foldFrom(m, arr, findMax, arr[0], kZeroID, secretOutV, secretOutK, masks, prime, participants, storageTag, listener, 1)
		}
	}

	if err := startCopy(m, arr[0], arr[0], participants, storageTag, func(err error) { seedDone(err, true) }); err != nil {
		return err
	}
	return startSeedConstant(m, arr[0], kZeroID, prime.ElemFromInt64(0), participants, storageTag, func(err error) { seedDone(err, false) })
}

// seedBaseCase handles the size-1 array: v is simply an alias of arr[0] and
// k is the compile-time-known index 0, materialized by every node as a
// degree-0 share of the constant 0 (trivially a valid sharing of itself at
// any index, since the polynomial's own index doesn't matter for a constant
// term) via SeedConstant.
func seedBaseCase(m *runtime.Manager, arr0, secretOutV, secretOutK string, prime *field.Prime, participants party.IDSlice, storageTag *string, listener func(error)) error {
	var vDone bool
	var failed bool
	step := func(err error) {
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
		if !vDone {
			vDone = true
			return
		}
		if listener != nil {
			listener(nil)
		}
	}
	if err := startCopy(m, arr0, secretOutV, participants, storageTag, step); err != nil {
		return err
	}
	return startSeedConstant(m, arr0, secretOutK, prime.ElemFromInt64(0), participants, storageTag, step)
}

// foldFrom runs one iteration comparing the running (v, k) against arr[i],
// then recurses (via listener chaining) to i+1 until the array is exhausted.
func foldFrom(m *runtime.Manager, arr []string, findMax bool, vID, kID, secretOutV, secretOutK string, masks FindExtremumMasks, prime *field.Prime, participants party.IDSlice, storageTag *string, listener func(error), i int) {
	if i >= len(arr) {
		finishFold(m, vID, kID, secretOutV, secretOutK, participants, storageTag, listener)
		return
	}

	betaID := scopedID(secretOutV, fmt.Sprintf("__beta%d", i))
	dvID := scopedID(secretOutV, fmt.Sprintf("__dv%d", i))
	dkID := scopedID(secretOutK, fmt.Sprintf("__dk%d", i))
	gammaID := scopedID(secretOutV, fmt.Sprintf("__gamma%d", i))
	deltaID := scopedID(secretOutK, fmt.Sprintf("__delta%d", i))
	nextV := scopedID(secretOutV, fmt.Sprintf("__v%d", i))
	nextK := scopedID(secretOutK, fmt.Sprintf("__k%d", i))

	mask := masks.Compare[i-1]
	// β = compare(cmpL, cmpR) = 1 iff cmpL < cmpR (see SecureMin). The fold
	// update v←v+β·(arr[i]−v) takes arr[i] exactly when β=1, so β must be 1
	// exactly when arr[i] belongs in that slot: arr[i]<v for the running
	// minimum, v<arr[i] for the running maximum.
	cmpL, cmpR := arr[i], vID
	if findMax {
		cmpL, cmpR = vID, arr[i]
	}

	wave1Remaining := 3
	wave1Failed := false
	wave1Done := func(err error) {
		if wave1Failed {
			return
		}
		if err != nil {
			wave1Failed = true
			if listener != nil {
				listener(err)
			}
			return
		}
		wave1Remaining--
		if wave1Remaining > 0 {
			return
		}
		runWave2(m, betaID, dvID, dkID, gammaID, deltaID, masks.MulDv[i-1], masks.MulDk[i-1], prime, participants, storageTag, func(err error) {
			if err != nil {
				if listener != nil {
					listener(err)
				}
				return
			}
			runWave3(m, vID, kID, gammaID, deltaID, nextV, nextK, participants, storageTag, func(err error) {
				if err != nil {
					if listener != nil {
						listener(err)
					}
					return
				}
				foldFrom(m, arr, findMax, nextV, nextK, secretOutV, secretOutK, masks, prime, participants, storageTag, listener, i+1)
			})
		})
	}

	if err := compare.SecureCompare(m, cmpL, cmpR, betaID, mask, prime, participants, storageTag, wave1Done); err != nil {
		if listener != nil {
			listener(err)
		}
		return
	}

	dvInst := arith.NewSubInitiator().(*arith.Instance)
	dvInst.Listener = wave1Done
	if _, err := m.StartProtocol(dvInst, runtime.Params{
		"secretA": arr[i], "secretB": vID, "secretC": dvID, "storageTag": storageTag,
	}, participants); err != nil {
		if listener != nil {
			listener(err)
		}
		return
	}

	dkInst := arith.NewKnownSubInitiator().(*arith.KnownSubInstance)
	dkInst.Listener = wave1Done
	if _, err := m.StartProtocol(dkInst, runtime.Params{
		"k": prime.ElemFromInt64(int64(i)), "secret": kID, "secretC": dkID, "knownIsLeft": true, "storageTag": storageTag,
	}, participants); err != nil {
		if listener != nil {
			listener(err)
		}
		return
	}
}

func runWave2(m *runtime.Manager, betaID, dvID, dkID, gammaID, deltaID, maskDv, maskDk string, prime *field.Prime, participants party.IDSlice, storageTag *string, done func(error)) {
	remaining := 2
	failed := false
	step := func(err error) {
		if failed {
			return
		}
		if err != nil {
			failed = true
			done(err)
			return
		}
		remaining--
		if remaining == 0 {
			done(nil)
		}
	}

	gammaInst := arith.NewMultiplyInitiator().(*arith.MultiplyInstance)
	gammaInst.Listener = step
	if _, err := m.StartProtocol(gammaInst, runtime.Params{
		"secretA": betaID, "secretB": dvID, "secretR": maskDv, "secretC": gammaID, "prime": prime, "storageTag": storageTag,
	}, participants); err != nil {
		step(err)
		return
	}

	deltaInst := arith.NewMultiplyInitiator().(*arith.MultiplyInstance)
	deltaInst.Listener = step
	if _, err := m.StartProtocol(deltaInst, runtime.Params{
		"secretA": betaID, "secretB": dkID, "secretR": maskDk, "secretC": deltaID, "prime": prime, "storageTag": storageTag,
	}, participants); err != nil {
		step(err)
	}
}

func runWave3(m *runtime.Manager, vID, kID, gammaID, deltaID, nextV, nextK string, participants party.IDSlice, storageTag *string, done func(error)) {
	remaining := 2
	failed := false
	step := func(err error) {
		if failed {
			return
		}
		if err != nil {
			failed = true
			done(err)
			return
		}
		remaining--
		if remaining == 0 {
			done(nil)
		}
	}

	vInst := arith.NewAddInitiator().(*arith.Instance)
	vInst.Listener = step
	if _, err := m.StartProtocol(vInst, runtime.Params{
		"secretA": vID, "secretB": gammaID, "secretC": nextV, "storageTag": storageTag,
	}, participants); err != nil {
		step(err)
		return
	}

	kInst := arith.NewAddInitiator().(*arith.Instance)
	kInst.Listener = step
	if _, err := m.StartProtocol(kInst, runtime.Params{
		"secretA": kID, "secretB": deltaID, "secretC": nextK, "storageTag": storageTag,
	}, participants); err != nil {
		step(err)
	}
}

// finishFold aliases the fold's final (v, k) pair into the caller's
// requested output IDs.
func finishFold(m *runtime.Manager, vID, kID, secretOutV, secretOutK string, participants party.IDSlice, storageTag *string, listener func(error)) {
	remaining := 2
	failed := false
	step := func(err error) {
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
		if remaining == 0 && listener != nil {
			listener(nil)
		}
	}
	if err := startCopy(m, vID, secretOutV, participants, storageTag, step); err != nil {
		step(err)
	}
	if err := startCopy(m, kID, secretOutK, participants, storageTag, step); err != nil {
		step(err)
	}
}
