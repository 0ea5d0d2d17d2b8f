// Package meta implements the meta-protocols of spec.md §4.6: SecureMin,
// SecureDotProduct, and SecureFindMin/SecureFindMax. Their top-level
// operations carry no wire message of their own — they are plain
// orchestration functions that a single coordinating node calls,
// driving several leaf-protocol instances phase-by-phase via chained
// listener callbacks (spec.md §4.6: "orchestrate leaves via listener
// callbacks, advancing phase-by-phase"). The package's only wire messages
// and factories belong to three small internal leaves that this
// composition uses: DotProductSum, CopyShare and SeedConstant.
package meta

import (
	"github.com/luxfi/mpc/pkg/field"
	"github.com/luxfi/mpc/pkg/party"
	"github.com/luxfi/mpc/pkg/runtime"
	"github.com/luxfi/mpc/protocols/arith"
	"github.com/luxfi/mpc/protocols/compare"
)

func scopedID(base, suffix string) string { return base + suffix }

func startSub(m *runtime.Manager, inst runtime.Instance, params runtime.Params, participants party.IDSlice) error {
	_, err := m.StartProtocol(inst, params, participants)
	return err
}

// SecureMin computes min(L,R) = R + β·(L−R) where β = compare(L,R), per
// spec.md §4.6: diff and compare run in parallel, then a multiply, then an
// add. prime and participants are shared by every phase; secretRMul is the
// pre-distributed multiplication mask used by the internal SecureMultiply,
// and mask is the pre-distributed compare.Mask SecureCompare needs (see
// pkg/setup.Dealer.CompareMask).
func SecureMin(m *runtime.Manager, secretL, secretR, secretOut, secretRMul string, mask *compare.Mask, prime *field.Prime, participants party.IDSlice, storageTag *string, listener func(error)) error {
	diffID := scopedID(secretOut, "__diff")
	betaID := scopedID(secretOut, "__beta")
	scaledID := scopedID(secretOut, "__scaled")

	var diffDone, betaDone bool
	var failed bool

	advance := func(err error) {
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
		if !diffDone || !betaDone {
			return
		}
		// Phase 2: scaled = β · diff.
		mulInst := arith.NewMultiplyInitiator().(*arith.MultiplyInstance)
		mulInst.Listener = func(err error) {
			if err != nil {
				if listener != nil {
					listener(err)
				}
				return
			}
			// Phase 3: result = R + scaled.
			addInst := arith.NewAddInitiator().(*arith.Instance)
			addInst.Listener = listener
			addErr := startSub(m, addInst, runtime.Params{
				"secretA": secretR, "secretB": scaledID, "secretC": secretOut, "storageTag": storageTag,
			}, participants)
			if addErr != nil && listener != nil {
				listener(addErr)
			}
		}
		mulErr := startSub(m, mulInst, runtime.Params{
			"secretA": betaID, "secretB": diffID, "secretR": secretRMul, "secretC": scaledID,
			"prime": prime, "storageTag": storageTag,
		}, participants)
		if mulErr != nil && listener != nil {
			listener(mulErr)
		}
	}

	subInst := arith.NewSubInitiator().(*arith.Instance)
	subInst.Listener = func(err error) { diffDone = err == nil; advance(err) }
	if err := startSub(m, subInst, runtime.Params{
		"secretA": secretL, "secretB": secretR, "secretC": diffID, "storageTag": storageTag,
	}, participants); err != nil {
		return err
	}

	if err := compare.SecureCompare(m, secretL, secretR, betaID, mask, prime, participants, storageTag, func(err error) { betaDone = err == nil; advance(err) }); err != nil {
		return err
	}
	return nil
}
