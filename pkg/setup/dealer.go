// Package setup implements the trusted dealer of spec.md §6/§9: the
// out-of-band party that pre-distributes the random masks SecureMultiply
// and SecureCompare need before they can run (the r-secret and the r-key
// plus its per-bit shares), and the supplemented Rotate operation that
// refreshes them.
package setup

import (
	"crypto/rand"
	"fmt"

	"github.com/luxfi/mpc/pkg/field"
	"github.com/luxfi/mpc/pkg/mpc"
	"github.com/luxfi/mpc/pkg/party"
	"github.com/luxfi/mpc/pkg/runtime"
	"github.com/luxfi/mpc/protocols/compare"
	"github.com/luxfi/mpc/protocols/distribute"
)

// Dealer drives the out-of-band pre-distribution phase. It never persists
// any secret material of its own: every value is drawn fresh, shared via
// distribute.ShareDistribution, and then forgotten, just as the protocol
// spec requires ("the dealer is trusted only transiently" — spec.md §6).
type Dealer struct {
	m           *runtime.Manager
	prime       *field.Prime
	threshold   int
	participants party.IDSlice
}

// NewDealer binds a Dealer to manager m's participant set.
func NewDealer(m *runtime.Manager, prime *field.Prime, threshold int, participants party.IDSlice) *Dealer {
	return &Dealer{m: m, prime: prime, threshold: threshold, participants: participants}
}

func (d *Dealer) distribute(secretID string, value *field.Elem, storageTag *string, listener func(error)) error {
	inst := distribute.NewInitiator().(*distribute.Initiator)
	inst.Listener = listener
	_, err := d.m.StartProtocol(inst, runtime.Params{
		"secretId": secretID, "threshold": d.threshold, "prime": d.prime, "secretValue": value, "storageTag": storageTag,
	}, d.participants)
	return err
}

// MultiplicationMask pre-distributes one fresh random r-secret under
// secretID for use as a SecureMultiply mask (spec.md §4.5's "pre-distributed
// sticky r-secret"), shared at the dealer's threshold t — the ordinary
// degree t-1, the same as the operands it masks.
func (d *Dealer) MultiplicationMask(secretID string, listener func(error)) error {
	r := d.prime.RandomElem(rand.Reader)
	return d.distribute(secretID, r, nil, listener)
}

// CompareMask pre-distributes everything compare.SecureCompare needs under
// one base ID (spec.md §6's pre-distribution contract: a share of r-key
// itself, plus a share of every one of its s = prime.BitLen() bits, plus
// the s-1 multiplication masks the bitwise borrow/diff chain needs): the
// combined r-key secret under baseID, a share of bit i of r-key under
// compare.Mask.Bits[i], and a fresh multiplication mask under each of
// compare.Mask.MulMasks. The returned Mask's IDs are deterministic and
// available immediately; listener only reports when every one of the
// underlying distributions has completed.
func (d *Dealer) CompareMask(baseID string, listener func(error)) (*compare.Mask, error) {
	s := d.prime.BitLen()
	mask := compare.NewMask(baseID, s)

	rkey := d.prime.RandomElem(rand.Reader)
	rkeyBig := rkey.Big()

	total := 1 + len(mask.Bits) + len(mask.MulMasks)
	done := 0
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
		done++
		if done >= total && listener != nil {
			listener(nil)
		}
	}

	if err := d.distribute(mask.RKey, rkey, nil, advance); err != nil {
		return nil, err
	}
	for i, bitID := range mask.Bits {
		bit := rkeyBig.Bit(i)
		if err := d.distribute(bitID, d.prime.ElemFromInt64(int64(bit)), nil, advance); err != nil {
			return nil, err
		}
	}
	for _, mulID := range mask.MulMasks {
		r := d.prime.RandomElem(rand.Reader)
		if err := d.distribute(mulID, r, nil, advance); err != nil {
			return nil, err
		}
	}
	return mask, nil
}

// Rotate re-draws and redistributes a multiplication mask or compare mask
// under the same secret IDs it was originally issued under, invalidating
// whatever shares of the old value every node is still holding (spec.md §6's
// supplemented key-rotation feature: PutPreserving overwrites rather than
// accumulating, so the stale value is simply gone once the new
// distribution lands).
func (d *Dealer) Rotate(kind MaskKind, ids ...string) error {
	switch kind {
	case MultiplicationMaskKind:
		if len(ids) != 1 {
			return mpc.NewError(mpc.InvalidConfiguration, "DealerRotate", "", fmt.Errorf("MultiplicationMaskKind needs exactly one id"))
		}
		return d.MultiplicationMask(ids[0], nil)
	case CompareMaskKind:
		if len(ids) != 1 {
			return mpc.NewError(mpc.InvalidConfiguration, "DealerRotate", "", fmt.Errorf("CompareMaskKind needs exactly one id"))
		}
		_, err := d.CompareMask(ids[0], nil)
		return err
	default:
		return mpc.NewError(mpc.InvalidConfiguration, "DealerRotate", "", fmt.Errorf("unknown mask kind %v", kind))
	}
}

// MaskKind discriminates which Rotate overload to apply.
type MaskKind int

const (
	MultiplicationMaskKind MaskKind = iota
	CompareMaskKind
)
