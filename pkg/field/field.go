// Package field implements arithmetic over a prime field F_p used by the
// Shamir secret sharing primitives, and the Shamir share-generation and
// Lagrange-reconstruction operations themselves.
package field

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/cronokirby/saferith"
)

// cryptoRandInt draws a uniform value in [0, max) from rng.
func cryptoRandInt(rng io.Reader, max *big.Int) (*big.Int, error) {
	return rand.Int(rng, max)
}

// Prime wraps a prime modulus p, providing both a big.Int view (for
// comparisons, bit-length, and serialization) and a saferith.Modulus view
// (for the actual constant-time modular arithmetic).
type Prime struct {
	big *big.Int
	mod *saferith.Modulus
}

// NewPrime builds a Prime from a big.Int. The caller is responsible for p
// actually being prime; reconstruction correctness (§8 property 1) assumes
// it.
func NewPrime(p *big.Int) *Prime {
	return &Prime{
		big: new(big.Int).Set(p),
		mod: saferith.ModulusFromBytes(p.Bytes()),
	}
}

// NewPrimeUint64 is a convenience constructor for small primes, e.g. the
// Mersenne prime 2^31-1 used throughout spec.md's worked examples.
func NewPrimeUint64(p uint64) *Prime {
	return NewPrime(new(big.Int).SetUint64(p))
}

// Big returns the prime as a big.Int. Callers must not mutate the result.
func (p *Prime) Big() *big.Int { return p.big }

// BitLen returns the bit length of p.
func (p *Prime) BitLen() int { return p.big.BitLen() }

// nat lifts a big.Int into a saferith.Nat sized to hold values mod p.
func (p *Prime) nat(x *big.Int) *saferith.Nat {
	return new(saferith.Nat).SetBig(x, p.big.BitLen())
}

// Elem is a single element of F_p, always kept normalized into [0, p).
type Elem struct {
	nat *saferith.Nat
	p   *Prime
}

// ElemFromInt64 builds an Elem from a (possibly negative) int64, reducing it
// modulo p.
func (p *Prime) ElemFromInt64(v int64) *Elem {
	b := big.NewInt(v)
	b.Mod(b, p.big)
	return &Elem{nat: p.nat(b), p: p}
}

// ElemFromBig builds an Elem from a big.Int, reducing it modulo p.
func (p *Prime) ElemFromBig(v *big.Int) *Elem {
	b := new(big.Int).Mod(v, p.big)
	return &Elem{nat: p.nat(b), p: p}
}

// Zero returns the additive identity of F_p.
func (p *Prime) Zero() *Elem { return p.ElemFromInt64(0) }

// RandomElem draws a uniformly random element of F_p using rng (typically
// crypto/rand.Reader, or a deterministic source in tests).
func (p *Prime) RandomElem(rng io.Reader) *Elem {
	n, err := cryptoRandInt(rng, p.big)
	if err != nil {
		// A failure here indicates a broken entropy source, which is
		// fatal for any caller relying on secrecy.
		panic(fmt.Errorf("field: failed to draw random element: %w", err))
	}
	return p.ElemFromBig(n)
}

// Big returns the element's canonical representative in [0, p).
func (e *Elem) Big() *big.Int { return e.nat.Big() }

// Uint64 returns the element as a uint64; callers must know the value fits.
func (e *Elem) Uint64() uint64 { return e.Big().Uint64() }

// Prime returns the field this element belongs to.
func (e *Elem) Prime() *Prime { return e.p }

// Add returns e + other mod p.
func (e *Elem) Add(other *Elem) *Elem {
	out := new(saferith.Nat).ModAdd(e.nat, other.nat, e.p.mod)
	return &Elem{nat: out, p: e.p}
}

// Sub returns e - other mod p.
func (e *Elem) Sub(other *Elem) *Elem {
	out := new(saferith.Nat).ModSub(e.nat, other.nat, e.p.mod)
	return &Elem{nat: out, p: e.p}
}

// Mul returns e * other mod p.
func (e *Elem) Mul(other *Elem) *Elem {
	out := new(saferith.Nat).ModMul(e.nat, other.nat, e.p.mod)
	return &Elem{nat: out, p: e.p}
}

// Inverse returns the modular inverse of e via Fermat's little theorem:
// e^(p-2) mod p. Panics if e is zero (callers must not invert zero).
func (e *Elem) Inverse() *Elem {
	if e.IsZero() {
		panic("field: cannot invert zero element")
	}
	exp := new(big.Int).Sub(e.p.big, big.NewInt(2))
	expNat := e.p.nat(exp)
	out := new(saferith.Nat).Exp(e.nat, expNat, e.p.mod)
	return &Elem{nat: out, p: e.p}
}

// IsZero reports whether e is the additive identity.
func (e *Elem) IsZero() bool {
	return e.Big().Sign() == 0
}

// Equal reports whether e and other represent the same field element.
func (e *Elem) Equal(other *Elem) bool {
	return e.Big().Cmp(other.Big()) == 0
}

func (e *Elem) String() string {
	return e.Big().String()
}
