package field

import (
	"fmt"
	"io"
)

// ErrKind enumerates the field-layer fatal conditions from spec.md §4.1.
type ErrKind int

const (
	// ErrInvalidThreshold: t < 1 or t > n.
	ErrInvalidThreshold ErrKind = iota
	// ErrDuplicateIndex: two shares presented for reconstruction share an index.
	ErrDuplicateIndex
	// ErrZeroIndex: a share index was 0, which can never be a valid evaluation point.
	ErrZeroIndex
	// ErrNotEnoughShares: fewer shares were supplied than the secret's degree requires.
	ErrNotEnoughShares
)

func (k ErrKind) String() string {
	switch k {
	case ErrInvalidThreshold:
		return "InvalidThreshold"
	case ErrDuplicateIndex:
		return "DuplicateIndex"
	case ErrZeroIndex:
		return "ZeroIndex"
	case ErrNotEnoughShares:
		return "NotEnoughShares"
	default:
		return "Unknown"
	}
}

// ShareError is the error type returned by the field/share primitives.
type ShareError struct {
	Kind ErrKind
	Msg  string
}

func (e *ShareError) Error() string {
	return fmt.Sprintf("field: %s: %s", e.Kind, e.Msg)
}

func newShareErr(kind ErrKind, format string, args ...interface{}) *ShareError {
	return &ShareError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Share is a single Shamir evaluation (index, value, witnessSecret) per
// spec.md §3. Index is always in [1, n], never 0. WitnessSecret is optional
// debug bookkeeping: it is carried through Add/Sub by linearity but is never
// consulted by protocol logic.
type Share struct {
	Index         int
	Value         *Elem
	WitnessSecret *Elem
}

// Add returns the component-wise modular sum of two shares. Both operands
// MUST share an index; the result carries that index.
func (a *Share) Add(b *Share) *Share {
	if a.Index != b.Index {
		panic("field: cannot add shares with different indices")
	}
	s := &Share{Index: a.Index, Value: a.Value.Add(b.Value)}
	if a.WitnessSecret != nil && b.WitnessSecret != nil {
		s.WitnessSecret = a.WitnessSecret.Add(b.WitnessSecret)
	}
	return s
}

// Sub returns the component-wise modular difference of two shares.
func (a *Share) Sub(b *Share) *Share {
	if a.Index != b.Index {
		panic("field: cannot subtract shares with different indices")
	}
	s := &Share{Index: a.Index, Value: a.Value.Sub(b.Value)}
	if a.WitnessSecret != nil && b.WitnessSecret != nil {
		s.WitnessSecret = a.WitnessSecret.Sub(b.WitnessSecret)
	}
	return s
}

// Polynomial is a degree-(t-1) polynomial over F_p with coefficients sampled
// uniformly at random, except for the constant term which is the secret.
type Polynomial struct {
	p            *Prime
	coefficients []*Elem // coefficients[0] is the secret
}

// Generate builds a random polynomial f(x) = secret + a_1 x + ... + a_{t-1} x^{t-1}
// (mod p), with coefficients uniformly drawn from [0, p) via rng.
//
// t must be in [1, n]; n is only used for threshold validation, since a
// Polynomial itself can be evaluated at arbitrarily many points.
func Generate(p *Prime, secret *Elem, t, n int, rng io.Reader) (*Polynomial, error) {
	if t < 1 || t > n {
		return nil, newShareErr(ErrInvalidThreshold, "t=%d out of range for n=%d", t, n)
	}
	coeffs := make([]*Elem, t)
	coeffs[0] = secret
	for i := 1; i < t; i++ {
		coeffs[i] = p.RandomElem(rng)
	}
	return &Polynomial{p: p, coefficients: coeffs}, nil
}

// At evaluates the polynomial at index i (the Shamir share for node i),
// using Horner's method, reduced mod p at every step.
func (poly *Polynomial) At(i int) *Share {
	x := poly.p.ElemFromInt64(int64(i))
	acc := poly.p.Zero()
	for j := len(poly.coefficients) - 1; j >= 0; j-- {
		acc = acc.Mul(x).Add(poly.coefficients[j])
	}
	return &Share{Index: i, Value: acc, WitnessSecret: poly.coefficients[0]}
}

// ShareGen is the spec.md §4.1 shareGen(secret, t, p, rng) primitive: it
// builds a random degree-(t-1) polynomial hiding secret.
func ShareGen(p *Prime, secret *Elem, t, n int, rng io.Reader) (*Polynomial, error) {
	return Generate(p, secret, t, n, rng)
}

// ShareAt is the spec.md §4.1 shareAt(gen, i) primitive.
func ShareAt(poly *Polynomial, i int) *Share {
	return poly.At(i)
}

// BatchShareGen applies ShareGen to each secret with independently sampled
// polynomials.
func BatchShareGen(p *Prime, secrets []*Elem, t, n int, rng io.Reader) ([]*Polynomial, error) {
	polys := make([]*Polynomial, len(secrets))
	for i, s := range secrets {
		poly, err := Generate(p, s, t, n, rng)
		if err != nil {
			return nil, err
		}
		polys[i] = poly
	}
	return polys, nil
}

// BatchShareAt yields an array of shares aligned with the input secrets.
func BatchShareAt(polys []*Polynomial, i int) []*Share {
	shares := make([]*Share, len(polys))
	for j, poly := range polys {
		shares[j] = poly.At(i)
	}
	return shares
}

// Reconstruct performs Lagrange interpolation at x=0 to recover the secret
// hidden by shares. Duplicate indices and any index equal to 0 are rejected.
func Reconstruct(p *Prime, shares []*Share) (*Elem, error) {
	seen := make(map[int]bool, len(shares))
	for _, s := range shares {
		if s.Index == 0 {
			return nil, newShareErr(ErrZeroIndex, "share index 0 is never valid")
		}
		if seen[s.Index] {
			return nil, newShareErr(ErrDuplicateIndex, "duplicate index %d", s.Index)
		}
		seen[s.Index] = true
	}
	if len(shares) == 0 {
		return nil, newShareErr(ErrNotEnoughShares, "no shares supplied")
	}

	secret := p.Zero()
	for j, sj := range shares {
		num := p.ElemFromInt64(1)
		den := p.ElemFromInt64(1)
		xj := p.ElemFromInt64(int64(sj.Index))
		for k, sk := range shares {
			if k == j {
				continue
			}
			xk := p.ElemFromInt64(int64(sk.Index))
			num = num.Mul(p.Zero().Sub(xk)) // (-x_k)
			den = den.Mul(xj.Sub(xk))       // (x_j - x_k)
		}
		coeff := num.Mul(den.Inverse())
		secret = secret.Add(sj.Value.Mul(coeff))
	}
	return secret, nil
}
