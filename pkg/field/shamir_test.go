package field_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/mpc/pkg/field"
)

const testPrime = 2147483647 // 2^31 - 1

func TestReconstructCorrectness(t *testing.T) {
	p := field.NewPrimeUint64(testPrime)
	secret := p.ElemFromInt64(424242)

	for _, tc := range []struct{ t, n int }{{1, 1}, {3, 5}, {5, 10}} {
		poly, err := field.ShareGen(p, secret, tc.t, tc.n, rand.Reader)
		require.NoError(t, err)

		shares := make([]*field.Share, tc.n)
		for i := 1; i <= tc.n; i++ {
			shares[i-1] = field.ShareAt(poly, i)
		}

		got, err := field.Reconstruct(p, shares[:tc.t])
		require.NoError(t, err)
		assert.True(t, got.Equal(secret), "t=%d n=%d", tc.t, tc.n)
	}
}

func TestReconstructRejectsDuplicateAndZeroIndex(t *testing.T) {
	p := field.NewPrimeUint64(testPrime)
	secret := p.ElemFromInt64(7)
	poly, err := field.ShareGen(p, secret, 2, 3, rand.Reader)
	require.NoError(t, err)

	s1 := field.ShareAt(poly, 1)
	dup := field.ShareAt(poly, 1)
	_, err = field.Reconstruct(p, []*field.Share{s1, dup})
	var shareErr *field.ShareError
	require.ErrorAs(t, err, &shareErr)
	assert.Equal(t, field.ErrDuplicateIndex, shareErr.Kind)

	zero := &field.Share{Index: 0, Value: p.Zero()}
	_, err = field.Reconstruct(p, []*field.Share{s1, zero})
	require.ErrorAs(t, err, &shareErr)
	assert.Equal(t, field.ErrZeroIndex, shareErr.Kind)
}

func TestShareGenRejectsInvalidThreshold(t *testing.T) {
	p := field.NewPrimeUint64(testPrime)
	secret := p.ElemFromInt64(1)
	_, err := field.ShareGen(p, secret, 0, 5, rand.Reader)
	require.Error(t, err)
	_, err = field.ShareGen(p, secret, 6, 5, rand.Reader)
	require.Error(t, err)
}

func TestLinearityOfAddAndSub(t *testing.T) {
	p := field.NewPrimeUint64(testPrime)
	a := p.ElemFromInt64(12345)
	b := p.ElemFromInt64(67890)

	polyA, err := field.ShareGen(p, a, 3, 5, rand.Reader)
	require.NoError(t, err)
	polyB, err := field.ShareGen(p, b, 3, 5, rand.Reader)
	require.NoError(t, err)

	sumShares := make([]*field.Share, 0, 3)
	diffShares := make([]*field.Share, 0, 3)
	for i := 1; i <= 3; i++ {
		sa := field.ShareAt(polyA, i)
		sb := field.ShareAt(polyB, i)
		sumShares = append(sumShares, sa.Add(sb))
		diffShares = append(diffShares, sa.Sub(sb))
	}

	sum, err := field.Reconstruct(p, sumShares)
	require.NoError(t, err)
	assert.True(t, sum.Equal(a.Add(b)))

	diff, err := field.Reconstruct(p, diffShares)
	require.NoError(t, err)
	assert.True(t, diff.Equal(a.Sub(b)))
}

func TestBatchShareGenAlignment(t *testing.T) {
	p := field.NewPrimeUint64(testPrime)
	secrets := []*field.Elem{p.ElemFromInt64(1), p.ElemFromInt64(2), p.ElemFromInt64(3)}
	polys, err := field.BatchShareGen(p, secrets, 2, 4, rand.Reader)
	require.NoError(t, err)

	for idx, want := range secrets {
		shares := make([]*field.Share, 0, 2)
		for i := 1; i <= 2; i++ {
			shares = append(shares, field.BatchShareAt(polys, i)[idx])
		}
		got, err := field.Reconstruct(p, shares)
		require.NoError(t, err)
		assert.True(t, got.Equal(want))
	}
}
