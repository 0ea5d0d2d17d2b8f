package share_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/mpc/pkg/field"
	"github.com/luxfi/mpc/pkg/share"
)

func sampleShare(p *field.Prime, idx int64) *field.Share {
	return &field.Share{Index: int(idx), Value: p.ElemFromInt64(idx * 7)}
}

func TestClearNonStickyKeepsSticky(t *testing.T) {
	p := field.NewPrimeUint64(2147483647)
	s := share.NewStore()
	s.Put("r-secret", sampleShare(p, 1), share.Sticky())
	s.Put("x", sampleShare(p, 2), share.Tagged("round-1"))
	s.Put("y", sampleShare(p, 3), share.Tagged("round-2"))

	s.ClearNonSticky()

	require.Equal(t, 1, s.Count())
	_, ok := s.Get("r-secret")
	assert.True(t, ok)
	_, ok = s.Get("x")
	assert.False(t, ok)
}

func TestClearByTagRemovesExactlyThatTag(t *testing.T) {
	p := field.NewPrimeUint64(2147483647)
	s := share.NewStore()
	s.Put("a", sampleShare(p, 1), share.Tagged("round-1"))
	s.Put("b", sampleShare(p, 2), share.Tagged("round-1"))
	s.Put("c", sampleShare(p, 3), share.Tagged("round-2"))

	s.ClearByTag("round-1")

	assert.Equal(t, 1, s.Count())
	_, ok := s.Get("c")
	assert.True(t, ok)
}

func TestClearAllRemovesSticky(t *testing.T) {
	p := field.NewPrimeUint64(2147483647)
	s := share.NewStore()
	s.Put("r-secret", sampleShare(p, 1), share.Sticky())
	s.ClearAll()
	assert.Equal(t, 0, s.Count())
}

func TestPutPreservingKeepsExistingLifetime(t *testing.T) {
	p := field.NewPrimeUint64(2147483647)
	s := share.NewStore()
	s.Put("r-secret", sampleShare(p, 1), share.Sticky())

	// Overwrite with a tagged default: existing lifetime (sticky) wins.
	s.PutPreserving("r-secret", sampleShare(p, 2), share.Tagged("round-99"))

	info, ok := s.GetInfo("r-secret")
	require.True(t, ok)
	assert.True(t, info.Lifetime.IsSticky())
}

func TestRemoveAndGetInfo(t *testing.T) {
	p := field.NewPrimeUint64(2147483647)
	s := share.NewStore()
	s.Put("x", sampleShare(p, 4), share.Tagged("t"))
	s.Remove("x")
	_, ok := s.Get("x")
	assert.False(t, ok)
	_, ok = s.GetInfo("x")
	assert.False(t, ok)
}
