// Package xhash provides the two small hashing helpers the protocol
// catalogue needs: a deterministic protocol-ID derivation for
// identity-driven protocols (the barrier has no initiator broadcast, so its
// protocol ID must be computable independently by every participant from a
// shared name) and a participant-set fingerprint used to catch
// mismatched-group bugs early. This mirrors the domain-separated
// "BytesWithDomain" hashing concept referenced by the teacher's protocol
// handler (pkg/protocol/handler.go's hash.BytesWithDomain / r.Hash()).
package xhash

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"

	"github.com/luxfi/mpc/pkg/party"
)

const barrierDomain = "mpc-core/barrier/v1"

// BarrierProtocolID derives a deterministic protocol ID from a
// caller-chosen barrier name, using a domain-separated keyed BLAKE3 hash.
// Every participant constructing its own Barrier instance for the same name
// arrives at the same ID without any initiator broadcast.
func BarrierProtocolID(name string) string {
	key := make([]byte, 32)
	copy(key, barrierDomain)
	h, err := blake3.NewKeyed(key)
	if err != nil {
		// NewKeyed only fails for a key of the wrong length; our key is
		// always exactly 32 bytes.
		panic(err)
	}
	_, _ = h.Write([]byte(name))
	sum := h.Sum(nil)
	return encodeHex(sum[:16])
}

// ParticipantSetFingerprint returns a domain-separated SHA3-256 fingerprint
// of a participant set, independent of the order the set was supplied in.
// Protocols that accept resources/participants from multiple sources (e.g.
// a responder instantiated on demand per spec.md §4.3) can use this to
// assert that every party agrees on who is participating.
func ParticipantSetFingerprint(ids party.IDSlice) []byte {
	h := sha3.New256()
	_, _ = h.Write([]byte("mpc-core/participants/v1"))
	for _, id := range ids.Sorted() {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(id))
		_, _ = h.Write(buf[:])
	}
	return h.Sum(nil)
}

func encodeHex(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}
