// Package mpc defines the wire-level message envelope and the error
// taxonomy shared by every protocol in the catalogue (spec.md §6, §7).
package mpc

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/luxfi/mpc/pkg/party"
)

// Payload is the typed, protocol-specific body of a Message. Every leaf and
// meta protocol defines its own payload types implementing this interface;
// the runtime never inspects a Payload's concrete type, only ProtocolType.
//
// This is the "tagged variant" the spec's Design Notes call for in place of
// runtime type inspection: ProtocolType is the discriminant used by the
// runtime's factory lookup, while each protocol's own handler does the
// exhaustive match over its own payload types.
type Payload interface {
	// ExtractParams returns a key->value bag of protocol-specific
	// initialization parameters, consulted when a responder is created on
	// demand for a protocol ID the runtime has not seen before.
	ExtractParams() map[string]interface{}
}

// Message is the abstract record described in spec.md §6: four mandatory
// fields plus a typed payload.
type Message struct {
	ProtocolID   string
	ProtocolType string
	SenderID     party.ID // filled in by the transport before delivery
	Completion   bool     // isCompletionMessage
	Payload      Payload
}

// IsCompletionMessage reports whether this message is a stale-tolerant
// completion/ACK, per spec.md §4.3.
func (m *Message) IsCompletionMessage() bool { return m.Completion }

// ExtractParams delegates to the payload, or returns an empty bag if the
// payload is nil (e.g. a bare completion message).
func (m *Message) ExtractParams() map[string]interface{} {
	if m.Payload == nil {
		return map[string]interface{}{}
	}
	return m.Payload.ExtractParams()
}

// EncodePayload marshals the message payload to CBOR, mirroring the wire
// format used by the teacher's pkg/protocol/handler.go
// (cbor.Marshal(roundMsg.Content)). The in-memory transport passes Go
// values directly and does not call this; it is what an out-of-process
// transport would use.
func (m *Message) EncodePayload() ([]byte, error) {
	return cbor.Marshal(m.Payload)
}

// DecodePayload unmarshals CBOR bytes into a concrete payload value (e.g.
// &DistributionMessage{}), the counterpart to EncodePayload.
func DecodePayload(data []byte, out Payload) error {
	return cbor.Unmarshal(data, out)
}
