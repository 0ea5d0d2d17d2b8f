package runtime

import (
	"fmt"

	"github.com/luxfi/mpc/pkg/mpc"
	"github.com/luxfi/mpc/pkg/party"
	"github.com/luxfi/mpc/pkg/share"
	"github.com/luxfi/mpc/pkg/transport"
)

// ProtocolID returns the infrastructure "protocolId" key.
func (p Params) ProtocolID() string {
	id, _ := p["protocolId"].(string)
	return id
}

// AgentID returns the infrastructure "agentId" key: this node's own ID.
func (p Params) AgentID() party.ID {
	id, _ := p["agentId"].(party.ID)
	return id
}

// Transport returns the infrastructure "transport" key.
func (p Params) Transport() transport.Transport {
	t, _ := p["transport"].(transport.Transport)
	return t
}

// Manager returns the infrastructure "manager" key.
func (p Params) Manager() *Manager {
	m, _ := p["manager"].(*Manager)
	return m
}

// Participants returns the infrastructure "participants" key.
func (p Params) Participants() party.IDSlice {
	ids, _ := p["participants"].(party.IDSlice)
	return ids
}

// String extracts a required string parameter, returning an
// InvalidConfiguration error if it is absent or of the wrong type.
func (p Params) String(protocolType, key string) (string, error) {
	v, ok := p[key].(string)
	if !ok {
		return "", mpc.NewError(mpc.InvalidConfiguration, protocolType, p.ProtocolID(),
			fmt.Errorf("missing or non-string param %q", key))
	}
	return v, nil
}

// Int extracts a required int parameter.
func (p Params) Int(protocolType, key string) (int, error) {
	v, ok := p[key].(int)
	if !ok {
		return 0, mpc.NewError(mpc.InvalidConfiguration, protocolType, p.ProtocolID(),
			fmt.Errorf("missing or non-int param %q", key))
	}
	return v, nil
}

// OptionalString extracts an optional string parameter, defaulting to "".
func (p Params) OptionalString(key string) string {
	v, _ := p[key].(string)
	return v
}

// ShareStore returns the "shareStorage" resource if one was injected (the
// per-protocol override spec.md §6 calls out), falling back to the
// manager's own store otherwise.
func (p Params) ShareStore() *share.Store {
	if s, ok := p["shareStorage"].(*share.Store); ok {
		return s
	}
	if m := p.Manager(); m != nil {
		return m.Store()
	}
	return nil
}
