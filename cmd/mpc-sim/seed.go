package main

import (
	"fmt"
	"log"

	"github.com/luxfi/mpc/pkg/field"
	"github.com/luxfi/mpc/pkg/runtime"
	"github.com/luxfi/mpc/protocols/distribute"
	"github.com/luxfi/mpc/protocols/reconstruct"
)

// distributeValue shares value under secretID from the leader, returning
// once every node holds its share. Every call in this CLI runs
// synchronously end to end: the harness has no goroutines, so by the time
// StartProtocol returns, every recursive Send it triggered has already
// resolved.
func distributeValue(c *cluster, secretID string, value *field.Elem, prime *field.Prime) error {
	var outerErr error
	inst := distribute.NewInitiator().(*distribute.Initiator)
	inst.Listener = func(err error) { outerErr = err }
	_, err := c.leader().StartProtocol(inst, runtime.Params{
		"secretId": secretID, "threshold": threshold, "prime": prime, "secretValue": value,
	}, c.ids)
	if err != nil {
		return err
	}
	return outerErr
}

// distributeValues shares a whole array of literal int64s, one secret ID
// per element named fmt.Sprintf("%s[%d]", baseID, i).
func distributeValues(c *cluster, baseID string, values []int64, prime *field.Prime) ([]string, error) {
	ids := make([]string, len(values))
	for i, v := range values {
		ids[i] = fmt.Sprintf("%s[%d]", baseID, i)
		if err := distributeValue(c, ids[i], prime.ElemFromInt64(v), prime); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// reconstructAndPrint reconstructs secretID from the leader's perspective
// and logs the revealed value under label.
func reconstructAndPrint(c *cluster, label, secretID string, prime *field.Prime) error {
	var outerErr error
	inst := reconstruct.NewInitiator().(*reconstruct.Initiator)
	inst.Listener = func(v *field.Elem, err error) {
		outerErr = err
		if err == nil {
			log.Printf("%s = %s", label, v.Big().String())
		}
	}
	_, err := c.leader().StartProtocol(inst, runtime.Params{
		"secretId": secretID, "prime": prime,
	}, c.ids)
	if err != nil {
		return err
	}
	return outerErr
}
