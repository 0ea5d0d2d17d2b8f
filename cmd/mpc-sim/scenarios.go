package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/mpc/pkg/field"
	"github.com/luxfi/mpc/pkg/runtime"
	"github.com/luxfi/mpc/pkg/setup"
	"github.com/luxfi/mpc/protocols/arith"
	"github.com/luxfi/mpc/protocols/barrier"
	"github.com/luxfi/mpc/protocols/compare"
	"github.com/luxfi/mpc/protocols/huddle"
	"github.com/luxfi/mpc/protocols/meta"
)

var (
	valA, valB int64

	addCmd = &cobra.Command{
		Use:   "add",
		Short: "Run SecureAdd over two literal values (scenario E1)",
		RunE:  runAdd,
	}
	subCmd = &cobra.Command{
		Use:   "sub",
		Short: "Run SecureSub over two literal values",
		RunE:  runSub,
	}
	multiplyCmd = &cobra.Command{
		Use:   "multiply",
		Short: "Run SecureMultiply over two literal values (scenario E2)",
		RunE:  runMultiply,
	}
	compareCmd = &cobra.Command{
		Use:   "compare",
		Short: "Run SecureCompare over two literal values",
		RunE:  runCompare,
	}
	barrierCmd = &cobra.Command{
		Use:   "barrier",
		Short: "Run a named Barrier rendezvous across every node (scenario E5)",
		RunE:  runBarrier,
	}
	huddleCmd = &cobra.Command{
		Use:   "huddle",
		Short: "Run a CostContributionHuddle where every node contributes its own value (scenario E6)",
		RunE:  runHuddle,
	}
	minCmd = &cobra.Command{
		Use:   "min",
		Short: "Run SecureMin over two literal values",
		RunE:  runMin,
	}
	dotProductCmd = &cobra.Command{
		Use:   "dotproduct",
		Short: "Run SecureDotProduct of one literal vector with itself (--a is used as both operands)",
		RunE:  runDotProduct,
	}
	findMinCmd = &cobra.Command{
		Use:   "findmin",
		Short: "Run SecureFindMin over a literal array (scenario E3)",
		RunE:  func(cmd *cobra.Command, args []string) error { return runFindExtremum(false) },
	}
	findMaxCmd = &cobra.Command{
		Use:   "findmax",
		Short: "Run SecureFindMax over a literal array",
		RunE:  func(cmd *cobra.Command, args []string) error { return runFindExtremum(true) },
	}

	arrValues []int64
)

func init() {
	addCmd.Flags().Int64Var(&valA, "a", 10, "left operand")
	addCmd.Flags().Int64Var(&valB, "b", 20, "right operand")
	subCmd.Flags().Int64Var(&valA, "a", 10, "left operand")
	subCmd.Flags().Int64Var(&valB, "b", 20, "right operand")
	multiplyCmd.Flags().Int64Var(&valA, "a", 6, "left operand")
	multiplyCmd.Flags().Int64Var(&valB, "b", 7, "right operand")
	compareCmd.Flags().Int64Var(&valA, "a", 10, "left operand")
	compareCmd.Flags().Int64Var(&valB, "b", 20, "right operand")
	minCmd.Flags().Int64Var(&valA, "a", 10, "left operand")
	minCmd.Flags().Int64Var(&valB, "b", 20, "right operand")
	dotProductCmd.Flags().Int64SliceVar(&arrValues, "a", []int64{1, 2, 3}, "left vector")
	findMinCmd.Flags().Int64SliceVar(&arrValues, "values", []int64{7, 2, 9, 1, 5}, "array to search")
	findMaxCmd.Flags().Int64SliceVar(&arrValues, "values", []int64{7, 2, 9, 1, 5}, "array to search")
}

func setupCluster() (*cluster, *field.Prime, error) {
	prime, err := parsePrime()
	if err != nil {
		return nil, nil, err
	}
	ids := participantSet()
	return newCluster(ids), prime, nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	c, prime, err := setupCluster()
	if err != nil {
		return err
	}
	if err := distributeValue(c, "a", prime.ElemFromInt64(valA), prime); err != nil {
		return err
	}
	if err := distributeValue(c, "b", prime.ElemFromInt64(valB), prime); err != nil {
		return err
	}
	var runErr error
	inst := arith.NewAddInitiator().(*arith.Instance)
	inst.Listener = func(err error) { runErr = err }
	if _, err := c.leader().StartProtocol(inst, runtime.Params{"secretA": "a", "secretB": "b", "secretC": "c"}, c.ids); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	return reconstructAndPrint(c, fmt.Sprintf("%d + %d", valA, valB), "c", prime)
}

func runSub(cmd *cobra.Command, args []string) error {
	c, prime, err := setupCluster()
	if err != nil {
		return err
	}
	if err := distributeValue(c, "a", prime.ElemFromInt64(valA), prime); err != nil {
		return err
	}
	if err := distributeValue(c, "b", prime.ElemFromInt64(valB), prime); err != nil {
		return err
	}
	var runErr error
	inst := arith.NewSubInitiator().(*arith.Instance)
	inst.Listener = func(err error) { runErr = err }
	if _, err := c.leader().StartProtocol(inst, runtime.Params{"secretA": "a", "secretB": "b", "secretC": "c"}, c.ids); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	return reconstructAndPrint(c, fmt.Sprintf("%d - %d", valA, valB), "c", prime)
}

func runMultiply(cmd *cobra.Command, args []string) error {
	c, prime, err := setupCluster()
	if err != nil {
		return err
	}
	if err := distributeValue(c, "a", prime.ElemFromInt64(valA), prime); err != nil {
		return err
	}
	if err := distributeValue(c, "b", prime.ElemFromInt64(valB), prime); err != nil {
		return err
	}
	dealer := setup.NewDealer(c.leader(), prime, threshold, c.ids)
	var maskErr error
	if err := dealer.MultiplicationMask("r-mul", func(err error) { maskErr = err }); err != nil {
		return err
	}
	if maskErr != nil {
		return maskErr
	}
	var runErr error
	inst := arith.NewMultiplyInitiator().(*arith.MultiplyInstance)
	inst.Listener = func(err error) { runErr = err }
	if _, err := c.leader().StartProtocol(inst, runtime.Params{
		"secretA": "a", "secretB": "b", "secretR": "r-mul", "secretC": "c", "prime": prime,
	}, c.ids); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	return reconstructAndPrint(c, fmt.Sprintf("%d * %d", valA, valB), "c", prime)
}

func setupCompareMask(c *cluster, prime *field.Prime, baseID string) (*compare.Mask, error) {
	dealer := setup.NewDealer(c.leader(), prime, threshold, c.ids)
	var maskErr error
	mask, err := dealer.CompareMask(baseID, func(err error) { maskErr = err })
	if err != nil {
		return nil, err
	}
	if maskErr != nil {
		return nil, maskErr
	}
	return mask, nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	c, prime, err := setupCluster()
	if err != nil {
		return err
	}
	if err := distributeValue(c, "a", prime.ElemFromInt64(valA), prime); err != nil {
		return err
	}
	if err := distributeValue(c, "b", prime.ElemFromInt64(valB), prime); err != nil {
		return err
	}
	mask, err := setupCompareMask(c, prime, "r-key")
	if err != nil {
		return err
	}
	var runErr error
	if err := compare.SecureCompare(c.leader(), "a", "b", "beta", mask, prime, c.ids, nil, func(err error) { runErr = err }); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	return reconstructAndPrint(c, fmt.Sprintf("β = (%d < %d)", valA, valB), "beta", prime)
}

func runBarrier(cmd *cobra.Command, args []string) error {
	c, _, err := setupCluster()
	if err != nil {
		return err
	}
	done := make(chan error, len(c.ids))
	for _, id := range c.ids {
		m := c.managers[id]
		if _, err := barrier.Start(m, "demo-barrier", c.ids, func(err error) { done <- err }); err != nil {
			return err
		}
	}
	for range c.ids {
		if err := <-done; err != nil {
			return err
		}
	}
	fmt.Println("every node passed the barrier")
	return nil
}

func runHuddle(cmd *cobra.Command, args []string) error {
	c, prime, err := setupCluster()
	if err != nil {
		return err
	}
	// Every node contributes its own node-index as a single-component
	// vector; the huddle result is Σ_i nodeIndex_i at every node.
	done := make(chan error, len(c.ids))
	for _, id := range c.ids {
		m := c.managers[id]
		contribValue := prime.ElemFromInt64(int64(id))
		contribShare := &field.Share{Index: int(id), Value: contribValue, WitnessSecret: contribValue}
		if _, err := huddle.Start(m, "demo-huddle", "contrib-sum", []*field.Share{contribShare}, c.ids, func(err error) { done <- err }); err != nil {
			return err
		}
	}
	for range c.ids {
		if err := <-done; err != nil {
			return err
		}
	}
	return reconstructAndPrint(c, "Σ node indices", "contrib-sum[0]", prime)
}

func runMin(cmd *cobra.Command, args []string) error {
	c, prime, err := setupCluster()
	if err != nil {
		return err
	}
	if err := distributeValue(c, "a", prime.ElemFromInt64(valA), prime); err != nil {
		return err
	}
	if err := distributeValue(c, "b", prime.ElemFromInt64(valB), prime); err != nil {
		return err
	}
	dealer := setup.NewDealer(c.leader(), prime, threshold, c.ids)
	var maskErr error
	if err := dealer.MultiplicationMask("r-mul-min", func(err error) { maskErr = err }); err != nil {
		return err
	}
	if maskErr != nil {
		return maskErr
	}
	mask, err := setupCompareMask(c, prime, "r-key-min")
	if err != nil {
		return err
	}
	var runErr error
	if err := meta.SecureMin(c.leader(), "a", "b", "min-out", "r-mul-min", mask, prime, c.ids, nil, func(err error) { runErr = err }); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	return reconstructAndPrint(c, fmt.Sprintf("min(%d, %d)", valA, valB), "min-out", prime)
}

func runDotProduct(cmd *cobra.Command, args []string) error {
	c, prime, err := setupCluster()
	if err != nil {
		return err
	}
	bValues := make([]int64, len(arrValues))
	copy(bValues, arrValues)
	aIDs, err := distributeValues(c, "dp-a", arrValues, prime)
	if err != nil {
		return err
	}
	bIDs, err := distributeValues(c, "dp-b", bValues, prime)
	if err != nil {
		return err
	}
	dealer := setup.NewDealer(c.leader(), prime, threshold, c.ids)
	rIDs := make([]string, len(aIDs))
	for i := range rIDs {
		rIDs[i] = fmt.Sprintf("dp-r[%d]", i)
		var maskErr error
		if err := dealer.MultiplicationMask(rIDs[i], func(err error) { maskErr = err }); err != nil {
			return err
		}
		if maskErr != nil {
			return maskErr
		}
	}
	var runErr error
	if err := meta.SecureDotProduct(c.leader(), aIDs, bIDs, rIDs, "dp-out", prime, c.ids, nil, func(err error) { runErr = err }); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	return reconstructAndPrint(c, "a · a", "dp-out", prime)
}

func runFindExtremum(findMax bool) error {
	c, prime, err := setupCluster()
	if err != nil {
		return err
	}
	ids, err := distributeValues(c, "arr", arrValues, prime)
	if err != nil {
		return err
	}
	dealer := setup.NewDealer(c.leader(), prime, threshold, c.ids)
	n := len(ids)
	masks := meta.FindExtremumMasks{
		Compare: make([]*compare.Mask, 0, n-1),
		MulDv:   make([]string, 0, n-1),
		MulDk:   make([]string, 0, n-1),
	}
	for i := 0; i < n-1; i++ {
		mask, err := setupCompareMask(c, prime, fmt.Sprintf("r-key-fe[%d]", i))
		if err != nil {
			return err
		}
		masks.Compare = append(masks.Compare, mask)

		dvID := fmt.Sprintf("fe-mul-dv[%d]", i)
		dkID := fmt.Sprintf("fe-mul-dk[%d]", i)
		var maskErr error
		if err := dealer.MultiplicationMask(dvID, func(err error) { maskErr = err }); err != nil {
			return err
		}
		if maskErr != nil {
			return maskErr
		}
		if err := dealer.MultiplicationMask(dkID, func(err error) { maskErr = err }); err != nil {
			return err
		}
		if maskErr != nil {
			return maskErr
		}
		masks.MulDv = append(masks.MulDv, dvID)
		masks.MulDk = append(masks.MulDk, dkID)
	}

	var runErr error
	if err := meta.FindExtremum(c.leader(), ids, findMax, "fe-v", "fe-k", masks, prime, c.ids, nil, func(err error) { runErr = err }); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	label := "min"
	if findMax {
		label = "max"
	}
	if err := reconstructAndPrint(c, fmt.Sprintf("%s value", label), "fe-v", prime); err != nil {
		return err
	}
	return reconstructAndPrint(c, fmt.Sprintf("%s index", label), "fe-k", prime)
}
