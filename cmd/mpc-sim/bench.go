package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var benchIterations int

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Time repeated end-to-end runs of SecureAdd, SecureMultiply and SecureCompare across a fresh cluster each iteration",
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchIterations, "iterations", 20, "number of repetitions per protocol")
}

type benchResult struct {
	name  string
	total time.Duration
	runs  int
}

func (r benchResult) String() string {
	return fmt.Sprintf("%-16s %6d runs  %10s total  %10s/run", r.name, r.runs, r.total, r.total/time.Duration(r.runs))
}

// runBench drives each scenario's own setupCluster/distribute/run path
// benchIterations times, since the protocols hold no state a cluster could
// usefully reuse across iterations.
func runBench(cmd *cobra.Command, args []string) error {
	results := []benchResult{
		timeRuns("SecureAdd", benchIterations, func() error { return runAdd(cmd, args) }),
		timeRuns("SecureMultiply", benchIterations, func() error { return runMultiply(cmd, args) }),
		timeRuns("SecureCompare", benchIterations, func() error { return runCompare(cmd, args) }),
	}
	for _, r := range results {
		fmt.Println(r.String())
	}
	return nil
}

func timeRuns(name string, n int, fn func() error) benchResult {
	start := time.Now()
	ok := 0
	for i := 0; i < n; i++ {
		if err := fn(); err == nil {
			ok++
		}
	}
	if ok == 0 {
		ok = 1
	}
	return benchResult{name: name, total: time.Since(start), runs: ok}
}
