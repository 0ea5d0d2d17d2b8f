package protocols_test

import (
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/luxfi/mpc/pkg/field"
	"github.com/luxfi/mpc/pkg/mpc"
	"github.com/luxfi/mpc/pkg/party"
	"github.com/luxfi/mpc/pkg/runtime"
	"github.com/luxfi/mpc/pkg/setup"
	"github.com/luxfi/mpc/pkg/share"
	"github.com/luxfi/mpc/pkg/transport"
	"github.com/luxfi/mpc/protocols/arith"
	"github.com/luxfi/mpc/protocols/barrier"
	"github.com/luxfi/mpc/protocols/compare"
	"github.com/luxfi/mpc/protocols/distribute"
	"github.com/luxfi/mpc/protocols/huddle"
	"github.com/luxfi/mpc/protocols/meta"
	"github.com/luxfi/mpc/protocols/reconstruct"
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Protocol Catalogue Integration Suite")
}

const integrationPrime = 2147483647 // 2^31 - 1

// testCluster mirrors cmd/mpc-sim's harness: one Manager per simulated node,
// all wired to a single in-memory Hub, with the complete protocol catalogue
// registered on every node.
type testCluster struct {
	ids      party.IDSlice
	managers map[party.ID]*runtime.Manager
}

func newTestCluster(n int) *testCluster {
	ids := make(party.IDSlice, n)
	for i := range ids {
		ids[i] = party.ID(i + 1)
	}
	hub := transport.NewHub()
	c := &testCluster{ids: ids, managers: make(map[party.ID]*runtime.Manager)}
	for _, id := range ids {
		t := hub.Join(id)
		m := runtime.NewManager(id, t, share.NewStore())
		m.RegisterFactory(distribute.ProtocolType, distribute.Factory())
		m.RegisterFactory(distribute.VectorProtocolType, distribute.VectorFactory())
		m.RegisterFactory(reconstruct.ProtocolType, reconstruct.Factory())
		m.RegisterFactory(arith.AddProtocolType, arith.AddFactory())
		m.RegisterFactory(arith.SubProtocolType, arith.SubFactory())
		m.RegisterFactory(arith.KnownSubProtocolType, arith.KnownSubFactory())
		m.RegisterFactory(arith.MultiplyProtocolType, arith.MultiplyFactory())
		compare.RegisterFactories(m)
		m.RegisterFactory(barrier.ProtocolType, barrier.Factory())
		m.RegisterFactory(huddle.ProtocolType, huddle.Factory())
		meta.RegisterDotProductFactories(m)
		meta.RegisterFindExtremumFactories(m)
		hub.Bind(id, func(msg *mpc.Message, senderID party.ID) {
			_ = m.HandleIncomingMessage(msg, senderID, nil)
		})
		c.managers[id] = m
	}
	return c
}

func (c *testCluster) leader() *runtime.Manager { return c.managers[c.ids.Sorted()[0]] }

func (c *testCluster) prime() *field.Prime { return field.NewPrimeUint64(integrationPrime) }

func (c *testCluster) distribute(secretID string, value *field.Elem) error {
	var outerErr error
	inst := distribute.NewInitiator().(*distribute.Initiator)
	inst.Listener = func(err error) { outerErr = err }
	_, err := c.leader().StartProtocol(inst, runtime.Params{
		"secretId": secretID, "threshold": 3, "prime": c.prime(), "secretValue": value,
	}, c.ids)
	if err != nil {
		return err
	}
	return outerErr
}

func (c *testCluster) reconstruct(secretID string) (*field.Elem, error) {
	var result *field.Elem
	var outerErr error
	inst := reconstruct.NewInitiator().(*reconstruct.Initiator)
	inst.Listener = func(v *field.Elem, err error) { result, outerErr = v, err }
	_, err := c.leader().StartProtocol(inst, runtime.Params{"secretId": secretID, "prime": c.prime()}, c.ids)
	if err != nil {
		return nil, err
	}
	return result, outerErr
}

var _ = Describe("Secret distribution and reconstruction", func() {
	It("round-trips a scalar through every node", func() {
		c := newTestCluster(5)
		Expect(c.distribute("x", c.prime().ElemFromInt64(4242))).To(Succeed())
		v, err := c.reconstruct("x")
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Big().Int64()).To(Equal(int64(4242)))
	})
})

var _ = Describe("Secure arithmetic leaves", func() {
	var c *testCluster

	BeforeEach(func() {
		c = newTestCluster(5)
		Expect(c.distribute("a", c.prime().ElemFromInt64(17))).To(Succeed())
		Expect(c.distribute("b", c.prime().ElemFromInt64(5))).To(Succeed())
	})

	It("adds two shared secrets", func() {
		var runErr error
		inst := arith.NewAddInitiator().(*arith.Instance)
		inst.Listener = func(err error) { runErr = err }
		_, err := c.leader().StartProtocol(inst, runtime.Params{"secretA": "a", "secretB": "b", "secretC": "sum"}, c.ids)
		Expect(err).NotTo(HaveOccurred())
		Expect(runErr).NotTo(HaveOccurred())
		v, err := c.reconstruct("sum")
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Big().Int64()).To(Equal(int64(22)))
	})

	It("subtracts two shared secrets", func() {
		var runErr error
		inst := arith.NewSubInitiator().(*arith.Instance)
		inst.Listener = func(err error) { runErr = err }
		_, err := c.leader().StartProtocol(inst, runtime.Params{"secretA": "a", "secretB": "b", "secretC": "diff"}, c.ids)
		Expect(err).NotTo(HaveOccurred())
		Expect(runErr).NotTo(HaveOccurred())
		v, err := c.reconstruct("diff")
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Big().Int64()).To(Equal(int64(12)))
	})

	It("subtracts a shared secret from a public constant", func() {
		var runErr error
		inst := arith.NewKnownSubInitiator().(*arith.KnownSubInstance)
		inst.Listener = func(err error) { runErr = err }
		_, err := c.leader().StartProtocol(inst, runtime.Params{
			"secret": "a", "k": c.prime().ElemFromInt64(100), "knownIsLeft": true, "secretC": "ksub",
		}, c.ids)
		Expect(err).NotTo(HaveOccurred())
		Expect(runErr).NotTo(HaveOccurred())
		v, err := c.reconstruct("ksub")
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Big().Int64()).To(Equal(int64(83)))
	})

	It("multiplies two shared secrets using a pre-distributed mask", func() {
		dealer := setup.NewDealer(c.leader(), c.prime(), 3, c.ids)
		var maskErr error
		Expect(dealer.MultiplicationMask("r-mul", func(err error) { maskErr = err })).To(Succeed())
		Expect(maskErr).NotTo(HaveOccurred())

		var runErr error
		inst := arith.NewMultiplyInitiator().(*arith.MultiplyInstance)
		inst.Listener = func(err error) { runErr = err }
		_, err := c.leader().StartProtocol(inst, runtime.Params{
			"secretA": "a", "secretB": "b", "secretR": "r-mul", "secretC": "prod", "prime": c.prime(),
		}, c.ids)
		Expect(err).NotTo(HaveOccurred())
		Expect(runErr).NotTo(HaveOccurred())
		v, err := c.reconstruct("prod")
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Big().Int64()).To(Equal(int64(85)))
	})
})

var _ = Describe("SecureCompare", func() {
	runCompare := func(c *testCluster, baseID string, l, r int64) (*field.Elem, error) {
		Expect(c.distribute("cmp-l", c.prime().ElemFromInt64(l))).To(Succeed())
		Expect(c.distribute("cmp-r", c.prime().ElemFromInt64(r))).To(Succeed())

		dealer := setup.NewDealer(c.leader(), c.prime(), 3, c.ids)
		var keyErr error
		mask, err := dealer.CompareMask(baseID, func(err error) { keyErr = err })
		Expect(err).NotTo(HaveOccurred())
		Expect(keyErr).NotTo(HaveOccurred())

		var runErr error
		err = compare.SecureCompare(c.leader(), "cmp-l", "cmp-r", "beta", mask, c.prime(), c.ids, nil, func(err error) { runErr = err })
		Expect(err).NotTo(HaveOccurred())
		Expect(runErr).NotTo(HaveOccurred())
		return c.reconstruct("beta")
	}

	It("reveals β=1 when the left operand is smaller", func() {
		c := newTestCluster(5)
		v, err := runCompare(c, "r-key", 3, 9)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Big().Int64()).To(Equal(int64(1)))
	})

	It("reveals β=0 when the left operand is larger", func() {
		c := newTestCluster(5)
		v, err := runCompare(c, "r-key", 9, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Big().Int64()).To(Equal(int64(0)))
	})

	// A large difference straddling the mask's carry chain: this guards
	// against a comparator that only inspects the revealed value's top bit
	// (topbit(a+b mod p) is not topbit(a) XOR topbit(b) once a carry ripples
	// up from the low s-1 bits), which used to misjudge exactly this shape
	// of input.
	It("reveals β=0 for a large left operand near p/2 against a zero right operand", func() {
		c := newTestCluster(5)
		large := int64(integrationPrime/2) - 1
		v, err := runCompare(c, "r-key-large", large, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Big().Int64()).To(Equal(int64(0)))
	})
})

var _ = Describe("Barrier rendezvous", func() {
	It("releases every node only once all have arrived", func() {
		c := newTestCluster(4)
		done := make(chan error, len(c.ids))
		for _, id := range c.ids {
			m := c.managers[id]
			_, err := barrier.Start(m, "integration-barrier", c.ids, func(err error) { done <- err })
			Expect(err).NotTo(HaveOccurred())
		}
		for range c.ids {
			Eventually(done).Should(Receive(BeNil()))
		}
	})
})

var _ = Describe("Cost-contribution huddle", func() {
	It("sums every node's contribution at every node", func() {
		c := newTestCluster(4)
		done := make(chan error, len(c.ids))
		for _, id := range c.ids {
			m := c.managers[id]
			contrib := c.prime().ElemFromInt64(int64(id) * 10)
			sh := &field.Share{Index: int(id), Value: contrib, WitnessSecret: contrib}
			_, err := huddle.Start(m, "integration-huddle", "contrib", []*field.Share{sh}, c.ids, func(err error) { done <- err })
			Expect(err).NotTo(HaveOccurred())
		}
		for range c.ids {
			Eventually(done).Should(Receive(BeNil()))
		}
		v, err := c.reconstruct("contrib[0]")
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Big().Int64()).To(Equal(int64(10 + 20 + 30 + 40)))
	})
})

var _ = Describe("Meta protocols", func() {
	var c *testCluster

	BeforeEach(func() {
		c = newTestCluster(5)
	})

	It("computes SecureMin over two shared secrets", func() {
		Expect(c.distribute("a", c.prime().ElemFromInt64(30))).To(Succeed())
		Expect(c.distribute("b", c.prime().ElemFromInt64(12))).To(Succeed())

		dealer := setup.NewDealer(c.leader(), c.prime(), 3, c.ids)
		var mulErr, keyErr error
		Expect(dealer.MultiplicationMask("r-mul", func(err error) { mulErr = err })).To(Succeed())
		Expect(mulErr).NotTo(HaveOccurred())
		mask, err := dealer.CompareMask("r-key", func(err error) { keyErr = err })
		Expect(err).NotTo(HaveOccurred())
		Expect(keyErr).NotTo(HaveOccurred())

		var runErr error
		err = meta.SecureMin(c.leader(), "a", "b", "min-out", "r-mul", mask, c.prime(), c.ids, nil, func(err error) { runErr = err })
		Expect(err).NotTo(HaveOccurred())
		Expect(runErr).NotTo(HaveOccurred())

		v, err := c.reconstruct("min-out")
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Big().Int64()).To(Equal(int64(12)))
	})

	It("computes a SecureDotProduct over two shared vectors", func() {
		aVals := []int64{2, 3, 4}
		bVals := []int64{5, 6, 7}
		aIDs := make([]string, len(aVals))
		bIDs := make([]string, len(bVals))
		rIDs := make([]string, len(aVals))
		dealer := setup.NewDealer(c.leader(), c.prime(), 3, c.ids)
		for i := range aVals {
			aIDs[i] = fmt.Sprintf("a[%d]", i)
			bIDs[i] = fmt.Sprintf("b[%d]", i)
			rIDs[i] = fmt.Sprintf("r[%d]", i)
			Expect(c.distribute(aIDs[i], c.prime().ElemFromInt64(aVals[i]))).To(Succeed())
			Expect(c.distribute(bIDs[i], c.prime().ElemFromInt64(bVals[i]))).To(Succeed())
			var maskErr error
			Expect(dealer.MultiplicationMask(rIDs[i], func(err error) { maskErr = err })).To(Succeed())
			Expect(maskErr).NotTo(HaveOccurred())
		}

		var runErr error
		err := meta.SecureDotProduct(c.leader(), aIDs, bIDs, rIDs, "dot-out", c.prime(), c.ids, nil, func(err error) { runErr = err })
		Expect(err).NotTo(HaveOccurred())
		Expect(runErr).NotTo(HaveOccurred())

		v, err := c.reconstruct("dot-out")
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Big().Int64()).To(Equal(int64(2*5 + 3*6 + 4*7)))
	})

	It("finds the minimum value and its index over a shared array", func() {
		values := []int64{9, 2, 7, 1, 5}
		ids := make([]string, len(values))
		dealer := setup.NewDealer(c.leader(), c.prime(), 3, c.ids)
		masks := meta.FindExtremumMasks{}
		for i, v := range values {
			ids[i] = fmt.Sprintf("arr[%d]", i)
			Expect(c.distribute(ids[i], c.prime().ElemFromInt64(v))).To(Succeed())
		}
		for i := 0; i < len(values)-1; i++ {
			rKeyID := fmt.Sprintf("fm-r-key[%d]", i)
			var keyErr error
			mask, err := dealer.CompareMask(rKeyID, func(err error) { keyErr = err })
			Expect(err).NotTo(HaveOccurred())
			Expect(keyErr).NotTo(HaveOccurred())
			masks.Compare = append(masks.Compare, mask)

			dvID := fmt.Sprintf("fm-r-dv[%d]", i)
			dkID := fmt.Sprintf("fm-r-dk[%d]", i)
			var dvErr, dkErr error
			Expect(dealer.MultiplicationMask(dvID, func(err error) { dvErr = err })).To(Succeed())
			Expect(dvErr).NotTo(HaveOccurred())
			Expect(dealer.MultiplicationMask(dkID, func(err error) { dkErr = err })).To(Succeed())
			Expect(dkErr).NotTo(HaveOccurred())
			masks.MulDv = append(masks.MulDv, dvID)
			masks.MulDk = append(masks.MulDk, dkID)
		}

		var runErr error
		err := meta.FindExtremum(c.leader(), ids, false, "fm-v", "fm-k", masks, c.prime(), c.ids, nil, func(err error) { runErr = err })
		Expect(err).NotTo(HaveOccurred())
		Expect(runErr).NotTo(HaveOccurred())

		v, err := c.reconstruct("fm-v")
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Big().Int64()).To(Equal(int64(1)))

		k, err := c.reconstruct("fm-k")
		Expect(err).NotTo(HaveOccurred())
		Expect(k.Big().Int64()).To(Equal(int64(3)))
	})
})

var _ = Describe("Bench-style repeated runs", func() {
	It("completes many SecureAdd runs without drift", func() {
		for i := 0; i < 10; i++ {
			c := newTestCluster(3)
			Expect(c.distribute("a", c.prime().ElemFromInt64(int64(i)))).To(Succeed())
			Expect(c.distribute("b", c.prime().ElemFromInt64(1))).To(Succeed())
			var runErr error
			inst := arith.NewAddInitiator().(*arith.Instance)
			inst.Listener = func(err error) { runErr = err }
			start := time.Now()
			_, err := c.leader().StartProtocol(inst, runtime.Params{"secretA": "a", "secretB": "b", "secretC": "sum"}, c.ids)
			Expect(err).NotTo(HaveOccurred())
			Expect(runErr).NotTo(HaveOccurred())
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))
			v, err := c.reconstruct("sum")
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Big().Int64()).To(Equal(int64(i + 1)))
		}
	})
})
