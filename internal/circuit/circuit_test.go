package circuit_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/distbreaker/internal/circuit"
)

func TestCircuit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Circuit Suite")
}

var _ = Describe("State", func() {
	It("should emit the exact wire labels", func() {
		Expect(circuit.StateClosed.String()).To(Equal("Closed"))
		Expect(circuit.StateOpen.String()).To(Equal("Open"))
		Expect(circuit.StateHalfOpen.String()).To(Equal("HalfOpen"))
		Expect(circuit.StateIsolated.String()).To(Equal("Isolated"))
	})

	It("should parse every wire label back to its state", func() {
		for _, s := range []circuit.State{
			circuit.StateClosed,
			circuit.StateOpen,
			circuit.StateHalfOpen,
			circuit.StateIsolated,
		} {
			parsed, err := circuit.ParseState(s.String())
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(s))
		}
	})

	It("should reject unknown labels", func() {
		_, err := circuit.ParseState("Opened")
		Expect(err).To(HaveOccurred())
	})

	It("should allow calls only in Closed and HalfOpen", func() {
		Expect(circuit.StateClosed.AllowsCalls()).To(BeTrue())
		Expect(circuit.StateHalfOpen.AllowsCalls()).To(BeTrue())
		Expect(circuit.StateOpen.AllowsCalls()).To(BeFalse())
		Expect(circuit.StateIsolated.AllowsCalls()).To(BeFalse())
	})
})

var _ = Describe("HealthMetrics", func() {
	var now time.Time

	BeforeEach(func() {
		now = time.Unix(1700000000, 0).UTC()
	})

	It("should derive total and failure ratio", func() {
		m := circuit.HealthMetrics{SuccessCount: 3, FailureCount: 1, WindowStart: now}
		Expect(m.Total()).To(Equal(int64(4)))
		Expect(m.FailureRatio()).To(BeNumerically("~", 0.25, 1e-9))
	})

	It("should report ratio 0 for an empty window", func() {
		m := circuit.NewWindow(now)
		Expect(m.Total()).To(BeZero())
		Expect(m.FailureRatio()).To(BeZero())
	})

	It("should be fresh within the sampling duration and stale after", func() {
		m := circuit.NewWindow(now)
		Expect(m.Fresh(now.Add(10*time.Second), 10*time.Second)).To(BeTrue())
		Expect(m.Fresh(now.Add(10*time.Second+time.Nanosecond), 10*time.Second)).To(BeFalse())
	})

	It("should roundtrip through the wire format", func() {
		m := circuit.HealthMetrics{SuccessCount: 7, FailureCount: 2, WindowStart: now}
		data, err := m.MarshalText()
		Expect(err).NotTo(HaveOccurred())

		var got circuit.HealthMetrics
		Expect(got.UnmarshalText(data)).To(Succeed())
		Expect(got.SuccessCount).To(Equal(m.SuccessCount))
		Expect(got.FailureCount).To(Equal(m.FailureCount))
		Expect(got.WindowStart.Equal(m.WindowStart)).To(BeTrue())
	})

	It("should serialize window start as UnixNano", func() {
		m := circuit.HealthMetrics{SuccessCount: 1, WindowStart: now}
		data, err := m.MarshalText()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(fmt.Sprintf("%d", now.UnixNano())))
	})
})

var _ = Describe("Errors", func() {
	It("should match OpenError through wrapping", func() {
		err := fmt.Errorf("request failed: %w", &circuit.OpenError{CircuitID: "payments", RetryAfter: 30 * time.Second})
		Expect(circuit.IsOpen(err)).To(BeTrue())
		Expect(circuit.IsIsolated(err)).To(BeFalse())
	})

	It("should match IsolatedError through wrapping", func() {
		err := fmt.Errorf("request failed: %w", &circuit.IsolatedError{CircuitID: "payments"})
		Expect(circuit.IsIsolated(err)).To(BeTrue())
		Expect(circuit.IsOpen(err)).To(BeFalse())
	})

	It("should not match arbitrary errors", func() {
		Expect(circuit.IsOpen(errors.New("boom"))).To(BeFalse())
		Expect(circuit.IsIsolated(errors.New("boom"))).To(BeFalse())
	})

	It("should include the retry hint in the message", func() {
		err := &circuit.OpenError{CircuitID: "payments", RetryAfter: 30 * time.Second}
		Expect(err.Error()).To(ContainSubstring("30s"))
	})
})
