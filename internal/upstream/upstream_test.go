package upstream_test

import (
	"net/url"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/distbreaker/internal/upstream"
)

func TestUpstream(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Upstream Suite")
}

var _ = Describe("Upstream", func() {
	var u *upstream.Upstream

	BeforeEach(func() {
		target, err := url.Parse("http://localhost:9001")
		Expect(err).NotTo(HaveOccurred())
		u = upstream.New("payments", target)
	})

	It("should expose its name and target", func() {
		Expect(u.Name()).To(Equal("payments"))
		Expect(u.URL().String()).To(Equal("http://localhost:9001"))
		Expect(u.ReverseProxy()).NotTo(BeNil())
	})

	It("should report zero EWMA before any response", func() {
		Expect(u.EWMATime()).To(BeZero())
	})

	It("should seed the EWMA with the first response", func() {
		u.RecordResponse(100 * time.Millisecond)
		Expect(u.EWMATime()).To(Equal(100 * time.Millisecond))
	})

	It("should weight later responses into the average", func() {
		u.RecordResponse(100 * time.Millisecond)
		u.RecordResponse(200 * time.Millisecond)

		// 0.8*100ms + 0.2*200ms
		Expect(u.EWMATime()).To(BeNumerically("~", 120*time.Millisecond, time.Millisecond))
	})
})
