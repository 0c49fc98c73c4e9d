package storecheck_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/angeloszaimis/distbreaker/internal/stats"
	"github.com/angeloszaimis/distbreaker/internal/storecheck"
)

func TestStorecheck(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Storecheck Suite")
}

var _ = Describe("Watch", func() {
	It("should report an unreachable store as down", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		collector := stats.NewCollector(16, slog.New(slog.DiscardHandler), prometheus.NewRegistry())
		collector.Start(ctx)

		client := redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
			MaxRetries:  -1,
		})
		go storecheck.Watch(ctx, client, 50*time.Millisecond, collector, slog.New(slog.DiscardHandler))

		Eventually(func() bool {
			return collector.Snapshot().StoreUp
		}, "3s", "50ms").Should(BeFalse())
	})

	It("should stop when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		collector := stats.NewCollector(16, slog.New(slog.DiscardHandler), prometheus.NewRegistry())

		client := redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
			MaxRetries:  -1,
		})

		done := make(chan struct{})
		go func() {
			defer close(done)
			storecheck.Watch(ctx, client, 10*time.Millisecond, collector, slog.New(slog.DiscardHandler))
		}()

		cancel()
		Eventually(done, "2s").Should(BeClosed())
	})
})
