package logger_test

import (
	"context"
	"log/slog"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/distbreaker/pkg/logger"
)

func TestLogger(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Logger Suite")
}

var _ = Describe("New", func() {
	It("should build a logger for every known level", func() {
		for _, lvl := range []string{"debug", "info", "warn", "error"} {
			log := logger.New(lvl, false, "dev")
			Expect(log).NotTo(BeNil())
		}
	})

	It("should fall back to info for unknown levels", func() {
		log := logger.New("chatty", false, "dev")
		Expect(log.Enabled(context.Background(), slog.LevelInfo)).To(BeTrue())
		Expect(log.Enabled(context.Background(), slog.LevelDebug)).To(BeFalse())
	})

	It("should honor the debug level", func() {
		log := logger.New("debug", false, "dev")
		Expect(log.Enabled(context.Background(), slog.LevelDebug)).To(BeTrue())
	})

	It("should build a prod logger", func() {
		log := logger.New("info", true, "prod")
		Expect(log).NotTo(BeNil())
	})
})
