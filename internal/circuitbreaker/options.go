package circuitbreaker

import (
	"context"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/angeloszaimis/distbreaker/internal/circuit"
)

// Default configuration values.
const (
	DefaultFailureThreshold  = 0.5
	DefaultMinimumThroughput = int64(5)
	DefaultBreakDuration     = 30 * time.Second
	DefaultSamplingDuration  = 10 * time.Second
	DefaultLeaseTTL          = 5 * time.Second
)

// Func is the guarded call signature.
type Func func(ctx context.Context) error

// Condition decides whether an error from the guarded call counts as a
// failure. The default treats any non-nil error as one.
type Condition func(error) bool

// StateChange describes one successful transition.
type StateChange struct {
	CircuitID string
	From      circuit.State
	To        circuit.State
	At        time.Time
	// Cause is the guarded-call error that triggered a trip, when there
	// was one.
	Cause error
}

// OnStateChangeFunc is invoked exactly once per successful transition.
// Automatic transitions invoke it inside the lease scope; Isolate invokes
// it without a lease, and so does Reset when a peer holds the lease.
// Panics are swallowed and logged.
type OnStateChangeFunc func(StateChange)

type config struct {
	failureThreshold  float64
	minimumThroughput int64
	breakDuration     time.Duration
	samplingDuration  time.Duration
	leaseTTL          time.Duration
	shadowEnabled     bool
	condition         Condition
	onStateChange     []OnStateChangeFunc
	clock             circuit.Clock
	logger            *slog.Logger
}

// Option configures a CircuitBreaker.
type Option func(*config)

// WithFailureThreshold sets the failure ratio in [0, 1] at or above which
// a fresh window with enough throughput trips the circuit. Default 0.5.
func WithFailureThreshold(ratio float64) Option {
	return func(c *config) {
		c.failureThreshold = ratio
	}
}

// WithMinimumThroughput sets how many calls the window must hold before
// the trip predicate may fire. Default 5.
func WithMinimumThroughput(n int64) Option {
	return func(c *config) {
		c.minimumThroughput = n
	}
}

// WithBreakDuration sets how long the circuit stays open before a probe
// is permitted. Default 30 seconds.
func WithBreakDuration(d time.Duration) Option {
	return func(c *config) {
		c.breakDuration = d
	}
}

// WithSamplingDuration sets the sliding window length. Default 10 seconds.
func WithSamplingDuration(d time.Duration) Option {
	return func(c *config) {
		c.samplingDuration = d
	}
}

// WithLeaseTTL sets the transition lease time-to-live. It must exceed the
// longest transition path so a crashed holder cannot block the circuit
// for long. Default 5 seconds.
func WithLeaseTTL(d time.Duration) Option {
	return func(c *config) {
		c.leaseTTL = d
	}
}

// WithLocalShadow enables or disables the per-process mirror used when
// the store is unreachable. Default enabled.
func WithLocalShadow(enabled bool) Option {
	return func(c *config) {
		c.shadowEnabled = enabled
	}
}

// If sets the condition deciding whether an error counts as a failure.
func If(cond Condition) Option {
	return func(c *config) {
		c.condition = cond
	}
}

// OnStateChange registers a transition callback.
func OnStateChange(fn OnStateChangeFunc) Option {
	return func(c *config) {
		c.onStateChange = append(c.onStateChange, fn)
	}
}

// OnOpen registers a callback for transitions into Open.
func OnOpen(fn OnStateChangeFunc) Option {
	return onTarget(circuit.StateOpen, fn)
}

// OnClose registers a callback for transitions into Closed.
func OnClose(fn OnStateChangeFunc) Option {
	return onTarget(circuit.StateClosed, fn)
}

// OnHalfOpen registers a callback for transitions into HalfOpen.
func OnHalfOpen(fn OnStateChangeFunc) Option {
	return onTarget(circuit.StateHalfOpen, fn)
}

func onTarget(target circuit.State, fn OnStateChangeFunc) Option {
	return OnStateChange(func(sc StateChange) {
		if sc.To == target {
			fn(sc)
		}
	})
}

// WithClock sets the clock for time operations. Useful for testing.
func WithClock(clock circuit.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func (c config) validate(id string) error {
	return validation.Errors{
		"circuitId":         validation.Validate(id, validation.Required),
		"failureThreshold":  validation.Validate(c.failureThreshold, validation.Min(0.0), validation.Max(1.0)),
		"minimumThroughput": validation.Validate(c.minimumThroughput, validation.Required, validation.Min(int64(1))),
		"breakDuration":     validation.Validate(c.breakDuration, validation.Required, validation.Min(time.Nanosecond)),
		"samplingDuration":  validation.Validate(c.samplingDuration, validation.Required, validation.Min(time.Nanosecond)),
		"leaseTTL":          validation.Validate(c.leaseTTL, validation.Required, validation.Min(time.Nanosecond)),
	}.Filter()
}

func defaultCondition(err error) bool {
	return err != nil
}
