package store

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angeloszaimis/distbreaker/internal/circuit"
)

// releaseScript deletes the lock key only while it still holds the
// caller's token, so a lease that expired and was re-acquired by another
// holder cannot be stolen.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

var releaseLua = redis.NewScript(releaseScript)

// RedisOptions configures a Redis-backed Store.
type RedisOptions struct {
	// KeyPrefix namespaces every key. Defaults to DefaultKeyPrefix.
	KeyPrefix string

	// OperationTimeout bounds each store round trip. Defaults to 5s.
	OperationTimeout time.Duration

	// SamplingDuration sizes the metrics key TTL. Defaults to 10s.
	SamplingDuration time.Duration
}

// Redis is the production Store. All faults are logged at warn level and
// degraded into absent reads or best-effort writes; the engine decides
// how to behave without the store.
type Redis struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	metaTTL time.Duration
	logger  *slog.Logger
}

// NewRedis wraps an existing pooled client. The client is shared
// process-wide and is not closed by the store.
func NewRedis(client *redis.Client, logger *slog.Logger, opts RedisOptions) *Redis {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = 5 * time.Second
	}
	if opts.SamplingDuration <= 0 {
		opts.SamplingDuration = 10 * time.Second
	}

	return &Redis{
		client:  client,
		prefix:  opts.KeyPrefix,
		timeout: opts.OperationTimeout,
		metaTTL: opts.SamplingDuration + keyMargin,
		logger:  logger,
	}
}

func (r *Redis) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Redis) GetState(ctx context.Context, id string) (circuit.State, bool) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	val, err := r.client.Get(ctx, stateKey(r.prefix, id)).Result()
	if err == redis.Nil {
		return circuit.StateClosed, false
	}
	if err != nil {
		r.warn("state read failed", id, err)
		return circuit.StateClosed, false
	}

	s, err := circuit.ParseState(val)
	if err != nil {
		r.warn("state value unparseable", id, err)
		return circuit.StateClosed, false
	}
	return s, true
}

func (r *Redis) SetState(ctx context.Context, id string, s circuit.State) bool {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if err := r.client.Set(ctx, stateKey(r.prefix, id), s.String(), stateTTL).Err(); err != nil {
		r.warn("state write failed", id, err)
		return false
	}
	return true
}

func (r *Redis) GetMetrics(ctx context.Context, id string) (circuit.HealthMetrics, bool) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	val, err := r.client.Get(ctx, metricsKey(r.prefix, id)).Result()
	if err == redis.Nil {
		return circuit.HealthMetrics{}, false
	}
	if err != nil {
		r.warn("metrics read failed", id, err)
		return circuit.HealthMetrics{}, false
	}

	var m circuit.HealthMetrics
	if err := m.UnmarshalText([]byte(val)); err != nil {
		r.warn("metrics value unparseable", id, err)
		return circuit.HealthMetrics{}, false
	}
	return m, true
}

func (r *Redis) SetMetrics(ctx context.Context, id string, m circuit.HealthMetrics) bool {
	data, err := m.MarshalText()
	if err != nil {
		r.warn("metrics serialization failed", id, err)
		return false
	}

	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if err := r.client.Set(ctx, metricsKey(r.prefix, id), data, r.metaTTL).Err(); err != nil {
		r.warn("metrics write failed", id, err)
		return false
	}
	return true
}

func (r *Redis) GetBlockedUntil(ctx context.Context, id string) (time.Time, bool) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	val, err := r.client.Get(ctx, blockedKey(r.prefix, id)).Result()
	if err == redis.Nil {
		return time.Time{}, false
	}
	if err != nil {
		r.warn("blocked-until read failed", id, err)
		return time.Time{}, false
	}

	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		r.warn("blocked-until value unparseable", id, err)
		return time.Time{}, false
	}
	return time.Unix(0, nanos).UTC(), true
}

func (r *Redis) SetBlockedUntil(ctx context.Context, id string, t time.Time) bool {
	ttl := time.Until(t) + keyMargin
	if ttl <= 0 {
		return true
	}

	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	val := strconv.FormatInt(t.UnixNano(), 10)
	if err := r.client.Set(ctx, blockedKey(r.prefix, id), val, ttl).Err(); err != nil {
		r.warn("blocked-until write failed", id, err)
		return false
	}
	return true
}

// TryAcquireLease mints a fresh token per attempt; the token is the
// caller's proof of ownership and is never retained by the store.
func (r *Redis) TryAcquireLease(ctx context.Context, id string, ttl time.Duration) (string, bool) {
	token := uuid.NewString()

	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	won, err := r.client.SetNX(ctx, lockKey(r.prefix, id), token, ttl).Result()
	if err != nil {
		// Fail open: a store fault must not wedge transitions.
		r.warn("lease acquire failed, proceeding without store lock", id, err)
		return token, true
	}
	if !won {
		return "", false
	}
	return token, true
}

func (r *Redis) ReleaseLease(ctx context.Context, id string, token string) {
	if token == "" {
		return
	}

	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if err := releaseLua.Run(ctx, r.client, []string{lockKey(r.prefix, id)}, token).Err(); err != nil && err != redis.Nil {
		r.warn("lease release failed", id, err)
	}
}

func (r *Redis) warn(msg, id string, err error) {
	r.logger.Warn(msg,
		slog.String("circuit", id),
		slog.String("error", err.Error()))
}
