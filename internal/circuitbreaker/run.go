package circuitbreaker

import "context"

// Run executes fn under cb and returns its result. This is a convenience
// wrapper for guarded calls that produce a value.
func Run[T any](ctx context.Context, cb *CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := cb.Do(ctx, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}
