package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"queue-ticket/internal/status"
	"queue-ticket/utils"
)

// Guard runs storage calls behind the circuit breaker and turns backend
// failures into the storage error kinds. Domain errors pass through as is.
type Guard struct {
	breaker *utils.CircuitBreaker
}

func NewGuard(breaker *utils.CircuitBreaker) *Guard {
	return &Guard{breaker: breaker}
}

// NewStorageBreaker builds a breaker that only counts infrastructure errors.
func NewStorageBreaker(maxRequests int, failureRatio float64, openTimeout time.Duration) *utils.CircuitBreaker {
	return utils.NewCircuitBreakerWithSettings("store", utils.BreakerSettings{
		MaxRequests:  uint32(maxRequests),
		Timeout:      openTimeout,
		FailureRatio: failureRatio,
		IsFailure:    isInfrastructureError,
	})
}

func isInfrastructureError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return status.KindOf(err) == status.KindUnknown
}

func (g *Guard) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := guarded(ctx, g, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func guarded[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if g == nil || g.breaker == nil {
		v, err := fn(ctx)
		if err != nil {
			return zero, storageError(ctx, err)
		}
		return v, nil
	}

	res, err := g.breaker.Execute(ctx, func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, storageError(ctx, err)
	}
	v, _ := res.(T)
	return v, nil
}

func storageError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, utils.ErrOpenState), errors.Is(err, utils.ErrTooManyRequests):
		return fmt.Errorf("%w: %w", status.ErrStorageUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", status.ErrStorageTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	case status.KindOf(err) != status.KindUnknown:
		return err
	default:
		return fmt.Errorf("%w: %w", status.ErrStorageUnavailable, err)
	}
}
