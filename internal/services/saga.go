package services

import (
	"context"
	"fmt"
)

// RunWithCompensation runs action and, if it fails or panics, runs compensate
// to undo work done before it. Compensation ignores ctx cancellation. When
// compensation itself fails the returned error wraps ErrOrphanedDebit.
func RunWithCompensation[T any](ctx context.Context, action func(context.Context) (T, error), compensate func(context.Context) error) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = compensateAfter(ctx, fmt.Errorf("action panicked: %v", r), compensate)
		}
	}()

	result, err = action(ctx)
	if err == nil {
		return result, nil
	}
	var zero T
	return zero, compensateAfter(ctx, err, compensate)
}

func compensateAfter(ctx context.Context, cause error, compensate func(context.Context) error) error {
	if compErr := compensate(context.WithoutCancel(ctx)); compErr != nil {
		return fmt.Errorf("%w: %w (compensation: %w)", ErrOrphanedDebit, cause, compErr)
	}
	return cause
}
