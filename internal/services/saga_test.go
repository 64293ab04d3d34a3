package services

import (
	"context"
	"errors"
	"testing"
)

func TestRunWithCompensationSuccessSkipsCompensation(t *testing.T) {
	got, err := RunWithCompensation(context.Background(),
		func(context.Context) (string, error) { return "rec-1", nil },
		func(context.Context) error {
			t.Fatalf("compensation must not run on success")
			return nil
		})
	if err != nil || got != "rec-1" {
		t.Fatalf("unexpected result %q %v", got, err)
	}
}

func TestRunWithCompensationRunsOnError(t *testing.T) {
	cause := errors.New("store down")
	compensated := false
	_, err := RunWithCompensation(context.Background(),
		func(context.Context) (int, error) { return 0, cause },
		func(context.Context) error {
			compensated = true
			return nil
		})
	if !compensated {
		t.Fatalf("expected compensation")
	}
	if !errors.Is(err, cause) || errors.Is(err, ErrOrphanedDebit) {
		t.Fatalf("expected original cause only, got %v", err)
	}
}

func TestRunWithCompensationRunsOnPanic(t *testing.T) {
	compensated := false
	_, err := RunWithCompensation(context.Background(),
		func(context.Context) (int, error) { panic("boom") },
		func(context.Context) error {
			compensated = true
			return nil
		})
	if !compensated {
		t.Fatalf("expected compensation after panic")
	}
	if err == nil {
		t.Fatalf("expected error after panic")
	}
}

func TestRunWithCompensationFailureIsOrphanedDebit(t *testing.T) {
	cause := errors.New("store down")
	refundErr := errors.New("db down")
	_, err := RunWithCompensation(context.Background(),
		func(context.Context) (int, error) { return 0, cause },
		func(context.Context) error { return refundErr })
	if !errors.Is(err, ErrOrphanedDebit) || !errors.Is(err, cause) || !errors.Is(err, refundErr) {
		t.Fatalf("expected orphaned debit wrapping both errors, got %v", err)
	}
}

func TestRunWithCompensationIgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, _ = RunWithCompensation(ctx,
		func(context.Context) (int, error) {
			cancel()
			return 0, context.Canceled
		},
		func(ctx context.Context) error {
			if ctx.Err() != nil {
				t.Fatalf("compensation context must not be cancelled")
			}
			return nil
		})
}
