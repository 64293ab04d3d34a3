// Package poller waits for a recommendation to be answered by polling its
// status on a fixed interval.
package poller

import (
	"context"
	"errors"
	"time"

	"ticketing/internal/services"
)

var ErrPollTimeout = errors.New("recommendation not answered before timeout")

const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 2 * time.Minute
)

type StatusGetter interface {
	GetStatus(ctx context.Context, organizerID string, ref services.RecommendationRef) (services.RecommendationStatusView, error)
}

// Target names the recommendation to wait for and whose view to read it with.
type Target struct {
	OrganizerID string
	Ref         services.RecommendationRef
}

// WaitForResponse returns the status once it is responded. A record that is
// not yet visible through its temp id reads as not found and is polled again.
// A durable id that is not found fails at once. After timeout it gives up with ErrPollTimeout; the request itself is left
// as it is.
func WaitForResponse(ctx context.Context, getter StatusGetter, target Target, interval, timeout time.Duration) (services.RecommendationStatusView, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		view, err := getter.GetStatus(ctx, target.OrganizerID, target.Ref)
		switch {
		case err == nil && view.Responded:
			return view, nil
		case err != nil && (target.Ref.Kind != services.RefTemp || !errors.Is(err, services.ErrNotFound)):
			if ctx.Err() != nil {
				return services.RecommendationStatusView{}, pollStopped(ctx)
			}
			return services.RecommendationStatusView{}, err
		}

		select {
		case <-ctx.Done():
			return services.RecommendationStatusView{}, pollStopped(ctx)
		case <-ticker.C:
		}
	}
}

func pollStopped(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrPollTimeout
	}
	return ctx.Err()
}
