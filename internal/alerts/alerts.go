package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

const (
	KindOrphanedDebit   = "orphaned_debit"
	KindPaymentFollowup = "payment_followup"
)

// Alert is an operator-facing notice that something needs a human.
type Alert struct {
	Kind       string         `json:"kind"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// SQSAPI is the part of *sqs.Client the dispatcher uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

var _ SQSAPI = (*sqs.Client)(nil)

type Dispatcher struct {
	logger   *slog.Logger
	client   SQSAPI
	queueURL string
}

// NewDispatcher returns a dispatcher that always logs and also publishes to
// queueURL when client is set and queueURL is not empty.
func NewDispatcher(logger *slog.Logger, client SQSAPI, queueURL string) *Dispatcher {
	return &Dispatcher{logger: logger, client: client, queueURL: queueURL}
}

// Dispatch never fails the caller. A publish failure is logged next to the
// alert itself.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) {
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now().UTC()
	}
	attrs := []any{slog.String("alert_kind", alert.Kind)}
	for key, value := range alert.Details {
		attrs = append(attrs, slog.Any(key, value))
	}
	d.logger.ErrorContext(ctx, alert.Message, attrs...)

	if d.client == nil || d.queueURL == "" {
		return
	}
	if err := d.publish(ctx, alert); err != nil {
		d.logger.ErrorContext(ctx, "alert publish failed", slog.String("alert_kind", alert.Kind), slog.Any("error", err))
	}
}

func (d *Dispatcher) publish(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert for SQS: %w", err)
	}
	_, err = d.client.SendMessage(context.WithoutCancel(ctx), &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send alert to SQS: %w", err)
	}
	return nil
}
