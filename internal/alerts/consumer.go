package alerts

import (
	"context"
	"encoding/json"
	"log/slog"

	"ticketing/internal/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
)

// Recorder persists alerts read off the queue. Insert reports false when the
// message was already recorded.
type Recorder interface {
	Insert(ctx context.Context, alert models.Alert) (bool, error)
}

// Consumer drains the alerts queue into the ops_alerts table.
type Consumer struct {
	recorder Recorder
	logger   *slog.Logger
}

func NewConsumer(recorder Recorder, logger *slog.Logger) *Consumer {
	return &Consumer{recorder: recorder, logger: logger}
}

// Handle records each message keyed by its SQS message id, so redelivery is
// harmless. Messages that fail to store are reported back for retry; bodies
// that cannot be decoded are logged and dropped.
func (c *Consumer) Handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var response events.SQSEventResponse
	for _, message := range event.Records {
		logger := c.logger.With(slog.String("message_id", message.MessageId))

		var alert Alert
		if err := json.Unmarshal([]byte(message.Body), &alert); err != nil || alert.Kind == "" {
			logger.ErrorContext(ctx, "dropping malformed alert message", slog.Any("error", err))
			continue
		}
		details := "{}"
		if len(alert.Details) > 0 {
			raw, err := json.Marshal(alert.Details)
			if err != nil {
				logger.ErrorContext(ctx, "dropping alert with unencodable details", slog.Any("error", err))
				continue
			}
			details = string(raw)
		}

		messageID := message.MessageId
		inserted, err := c.recorder.Insert(ctx, models.Alert{
			ID:              uuid.NewString(),
			Kind:            alert.Kind,
			Message:         alert.Message,
			Details:         details,
			SourceMessageID: &messageID,
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to record alert", slog.String("alert_kind", alert.Kind), slog.Any("error", err))
			response.BatchItemFailures = append(response.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: message.MessageId})
			continue
		}
		if !inserted {
			logger.InfoContext(ctx, "alert already recorded", slog.String("alert_kind", alert.Kind))
			continue
		}
		logger.InfoContext(ctx, "alert recorded", slog.String("alert_kind", alert.Kind))
	}
	return response, nil
}
