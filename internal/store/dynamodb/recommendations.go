package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticketing/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// CreateRecommendation assigns the durable id, stamps the record pending and
// writes it. The returned record is what was stored.
func (s *Store) CreateRecommendation(ctx context.Context, rec models.Recommendation) (models.Recommendation, error) {
	now := time.Now().UTC()
	rec.ID = uuid.NewString()
	rec.Status = models.RecommendationPending
	rec.CreatedAt = now
	rec.UpdatedAt = now

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return models.Recommendation{}, fmt.Errorf("failed to marshal recommendation: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(s.RecommendationsTableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	}
	if _, err := s.Client.PutItem(ctx, input); err != nil {
		return models.Recommendation{}, fmt.Errorf("failed to put recommendation: %w", err)
	}
	return rec, nil
}

func (s *Store) GetRecommendation(ctx context.Context, id string) (models.Recommendation, error) {
	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.RecommendationsTableName),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return models.Recommendation{}, fmt.Errorf("failed to get recommendation: %w", err)
	}
	if result.Item == nil {
		return models.Recommendation{}, ErrNotFound
	}
	var rec models.Recommendation
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return models.Recommendation{}, fmt.Errorf("failed to unmarshal recommendation: %w", err)
	}
	return rec, nil
}

// GetRecommendationByTempID looks the record up by its client correlation id.
// The index is eventually consistent, so a record created a moment ago may
// not be visible yet.
func (s *Store) GetRecommendationByTempID(ctx context.Context, tempID string) (models.Recommendation, error) {
	result, err := s.Client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.RecommendationsTableName),
		IndexName:              aws.String(tempIDIndex),
		KeyConditionExpression: aws.String("temp_id = :temp_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":temp_id": &types.AttributeValueMemberS{Value: tempID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return models.Recommendation{}, fmt.Errorf("failed to query recommendation by temp id: %w", err)
	}
	if len(result.Items) == 0 {
		return models.Recommendation{}, ErrNotFound
	}
	var rec models.Recommendation
	if err := attributevalue.UnmarshalMap(result.Items[0], &rec); err != nil {
		return models.Recommendation{}, fmt.Errorf("failed to unmarshal recommendation: %w", err)
	}
	return rec, nil
}

// RespondToRecommendation records the admin answer. Only a pending record
// transitions. Answering a responded record with the same text returns it
// unchanged with transitioned=false; a different text is ErrAnswerConflict.
func (s *Store) RespondToRecommendation(ctx context.Context, id, adminID, answer string) (models.Recommendation, bool, error) {
	now, err := attributevalue.Marshal(time.Now().UTC())
	if err != nil {
		return models.Recommendation{}, false, fmt.Errorf("failed to marshal timestamp: %w", err)
	}

	input := &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.RecommendationsTableName),
		Key:                 idKey(id),
		UpdateExpression:    aws.String("SET #status = :responded, answer = :answer, responded_by = :admin, responded_at = :now, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(id) AND #status = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":responded": &types.AttributeValueMemberS{Value: string(models.RecommendationResponded)},
			":pending":   &types.AttributeValueMemberS{Value: string(models.RecommendationPending)},
			":answer":    &types.AttributeValueMemberS{Value: answer},
			":admin":     &types.AttributeValueMemberS{Value: adminID},
			":now":       now,
		},
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}

	result, err := s.Client.UpdateItem(ctx, input)
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if !errors.As(err, &condCheckFailed) {
			return models.Recommendation{}, false, fmt.Errorf("failed to respond to recommendation: %w", err)
		}
		if len(condCheckFailed.Item) == 0 {
			return models.Recommendation{}, false, ErrNotFound
		}
		var current models.Recommendation
		if err := attributevalue.UnmarshalMap(condCheckFailed.Item, &current); err != nil {
			return models.Recommendation{}, false, fmt.Errorf("failed to unmarshal recommendation: %w", err)
		}
		if current.Status == models.RecommendationResponded && current.Answer == answer {
			return current, false, nil
		}
		return current, false, ErrAnswerConflict
	}

	var rec models.Recommendation
	if err := attributevalue.UnmarshalMap(result.Attributes, &rec); err != nil {
		return models.Recommendation{}, false, fmt.Errorf("failed to unmarshal recommendation: %w", err)
	}
	return rec, true, nil
}

// ListPendingRecommendations returns pending records for one organizer, or
// for every organizer when organizerID is empty, oldest first.
func (s *Store) ListPendingRecommendations(ctx context.Context, organizerID string) ([]models.Recommendation, error) {
	input := &dynamodb.QueryInput{
		TableName: aws.String(s.RecommendationsTableName),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: string(models.RecommendationPending)},
		},
		ScanIndexForward: aws.Bool(true),
	}
	if organizerID != "" {
		input.IndexName = aws.String(organizerStatusIndex)
		input.KeyConditionExpression = aws.String("organizer_id = :organizer AND #status = :pending")
		input.ExpressionAttributeValues[":organizer"] = &types.AttributeValueMemberS{Value: organizerID}
	} else {
		input.IndexName = aws.String(statusCreatedAtIndex)
		input.KeyConditionExpression = aws.String("#status = :pending")
	}

	var recs []models.Recommendation
	for {
		result, err := s.Client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query pending recommendations: %w", err)
		}
		var page []models.Recommendation
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending recommendations: %w", err)
		}
		recs = append(recs, page...)
		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return recs, nil
}

// MarkConsumed records which pending event a responded recommendation was
// written into. Repeating the call for the same pending event is allowed.
func (s *Store) MarkConsumed(ctx context.Context, id, pendingEventID string) error {
	now, err := attributevalue.Marshal(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to marshal timestamp: %w", err)
	}
	input := &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.RecommendationsTableName),
		Key:                 idKey(id),
		UpdateExpression:    aws.String("SET consumed_into = :pe, updated_at = :now"),
		ConditionExpression: aws.String("#status = :responded AND (attribute_not_exists(consumed_into) OR consumed_into = :pe)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":responded": &types.AttributeValueMemberS{Value: string(models.RecommendationResponded)},
			":pe":        &types.AttributeValueMemberS{Value: pendingEventID},
			":now":       now,
		},
	}
	if _, err := s.Client.UpdateItem(ctx, input); err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return ErrNotConsumable
		}
		return fmt.Errorf("failed to mark recommendation consumed: %w", err)
	}
	return nil
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}
