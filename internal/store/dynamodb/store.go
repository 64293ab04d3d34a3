package dynamodb

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// DynamoDBAPI is the part of *dynamodb.Client the recommendation store uses.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Store keeps recommendation documents in DynamoDB.
type Store struct {
	Client                   DynamoDBAPI
	RecommendationsTableName string
}

func New(client DynamoDBAPI, recommendationsTable string) *Store {
	return &Store{
		Client:                   client,
		RecommendationsTableName: recommendationsTable,
	}
}

var _ DynamoDBAPI = (*dynamodb.Client)(nil)

var (
	// ErrNotFound is returned when no item matches the requested id.
	ErrNotFound = errors.New("recommendation not found")
	// ErrAnswerConflict is returned when a responded recommendation is answered differently.
	ErrAnswerConflict = errors.New("recommendation already answered differently")
	// ErrNotConsumable is returned when a recommendation is not responded or already consumed elsewhere.
	ErrNotConsumable = errors.New("recommendation cannot be consumed")
)

const (
	tempIDIndex          = "temp_id-index"
	organizerStatusIndex = "organizer_id-status-index"
	statusCreatedAtIndex = "status-created_at-index"
)
