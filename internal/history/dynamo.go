package history

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/seongmin-ku/bedrockchat/internal/conversation"
)

// DynamoAPI is the subset of the DynamoDB client the store uses; it is easy
// to fake in tests.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// sessionRecord is the persisted shape of a conversation. The ttl attribute
// is expected to be registered as the table's time-to-live attribute so the
// store reaps expired records on its own.
type sessionRecord struct {
	SessionID string              `dynamodbav:"session_id"`
	Messages  []conversation.Turn `dynamodbav:"messages"`
	UpdatedAt int64               `dynamodbav:"updated_at"`
	TTL       int64               `dynamodbav:"ttl"`
}

// DynamoStore keeps session records in a DynamoDB table keyed by session_id.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoStore returns a store backed by the given table.
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

func (s *DynamoStore) GetTurns(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: sessionID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get_item: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var rec sessionRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session record: %w", err)
	}
	return rec.Messages, nil
}

func (s *DynamoStore) PutTurns(ctx context.Context, sessionID string, turns []conversation.Turn, updatedAt, expiresAt int64) error {
	item, err := attributevalue.MarshalMap(sessionRecord{
		SessionID: sessionID,
		Messages:  turns,
		UpdatedAt: updatedAt,
		TTL:       expiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamodb put_item: %w", err)
	}
	return nil
}
