package history

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/seongmin-ku/bedrockchat/internal/conversation"
)

type fakeDynamo struct {
	getOut  *dynamodb.GetItemOutput
	getErr  error
	lastGet *dynamodb.GetItemInput
	lastPut *dynamodb.PutItemInput
}

func (f *fakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGet = params
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPut = params
	return &dynamodb.PutItemOutput{}, nil
}

func TestDynamoStore_GetTurns(t *testing.T) {
	turns := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "Hi"},
		{Role: conversation.RoleAssistant, Content: "Hello"},
	}
	item, err := attributevalue.MarshalMap(sessionRecord{
		SessionID: "s1",
		Messages:  turns,
		UpdatedAt: 1700000000,
		TTL:       1700086400,
	})
	require.NoError(t, err)

	client := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: item}}
	store := NewDynamoStore(client, "chat-sessions")

	got, err := store.GetTurns(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, turns, got)

	require.Equal(t, "chat-sessions", *client.lastGet.TableName)
	key, ok := client.lastGet.Key["session_id"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	require.Equal(t, "s1", key.Value)
}

func TestDynamoStore_GetTurns_MissingItem(t *testing.T) {
	client := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	store := NewDynamoStore(client, "chat-sessions")

	got, err := store.GetTurns(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDynamoStore_PutTurns(t *testing.T) {
	client := &fakeDynamo{}
	store := NewDynamoStore(client, "chat-sessions")

	turns := []conversation.Turn{{Role: conversation.RoleUser, Content: "Hi"}}
	require.NoError(t, store.PutTurns(context.Background(), "s1", turns, 1700000000, 1700086400))

	require.Equal(t, "chat-sessions", *client.lastPut.TableName)

	var rec sessionRecord
	require.NoError(t, attributevalue.UnmarshalMap(client.lastPut.Item, &rec))
	require.Equal(t, "s1", rec.SessionID)
	require.Equal(t, turns, rec.Messages)
	require.Equal(t, int64(1700000000), rec.UpdatedAt)
	require.Equal(t, int64(1700086400), rec.TTL)
}
