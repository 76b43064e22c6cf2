package s3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrAlreadyCompleted is returned when a segment is marked complete a
// second time.
var ErrAlreadyCompleted = errors.New("segment already marked complete")

// DDBClient is the DynamoDB surface the ledger needs; a fake implements
// it in tests.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// CompletionLedger records which archived segments are complete, using
// DynamoDB conditional writes for the atomic publish that S3 lacks. A
// restore only trusts segments the ledger lists.
//
// Table schema:
//   - Partition key: journal (string)
//   - Sort key: base (string) — the segment base name
//
// Create with:
//
//	aws dynamodb create-table \
//	  --table-name rangelog-segments \
//	  --attribute-definitions AttributeName=journal,AttributeType=S AttributeName=base,AttributeType=S \
//	  --key-schema AttributeName=journal,KeyType=HASH AttributeName=base,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CompletionLedger struct {
	client  DDBClient
	table   string
	journal string
}

// NewCompletionLedger returns a ledger for one journal's segments.
func NewCompletionLedger(client DDBClient, table, journal string) *CompletionLedger {
	return &CompletionLedger{client: client, table: table, journal: journal}
}

func (l *CompletionLedger) itemKey(base string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"journal": &types.AttributeValueMemberS{Value: l.journal},
		"base":    &types.AttributeValueMemberS{Value: base},
	}
}

// Complete marks the segment complete, once. The conditional write
// makes the publish atomic across concurrent archivers.
func (l *CompletionLedger) Complete(ctx context.Context, base string) error {
	item := l.itemKey(base)
	item["completed_at"] = &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)}

	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#b)"),
		ExpressionAttributeNames: map[string]string{
			"#b": "base",
		},
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return fmt.Errorf("%s: %w", base, ErrAlreadyCompleted)
		}
		return fmt.Errorf("mark %s complete: %w", base, err)
	}
	return nil
}

// IsComplete reports whether the segment was published.
func (l *CompletionLedger) IsComplete(ctx context.Context, base string) (bool, error) {
	resp, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(l.table),
		Key:            l.itemKey(base),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("check %s: %w", base, err)
	}
	return len(resp.Item) > 0, nil
}

// Forget removes the segment's completion record, for cleanup after the
// archived components are deleted.
func (l *CompletionLedger) Forget(ctx context.Context, base string) error {
	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.table),
		Key:       l.itemKey(base),
	})
	if err != nil {
		return fmt.Errorf("forget %s: %w", base, err)
	}
	return nil
}
