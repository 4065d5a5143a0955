package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"finsync/application/ports"
	"finsync/domain/core/aggregates"
)

const snapshotSK = "SNAPSHOT"

// snapshotItem stores the document as a JSON string so numbers and key sets
// round-trip exactly and stay clear of the nested-map depth limit
type snapshotItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	AccountID  string `dynamodbav:"AccountID"`
	Document   string `dynamodbav:"Document"`
	Version    int64  `dynamodbav:"Version"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
}

// SnapshotStore implements ports.SnapshotStore with conditional writes
type SnapshotStore struct {
	*Table
	logger *zap.Logger
	now    func() time.Time
}

func NewSnapshotStore(client API, tableName string, logger *zap.Logger) *SnapshotStore {
	return &SnapshotStore{
		Table:  NewTable(client, tableName),
		logger: logger,
		now:    time.Now,
	}
}

// Read implements ports.SnapshotStore
func (s *SnapshotStore) Read(ctx context.Context, accountID string) (*aggregates.Snapshot, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.name),
		Key:            key(accountPK(accountID), snapshotSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if out.Item == nil {
		return nil, ports.ErrSnapshotNotFound
	}

	var item snapshotItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	doc, err := aggregates.DecodeDocument([]byte(item.Document))
	if err != nil {
		return nil, err
	}
	return &aggregates.Snapshot{
		AccountID: accountID,
		Document:  doc,
		Version:   item.Version,
		UpdatedAt: parseTime(item.UpdatedAt),
	}, nil
}

// Write implements ports.SnapshotStore
func (s *SnapshotStore) Write(ctx context.Context, accountID string, doc aggregates.Document, expectedVersion int64) (aggregates.WriteResult, error) {
	raw, err := doc.Encode()
	if err != nil {
		return aggregates.WriteResult{}, err
	}

	now := s.now().UTC()
	item := snapshotItem{
		PK:         accountPK(accountID),
		SK:         snapshotSK,
		EntityType: "SNAPSHOT",
		AccountID:  accountID,
		Document:   string(raw),
		Version:    expectedVersion + 1,
		UpdatedAt:  formatTime(now),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return aggregates.WriteResult{}, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	cond := expression.AttributeNotExists(expression.Name("PK"))
	if expectedVersion > 0 {
		cond = expression.Name("Version").Equal(expression.Value(expectedVersion))
	}
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return aggregates.WriteResult{}, fmt.Errorf("failed to build condition: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                           aws.String(s.name),
		Item:                                av,
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		if isConditionFailed(err) {
			return aggregates.WriteResult{}, &ports.VersionConflictError{ServerVersion: s.conflictVersion(ctx, accountID, err)}
		}
		return aggregates.WriteResult{}, fmt.Errorf("failed to put snapshot: %w", err)
	}

	return aggregates.WriteResult{Version: item.Version, UpdatedAt: now}, nil
}

// conflictVersion prefers the item returned with the failed condition and
// falls back to a consistent read
func (s *SnapshotStore) conflictVersion(ctx context.Context, accountID string, err error) int64 {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) && ccf.Item != nil {
		var old snapshotItem
		if attributevalue.UnmarshalMap(ccf.Item, &old) == nil {
			return old.Version
		}
	}
	snap, readErr := s.Read(ctx, accountID)
	if readErr != nil {
		s.logger.Warn("could not read version after conditional failure",
			zap.String("account_id", accountID), zap.Error(readErr))
		return 0
	}
	return snap.Version
}
