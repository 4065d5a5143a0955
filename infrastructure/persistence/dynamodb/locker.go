package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"finsync/application/ports"
)

var errLockHeld = errors.New("lock already held")

// lockRecord is a lease item. Expired leases may be taken over.
type lockRecord struct {
	PK         string `dynamodbav:"PK"` // LOCK#<resource>
	SK         string `dynamodbav:"SK"` // LOCK
	LockID     string `dynamodbav:"LockID"`
	AcquiredAt string `dynamodbav:"AcquiredAt"`
	ExpiresAt  string `dynamodbav:"ExpiresAt"`
	TTL        int64  `dynamodbav:"TTL"`
}

// Locker provides leased locks using conditional writes
type Locker struct {
	*Table
	logger    *zap.Logger
	lease     time.Duration
	waitLimit time.Duration
	now       func() time.Time
}

func NewLocker(client API, tableName string, lease, waitLimit time.Duration, logger *zap.Logger) *Locker {
	return &Locker{
		Table:     NewTable(client, tableName),
		logger:    logger,
		lease:     lease,
		waitLimit: waitLimit,
		now:       time.Now,
	}
}

func lockPK(resource string) string { return "LOCK#" + resource }

func (l *Locker) tryAcquire(ctx context.Context, resource string) (*leaseLock, error) {
	now := l.now().UTC()
	expiresAt := now.Add(l.lease)
	rec := lockRecord{
		PK:         lockPK(resource),
		SK:         "LOCK",
		LockID:     uuid.NewString(),
		AcquiredAt: formatTime(now),
		ExpiresAt:  formatTime(expiresAt),
		TTL:        expiresAt.Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.name),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: formatTime(now)},
		},
	})
	if isConditionFailed(err) {
		return nil, errLockHeld
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.logger.Debug("Lock acquired",
		zap.String("resource", resource),
		zap.String("lockID", rec.LockID),
		zap.Duration("lease", l.lease),
	)
	return &leaseLock{locker: l, resource: resource, lockID: rec.LockID}, nil
}

// Acquire implements ports.Locker, retrying with backoff until the wait limit
func (l *Locker) Acquire(ctx context.Context, resource string) (ports.Lock, error) {
	deadline := l.now().Add(l.waitLimit)
	retryInterval := 50 * time.Millisecond

	for {
		lock, err := l.tryAcquire(ctx, resource)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, errLockHeld) {
			return nil, err
		}
		if !l.now().Before(deadline) {
			l.logger.Debug("Lock wait limit reached", zap.String("resource", resource))
			return nil, ports.ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
			if retryInterval < time.Second {
				retryInterval = time.Duration(float64(retryInterval) * 1.5)
			}
		}
	}
}

type leaseLock struct {
	locker   *Locker
	resource string
	lockID   string
}

// Release deletes the lease if it is still ours
func (k *leaseLock) Release(ctx context.Context) error {
	_, err := k.locker.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(k.locker.name),
		Key:                 key(lockPK(k.resource), "LOCK"),
		ConditionExpression: aws.String("LockID = :lockId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lockId": &types.AttributeValueMemberS{Value: k.lockID},
		},
	})
	if isConditionFailed(err) {
		k.locker.logger.Warn("Lock already released or taken over",
			zap.String("resource", k.resource),
			zap.String("lockID", k.lockID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
