package eventbridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finsync/domain/events"
)

type mockPutEvents struct {
	mock.Mock
}

func (m *mockPutEvents) PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*eventbridge.PutEventsOutput)
	return out, args.Error(1)
}

func savedEvents(n int) []events.DomainEvent {
	out := make([]events.DomainEvent, n)
	for i := range out {
		out[i] = events.NewSnapshotSaved("acct-1", int64(i+1), time.Now())
	}
	return out
}

func TestPublisher_SplitsIntoBatchesOfTen(t *testing.T) {
	api := new(mockPutEvents)
	api.On("PutEvents", mock.Anything, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
		return len(in.Entries) == 10
	})).Return(&eventbridge.PutEventsOutput{}, nil).Once()
	api.On("PutEvents", mock.Anything, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
		return len(in.Entries) == 2
	})).Return(&eventbridge.PutEventsOutput{}, nil).Once()
	p := NewPublisher(api, "bus", "finsync.sync", zap.NewNop())

	err := p.PublishBatch(context.Background(), savedEvents(12))

	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestPublisher_EntryCarriesTypeAndSource(t *testing.T) {
	api := new(mockPutEvents)
	var captured *eventbridge.PutEventsInput
	api.On("PutEvents", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*eventbridge.PutEventsInput) }).
		Return(&eventbridge.PutEventsOutput{}, nil)
	p := NewPublisher(api, "bus", "finsync.sync", zap.NewNop())

	err := p.Publish(context.Background(), events.NewCategoryDeleted("acct-1", 4, 9, 2, time.Now()))

	require.NoError(t, err)
	require.Len(t, captured.Entries, 1)
	entry := captured.Entries[0]
	assert.Equal(t, "category.deleted", aws.ToString(entry.DetailType))
	assert.Equal(t, "finsync.sync", aws.ToString(entry.Source))
	assert.Equal(t, "bus", aws.ToString(entry.EventBusName))
	assert.Contains(t, aws.ToString(entry.Detail), `"account_id":"acct-1"`)
}

func TestPublisher_RetriesThenFails(t *testing.T) {
	api := new(mockPutEvents)
	api.On("PutEvents", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))
	p := NewPublisher(api, "bus", "finsync.sync", zap.NewNop())
	p.backoff = time.Millisecond

	err := p.Publish(context.Background(), savedEvents(1)[0])

	assert.Error(t, err)
	api.AssertNumberOfCalls(t, "PutEvents", 3)
}

func TestPublisher_FailedEntriesAreReported(t *testing.T) {
	api := new(mockPutEvents)
	api.On("PutEvents", mock.Anything, mock.Anything).Return(&eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries:          []types.PutEventsResultEntry{{ErrorCode: aws.String("InternalFailure")}},
	}, nil)
	p := NewPublisher(api, "bus", "finsync.sync", zap.NewNop())
	p.backoff = time.Millisecond

	err := p.Publish(context.Background(), savedEvents(1)[0])

	assert.ErrorContains(t, err, "1 events failed to publish")
}
