package storage

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"golang.org/x/sync/errgroup"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

const defaultQueueConcurrency = 4

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
	GetProperties(ctx context.Context, o *azqueue.GetQueuePropertiesOptions) (azqueue.GetQueuePropertiesResponse, error)
}

// EventQueue publishes board events to an Azure storage queue.
type EventQueue struct {
	queue            queueClient
	queueConcurrency int
}

// NewEventQueue connects to the named queue. concurrency bounds the number of
// in-flight sends per Publish call; values below 1 use the default.
func NewEventQueue(connStr, queueName string, concurrency int) (*EventQueue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	qc, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		concurrency = defaultQueueConcurrency
	}
	return &EventQueue{queue: qc, queueConcurrency: concurrency}, nil
}

// Ping checks that the queue exists and is reachable.
func (q *EventQueue) Ping(ctx context.Context) error {
	_, err := q.queue.GetProperties(ctx, nil)
	return err
}

// Publish sends each event as its own message. The first failure cancels the
// remaining sends and is returned.
func (q *EventQueue) Publish(ctx context.Context, events []domain.BoardEvent) error {
	if len(events) == 0 {
		return nil
	}
	limit := q.queueConcurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, ev := range events {
		data, err := sonic.MarshalString(ev)
		if err != nil {
			return err
		}
		g.Go(func() error {
			_, err := q.queue.EnqueueMessage(gctx, data, nil)
			return err
		})
	}
	return g.Wait()
}
