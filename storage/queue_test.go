package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

type fakeQueue struct {
	mu       sync.Mutex
	inFlight int
	max      int
	count    int
	failAt   int
	sleep    time.Duration
	messages []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{failAt: -1, sleep: 1 * time.Millisecond}
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.mu.Lock()
	idx := f.count
	f.count++
	f.inFlight++
	if f.inFlight > f.max {
		f.max = f.inFlight
	}
	f.messages = append(f.messages, content)
	f.mu.Unlock()

	if f.sleep > 0 {
		select {
		case <-time.After(f.sleep):
		case <-ctx.Done():
			f.mu.Lock()
			f.inFlight--
			f.mu.Unlock()
			return azqueue.EnqueueMessagesResponse{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.failAt >= 0 && idx == f.failAt {
		return azqueue.EnqueueMessagesResponse{}, errors.New("enqueue failure")
	}
	return azqueue.EnqueueMessagesResponse{}, nil
}

func (f *fakeQueue) GetProperties(ctx context.Context, o *azqueue.GetQueuePropertiesOptions) (azqueue.GetQueuePropertiesResponse, error) {
	return azqueue.GetQueuePropertiesResponse{}, nil
}

func makeEvents(n int) []domain.BoardEvent {
	events := make([]domain.BoardEvent, n)
	for i := range events {
		events[i] = domain.NewTaskEvent(domain.TaskUpdated, int64(i+1), 1)
	}
	return events
}

func TestPublishUsesConcurrency(t *testing.T) {
	fq := newFakeQueue()
	q := &EventQueue{queue: fq, queueConcurrency: 4}

	if err := q.Publish(context.Background(), makeEvents(8)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if fq.max < 2 {
		t.Fatalf("expected concurrent sends, max in flight: %d", fq.max)
	}
	if fq.max > 4 {
		t.Fatalf("concurrency limit exceeded: %d", fq.max)
	}
	if fq.count != 8 {
		t.Fatalf("expected 8 sends, got %d", fq.count)
	}
}

func TestPublishPropagatesErrors(t *testing.T) {
	fq := newFakeQueue()
	fq.failAt = 2
	q := &EventQueue{queue: fq, queueConcurrency: 3}

	if err := q.Publish(context.Background(), makeEvents(6)); err == nil {
		t.Fatal("expected error")
	}
}

func TestPublishSequentialWhenConfigured(t *testing.T) {
	fq := newFakeQueue()
	q := &EventQueue{queue: fq, queueConcurrency: 1}

	if err := q.Publish(context.Background(), makeEvents(5)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if fq.max != 1 {
		t.Fatalf("expected sequential sends, observed max in flight: %d", fq.max)
	}
}

func TestPublishEncodesEvents(t *testing.T) {
	fq := newFakeQueue()
	fq.sleep = 0
	q := &EventQueue{queue: fq, queueConcurrency: 1}
	ev := domain.NewTaskEvent(domain.TaskMoved, 20, 2)

	if err := q.Publish(context.Background(), []domain.BoardEvent{ev}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fq.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(fq.messages))
	}
	var got domain.BoardEvent
	if err := sonic.UnmarshalString(fq.messages[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != ev {
		t.Fatalf("unexpected event: %#v", got)
	}
	if err := q.Publish(context.Background(), nil); err != nil {
		t.Fatalf("empty publish: %v", err)
	}
}
