package api

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return m, rc
}

func TestRedisRelayRoundTrip(t *testing.T) {
	m, rc := setupRedis(t)
	relay := NewRedisRelay(rc, "board-events")

	got := make(chan domain.BoardEvent, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx, newTestLogger(), func(ev domain.BoardEvent) { got <- ev })
		close(done)
	}()
	waitFor(t, time.Second, func() bool { return m.PubSubNumSub("board-events")["board-events"] == 1 })

	m.Publish("board-events", "not json")
	ev := domain.NewCategoryEvent(domain.CategoryDeleted, 4)
	if err := relay.Publish(context.Background(), []domain.BoardEvent{ev}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case received := <-got:
		if received != ev {
			t.Fatalf("unexpected event %#v", received)
		}
	case <-time.After(time.Second):
		t.Fatal("relayed event not received")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not exit")
	}
}
