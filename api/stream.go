package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

const (
	subscriberBuffer    = 16
	sseDataPrefix       = "data: "
	defaultSSEHeartbeat = 25 * time.Second
)

// Broker fans board events out to the connected SSE subscribers of this
// instance. Slow subscribers miss events instead of blocking publishers.
type Broker struct {
	mu        sync.Mutex
	subs      map[chan domain.BoardEvent]struct{}
	heartbeat time.Duration
}

func NewBroker(heartbeat time.Duration) *Broker {
	if heartbeat <= 0 {
		heartbeat = defaultSSEHeartbeat
	}
	return &Broker{subs: make(map[chan domain.BoardEvent]struct{}), heartbeat: heartbeat}
}

func (b *Broker) subscribe() chan domain.BoardEvent {
	ch := make(chan domain.BoardEvent, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(ch chan domain.BoardEvent) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Subscribers returns the number of connected streams.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Broadcast delivers ev to every subscriber without blocking.
func (b *Broker) Broadcast(ev domain.BoardEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Publish implements Publisher. It never fails.
func (b *Broker) Publish(_ context.Context, events []domain.BoardEvent) error {
	for _, ev := range events {
		b.Broadcast(ev)
	}
	return nil
}

func streamEvents(broker *Broker, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		res := c.Response()
		flusher, ok := res.Writer.(http.Flusher)
		if !ok {
			return echo.NewHTTPError(http.StatusInternalServerError, "stream unsupported")
		}
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		res.WriteHeader(http.StatusOK)

		ctx := c.Request().Context()
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)

		if _, err := res.Write([]byte(": connected\n\n")); err != nil {
			return nil
		}
		flusher.Flush()

		ticker := time.NewTicker(broker.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := res.Write([]byte(": ping\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case ev := <-ch:
				data, err := sonic.Marshal(ev)
				if err != nil {
					logger.WithError(err).Error("marshal board event")
					continue
				}
				if err := writeSSE(res, ev.Type, data); err != nil {
					logger.WithError(err).Debug("stream closed")
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data []byte) error {
	buf := make([]byte, 0, len(event)+len(data)+24)
	buf = append(buf, "event: "...)
	buf = append(buf, event...)
	buf = append(buf, '\n')
	buf = append(buf, sseDataPrefix...)
	buf = append(buf, data...)
	buf = append(buf, "\n\n"...)
	_, err := w.Write(buf)
	return err
}
