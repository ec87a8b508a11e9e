package api

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

// OutboxConfig tunes the event outbox worker pool.
type OutboxConfig struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
	HandoffTimeout time.Duration
	RetryInitial   time.Duration
	RetryMax       time.Duration
	MaxAttempts    int
}

func (c OutboxConfig) withDefaults() OutboxConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Buffer <= 0 {
		c.Buffer = c.Workers * 64
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

type outboxJob struct {
	events  []domain.BoardEvent
	targets []Publisher
	attempt int
}

var errOutboxClosed = errors.New("event outbox is closed")

// EventOutbox publishes board events off the request path. Each publisher
// that fails is retried alone with exponential backoff.
type EventOutbox struct {
	cfg        OutboxConfig
	publishers []Publisher
	logger     *log.Logger

	mu       sync.RWMutex
	closing  bool
	jobs     chan outboxJob
	stopCh   chan struct{}
	workerWG sync.WaitGroup
	retryWG  sync.WaitGroup

	delivered atomic.Uint64
	inline    atomic.Uint64
}

// NewEventOutbox starts the worker pool.
func NewEventOutbox(cfg OutboxConfig, logger *log.Logger, publishers ...Publisher) *EventOutbox {
	if logger == nil {
		panic("logger is required")
	}
	cfg = cfg.withDefaults()
	o := &EventOutbox{
		cfg:        cfg,
		publishers: publishers,
		logger:     logger,
		jobs:       make(chan outboxJob, cfg.Buffer),
		stopCh:     make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		o.workerWG.Add(1)
		go o.worker(i)
	}
	logger.Infof("event outbox started, workers: %d, buffer: %d, timeout: %v, handoff: %v, publishers: %d",
		cfg.Workers, cfg.Buffer, cfg.PublishTimeout, cfg.HandoffTimeout, len(publishers))
	return o
}

// Dispatch hands events to the pool. When the buffer stays full past the
// handoff timeout the events are published inline on the caller's goroutine.
func (o *EventOutbox) Dispatch(events ...domain.BoardEvent) {
	if o == nil || len(events) == 0 || len(o.publishers) == 0 {
		return
	}
	job := outboxJob{events: events, targets: o.publishers}
	switch err := o.tryEnqueue(job); {
	case err == nil:
		return
	case errors.Is(err, errOutboxClosed):
		o.logger.WithField("events", len(events)).Warn("event outbox closed; dropping events")
		return
	}

	o.logger.Warn("event outbox saturated; publishing inline")
	o.inline.Add(1)
	if failed := o.publishOnce(job, -1); len(failed) > 0 {
		o.logger.WithField("publishers", len(failed)).Error("inline event publish failed")
	}
}

func (o *EventOutbox) tryEnqueue(job outboxJob) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closing {
		return errOutboxClosed
	}

	select {
	case o.jobs <- job:
		return nil
	default:
	}
	if o.cfg.HandoffTimeout <= 0 {
		return errors.New("event outbox is saturated")
	}

	timer := time.NewTimer(o.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case o.jobs <- job:
		return nil
	case <-timer.C:
		return errors.New("event outbox is saturated")
	}
}

func (o *EventOutbox) worker(id int) {
	defer o.workerWG.Done()
	for job := range o.jobs {
		failed := o.publishOnce(job, id)
		if len(failed) == 0 {
			continue
		}
		job.targets = failed
		job.attempt++
		if job.attempt >= o.cfg.MaxAttempts {
			o.logger.WithFields(log.Fields{
				"worker":   id,
				"events":   len(job.events),
				"attempts": job.attempt,
			}).Error("event publish abandoned")
			continue
		}
		o.scheduleRetry(job)
	}
}

func (o *EventOutbox) publishOnce(job outboxJob, workerID int) []Publisher {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PublishTimeout)
	defer cancel()

	var failed []Publisher
	for _, p := range job.targets {
		if err := p.Publish(ctx, job.events); err != nil {
			failed = append(failed, p)
			o.logger.WithError(err).Errorf("event publish failed, worker=%d, events=%d, attempt=%d", workerID, len(job.events), job.attempt)
		}
	}
	if len(failed) == 0 {
		o.delivered.Add(uint64(len(job.events)))
	}
	return failed
}

func (o *EventOutbox) scheduleRetry(job outboxJob) {
	delay := exponentialBackoff(job.attempt, o.cfg.RetryInitial, o.cfg.RetryMax)
	o.retryWG.Add(1)
	go func() {
		defer o.retryWG.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-o.stopCh:
			return
		}
		o.mu.RLock()
		defer o.mu.RUnlock()
		if o.closing {
			return
		}
		select {
		case o.jobs <- job:
		case <-o.stopCh:
		}
	}()
}

// Close stops accepting events, waits for in-flight publishes and drops
// pending retries.
func (o *EventOutbox) Close() {
	if o == nil {
		return
	}
	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		return
	}
	o.closing = true
	close(o.stopCh)
	close(o.jobs)
	o.mu.Unlock()

	o.workerWG.Wait()
	o.retryWG.Wait()
}

// OutboxStats is a point-in-time view of the outbox.
type OutboxStats struct {
	Buffered  int    `json:"buffered"`
	Delivered uint64 `json:"delivered"`
	Inline    uint64 `json:"inline"`
}

func (o *EventOutbox) Stats() OutboxStats {
	if o == nil {
		return OutboxStats{}
	}
	return OutboxStats{
		Buffered:  len(o.jobs),
		Delivered: o.delivered.Load(),
		Inline:    o.inline.Load(),
	}
}

func exponentialBackoff(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	if attempt <= 0 {
		return initial
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	jitter := 0.2 * backoff
	return time.Duration(backoff + (rand.Float64()-0.5)*2*jitter)
}
