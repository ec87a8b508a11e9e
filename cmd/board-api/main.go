package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mabroukmoatez/formly-saas-sub017/api"
	"github.com/mabroukmoatez/formly-saas-sub017/config"
	"github.com/mabroukmoatez/formly-saas-sub017/storage"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("tracer shutdown")
		}
	}()

	var backend storage.Backend
	switch cfg.Storage.Backend {
	case config.BackendTables:
		backend, err = storage.NewTableStore(cfg.Storage.ConnString, cfg.Storage.CategoriesTable, cfg.Storage.TasksTable)
		if err != nil {
			log.Fatalf("table storage: %v", err)
		}
	default:
		sqlStore, err := storage.OpenSQLite(cfg.Storage.SQLitePath, cfg.Debug)
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		defer sqlStore.Close()
		backend = sqlStore
	}

	broker := api.NewBroker(cfg.Outbox.Heartbeat)
	opts := api.Options{Broker: broker}
	var publishers []api.Publisher

	redisOpts, err := cfg.Redis.RedisOptions()
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	if redisOpts != nil {
		rc := redis.NewClient(redisOpts)
		defer rc.Close()
		backend = storage.NewCache(backend, rc, cfg.Redis.CacheTTL)
		opts.Deduper = api.NewRedisDeduper(rc, cfg.Redis.DeduperTTL)

		// Every instance fans events out to its own SSE clients from the channel.
		relay := api.NewRedisRelay(rc, cfg.Redis.RelayChannel)
		publishers = append(publishers, relay)
		go relay.Run(ctx, logger, broker.Broadcast)
	} else {
		publishers = append(publishers, broker)
	}

	if cfg.Storage.EventsQueue != "" {
		queue, err := storage.NewEventQueue(cfg.Storage.ConnString, cfg.Storage.EventsQueue, cfg.Storage.QueueWorkers)
		if err != nil {
			log.Fatalf("event queue: %v", err)
		}
		publishers = append(publishers, queue)
	}

	opts.Outbox = api.NewEventOutbox(api.OutboxConfig{
		Workers:        cfg.Outbox.Workers,
		Buffer:         cfg.Outbox.Buffer,
		PublishTimeout: cfg.Outbox.PublishTimeout,
		HandoffTimeout: cfg.Outbox.HandoffTimeout,
		MaxAttempts:    cfg.Outbox.MaxAttempts,
	}, logger, publishers...)
	defer opts.Outbox.Close()

	e := api.NewServer(logger, cfg.AllowOrigins)
	api.Register(e, backend, logger, opts)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()
	logger.WithField("port", cfg.Port).WithField("backend", cfg.Storage.Backend).Info("board api started")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWait)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
	logger.Info("board api stopped")
}
