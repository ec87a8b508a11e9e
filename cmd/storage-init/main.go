package main

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/mabroukmoatez/formly-saas-sub017/config"
	"github.com/mabroukmoatez/formly-saas-sub017/storage"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	if cfg.Storage.ConnString == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	ctx := context.Background()

	if err := storage.EnsureTables(ctx, cfg.Storage.ConnString, cfg.Storage.CategoriesTable, cfg.Storage.TasksTable); err != nil {
		log.Fatalf("create tables: %v", err)
	}
	if err := storage.EnsureQueues(ctx, cfg.Storage.ConnString, cfg.Storage.EventsQueue); err != nil {
		log.Fatalf("create queues: %v", err)
	}

	log.Info("storage init complete")
}
