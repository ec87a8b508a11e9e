package storage

import (
	"context"
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

const queueAlreadyExists = "QueueAlreadyExists"

// EnsureTables creates the named tables. Existing tables and empty names are skipped.
func EnsureTables(ctx context.Context, connStr string, names ...string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		_, err := svc.NewClient(name).CreateTable(ctx, nil)
		if err := ignoreExisting(err, string(aztables.TableAlreadyExists)); err != nil {
			return err
		}
		log.WithField("table", name).Debug("table ready")
	}
	return nil
}

// EnsureQueues creates the named queues. Existing queues and empty names are skipped.
func EnsureQueues(ctx context.Context, connStr string, names ...string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
		if err != nil {
			return err
		}
		_, err = q.Create(ctx, nil)
		if err := ignoreExisting(err, queueAlreadyExists); err != nil {
			return err
		}
		log.WithField("queue", name).Debug("queue ready")
	}
	return nil
}

func ignoreExisting(err error, code string) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.ErrorCode == code {
		return nil
	}
	return err
}
