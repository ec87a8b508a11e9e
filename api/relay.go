package api

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

// RedisRelay shares board events between API instances over a Redis
// pub/sub channel.
type RedisRelay struct {
	client  *redis.Client
	channel string
}

func NewRedisRelay(client *redis.Client, channel string) *RedisRelay {
	return &RedisRelay{client: client, channel: channel}
}

// Publish implements Publisher.
func (r *RedisRelay) Publish(ctx context.Context, events []domain.BoardEvent) error {
	if len(events) == 0 {
		return nil
	}
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, ev := range events {
			data, err := sonic.Marshal(ev)
			if err != nil {
				return err
			}
			pipe.Publish(ctx, r.channel, data)
		}
		return nil
	})
	return err
}

// Run forwards every event received on the channel to sink until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, logger *log.Logger, sink func(domain.BoardEvent)) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				logger.Error("board relay subscription closed")
				return
			}
			var ev domain.BoardEvent
			if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
				logger.WithError(err).Warn("unable to parse relayed board event")
				continue
			}
			sink(ev)
		}
	}
}
