package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisPublisher struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisPublisher(client *redis.Client, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, stream string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, stream, string(data)).Err()
}

// PublishOnce publishes event only if guardKey was not set before, so
// several workers racing on the same condition emit it a single time.
func (p *RedisPublisher) PublishOnce(ctx context.Context, guardKey, stream string, event Event) (bool, error) {
	ok, err := p.client.SetNX(ctx, guardKey, event.Type, 0).Result()
	if err != nil {
		return false, fmt.Errorf("set guard %s: %w", guardKey, err)
	}
	if !ok {
		return false, nil
	}
	if err := p.Publish(ctx, stream, event); err != nil {
		// let the next tick retry
		_ = p.client.Del(context.WithoutCancel(ctx), guardKey).Err()
		return false, err
	}
	return true, nil
}

type RedisSubscriber struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisSubscriber(client *redis.Client, log *zap.Logger) *RedisSubscriber {
	return &RedisSubscriber{client: client, log: log}
}

// Subscribe returns once the subscription is confirmed; handler then runs
// on a background goroutine until ctx is cancelled.
func (s *RedisSubscriber) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	pubsub := s.client.Subscribe(ctx, stream)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", stream, err)
	}
	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.log.Error("failed to unmarshal event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				handler(event)
			}
		}
	}()

	s.log.Info("subscribed", zap.String("channel", stream))
	return nil
}
