package events

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultChannel is the pub/sub channel shared by every board replica.
const DefaultChannel = "kanbanTasksUpdated"

// RedisPublisher publishes TasksUpdated events on a Redis channel so every
// replica's relay can feed its local Bus.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev TasksUpdated) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, data).Err()
}

// Relay forwards events received on channel to bus until ctx is done. A
// closed subscription is re-established after a short pause.
func Relay(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, bus *Bus) {
	if channel == "" {
		channel = DefaultChannel
	}
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev TasksUpdated
				if err := sonic.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.WithError(err).WithField("channel", channel).Error("unable to parse tasks update")
					continue
				}
				_ = bus.Publish(ctx, ev)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.WithField("channel", channel).Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
