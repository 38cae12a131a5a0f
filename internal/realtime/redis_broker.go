package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"gemini-chat-go/internal/metrics"
	"gemini-chat-go/internal/model"
	"gemini-chat-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RedisBroker 通过 Redis Pub/Sub 在多个实例之间扇出插入事件，每个用户一个频道。
type RedisBroker struct {
	redisClient *redis.Client
	buffer      int
}

// NewRedisBroker 创建一个 RedisBroker。
func NewRedisBroker(redisClient *redis.Client, buffer int) *RedisBroker {
	if buffer <= 0 {
		buffer = 64
	}
	return &RedisBroker{redisClient: redisClient, buffer: buffer}
}

// UserChannel 返回某个用户分区的频道名。
func UserChannel(userID string) string {
	return "messages:user:" + userID
}

func (b *RedisBroker) Publish(ctx context.Context, m model.Message) error {
	payload, err := json.Marshal(model.NewInsertEvent(m))
	if err != nil {
		return fmt.Errorf("failed to marshal message event: %w", err)
	}
	if err := b.redisClient.Publish(ctx, UserChannel(m.UserID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish message event: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	pubsub := b.redisClient.Subscribe(ctx, UserChannel(userID))
	// 等待订阅确认，确保之后发布的事件不会丢失
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", UserChannel(userID), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan model.MessageEvent, b.buffer)
	metrics.RealtimeSubscribers.Inc()

	go func() {
		defer func() {
			_ = pubsub.Close()
			close(out)
			metrics.RealtimeSubscribers.Dec()
		}()
		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				var ev model.MessageEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Warnf("无法解析 Redis 事件: %v, payload: %s", err, msg.Payload)
					continue
				}
				select {
				case out <- ev:
				default:
					metrics.RealtimeEventsDropped.Inc()
				}
			}
		}
	}()

	return &Subscription{Events: out, cancel: cancel}, nil
}

// Close 不关闭共享的 Redis 客户端，它由 main 负责。
func (b *RedisBroker) Close() error {
	return nil
}
