package realtime

import (
	"context"

	"gemini-chat-go/internal/config"
	"gemini-chat-go/internal/model"
	"gemini-chat-go/pkg/kafka"

	"github.com/google/uuid"
)

// eventProducer is the part of kafka.Producer the broker writes through.
type eventProducer interface {
	ProduceMessageEvent(ctx context.Context, ev model.MessageEvent) error
	Close() error
}

// KafkaBroker 把插入事件写入 Kafka 变更流；每个实例用独立的消费组读取全部事件，
// 再经本地 Hub 投递给该实例上的订阅方。
type KafkaBroker struct {
	producer eventProducer
	hub      *Hub
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewKafkaBroker 创建 KafkaBroker 并启动后台消费者。
func NewKafkaBroker(cfg config.KafkaConfig, buffer int) *KafkaBroker {
	hub := NewHub(buffer)
	ctx, cancel := context.WithCancel(context.Background())
	b := &KafkaBroker{
		producer: kafka.NewProducer(cfg),
		hub:      hub,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	groupID := cfg.GroupPrefix + "-" + uuid.NewString()
	go func() {
		defer close(b.done)
		kafka.StartConsumer(ctx, cfg, groupID, kafka.EventHandlerFunc(b.handleEvent))
	}()
	return b
}

func (b *KafkaBroker) handleEvent(_ context.Context, ev model.MessageEvent) error {
	b.hub.Deliver(ev)
	return nil
}

func (b *KafkaBroker) Publish(ctx context.Context, m model.Message) error {
	return b.producer.ProduceMessageEvent(ctx, model.NewInsertEvent(m))
}

func (b *KafkaBroker) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	return b.hub.Subscribe(ctx, userID)
}

// Close 停止消费者并关闭生产者。
func (b *KafkaBroker) Close() error {
	b.cancel()
	<-b.done
	return b.producer.Close()
}
