// Package kafka 提供了消息插入事件在 Kafka 上的生产与消费。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gemini-chat-go/internal/config"
	"gemini-chat-go/internal/model"
	"gemini-chat-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// EventHandler 处理从 Kafka 读到的单个事件。
type EventHandler interface {
	HandleEvent(ctx context.Context, ev model.MessageEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, ev model.MessageEvent) error

func (f EventHandlerFunc) HandleEvent(ctx context.Context, ev model.MessageEvent) error {
	return f(ctx, ev)
}

func brokerList(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Producer 把插入事件写入主题，以 user_id 作为 key 保证同一分区内有序。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokerList(cfg.Brokers)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}}
}

// ProduceMessageEvent 发送一个插入事件到 Kafka。
func (p *Producer) ProduceMessageEvent(ctx context.Context, ev model.MessageEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal message event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.New.UserID),
		Value: value,
	})
}

// Close 刷新并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 以指定的消费组读取事件直到 ctx 结束。
// 新消费组从最新位点开始，不重放历史事件。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, groupID string, handler EventHandler) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokerList(cfg.Brokers),
		Topic:       cfg.Topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'，消费组 '%s'", cfg.Topic, groupID)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var ev model.MessageEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			// 消息格式错误，直接提交，避免阻塞队列
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		} else if err := handler.HandleEvent(ctx, ev); err != nil {
			log.Errorf("处理消息事件失败: id=%s, error: %v", ev.New.ID, err)
		}

		if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}
