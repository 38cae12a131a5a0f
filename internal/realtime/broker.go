// Package realtime 把消息插入事件推送给按 user_id 过滤的订阅方。
package realtime

import (
	"context"
	"sync"

	"gemini-chat-go/internal/metrics"
	"gemini-chat-go/internal/model"
	"gemini-chat-go/pkg/log"
)

// Broker 发布插入事件，并为单个用户分区提供订阅。
type Broker interface {
	// Publish 通知 m.UserID 的所有订阅方。
	Publish(ctx context.Context, m model.Message) error
	// Subscribe 返回仅包含 userID 事件的订阅；ctx 结束或调用 Close 时释放。
	Subscribe(ctx context.Context, userID string) (*Subscription, error)
	Close() error
}

// Subscription 是一次会话范围内的订阅。Events 在释放后关闭。
type Subscription struct {
	Events <-chan model.MessageEvent
	cancel context.CancelFunc
}

// Close 释放订阅，可重复调用。
func (s *Subscription) Close() {
	s.cancel()
}

type subscriber struct {
	ch chan model.MessageEvent
}

// Hub 是进程内的扇出实现，也是 Redis/Kafka 之外的本地投递层。
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
}

// NewHub 创建 Hub；buffer 是每个订阅方的事件缓冲长度。
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[string]map[*subscriber]struct{}), buffer: buffer}
}

func (h *Hub) Publish(_ context.Context, m model.Message) error {
	h.Deliver(model.NewInsertEvent(m))
	return nil
}

// Deliver 把事件非阻塞地投递给该用户的本地订阅方，缓冲已满的订阅方会丢失该事件。
func (h *Hub) Deliver(ev model.MessageEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[ev.New.UserID] {
		select {
		case s.ch <- ev:
		default:
			metrics.RealtimeEventsDropped.Inc()
			log.Warnw("realtime subscriber buffer full, dropping event", "userId", ev.New.UserID, "messageId", ev.New.ID)
		}
	}
}

func (h *Hub) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	s := &subscriber{ch: make(chan model.MessageEvent, h.buffer)}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][s] = struct{}{}
	h.mu.Unlock()
	metrics.RealtimeSubscribers.Inc()

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[userID], s)
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
		close(s.ch)
		h.mu.Unlock()
		metrics.RealtimeSubscribers.Dec()
	}()

	return &Subscription{Events: s.ch, cancel: cancel}, nil
}

// Subscribers reports how many local subscriptions userID currently has.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

func (h *Hub) Close() error {
	return nil
}
