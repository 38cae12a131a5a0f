package chatview

import (
	"context"
	"errors"
	"sync"
	"time"

	"gemini-chat-go/internal/model"
	"gemini-chat-go/pkg/chatclient"
)

// FetchLimit 是进入会话时拉取的消息条数。
const FetchLimit = 50

// ErrSubscriptionLost 表示实时推送连接意外断开。
var ErrSubscriptionLost = errors.New("realtime connection lost")

// Backend 是会话依赖的服务端接口，*chatclient.Client 实现了它。
type Backend interface {
	GetMessages(ctx context.Context, userID string, limit, offset int) ([]model.Message, error)
	ChatWithGemini(ctx context.Context, req chatclient.ChatRequest) (*chatclient.ChatResult, error)
	Subscribe(ctx context.Context) (<-chan model.MessageEvent, error)
}

// Event 是后台任务交给事件循环的结果。
type Event interface {
	user() string
}

// FetchedEvent 携带一次拉取的结果。
type FetchedEvent struct {
	UserID   string
	Messages []model.Message
	Err      error
}

// PushedEvent 携带一条实时推送。
type PushedEvent struct {
	UserID string
	Event  model.MessageEvent
}

// SettledEvent 携带一次发送的结果。
type SettledEvent struct {
	UserID string
	TempID string
	Result *chatclient.ChatResult
	Err    error
}

// SubscriptionEndedEvent 表示订阅已结束；Err 为 nil 时是正常释放。
type SubscriptionEndedEvent struct {
	UserID string
	Err    error
}

func (e FetchedEvent) user() string           { return e.UserID }
func (e PushedEvent) user() string            { return e.UserID }
func (e SettledEvent) user() string           { return e.UserID }
func (e SubscriptionEndedEvent) user() string { return e.UserID }

// Session 把拉取、发送和实时推送的结果汇入同一个通道，
// 由单一事件循环调用 Apply 修改 View。
type Session struct {
	backend Backend
	view    *View
	events  chan Event

	root    context.Context
	stop    context.CancelFunc
	mu      sync.Mutex
	current context.Context
	release context.CancelFunc
	wg      sync.WaitGroup
}

// NewSession 创建会话。调用方负责在结束时调用 Close。
func NewSession(backend Backend, view *View) *Session {
	root, stop := context.WithCancel(context.Background())
	return &Session{
		backend: backend,
		view:    view,
		events:  make(chan Event, 32),
		root:    root,
		stop:    stop,
	}
}

// Events 返回后台结果通道，会话关闭后不再有新事件。
func (s *Session) Events() <-chan Event { return s.events }

// View 返回会话驱动的视图。
func (s *Session) View() *View { return s.view }

func (s *Session) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

func (s *Session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// SetIdentity 在身份变化时释放旧订阅，然后为新身份订阅并拉取消息。
// userID 为空表示已登出。
func (s *Session) SetIdentity(userID string) {
	if userID == s.view.UserID() && userID != "" {
		return
	}
	s.mu.Lock()
	if s.release != nil {
		s.release()
		s.current, s.release = nil, nil
	}
	s.view.SetIdentity(userID)
	if userID == "" || s.root.Err() != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.root)
	s.current, s.release = ctx, cancel
	s.mu.Unlock()

	s.spawn(func() { s.subscribe(ctx, userID) })
	s.spawn(func() { s.fetch(ctx, userID) })
}

func (s *Session) subscribe(ctx context.Context, userID string) {
	stream, err := s.backend.Subscribe(ctx)
	if err != nil {
		s.emit(ctx, SubscriptionEndedEvent{UserID: userID, Err: err})
		return
	}
	for ev := range stream {
		s.emit(ctx, PushedEvent{UserID: userID, Event: ev})
	}
	if ctx.Err() == nil {
		s.emit(ctx, SubscriptionEndedEvent{UserID: userID, Err: ErrSubscriptionLost})
	}
}

func (s *Session) fetch(ctx context.Context, userID string) {
	messages, err := s.backend.GetMessages(ctx, userID, FetchLimit, 0)
	s.emit(ctx, FetchedEvent{UserID: userID, Messages: messages, Err: err})
}

// Refresh 重新拉取当前用户的消息。
func (s *Session) Refresh() {
	userID := s.view.UserID()
	s.mu.Lock()
	ctx := s.current
	s.mu.Unlock()
	if userID == "" || ctx == nil {
		return
	}
	s.spawn(func() { s.fetch(ctx, userID) })
}

// Send 提交当前输入。发送在后台进行，结果以 SettledEvent 回到事件循环。
func (s *Session) Send(now time.Time) (Submission, error) {
	sub, err := s.view.Submit(now)
	if err != nil {
		return Submission{}, err
	}
	ctx := s.root
	s.spawn(func() {
		res, err := s.backend.ChatWithGemini(ctx, chatclient.ChatRequest{
			Message:        sub.Message,
			UserID:         sub.UserID,
			IsImageRequest: sub.IsImageRequest,
		})
		s.emit(ctx, SettledEvent{UserID: sub.UserID, TempID: sub.TempID, Result: res, Err: err})
	})
	return sub, nil
}

// Apply 把事件合并进视图，属于旧身份的事件会被丢弃。返回视图是否可能变化。
func (s *Session) Apply(ev Event) bool {
	if ev.user() != s.view.UserID() {
		return false
	}
	switch e := ev.(type) {
	case FetchedEvent:
		if e.Err != nil {
			s.view.RecordError(e.Err)
			return true
		}
		s.view.ApplyFetched(e.Messages)
		return true
	case PushedEvent:
		if e.Event.Type != model.EventInsert {
			return false
		}
		return s.view.ApplyPushed(e.Event.New)
	case SettledEvent:
		s.view.Settle(e.TempID, e.Err)
		if e.Err == nil {
			// 推送可能丢失，成功后补拉一次，重复的行按 id 去重
			s.Refresh()
		}
		return true
	case SubscriptionEndedEvent:
		if e.Err != nil {
			s.view.RecordError(e.Err)
		}
		return true
	}
	return false
}

// Close 释放订阅并等待后台任务结束。
func (s *Session) Close() {
	s.stop()
	s.mu.Lock()
	if s.release != nil {
		s.release()
		s.current, s.release = nil, nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}
