package service

import (
	"context"
	"strings"

	"gemini-chat-go/internal/metrics"
	"gemini-chat-go/internal/model"
	"gemini-chat-go/internal/repository"
	"gemini-chat-go/pkg/log"
)

const (
	DefaultMessagesLimit = 50
	DefaultSearchLimit   = 20
	MaxLimit             = 1000
)

// MessageSink 在消息持久化之后收到通知（实时推送、搜索索引）。
type MessageSink interface {
	MessageCreated(ctx context.Context, m model.Message) error
}

// MessageSinkFunc adapts a function to MessageSink.
type MessageSinkFunc func(ctx context.Context, m model.Message) error

func (f MessageSinkFunc) MessageCreated(ctx context.Context, m model.Message) error {
	return f(ctx, m)
}

// MessageSearcher 执行按用户过滤的子串检索；消息库与 Elasticsearch 都实现了它。
type MessageSearcher interface {
	SearchByUser(ctx context.Context, userID, query string, limit int) ([]model.Message, error)
}

// MessageService 定义了消息日志的业务操作。
type MessageService interface {
	GetMessages(ctx context.Context, userID string, limit, offset int) ([]model.Message, error)
	SearchMessages(ctx context.Context, userID, query string, limit int) ([]model.Message, error)
	AddMessage(ctx context.Context, msg model.NewMessage) (*model.Message, error)
}

type messageService struct {
	repo     repository.MessageRepository
	searcher MessageSearcher
	sinks    []MessageSink
}

// NewMessageService 创建 MessageService。searcher 为 nil 时直接在消息库中检索。
func NewMessageService(repo repository.MessageRepository, searcher MessageSearcher, sinks ...MessageSink) MessageService {
	if searcher == nil {
		searcher = repo
	}
	return &messageService{repo: repo, searcher: searcher, sinks: sinks}
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return invalid("user_id", "is required")
	}
	return nil
}

func validateLimit(limit int) error {
	if limit < 1 || limit > MaxLimit {
		return invalid("limit", "must be between 1 and 1000")
	}
	return nil
}

// GetMessages 按 created_at 升序分页获取用户消息。
func (s *messageService) GetMessages(ctx context.Context, userID string, limit, offset int) ([]model.Message, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, invalid("offset", "must not be negative")
	}

	messages, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("fetch").Inc()
		return nil, &StoreError{Op: "fetch messages", Err: err}
	}
	return messages, nil
}

// SearchMessages 检索内容包含 query（忽略大小写）的用户消息，按 created_at 降序。
func (s *messageService) SearchMessages(ctx context.Context, userID, query string, limit int) ([]model.Message, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := validateLimit(limit); err != nil {
		return nil, err
	}

	messages, err := s.searcher.SearchByUser(ctx, userID, query, limit)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("search").Inc()
		return nil, &StoreError{Op: "search messages", Err: err}
	}
	return messages, nil
}

// AddMessage 插入一条消息并通知所有 sink。sink 失败只记录日志，消息已持久化。
func (s *messageService) AddMessage(ctx context.Context, msg model.NewMessage) (*model.Message, error) {
	if err := validateUserID(msg.UserID); err != nil {
		return nil, err
	}
	if !msg.Role.Valid() {
		return nil, invalid("role", "must be one of user, assistant")
	}

	stored, err := s.repo.Create(ctx, msg)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("insert").Inc()
		return nil, &StoreError{Op: "add message", Err: err}
	}
	metrics.MessagesStored.WithLabelValues(string(stored.Role)).Inc()

	for _, sink := range s.sinks {
		if err := sink.MessageCreated(ctx, *stored); err != nil {
			log.Errorw("message sink failed", "messageId", stored.ID, "userId", stored.UserID, "error", err)
		}
	}
	return stored, nil
}
