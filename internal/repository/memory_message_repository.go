package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"gemini-chat-go/internal/model"
)

type memoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[string][]model.Message
	now      func() time.Time
}

// NewMemoryMessageRepository 创建一个进程内的 MessageRepository，适用于单机开发与测试。
func NewMemoryMessageRepository() MessageRepository {
	return NewMemoryMessageRepositoryWithClock(time.Now)
}

// NewMemoryMessageRepositoryWithClock lets tests control created_at.
func NewMemoryMessageRepositoryWithClock(now func() time.Time) MessageRepository {
	return &memoryMessageRepository{
		messages: make(map[string][]model.Message),
		now:      now,
	}
}

func (r *memoryMessageRepository) Create(_ context.Context, msg model.NewMessage) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	partition := r.messages[msg.UserID]
	createdAt := r.now().UTC()
	// 保证同一分区内 created_at 单调不减
	if n := len(partition); n > 0 && createdAt.Before(partition[n-1].CreatedAt) {
		createdAt = partition[n-1].CreatedAt
	}

	m := model.Message{
		ID:        model.NewID(),
		UserID:    msg.UserID,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: createdAt,
	}
	r.messages[msg.UserID] = append(partition, m)
	return &m, nil
}

func (r *memoryMessageRepository) ListByUser(_ context.Context, userID string, limit, offset int) ([]model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	partition := r.messages[userID]
	if offset >= len(partition) {
		return []model.Message{}, nil
	}
	end := offset + limit
	if end > len(partition) {
		end = len(partition)
	}
	out := make([]model.Message, end-offset)
	copy(out, partition[offset:end])
	return out, nil
}

func (r *memoryMessageRepository) SearchByUser(_ context.Context, userID, query string, limit int) ([]model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(query)
	partition := r.messages[userID]
	out := make([]model.Message, 0, limit)
	for i := len(partition) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.Contains(strings.ToLower(partition[i].Content), needle) {
			out = append(out, partition[i])
		}
	}
	return out, nil
}
