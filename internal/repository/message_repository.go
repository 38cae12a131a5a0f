// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"strings"
	"time"

	"gemini-chat-go/internal/model"

	"gorm.io/gorm"
)

// MessageRepository 定义了消息日志的持久化操作。所有查询都限定在单个 user_id 分区内。
type MessageRepository interface {
	// Create 插入一条消息，并返回带有服务端分配的 id 与 created_at 的完整记录。
	Create(ctx context.Context, msg model.NewMessage) (*model.Message, error)
	// ListByUser 按 created_at 升序分页返回消息。
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Message, error)
	// SearchByUser 返回内容包含 query（忽略大小写）的消息，按 created_at 降序，最多 limit 条。
	SearchByUser(ctx context.Context, userID, query string, limit int) ([]model.Message, error)
}

// MessageScanner 按 id 顺序分批读出全部消息，供索引补建使用。
type MessageScanner interface {
	ScanAfter(ctx context.Context, afterID string, limit int) ([]model.Message, error)
}

type gormMessageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMessageRepository 创建一个基于 GORM 的 MessageRepository。
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return NewMessageRepositoryWithClock(db, time.Now)
}

// NewMessageRepositoryWithClock lets tests control created_at.
func NewMessageRepositoryWithClock(db *gorm.DB, now func() time.Time) MessageRepository {
	return &gormMessageRepository{db: db, now: now}
}

func (r *gormMessageRepository) Create(ctx context.Context, msg model.NewMessage) (*model.Message, error) {
	m := &model.Message{
		ID:        model.NewID(),
		UserID:    msg.UserID,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: r.now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (r *gormMessageRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Message, error) {
	messages := make([]model.Message, 0, limit)
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *gormMessageRepository) SearchByUser(ctx context.Context, userID, query string, limit int) ([]model.Message, error) {
	messages := make([]model.Message, 0, limit)
	// 各方言对反斜杠字面量的处理不同，显式使用 '!' 作为转义符
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("LOWER(content) LIKE ? ESCAPE '!'", "%"+EscapeLike(strings.ToLower(query))+"%").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ScanAfter 返回 id 大于 afterID 的消息，按 id 升序，最多 limit 条。
func (r *gormMessageRepository) ScanAfter(ctx context.Context, afterID string, limit int) ([]model.Message, error) {
	messages := make([]model.Message, 0, limit)
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

// EscapeLike makes LIKE metacharacters in s match literally under ESCAPE '!'.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
