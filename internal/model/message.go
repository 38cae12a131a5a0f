// Package model 包含了应用的数据模型定义。
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role 标识消息的发送方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message 代表消息日志中的一条记录。插入后不再修改或删除。
type Message struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:255;not null;index:idx_messages_user_created,priority:1" json:"user_id"`
	Role      Role      `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;precision:6;index:idx_messages_user_created,priority:2" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// NewID 返回按生成时间递增的 UUIDv7，created_at 相同时用作插入顺序。
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// BeforeCreate 由存储层分配 id 与 created_at。
func (m *Message) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}

// NewMessage is the caller-supplied part of a Message.
type NewMessage struct {
	UserID  string
	Role    Role
	Content string
}
