package model

// EventInsert 是目前唯一的变更类型：消息只追加。
const EventInsert = "INSERT"

// MessageEvent 是推送给订阅方的行变更通知。
type MessageEvent struct {
	Type  string  `json:"type"`
	Table string  `json:"table"`
	New   Message `json:"new"`
}

// NewInsertEvent wraps a freshly stored message.
func NewInsertEvent(m Message) MessageEvent {
	return MessageEvent{Type: EventInsert, Table: Message{}.TableName(), New: m}
}
