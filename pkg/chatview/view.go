// Package chatview 维护聊天界面的本地消息视图：乐观发送、结算回滚以及与实时推送的合并。
//
// View 不是并发安全的，所有修改必须来自同一个事件循环（见 Session）。
package chatview

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gemini-chat-go/internal/model"
)

const (
	// ImagePrefix 开头的输入走视觉模型。
	ImagePrefix = "/image"
	// SupersedeSkew 容忍客户端与服务端之间的时钟偏差。
	SupersedeSkew = 5 * time.Minute
)

var (
	ErrBusy       = errors.New("a message is already being sent")
	ErrEmptyInput = errors.New("message is empty")
	ErrNoIdentity = errors.New("log in to send messages")
)

// Entry 是视图中的一行；Optimistic 表示尚未被服务端确认的本地消息。
type Entry struct {
	model.Message
	Optimistic bool
}

// Submission 是一次发送请求，由调用方交给 chatWithGemini。
type Submission struct {
	TempID         string
	UserID         string
	Message        string
	IsImageRequest bool
}

// View 保存某个用户的有序消息视图。
type View struct {
	userID     string
	input      string
	confirmed  []model.Message
	optimistic []model.Message
	pendingID  string
	lastErr    error
}

// New 创建一个没有身份的空视图。
func New() *View {
	return &View{}
}

// SetIdentity 切换当前用户。身份变化时清空视图与待发送状态。
func (v *View) SetIdentity(userID string) {
	if userID == v.userID {
		return
	}
	*v = View{userID: userID, input: v.input}
}

func (v *View) UserID() string { return v.userID }

func (v *View) SetInput(s string) { v.input = s }

func (v *View) Input() string { return v.input }

// Pending reports whether a submission is in flight.
func (v *View) Pending() bool { return v.pendingID != "" }

// LastError 返回最近一次失败，成功发送后清除。
func (v *View) LastError() error { return v.lastErr }

// RecordError 记录一次与发送无关的失败（拉取、订阅）。
func (v *View) RecordError(err error) { v.lastErr = err }

// Submit 把当前输入作为乐观消息追加到视图，并返回需要发送的请求。
// 同一时间只允许一个发送中的请求。
func (v *View) Submit(now time.Time) (Submission, error) {
	content := strings.TrimSpace(v.input)
	switch {
	case content == "":
		return Submission{}, ErrEmptyInput
	case v.userID == "":
		return Submission{}, ErrNoIdentity
	case v.Pending():
		return Submission{}, ErrBusy
	}

	sub := Submission{
		TempID:  fmt.Sprintf("temp-%d", now.UnixNano()),
		UserID:  v.userID,
		Message: content,
	}
	if strings.HasPrefix(content, ImagePrefix) {
		sub.IsImageRequest = true
		sub.Message = strings.TrimSpace(strings.TrimPrefix(content, ImagePrefix))
	}

	v.optimistic = append(v.optimistic, model.Message{
		ID:        sub.TempID,
		UserID:    v.userID,
		Role:      model.RoleUser,
		Content:   sub.Message,
		CreatedAt: now.UTC(),
	})
	v.input = ""
	v.pendingID = sub.TempID
	v.lastErr = nil
	return sub, nil
}

// Settle 结束 tempID 对应的发送。失败时移除该乐观消息并记录错误；
// 成功时乐观消息保留，直到服务端的同内容用户消息到达。
func (v *View) Settle(tempID string, err error) {
	if tempID == v.pendingID {
		v.pendingID = ""
	}
	if err == nil {
		return
	}
	v.lastErr = err
	for i, m := range v.optimistic {
		if m.ID == tempID {
			v.optimistic = append(v.optimistic[:i], v.optimistic[i+1:]...)
			return
		}
	}
}

// ApplyFetched 合并一次拉取结果。已有的确认消息按 id 去重保留，
// 被确认的乐观消息移除，其余乐观消息留在末尾。
func (v *View) ApplyFetched(messages []model.Message) {
	seen := make(map[string]bool, len(messages)+len(v.confirmed))
	for _, m := range v.confirmed {
		seen[m.ID] = true
	}
	merged := append([]model.Message(nil), v.confirmed...)
	var fresh []model.Message
	for _, m := range messages {
		if m.UserID != v.userID || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		merged = append(merged, m)
		fresh = append(fresh, m)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	v.confirmed = merged

	for _, m := range fresh {
		v.supersede(m)
	}
}

// supersede 移除与 m 内容相同的最早一条乐观消息。
// 早于乐观消息 SupersedeSkew 以上的历史消息不参与匹配。
func (v *View) supersede(m model.Message) {
	if m.Role != model.RoleUser {
		return
	}
	for j, o := range v.optimistic {
		if o.Content == m.Content && !m.CreatedAt.Before(o.CreatedAt.Add(-SupersedeSkew)) {
			v.optimistic = append(v.optimistic[:j], v.optimistic[j+1:]...)
			return
		}
	}
}

// ApplyPushed 合并一条实时推送的消息，已存在的 id 会被忽略。返回视图是否变化。
func (v *View) ApplyPushed(m model.Message) bool {
	if m.UserID != v.userID {
		return false
	}
	for _, c := range v.confirmed {
		if c.ID == m.ID {
			return false
		}
	}

	i := sort.Search(len(v.confirmed), func(i int) bool {
		return v.confirmed[i].CreatedAt.After(m.CreatedAt)
	})
	v.confirmed = append(v.confirmed, model.Message{})
	copy(v.confirmed[i+1:], v.confirmed[i:])
	v.confirmed[i] = m

	v.supersede(m)
	return true
}

// Entries 返回按顺序排列的视图：确认消息在前，乐观消息在后。
func (v *View) Entries() []Entry {
	out := make([]Entry, 0, len(v.confirmed)+len(v.optimistic))
	for _, m := range v.confirmed {
		out = append(out, Entry{Message: m})
	}
	for _, m := range v.optimistic {
		out = append(out, Entry{Message: m, Optimistic: true})
	}
	return out
}
