// Package chatclient 是聊天服务 RPC 与实时推送接口的 Go 客户端。
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gemini-chat-go/internal/model"
	"gemini-chat-go/pkg/log"

	"github.com/gorilla/websocket"
)

// APIError 是服务端返回的非 200 响应。
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api returned %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// ChatRequest 是 chatWithGemini 的输入。
type ChatRequest struct {
	Message        string `json:"message"`
	UserID         string `json:"userId"`
	IsImageRequest bool   `json:"isImageRequest"`
}

// ChatResult 是 chatWithGemini 的输出。
type ChatResult struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
}

// Me 是 /auth/me 的结果。
type Me struct {
	Authenticated bool            `json:"authenticated"`
	User          *model.Identity `json:"user"`
	LoginURL      string          `json:"loginUrl"`
	LogoutURL     string          `json:"logoutUrl"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client 调用 /api/v1 下的接口。零值不可用，请使用 New。
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// Option 配置 Client。
type Option func(*Client)

// WithToken 设置身份令牌。
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient 替换默认的 http.Client。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New 创建 Client，baseURL 形如 http://localhost:8080。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 90 * time.Second},
		dialer:     websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{Status: resp.StatusCode, Message: resp.Status}
		}
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", path, err)
	}
	return nil
}

func (c *Client) rpc(ctx context.Context, procedure string, in, out interface{}) error {
	return c.do(ctx, http.MethodPost, "/api/v1/rpc/"+procedure, in, out)
}

// GetMessages 按时间升序分页获取消息。
func (c *Client) GetMessages(ctx context.Context, userID string, limit, offset int) ([]model.Message, error) {
	var out []model.Message
	err := c.rpc(ctx, "getMessages", map[string]interface{}{"user_id": userID, "limit": limit, "offset": offset}, &out)
	return out, err
}

// SearchMessages 检索包含 query 的消息，最新的在前。
func (c *Client) SearchMessages(ctx context.Context, userID, query string, limit int) ([]model.Message, error) {
	var out []model.Message
	err := c.rpc(ctx, "searchMessages", map[string]interface{}{"user_id": userID, "query": query, "limit": limit}, &out)
	return out, err
}

// AddMessage 追加一条消息。
func (c *Client) AddMessage(ctx context.Context, msg model.NewMessage) (*model.Message, error) {
	var out model.Message
	in := map[string]interface{}{"user_id": msg.UserID, "role": msg.Role, "content": msg.Content}
	if err := c.rpc(ctx, "addMessage", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatWithGemini 发起一轮对话并等待助手回复。
func (c *Client) ChatWithGemini(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	var out ChatResult
	if err := c.rpc(ctx, "chatWithGemini", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me 返回当前身份。
func (c *Client) Me(ctx context.Context) (*Me, error) {
	var out Me
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout 注销当前令牌。
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)
}

func (c *Client) realtimeURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/realtime/" + url.PathEscape(c.token)
	return u.String(), nil
}

// Subscribe 订阅当前身份的消息插入事件。
// 返回的通道在 ctx 结束或连接断开时关闭；ctx 结束时 websocket 连接随之关闭。
func (c *Client) Subscribe(ctx context.Context) (<-chan model.MessageEvent, error) {
	if c.token == "" {
		return nil, errors.New("subscribe requires a token")
	}
	wsURL, err := c.realtimeURL()
	if err != nil {
		return nil, err
	}
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: resp.Status}
		}
		return nil, fmt.Errorf("failed to dial realtime endpoint: %w", err)
	}

	events := make(chan model.MessageEvent, 16)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	go func() {
		defer close(events)
		defer cancel()
		for {
			var ev model.MessageEvent
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Warnf("realtime connection lost: %v", err)
				}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
