package service

import (
	"context"
	"errors"
	"time"

	"gemini-chat-go/internal/metrics"
	"gemini-chat-go/internal/model"
	"gemini-chat-go/pkg/log"
)

// ApologyMessage 在推理网关失败时作为助手回复写入会话。
const ApologyMessage = "I'm sorry, I encountered an error while processing your request. Please try again."

// Gateway 是推理网关：vision 为 true 时使用视觉模型变体。
type Gateway interface {
	Generate(ctx context.Context, prompt string, vision bool) (string, error)
}

// ChatRequest 是 chatWithGemini 的输入。
type ChatRequest struct {
	Message        string
	UserID         string
	IsImageRequest bool
}

// ChatResult 是 chatWithGemini 的输出，Success 恒为 true。
type ChatResult struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
}

// ChatService 定义了一轮对话的编排。
type ChatService interface {
	ChatWithGemini(ctx context.Context, req ChatRequest) (*ChatResult, error)
}

type chatService struct {
	messages MessageService
	gateway  Gateway
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(messages MessageService, gateway Gateway) ChatService {
	return &chatService{messages: messages, gateway: gateway}
}

// ChatWithGemini 记录用户消息、调用网关、记录助手回复。
// 两次插入不在同一事务中：任一失败只记录日志，不回滚也不重试。
// 网关失败被吸收并替换为 ApologyMessage，因此只有输入校验会返回错误。
func (s *chatService) ChatWithGemini(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if err := validateUserID(req.UserID); err != nil {
		return nil, &ValidationError{Field: "userId", Reason: "is required"}
	}

	// 客户端断开也要完成这一轮，保证用户消息得到回复
	ctx = context.WithoutCancel(ctx)

	if _, err := s.messages.AddMessage(ctx, model.NewMessage{
		UserID:  req.UserID,
		Role:    model.RoleUser,
		Content: req.Message,
	}); err != nil {
		log.Errorw("failed to log user message", "userId", req.UserID, "error", err)
	}

	content, err := s.generate(ctx, req.Message, req.IsImageRequest)
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			log.Errorw("gemini api error", "userId", req.UserID, "model", gwErr.Model, "error", gwErr.Err)
		}
		content = ApologyMessage
	}

	if _, err := s.messages.AddMessage(ctx, model.NewMessage{
		UserID:  req.UserID,
		Role:    model.RoleAssistant,
		Content: content,
	}); err != nil {
		log.Errorw("failed to log assistant message", "userId", req.UserID, "error", err)
	}

	return &ChatResult{Success: true, Response: content}, nil
}

func (s *chatService) generate(ctx context.Context, prompt string, vision bool) (string, error) {
	variant := "text"
	if vision {
		variant = "vision"
	}
	start := time.Now()
	content, err := s.gateway.Generate(ctx, prompt, vision)
	metrics.GatewayLatency.WithLabelValues(variant).Observe(time.Since(start).Seconds())
	if err == nil && content == "" {
		err = errors.New("empty response")
	}
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(variant, "error").Inc()
		return "", &GatewayError{Model: variant, Err: err}
	}
	metrics.GatewayRequests.WithLabelValues(variant, "ok").Inc()
	return content, nil
}
