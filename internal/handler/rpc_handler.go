package handler

import (
	"gemini-chat-go/internal/middleware"
	"gemini-chat-go/internal/model"
	"gemini-chat-go/internal/service"
	"gemini-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RPCHandler 暴露消息日志与对话编排的四个过程：POST /api/v1/rpc/<procedure>。
type RPCHandler struct {
	messages service.MessageService
	chat     service.ChatService
}

// NewRPCHandler 创建一个新的 RPCHandler 实例。
func NewRPCHandler(messages service.MessageService, chat service.ChatService) *RPCHandler {
	return &RPCHandler{messages: messages, chat: chat}
}

// Register 在给定路由组下注册全部过程。
func (h *RPCHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/getMessages", h.GetMessages)
	rg.POST("/searchMessages", h.SearchMessages)
	rg.POST("/addMessage", h.AddMessage)
	rg.POST("/chatWithGemini", h.ChatWithGemini)
}

type getMessagesRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Limit  *int   `json:"limit" binding:"omitempty,min=1,max=1000"`
	Offset *int   `json:"offset" binding:"omitempty,min=0"`
}

type searchMessagesRequest struct {
	UserID string  `json:"user_id" binding:"required"`
	Query  *string `json:"query" binding:"required"`
	Limit  *int    `json:"limit" binding:"omitempty,min=1,max=1000"`
}

type addMessageRequest struct {
	UserID  string  `json:"user_id" binding:"required"`
	Role    string  `json:"role" binding:"required,oneof=user assistant"`
	Content *string `json:"content" binding:"required"`
}

type chatWithGeminiRequest struct {
	Message        *string `json:"message" binding:"required"`
	UserID         string  `json:"userId" binding:"required"`
	IsImageRequest bool    `json:"isImageRequest"`
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// checkOwner 在请求携带身份时要求 userID 与令牌主体一致。
func checkOwner(c *gin.Context, userID string) error {
	identity, found := middleware.CurrentIdentity(c)
	if found && identity.Subject != userID {
		return service.ErrForbidden
	}
	return nil
}

func bind(c *gin.Context, procedure string, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, procedure, &service.ValidationError{Reason: err.Error()})
		return false
	}
	return true
}

// GetMessages 按时间升序分页返回用户消息。
func (h *RPCHandler) GetMessages(c *gin.Context) {
	var req getMessagesRequest
	if !bind(c, "getMessages", &req) {
		return
	}
	if err := checkOwner(c, req.UserID); err != nil {
		writeError(c, "getMessages", err)
		return
	}

	messages, err := h.messages.GetMessages(c.Request.Context(), req.UserID,
		intOr(req.Limit, service.DefaultMessagesLimit), intOr(req.Offset, 0))
	if err != nil {
		writeError(c, "getMessages", err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	ok(c, messages)
}

// SearchMessages 返回内容包含 query 的用户消息，最新的在前。
func (h *RPCHandler) SearchMessages(c *gin.Context) {
	var req searchMessagesRequest
	if !bind(c, "searchMessages", &req) {
		return
	}
	if err := checkOwner(c, req.UserID); err != nil {
		writeError(c, "searchMessages", err)
		return
	}

	messages, err := h.messages.SearchMessages(c.Request.Context(), req.UserID, *req.Query,
		intOr(req.Limit, service.DefaultSearchLimit))
	if err != nil {
		writeError(c, "searchMessages", err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	log.Infof("[searchMessages] user %s, %d results", req.UserID, len(messages))
	ok(c, messages)
}

// AddMessage 追加一条消息并返回存储后的行。
func (h *RPCHandler) AddMessage(c *gin.Context) {
	var req addMessageRequest
	if !bind(c, "addMessage", &req) {
		return
	}
	if err := checkOwner(c, req.UserID); err != nil {
		writeError(c, "addMessage", err)
		return
	}

	stored, err := h.messages.AddMessage(c.Request.Context(), model.NewMessage{
		UserID:  req.UserID,
		Role:    model.Role(req.Role),
		Content: *req.Content,
	})
	if err != nil {
		writeError(c, "addMessage", err)
		return
	}
	ok(c, stored)
}

// ChatWithGemini 完成一轮对话。网关失败时仍返回 success 与道歉文本。
func (h *RPCHandler) ChatWithGemini(c *gin.Context) {
	var req chatWithGeminiRequest
	if !bind(c, "chatWithGemini", &req) {
		return
	}
	if err := checkOwner(c, req.UserID); err != nil {
		writeError(c, "chatWithGemini", err)
		return
	}

	result, err := h.chat.ChatWithGemini(c.Request.Context(), service.ChatRequest{
		Message:        *req.Message,
		UserID:         req.UserID,
		IsImageRequest: req.IsImageRequest,
	})
	if err != nil {
		writeError(c, "chatWithGemini", err)
		return
	}
	ok(c, result)
}
