package handler

import (
	"gemini-chat-go/internal/middleware"
	"gemini-chat-go/internal/model"
	"gemini-chat-go/internal/service"
	"gemini-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责身份相关的 API：当前用户与登出。
type AuthHandler struct {
	identities service.IdentityService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(identities service.IdentityService) *AuthHandler {
	return &AuthHandler{identities: identities}
}

type meResponse struct {
	Authenticated bool            `json:"authenticated"`
	User          *model.Identity `json:"user"`
	LoginURL      string          `json:"loginUrl"`
	LogoutURL     string          `json:"logoutUrl"`
}

// Me 返回当前身份；未登录时 authenticated 为 false，并给出登录地址。
func (h *AuthHandler) Me(c *gin.Context) {
	links := h.identities.Links()
	resp := meResponse{LoginURL: links.LoginURL, LogoutURL: links.LogoutURL}
	if identity, found := middleware.CurrentIdentity(c); found {
		resp.Authenticated = true
		resp.User = identity
	}
	ok(c, resp)
}

// Logout 注销当前 token。
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.identities.Logout(c.Request.Context(), middleware.CurrentToken(c)); err != nil {
		writeError(c, "logout", err)
		return
	}
	if identity, found := middleware.CurrentIdentity(c); found {
		log.Infof("user %s logged out", identity.Subject)
	}
	ok(c, nil)
}
