// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"gemini-chat-go/internal/service"
	"gemini-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

// writeError 把业务错误映射为 HTTP 状态码。消息库错误只返回通用提示。
func writeError(c *gin.Context, procedure string, err error) {
	var vErr *service.ValidationError
	var sErr *service.StoreError
	switch {
	case errors.As(err, &vErr):
		log.Warnf("[%s] invalid request: %v", procedure, err)
		fail(c, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, service.ErrForbidden):
		log.Warnf("[%s] forbidden: %v", procedure, err)
		fail(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, "无效或已过期的 token")
	case errors.As(err, &sErr):
		log.Errorf("[%s] store error: %v", procedure, err)
		fail(c, http.StatusInternalServerError, "failed to "+sErr.Op)
	default:
		log.Errorf("[%s] unexpected error: %v", procedure, err)
		fail(c, http.StatusInternalServerError, "internal error")
	}
}
