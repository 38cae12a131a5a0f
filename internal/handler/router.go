package handler

import (
	"context"

	"gemini-chat-go/internal/middleware"
	"gemini-chat-go/internal/realtime"
	"gemini-chat-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies 是注册路由所需的服务。
type Dependencies struct {
	Root         context.Context
	Messages     service.MessageService
	Chat         service.ChatService
	Identities   service.IdentityService
	Broker       realtime.Broker
	HealthChecks map[string]HealthCheck
}

// NewRouter 创建路由引擎并注册全部路由。
func NewRouter(d Dependencies) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), middleware.Metrics(), gin.Recovery())

	r.GET("/healthz", Health(d.HealthChecks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := r.Group("/api/v1")
	{
		authHandler := NewAuthHandler(d.Identities)
		auth := apiV1.Group("/auth")
		{
			auth.GET("/me", middleware.OptionalAuth(d.Identities), authHandler.Me)
			auth.POST("/logout", middleware.RequireAuth(d.Identities), authHandler.Logout)
		}

		// 过程调用不强制认证；携带 token 时校验 user_id 归属
		rpc := apiV1.Group("/rpc")
		rpc.Use(middleware.OptionalAuth(d.Identities))
		NewRPCHandler(d.Messages, d.Chat).Register(rpc)

		apiV1.GET("/realtime/:token", NewRealtimeHandler(d.Root, d.Identities, d.Broker).Handle)
	}
	return r
}
