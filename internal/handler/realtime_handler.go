package handler

import (
	"context"
	"net/http"
	"time"

	"gemini-chat-go/internal/realtime"
	"gemini-chat-go/internal/service"
	"gemini-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 2 * pingPeriod
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// RealtimeHandler 通过 WebSocket 推送当前用户的消息插入事件。
type RealtimeHandler struct {
	root       context.Context
	identities service.IdentityService
	broker     realtime.Broker
}

// NewRealtimeHandler 创建 RealtimeHandler。root 结束时所有连接都会被关闭。
func NewRealtimeHandler(root context.Context, identities service.IdentityService, broker realtime.Broker) *RealtimeHandler {
	return &RealtimeHandler{root: root, identities: identities, broker: broker}
}

// Handle 处理 GET /api/v1/realtime/:token。
// 订阅在连接存续期间有效，客户端断开或服务停机时释放。
func (h *RealtimeHandler) Handle(c *gin.Context) {
	identity, err := h.identities.Authenticate(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, "realtime", err)
		return
	}

	ctx, cancel := context.WithCancel(h.root)
	defer cancel()

	sub, err := h.broker.Subscribe(ctx, identity.Subject)
	if err != nil {
		log.Errorf("[realtime] subscribe failed for user %s: %v", identity.Subject, err)
		fail(c, http.StatusInternalServerError, "无法建立订阅")
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立，用户: %s", identity.Subject)

	// 客户端帧除关闭外一律忽略；读失败说明连接已断开
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			log.Infof("WebSocket 连接已关闭，用户: %s", identity.Subject)
			return
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Warnf("写入 WebSocket 失败: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
