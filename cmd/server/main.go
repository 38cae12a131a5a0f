// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gemini-chat-go/internal/config"
	"gemini-chat-go/internal/handler"
	"gemini-chat-go/internal/realtime"
	"gemini-chat-go/internal/repository"
	"gemini-chat-go/internal/service"
	"gemini-chat-go/pkg/database"
	"gemini-chat-go/pkg/es"
	"gemini-chat-go/pkg/llm"
	"gemini-chat-go/pkg/log"
	"gemini-chat-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const backfillBatch = 500

func main() {
	// 0. .env 中的变量作为 CHAT_ 环境变量的补充，文件不存在时忽略
	_ = godotenv.Load()

	// 1. 初始化配置
	configPath := os.Getenv("CHAT_CONFIG_FILE")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	if cfg.Auth.JWTSecret == "" {
		log.Fatalf("auth.jwt_secret 未配置（可通过 CHAT_AUTH_JWT_SECRET 设置）")
	}

	root, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	healthChecks := map[string]handler.HealthCheck{}

	// 3. 初始化消息库
	var messageRepo repository.MessageRepository
	if cfg.Database.Driver == "memory" {
		log.Warnf("使用进程内消息库，重启后消息会丢失")
		messageRepo = repository.NewMemoryMessageRepository()
	} else {
		database.InitDB(cfg.Database.Driver, cfg.Database.DSN)
		defer database.CloseDB()
		messageRepo = repository.NewMessageRepository(database.DB)
		healthChecks["database"] = func(ctx context.Context) error {
			sqlDB, err := database.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}

	// 4. 初始化 Redis（令牌黑名单、实时推送）
	var tokenRepo repository.TokenRepository
	if cfg.Database.Redis.Addr != "" {
		database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		defer database.CloseRedis()
		tokenRepo = repository.NewTokenRepository(database.RDB)
		healthChecks["redis"] = func(ctx context.Context) error {
			return database.RDB.Ping(ctx).Err()
		}
	} else {
		tokenRepo = repository.NewMemoryTokenRepository()
	}

	// 5. 实时推送
	broker, err := newBroker(cfg)
	if err != nil {
		log.Fatal("实时推送初始化失败", err)
	}
	sinks := []service.MessageSink{service.MessageSinkFunc(broker.Publish)}

	// 6. 检索后端
	var searcher service.MessageSearcher
	if cfg.Search.Driver == "elasticsearch" {
		index, err := es.NewMessageIndex(cfg.Search.Elasticsearch)
		if err != nil {
			log.Fatal("es 初始化失败", err)
		}
		searcher = index
		sinks = append(sinks, index)
		healthChecks["elasticsearch"] = index.Ping
		// 实时索引是尽力而为的，启动时从消息库补齐
		if src, ok := messageRepo.(es.MessageSource); ok {
			go func() {
				n, err := index.Backfill(root, src, backfillBatch)
				if err != nil {
					log.Errorw("es 索引补建失败", "indexed", n, "error", err)
					return
				}
				log.Infof("es 索引补建完成，共 %d 条消息", n)
			}()
		}
	}

	// 7. 推理网关
	gateway, err := llm.NewGateway(context.Background(), cfg.LLM)
	if err != nil {
		log.Fatal("推理网关初始化失败", err)
	}

	// 8. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTLHours)
	messageService := service.NewMessageService(messageRepo, searcher, sinks...)
	chatService := service.NewChatService(messageService, gateway)
	identityService := service.NewIdentityService(jwtManager, tokenRepo, service.IdentityLinks{
		LoginURL:  cfg.Auth.LoginURL,
		LogoutURL: cfg.Auth.LogoutURL,
	})

	// 9. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.Dependencies{
		Root:         root,
		Messages:     messageService,
		Chat:         chatService,
		Identities:   identityService,
		Broker:       broker,
		HealthChecks: healthChecks,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// WebSocket 连接已被劫持，Shutdown 不会等待它们，先取消根 context 让其退出
	cancelRoot()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	if err := broker.Close(); err != nil {
		log.Errorf("实时推送关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

func newBroker(cfg config.Config) (realtime.Broker, error) {
	switch cfg.Realtime.Driver {
	case "", "memory":
		return realtime.NewHub(cfg.Realtime.SubscriberBuffer), nil
	case "redis":
		if database.RDB == nil {
			return nil, errors.New("realtime.driver=redis requires database.redis.addr")
		}
		return realtime.NewRedisBroker(database.RDB, cfg.Realtime.SubscriberBuffer), nil
	case "kafka":
		if cfg.Kafka.Brokers == "" {
			return nil, errors.New("realtime.driver=kafka requires kafka.brokers")
		}
		return realtime.NewKafkaBroker(cfg.Kafka, cfg.Realtime.SubscriberBuffer), nil
	default:
		return nil, fmt.Errorf("unsupported realtime driver %q", cfg.Realtime.Driver)
	}
}
