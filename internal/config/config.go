// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Conf 是全局配置，由 Init 填充。
var Conf Config

// Config 与 configs/config.yaml 的结构一一对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Search   SearchConfig   `mapstructure:"search"`
	LLM      LLMConfig      `mapstructure:"llm"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储消息库与 Redis 的连接配置。
type DatabaseConfig struct {
	// Driver 取值 mysql | postgres | memory
	Driver string      `mapstructure:"driver"`
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时不连接 Redis。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig describes the external identity provider.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	LoginURL  string `mapstructure:"login_url"`
	LogoutURL string `mapstructure:"logout_url"`
	// TokenTTLHours only applies to tokens minted by cmd/issue-token.
	TokenTTLHours int `mapstructure:"token_ttl_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// RealtimeConfig selects how insert events reach websocket subscribers.
type RealtimeConfig struct {
	// Driver 取值 memory | redis | kafka
	Driver           string `mapstructure:"driver"`
	SubscriberBuffer int    `mapstructure:"subscriber_buffer"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupPrefix string `mapstructure:"group_prefix"`
}

// SearchConfig selects the searchMessages backend.
type SearchConfig struct {
	// Driver 取值 store | elasticsearch
	Driver        string              `mapstructure:"driver"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// LLMConfig 存储推理网关相关的配置。
type LLMConfig struct {
	// Provider 取值 openai（OpenAI 兼容接口，默认指向 Gemini）| ark
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Region      string        `mapstructure:"region"`
	TextModel   string        `mapstructure:"text_model"`
	VisionModel string        `mapstructure:"vision_model"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("auth.token_ttl_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("realtime.driver", "memory")
	v.SetDefault("realtime.subscriber_buffer", 64)
	v.SetDefault("kafka.topic", "messages.inserted")
	v.SetDefault("kafka.group_prefix", "gemini-chat")
	v.SetDefault("search.driver", "store")
	v.SetDefault("search.elasticsearch.index_name", "chat_messages")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com/v1beta/openai")
	v.SetDefault("llm.text_model", "gemini-pro")
	v.SetDefault("llm.vision_model", "gemini-pro-vision")
	v.SetDefault("llm.timeout", 60*time.Second)

	// 无默认值的键也需登记，AutomaticEnv 才会在 Unmarshal 时读取对应环境变量。
	for _, key := range []string{
		"database.dsn", "database.redis.addr", "database.redis.password",
		"auth.jwt_secret", "auth.issuer", "auth.login_url", "auth.logout_url",
		"log.output_path", "kafka.brokers",
		"search.elasticsearch.addresses", "search.elasticsearch.username", "search.elasticsearch.password",
		"llm.api_key", "llm.region",
	} {
		v.SetDefault(key, "")
	}
}

// Load 读取配置文件（可为空路径）并叠加 CHAT_ 前缀的环境变量，例如 CHAT_LLM_API_KEY。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 加载配置到全局 Conf，失败时 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
