// Command issue-token 用配置中的 auth.jwt_secret 签发身份令牌，用于本地开发与联调。
package main

import (
	"flag"
	"fmt"
	"os"

	"gemini-chat-go/internal/config"
	"gemini-chat-go/internal/model"
	"gemini-chat-go/pkg/token"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config.yaml (optional, CHAT_* env vars always apply)")
	sub := flag.String("sub", "", "subject (user id), required")
	name := flag.String("name", "", "display name")
	email := flag.String("email", "", "email")
	picture := flag.String("picture", "", "avatar url")
	ttl := flag.Int("ttl", 0, "lifetime in hours (default auth.token_ttl_hours)")
	flag.Parse()

	if *sub == "" {
		fmt.Fprintln(os.Stderr, "-sub is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "auth.jwt_secret is not set (CHAT_AUTH_JWT_SECRET)")
		os.Exit(1)
	}
	hours := cfg.Auth.TokenTTLHours
	if *ttl > 0 {
		hours = *ttl
	}

	tok, err := token.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, hours).GenerateToken(model.Identity{
		Subject: *sub,
		Name:    *name,
		Email:   *email,
		Picture: *picture,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
