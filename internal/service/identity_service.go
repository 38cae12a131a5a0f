package service

import (
	"context"
	"errors"
	"fmt"

	"gemini-chat-go/internal/model"
	"gemini-chat-go/internal/repository"
	"gemini-chat-go/pkg/token"
)

// IdentityLinks 是身份提供方的登录/登出跳转地址。
type IdentityLinks struct {
	LoginURL  string `json:"loginUrl"`
	LogoutURL string `json:"logoutUrl"`
}

// IdentityService 解析当前用户身份并处理登出。
type IdentityService interface {
	Authenticate(ctx context.Context, tokenString string) (*model.Identity, error)
	Logout(ctx context.Context, tokenString string) error
	Links() IdentityLinks
}

type identityService struct {
	jwtManager *token.JWTManager
	tokens     repository.TokenRepository
	links      IdentityLinks
}

// NewIdentityService 创建 IdentityService。
func NewIdentityService(jwtManager *token.JWTManager, tokens repository.TokenRepository, links IdentityLinks) IdentityService {
	return &identityService{jwtManager: jwtManager, tokens: tokens, links: links}
}

func (s *identityService) verify(ctx context.Context, tokenString string) (*token.IdentityClaims, error) {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return nil, errors.Join(ErrUnauthenticated, err)
	}
	revoked, err := s.tokens.IsRevoked(ctx, tokenString)
	if err != nil {
		return nil, fmt.Errorf("failed to check token: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: token has been revoked", ErrUnauthenticated)
	}
	return claims, nil
}

// Authenticate 验证令牌并返回身份。
func (s *identityService) Authenticate(ctx context.Context, tokenString string) (*model.Identity, error) {
	claims, err := s.verify(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	id := claims.Identity()
	return &id, nil
}

// Logout 把令牌加入黑名单直到其过期。
func (s *identityService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.verify(ctx, tokenString)
	if err != nil {
		return err
	}
	return s.tokens.Revoke(ctx, tokenString, claims.Remaining())
}

func (s *identityService) Links() IdentityLinks {
	return s.links
}
