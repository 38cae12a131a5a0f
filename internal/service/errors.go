// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden 表示请求中的 user_id 与令牌身份不一致。
	ErrForbidden = errors.New("user id does not match the authenticated identity")
	// ErrUnauthenticated 表示缺少或无效的身份令牌。
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ValidationError 表示输入不合法，在任何副作用发生之前返回。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

// StoreError 表示消息库读写失败。
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// GatewayError 表示推理网关调用失败；它只在 chatWithGemini 内部出现并被吸收。
type GatewayError struct {
	Model string
	Err   error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Model, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
