package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meeting-todos-backend/pkg/models"
)

// Identity 身份提供方认证后的用户
type Identity struct {
	Subject     string    `json:"sub"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"name,omitempty"`
	IssuedAt    time.Time `json:"iat"`
}

// Provider 外部身份提供方
type Provider interface {
	// Name 提供方名称（google、firebase）
	Name() string
	// SignIn 用交互式登录得到的凭据（授权码或 ID token）换取身份
	SignIn(ctx context.Context, credential string) (*Identity, error)
	// Verify 校验请求携带的 Bearer 令牌
	Verify(ctx context.Context, bearer string) (*Identity, error)
	// SignOut 使该身份此前签发的令牌失效
	SignOut(ctx context.Context, id *Identity) error
}

// TokenIssuer 自行签发会话令牌的提供方
type TokenIssuer interface {
	Issue(id *Identity) (*models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, *Identity, error)
}

// Auth error codes
const (
	CodeInvalidCredential     = "invalid-credential"
	CodeExpiredCredential     = "expired-credential"
	CodeConfigurationNotFound = "configuration-not-found"
	CodeSignOutFailed         = "sign-out-failed"
)

// AuthError 身份提供方错误
type AuthError struct {
	Code    string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth/%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("auth/%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

func authError(code, message string, err error) *AuthError {
	return &AuthError{Code: code, Message: message, Err: err}
}

// AsAuthError 取出错误链中的 AuthError
func AsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}
