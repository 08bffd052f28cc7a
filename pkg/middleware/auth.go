package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"meeting-todos-backend/pkg/identity"
	"meeting-todos-backend/pkg/session"
	"meeting-todos-backend/pkg/store"
	"meeting-todos-backend/pkg/utils"
)

// ContextKey 用于在context中存储会话的键
type ContextKey string

const (
	ManagerContextKey ContextKey = "session"
)

// BearerToken 从 Authorization 头取出 Bearer 令牌
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("Missing authorization header")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader || strings.TrimSpace(token) == "" {
		return "", errors.New("Invalid authorization header format")
	}
	return strings.TrimSpace(token), nil
}

// Authenticate 校验令牌并解析用户资料，会话管理器放入 context
func Authenticate(provider identity.Provider, resolver session.ProfileResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				utils.WriteUnauthorizedResponse(w, err.Error())
				return
			}

			id, err := provider.Verify(r.Context(), token)
			if err != nil {
				WriteAuthError(w, err)
				return
			}

			manager := session.NewManager(provider, resolver, logger)
			s, err := manager.IdentityChanged(r.Context(), id)
			if err != nil {
				utils.WriteInternalServerErrorResponse(w, session.MessageLoadFailed)
				return
			}
			setLoggedUser(r.Context(), s.UserID())

			ctx := context.WithValue(r.Context(), ManagerContextKey, manager)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteAuthError 身份错误统一返回 401
func WriteAuthError(w http.ResponseWriter, err error) {
	if authErr, ok := identity.AsAuthError(err); ok {
		utils.WriteErrorResponseWithCode(w, http.StatusUnauthorized, "UNAUTHORIZED", authErr.Message, authErr.Code)
		return
	}
	utils.WriteUnauthorizedResponse(w, "Authentication failed")
}

// GetManagerFromContext 取出当前请求的会话管理器
func GetManagerFromContext(ctx context.Context) (*session.Manager, bool) {
	manager, ok := ctx.Value(ManagerContextKey).(*session.Manager)
	return manager, ok && manager != nil
}

// GetSessionFromContext 取出当前会话
func GetSessionFromContext(ctx context.Context) (session.Session, bool) {
	manager, ok := GetManagerFromContext(ctx)
	if !ok {
		return session.Session{State: session.Unauthenticated}, false
	}
	return manager.Current(), true
}

// RequireSession 要求已认证的会话
func RequireSession(ctx context.Context) (session.Session, error) {
	s, ok := GetSessionFromContext(ctx)
	if !ok || s.UserID() == "" {
		return s, store.ErrNoSession
	}
	return s, nil
}
