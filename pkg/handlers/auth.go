package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"meeting-todos-backend/pkg/config"
	"meeting-todos-backend/pkg/identity"
	"meeting-todos-backend/pkg/middleware"
	"meeting-todos-backend/pkg/models"
	"meeting-todos-backend/pkg/session"
	"meeting-todos-backend/pkg/utils"
)

// authCodeURLer 支持跳转授权页的提供方（Google）
type authCodeURLer interface {
	AuthCodeURL(state string) (string, error)
}

// AuthHandler 认证处理器
type AuthHandler struct {
	config   *config.Config
	provider identity.Provider
	resolver session.ProfileResolver
	logger   *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg *config.Config, provider identity.Provider, resolver session.ProfileResolver, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{config: cfg, provider: provider, resolver: resolver, logger: logger}
}

// GoogleURL GET /api/auth/google/url
func (h *AuthHandler) GoogleURL(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider.(authCodeURLer)
	if !ok {
		utils.WriteBadRequestResponse(w, "Provider "+h.provider.Name()+" has no consent page")
		return
	}

	state, err := utils.SignState(h.config.JWTSecret)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to generate state")
		return
	}
	authURL, err := p.AuthCodeURL(state)
	if err != nil {
		writeError(w, h.logger, err, "sign-in", "prepare")
		return
	}

	utils.WriteSuccessResponse(w, map[string]string{
		"url":   authURL,
		"state": state,
	})
}

// SignIn POST /api/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req models.SignInRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.State != "" && !utils.VerifyState(h.config.JWTSecret, req.State) {
		utils.WriteBadRequestResponse(w, "Invalid state parameter")
		return
	}

	manager := session.NewManager(h.provider, h.resolver, h.logger)
	s, err := manager.SignIn(r.Context(), req.Credential)
	if err != nil {
		h.writeSessionError(w, s, err)
		return
	}
	h.logger.Info("user signed in", zap.String("user", s.UserID()), zap.String("provider", h.provider.Name()))

	resp := models.SignInResponse{User: s.Profile}
	if issuer, ok := h.provider.(identity.TokenIssuer); ok {
		pair, err := issuer.Issue(s.Identity)
		if err != nil {
			h.logger.Error("failed to issue session tokens", zap.String("user", s.UserID()), zap.Error(err))
			utils.WriteInternalServerErrorResponse(w, "Failed to generate tokens")
			return
		}
		resp.AccessToken, resp.RefreshToken, resp.ExpiresIn = pair.AccessToken, pair.RefreshToken, pair.ExpiresIn
	}
	utils.WriteSuccessResponse(w, resp)
}

// Refresh POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	issuer, ok := h.provider.(identity.TokenIssuer)
	if !ok {
		utils.WriteBadRequestResponse(w, "Token refresh is handled by the identity provider")
		return
	}

	var req models.RefreshTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pair, id, err := issuer.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		middleware.WriteAuthError(w, err)
		return
	}

	// 令牌刷新也是一次身份变化，重新解析资料
	manager := session.NewManager(h.provider, h.resolver, h.logger)
	s, err := manager.IdentityChanged(r.Context(), id)
	if err != nil {
		h.writeSessionError(w, s, err)
		return
	}

	utils.WriteSuccessResponse(w, models.SignInResponse{
		User:         s.Profile,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// Logout POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	manager, ok := middleware.GetManagerFromContext(r.Context())
	if !ok {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	s, err := manager.SignOut(r.Context())
	if err != nil {
		code := identity.CodeSignOutFailed
		if authErr, ok := identity.AsAuthError(err); ok {
			code = authErr.Code
		}
		utils.WriteErrorResponseWithCode(w, http.StatusInternalServerError, "SIGN_OUT_FAILED", s.Error, code)
		return
	}
	utils.WriteSuccessResponse(w, s)
}

// writeSessionError 登录或资料解析失败
func (h *AuthHandler) writeSessionError(w http.ResponseWriter, s session.Session, err error) {
	if authErr, ok := identity.AsAuthError(err); ok {
		utils.WriteErrorResponseWithCode(w, http.StatusUnauthorized, "UNAUTHORIZED", authErr.Message, authErr.Code)
		return
	}
	if s.State == session.Error {
		utils.WriteInternalServerErrorResponse(w, session.MessageLoadFailed)
		return
	}
	message := s.Error
	if message == "" {
		message = session.MessageSignInFailed
	}
	utils.WriteUnauthorizedResponse(w, message)
}
