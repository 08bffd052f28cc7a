package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"meeting-todos-backend/pkg/models"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleConfig Google OAuth 客户端配置
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// googleUser Google用户信息结构
type googleUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleProvider 授权码登录，会话令牌由本服务签发
type GoogleProvider struct {
	oauth       *oauth2.Config
	tokens      *TokenService
	userInfoURL string
	logger      *zap.Logger
}

// NewGoogleProvider 创建 Google 身份提供方
func NewGoogleProvider(cfg GoogleConfig, tokens *TokenService, logger *zap.Logger) *GoogleProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		tokens:      tokens,
		userInfoURL: googleUserInfoURL,
		logger:      logger,
	}
}

// Name implements Provider
func (p *GoogleProvider) Name() string { return "google" }

// AuthCodeURL 生成 Google 授权页地址
func (p *GoogleProvider) AuthCodeURL(state string) (string, error) {
	if err := p.checkConfig(); err != nil {
		return "", err
	}
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

func (p *GoogleProvider) checkConfig() error {
	if p.oauth.ClientID == "" || p.oauth.ClientSecret == "" {
		p.logger.Error("Google OAuth is not configured",
			zap.String("hint", "set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET"))
		return authError(CodeConfigurationNotFound, "Google sign-in is not configured", nil)
	}
	return nil
}

// SignIn 使用授权码换取访问令牌并获取用户信息
func (p *GoogleProvider) SignIn(ctx context.Context, code string) (*Identity, error) {
	if err := p.checkConfig(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, authError(CodeInvalidCredential, "authorization code is required", nil)
	}

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, p.exchangeError(err)
	}

	user, err := p.userInfo(ctx, token)
	if err != nil {
		return nil, authError(CodeInvalidCredential, "failed to get user info", err)
	}
	if user.ID == "" {
		return nil, authError(CodeInvalidCredential, "Google returned no user id", nil)
	}

	p.logger.Info("Google sign-in", zap.String("subject", user.ID))
	return &Identity{
		Subject:     user.ID,
		Email:       user.Email,
		DisplayName: user.Name,
		IssuedAt:    p.tokens.now(),
	}, nil
}

// exchangeError 按 Google 返回的错误码给出排查提示
func (p *GoogleProvider) exchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return authError(CodeInvalidCredential, "failed to exchange code", err)
	}

	switch retrieveErr.ErrorCode {
	case "redirect_uri_mismatch":
		p.logger.Error("Google token exchange failed",
			zap.String("hint", "check OAUTH_REDIRECT_URI and the authorized redirect URIs in Google Console"),
			zap.Error(err))
		return authError(CodeConfigurationNotFound, "redirect URI mismatch", err)
	case "invalid_client", "unauthorized_client":
		p.logger.Error("Google token exchange failed",
			zap.String("hint", "check GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET"),
			zap.Error(err))
		return authError(CodeConfigurationNotFound, "invalid OAuth client", err)
	case "invalid_grant":
		p.logger.Warn("Google token exchange failed",
			zap.String("hint", "code reused or expired; re-initiate OAuth"),
			zap.Error(err))
		return authError(CodeExpiredCredential, "authorization code expired or already used", err)
	}
	return authError(CodeInvalidCredential, "failed to exchange code", err)
}

// userInfo 使用访问令牌获取用户信息
func (p *GoogleProvider) userInfo(ctx context.Context, token *oauth2.Token) (*googleUser, error) {
	client := p.oauth.Client(ctx, token)
	client.Timeout = 10 * time.Second

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("Google user info request failed: %s", string(body))
	}

	var user googleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	return &user, nil
}

// Verify 校验本服务签发的访问令牌
func (p *GoogleProvider) Verify(ctx context.Context, bearer string) (*Identity, error) {
	return p.tokens.Validate(ctx, bearer, models.TokenTypeAccess)
}

// SignOut 使此前签发的令牌失效
func (p *GoogleProvider) SignOut(ctx context.Context, id *Identity) error {
	if id == nil || id.Subject == "" {
		return authError(CodeSignOutFailed, "no signed-in identity", nil)
	}
	if err := p.tokens.Revoke(ctx, id.Subject); err != nil {
		p.logger.Error("failed to revoke tokens", zap.String("subject", id.Subject), zap.Error(err))
		return authError(CodeSignOutFailed, "failed to sign out", err)
	}
	return nil
}

// Issue implements TokenIssuer
func (p *GoogleProvider) Issue(id *Identity) (*models.TokenPair, error) {
	return p.tokens.Issue(id)
}

// Refresh implements TokenIssuer
func (p *GoogleProvider) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, *Identity, error) {
	return p.tokens.Refresh(ctx, refreshToken)
}
