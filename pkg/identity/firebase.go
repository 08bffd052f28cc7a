package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// firebaseAuth 用到的 *auth.Client 方法
type firebaseAuth interface {
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*auth.Token, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// FirebaseProvider 客户端通过 Firebase Authentication 登录，服务端只校验 ID token
type FirebaseProvider struct {
	client firebaseAuth
	logger *zap.Logger
}

// NewFirebaseProvider 创建 Firebase 身份提供方
func NewFirebaseProvider(ctx context.Context, projectID, credentialsFile string, logger *zap.Logger) (*FirebaseProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if projectID == "" {
		logger.Error("Firebase authentication is not configured", zap.String("hint", "set FIREBASE_PROJECT_ID"))
		return nil, authError(CodeConfigurationNotFound, "Firebase project is not configured", nil)
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth: %w", err)
	}
	return &FirebaseProvider{client: client, logger: logger}, nil
}

// Name implements Provider
func (p *FirebaseProvider) Name() string { return "firebase" }

// SignIn 客户端登录后提交的 ID token
func (p *FirebaseProvider) SignIn(ctx context.Context, idToken string) (*Identity, error) {
	return p.Verify(ctx, idToken)
}

// Verify 校验 ID token（包括是否已撤销）
func (p *FirebaseProvider) Verify(ctx context.Context, idToken string) (*Identity, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, authError(CodeInvalidCredential, "ID token is required", nil)
	}

	token, err := p.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	switch {
	case err == nil:
	case auth.IsIDTokenExpired(err):
		return nil, authError(CodeExpiredCredential, "ID token expired", err)
	case auth.IsConfigurationNotFound(err):
		p.logger.Error("Firebase authentication is misconfigured",
			zap.String("hint", "enable the sign-in provider in the Firebase console and check FIREBASE_PROJECT_ID"),
			zap.Error(err))
		return nil, authError(CodeConfigurationNotFound, "Firebase authentication is not configured", err)
	default:
		return nil, authError(CodeInvalidCredential, "invalid ID token", err)
	}

	id := &Identity{
		Subject:  token.UID,
		IssuedAt: time.Unix(token.IssuedAt, 0).UTC(),
	}
	if email, ok := token.Claims["email"].(string); ok {
		id.Email = email
	}
	if name, ok := token.Claims["name"].(string); ok {
		id.DisplayName = name
	}
	return id, nil
}

// SignOut 撤销该用户的刷新令牌
func (p *FirebaseProvider) SignOut(ctx context.Context, id *Identity) error {
	if id == nil || id.Subject == "" {
		return authError(CodeSignOutFailed, "no signed-in identity", nil)
	}
	if err := p.client.RevokeRefreshTokens(ctx, id.Subject); err != nil {
		p.logger.Warn("failed to revoke refresh tokens", zap.String("subject", id.Subject), zap.Error(err))
		return authError(CodeSignOutFailed, "failed to sign out", err)
	}
	return nil
}
