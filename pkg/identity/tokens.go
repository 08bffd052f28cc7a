package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"meeting-todos-backend/pkg/models"
)

const tokenIssuer = "meeting-todos-backend"

// RevocationStore 记录每个用户的登出时间，不早于该时间签发的令牌全部失效。
// 多个实例必须共享同一个存储，否则登出只对处理请求的实例生效
type RevocationStore interface {
	TokensRevokedAt(ctx context.Context, subject string) (time.Time, error)
	RevokeTokens(ctx context.Context, subject string, at time.Time) error
}

// memoryRevocations 单进程内的登出记录
type memoryRevocations struct {
	mu        sync.RWMutex
	revokedAt map[string]time.Time
}

func newMemoryRevocations() *memoryRevocations {
	return &memoryRevocations{revokedAt: make(map[string]time.Time)}
}

func (m *memoryRevocations) TokensRevokedAt(ctx context.Context, subject string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.revokedAt[subject], nil
}

func (m *memoryRevocations) RevokeTokens(ctx context.Context, subject string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokedAt[subject] = at
	return nil
}

// TokenService JWT服务
type TokenService struct {
	secretKey   []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration
	now         func() time.Time
	revocations RevocationStore
}

// NewTokenService 创建JWT服务；revocations 为 nil 时只在本进程内记录登出
func NewTokenService(secretKey string, accessTTL, refreshTTL time.Duration, revocations RevocationStore) *TokenService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	if revocations == nil {
		revocations = newMemoryRevocations()
	}
	return &TokenService{
		secretKey:   []byte(secretKey),
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		now:         time.Now,
		revocations: revocations,
	}
}

func (s *TokenService) sign(id *Identity, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	claims := &models.TokenClaims{
		Email:      id.Email,
		Name:       id.DisplayName,
		Type:       tokenType,
		IssuedAtMs: now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
}

// Issue 生成访问令牌和刷新令牌对
func (s *TokenService) Issue(id *Identity) (*models.TokenPair, error) {
	if id == nil || id.Subject == "" {
		return nil, authError(CodeInvalidCredential, "missing subject", nil)
	}
	now := s.now()

	accessToken, err := s.sign(id, models.TokenTypeAccess, now, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.sign(id, models.TokenTypeRefresh, now, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

// Validate 验证令牌签名、有效期、类型以及是否已登出
func (s *TokenService) Validate(ctx context.Context, tokenString, tokenType string) (*Identity, error) {
	claims := &models.TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, authError(CodeExpiredCredential, "token expired", err)
	}
	if err != nil {
		return nil, authError(CodeInvalidCredential, "invalid token", err)
	}

	if claims.Type != tokenType {
		return nil, authError(CodeInvalidCredential,
			fmt.Sprintf("invalid token type: expected %s, got %s", tokenType, claims.Type), nil)
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, authError(CodeInvalidCredential, "invalid token claims", nil)
	}

	issuedAt := claims.IssuedAt.Time
	if claims.IssuedAtMs > 0 {
		issuedAt = time.UnixMilli(claims.IssuedAtMs).UTC()
	}
	revokedAt, err := s.revocations.TokensRevokedAt(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if !revokedAt.IsZero() && !issuedAt.After(revokedAt) {
		return nil, authError(CodeInvalidCredential, "token revoked", nil)
	}

	return &Identity{
		Subject:     claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		IssuedAt:    issuedAt,
	}, nil
}

// Refresh 使用刷新令牌换取新的令牌对
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, *Identity, error) {
	id, err := s.Validate(ctx, refreshToken, models.TokenTypeRefresh)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.Issue(id)
	if err != nil {
		return nil, nil, err
	}
	return pair, id, nil
}

// Revoke 使 subject 在当前时刻（毫秒精度）及之前签发的令牌失效
func (s *TokenService) Revoke(ctx context.Context, subject string) error {
	if err := s.revocations.RevokeTokens(ctx, subject, s.now().Truncate(time.Millisecond).UTC()); err != nil {
		return fmt.Errorf("failed to record sign-out: %w", err)
	}
	return nil
}
