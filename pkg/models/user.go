package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserData represents the application profile stored at users/{id}.
// OrganisationsData is joined at read time and never persisted.
type UserData struct {
	ID                string         `json:"id"`
	Email             string         `json:"email,omitempty"`
	DisplayName       string         `json:"displayName,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	LastLoginAt       time.Time      `json:"lastLoginAt"`
	Organisations     []string       `json:"organisations"`
	OrganisationsData []Organisation `json:"organisationsData,omitempty"`
}

// HasOrganisation 用户是否属于该组织
func (u *UserData) HasOrganisation(orgID string) bool {
	for _, id := range u.Organisations {
		if id == orgID {
			return true
		}
	}
	return false
}

// DefaultOrganisation 第一个组织 ID，没有时返回空串
func (u *UserData) DefaultOrganisation() string {
	if len(u.Organisations) == 0 {
		return ""
	}
	return u.Organisations[0]
}

// Organisation represents organisations/{id}
type Organisation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateOrganisationRequest 创建组织请求
type CreateOrganisationRequest struct {
	Name string `json:"name"`
}

// SignInRequest 登录请求：Google 授权码或 Firebase ID token
type SignInRequest struct {
	Credential string `json:"credential"`
	State      string `json:"state,omitempty"`
}

// SignInResponse 登录响应
type SignInResponse struct {
	User         *UserData `json:"user"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int64     `json:"expires_in,omitempty"`
}

// RefreshTokenRequest represents the request payload for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenPair 访问令牌与刷新令牌
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Token types
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims represents the JWT session claims; Subject is the identity id.
type TokenClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type"`
	// 毫秒精度的签发时间，iat 只有秒
	IssuedAtMs int64 `json:"iat_ms,omitempty"`
	jwt.RegisteredClaims
}
