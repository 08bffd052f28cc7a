package store

import (
	"context"
	"errors"
	"time"

	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/models"
)

const tokensRevokedAtField = "tokensRevokedAt"

// Users users/{uid} 用户资料
type Users struct {
	base
}

// Get 读取用户资料；不存在时返回 (nil, nil)
func (r *Users) Get(ctx context.Context, uid string) (*models.UserData, error) {
	path := UserDoc(uid)
	snap, err := r.db.Get(ctx, path)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, r.fail("get user", path, err)
	}
	return userFromSnapshot(*snap), nil
}

// Bootstrap 首次登录时创建资料，之后只刷新 lastLoginAt 和身份字段；不会清空 organisations
func (r *Users) Bootstrap(ctx context.Context, uid, email, displayName string) (*models.UserData, error) {
	if uid == "" {
		return nil, ErrNoSession
	}
	existing, err := r.Get(ctx, uid)
	if err != nil {
		return nil, err
	}

	path := UserDoc(uid)
	now := r.timestamp()
	if existing == nil {
		fields := database.Document{
			"email":         email,
			"displayName":   displayName,
			"createdAt":     now,
			"lastLoginAt":   now,
			"organisations": []interface{}{},
		}
		if err := r.db.Set(ctx, path, fields, false); err != nil {
			return nil, r.fail("create user", path, err)
		}
		return &models.UserData{
			ID:            uid,
			Email:         email,
			DisplayName:   displayName,
			CreatedAt:     now,
			LastLoginAt:   now,
			Organisations: []string{},
		}, nil
	}

	fields := database.Document{"lastLoginAt": now}
	if email != "" {
		fields["email"] = email
		existing.Email = email
	}
	if displayName != "" {
		fields["displayName"] = displayName
		existing.DisplayName = displayName
	}
	if err := r.db.Update(ctx, path, fields); err != nil {
		return nil, r.fail("update user", path, err)
	}
	existing.LastLoginAt = now
	return existing, nil
}

// AddOrganisation 把组织加入用户的成员列表（已存在时不变）
func (r *Users) AddOrganisation(ctx context.Context, uid, orgID string) error {
	user, err := r.Get(ctx, uid)
	if err != nil {
		return err
	}
	path := UserDoc(uid)
	if user == nil {
		return r.fail("add organisation to", path, database.ErrNotFound)
	}
	if user.HasOrganisation(orgID) {
		return nil
	}

	orgs := make([]interface{}, 0, len(user.Organisations)+1)
	for _, id := range user.Organisations {
		orgs = append(orgs, id)
	}
	orgs = append(orgs, orgID)
	if err := r.db.Update(ctx, path, database.Document{"organisations": orgs}); err != nil {
		return r.fail("add organisation to", path, err)
	}
	return nil
}

// TokensRevokedAt 读取最近一次登出时间；从未登出时返回零值
func (r *Users) TokensRevokedAt(ctx context.Context, uid string) (time.Time, error) {
	path := UserDoc(uid)
	snap, err := r.db.Get(ctx, path)
	if errors.Is(err, database.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, r.fail("read sign-out time of", path, err)
	}
	return timeField(snap.Data[tokensRevokedAtField]), nil
}

// RevokeTokens 记录登出时间，所有实例据此拒绝更早签发的令牌
func (r *Users) RevokeTokens(ctx context.Context, uid string, at time.Time) error {
	if uid == "" {
		return ErrNoSession
	}
	path := UserDoc(uid)
	if err := r.db.Set(ctx, path, database.Document{tokensRevokedAtField: at.UTC()}, true); err != nil {
		return r.fail("record sign-out of", path, err)
	}
	return nil
}
