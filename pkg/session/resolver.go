package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"meeting-todos-backend/pkg/identity"
	"meeting-todos-backend/pkg/models"
	"meeting-todos-backend/pkg/store"
)

// Resolver 读取（必要时创建）用户资料，并逐次读取其组织信息
type Resolver struct {
	users         *store.Users
	organisations *store.Organisations
	bootstrapOrg  bool
	logger        *zap.Logger
}

// NewResolver 创建资料解析器；bootstrapOrg 为 true 时为没有组织的用户创建默认组织
func NewResolver(s *store.Store, bootstrapOrg bool, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		users:         s.Users,
		organisations: s.Organisations,
		bootstrapOrg:  bootstrapOrg,
		logger:        logger,
	}
}

// Resolve implements ProfileResolver
func (r *Resolver) Resolve(ctx context.Context, id *identity.Identity) (*models.UserData, error) {
	if id == nil || id.Subject == "" {
		return nil, store.ErrNoSession
	}

	profile, err := r.users.Get(ctx, id.Subject)
	if err != nil {
		return nil, err
	}
	// 首次登录创建资料；身份签发时间晚于上次登录时刷新 lastLoginAt
	if profile == nil || id.IssuedAt.After(profile.LastLoginAt) {
		if profile, err = r.users.Bootstrap(ctx, id.Subject, id.Email, id.DisplayName); err != nil {
			return nil, err
		}
	}

	if r.bootstrapOrg && len(profile.Organisations) == 0 {
		orgID, err := r.ensureDefaultOrganisation(ctx, profile)
		if err != nil {
			r.logger.Warn("failed to create default organisation", zap.String("user", profile.ID), zap.Error(err))
		} else {
			profile.Organisations = append(profile.Organisations, orgID)
		}
	}

	profile.OrganisationsData = r.JoinOrganisations(ctx, profile.Organisations)
	return profile, nil
}

// ensureDefaultOrganisation 创建 "<name>'s Organisation" 并加入
func (r *Resolver) ensureDefaultOrganisation(ctx context.Context, profile *models.UserData) (string, error) {
	orgID, err := r.organisations.Create(ctx, DefaultOrganisationName(profile))
	if err != nil {
		return "", err
	}
	if err := r.users.AddOrganisation(ctx, profile.ID, orgID); err != nil {
		return "", fmt.Errorf("failed to join default organisation: %w", err)
	}
	r.logger.Info("created default organisation", zap.String("user", profile.ID), zap.String("organisation", orgID))
	return orgID, nil
}

// DefaultOrganisationName 默认组织名称
func DefaultOrganisationName(profile *models.UserData) string {
	name := strings.TrimSpace(profile.DisplayName)
	if name == "" {
		name = strings.Split(profile.Email, "@")[0]
	}
	if name == "" {
		return "My Organisation"
	}
	return name + "'s Organisation"
}

// JoinOrganisations 并发读取组织；不存在或读取失败的组织直接省略。
// 每次都重新读取，不做缓存（每个用户的组织数量很少）。
func (r *Resolver) JoinOrganisations(ctx context.Context, ids []string) []models.Organisation {
	results := make([]*models.Organisation, len(ids))

	var wg sync.WaitGroup
	for i, orgID := range ids {
		wg.Add(1)
		go func(i int, orgID string) {
			defer wg.Done()
			org, err := r.organisations.Get(ctx, orgID)
			if err != nil {
				r.logger.Warn("dropping unreadable organisation", zap.String("organisation", orgID), zap.Error(err))
				return
			}
			if org == nil {
				r.logger.Debug("dropping missing organisation", zap.String("organisation", orgID))
				return
			}
			results[i] = org
		}(i, orgID)
	}
	wg.Wait()

	orgs := make([]models.Organisation, 0, len(ids))
	for _, org := range results {
		if org != nil {
			orgs = append(orgs, *org)
		}
	}
	return orgs
}
