package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"meeting-todos-backend/pkg/identity"
	"meeting-todos-backend/pkg/models"
)

// State 会话状态
type State string

const (
	Unauthenticated State = "unauthenticated"
	Resolving       State = "resolving"
	Authenticated   State = "authenticated"
	Error           State = "error"
)

// User-visible messages
const (
	MessageLoadFailed    = "Failed to load user data"
	MessageSignInFailed  = "Failed to sign in"
	MessageSignOutFailed = "Failed to sign out"
)

// Session 显式传给数据访问层的会话对象
type Session struct {
	State    State              `json:"state"`
	Identity *identity.Identity `json:"identity,omitempty"`
	Profile  *models.UserData   `json:"profile,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// UserID 已认证用户的 ID；未认证时为空
func (s Session) UserID() string {
	if s.State != Authenticated || s.Profile == nil {
		return ""
	}
	return s.Profile.ID
}

// ProfileResolver 把身份解析为用户资料
type ProfileResolver interface {
	Resolve(ctx context.Context, id *identity.Identity) (*models.UserData, error)
}

// Manager 会话状态机：Unauthenticated → Resolving → Authenticated | Error
type Manager struct {
	provider identity.Provider
	resolver ProfileResolver
	logger   *zap.Logger

	mu          sync.Mutex
	current     Session
	generation  uint64
	subscribers map[int]func(Session)
	nextSubID   int
}

// NewManager 创建会话管理器，初始状态为 Unauthenticated
func NewManager(provider identity.Provider, resolver ProfileResolver, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		provider:    provider,
		resolver:    resolver,
		logger:      logger,
		current:     Session{State: Unauthenticated},
		subscribers: make(map[int]func(Session)),
	}
}

// Current 当前会话
func (m *Manager) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe 订阅状态变化，返回取消订阅函数
func (m *Manager) Subscribe(fn func(Session)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// transition 切换状态并通知订阅者；generation 不匹配说明已有更新的状态变化
func (m *Manager) transition(gen uint64, s Session) bool {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return false
	}
	m.current = s
	subs := make([]func(Session), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
	return true
}

func (m *Manager) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	return m.generation
}

// IdentityChanged 登录、令牌刷新或首次加载时调用；nil 表示已登出
func (m *Manager) IdentityChanged(ctx context.Context, id *identity.Identity) (Session, error) {
	gen := m.begin()
	if id == nil {
		s := Session{State: Unauthenticated}
		m.transition(gen, s)
		return s, nil
	}

	m.transition(gen, Session{State: Resolving, Identity: id})

	profile, err := m.resolver.Resolve(ctx, id)
	if err != nil {
		m.logger.Error("failed to resolve user profile", zap.String("subject", id.Subject), zap.Error(err))
		s := Session{State: Error, Identity: id, Error: MessageLoadFailed}
		m.transition(gen, s)
		return s, err
	}

	s := Session{State: Authenticated, Identity: id, Profile: profile}
	m.transition(gen, s)
	return s, nil
}

// SignIn 通过身份提供方登录并解析用户资料
func (m *Manager) SignIn(ctx context.Context, credential string) (Session, error) {
	id, err := m.provider.SignIn(ctx, credential)
	if err != nil {
		m.logger.Warn("sign-in failed", zap.String("provider", m.provider.Name()), zap.Error(err))
		gen := m.begin()
		s := Session{State: Unauthenticated, Error: MessageSignInFailed}
		m.transition(gen, s)
		return s, err
	}
	return m.IdentityChanged(ctx, id)
}

// SignOut 登出；失败时保留资料并给出错误信息
func (m *Manager) SignOut(ctx context.Context) (Session, error) {
	cur := m.Current()
	if cur.Identity == nil {
		gen := m.begin()
		s := Session{State: Unauthenticated}
		m.transition(gen, s)
		return s, nil
	}

	if err := m.provider.SignOut(ctx, cur.Identity); err != nil {
		m.logger.Error("sign-out failed", zap.String("subject", cur.Identity.Subject), zap.Error(err))
		gen := m.begin()
		cur.Error = MessageSignOutFailed
		m.transition(gen, cur)
		return cur, err
	}

	gen := m.begin()
	s := Session{State: Unauthenticated}
	m.transition(gen, s)
	return s, nil
}
