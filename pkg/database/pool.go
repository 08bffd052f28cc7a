package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// 空闲超过该时间后，复用前先做健康检查
	healthCheckAfter = time.Minute
	// 空闲超过该时间的连接会被清理
	idleExpiry = 30 * time.Minute
)

type pooledConnection struct {
	db       DatabaseInterface
	driver   string
	created  time.Time
	lastUsed time.Time
}

// Pool 按配置复用数据库连接（无服务器环境下跨热启动复用）
type Pool struct {
	mu          sync.Mutex
	connections map[string]*pooledConnection
	logger      *zap.Logger
	open        func(ctx context.Context, cfg DatabaseConfig, logger *zap.Logger) (DatabaseInterface, error)
	now         func() time.Time
}

// NewPool 创建连接池
func NewPool(logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		connections: make(map[string]*pooledConnection),
		logger:      logger,
		open:        NewDatabase,
		now:         time.Now,
	}
}

var (
	globalPool *Pool
	poolOnce   sync.Once
)

// GetDatabase 获取数据库连接（进程级单例连接池）
func GetDatabase(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (DatabaseInterface, error) {
	poolOnce.Do(func() {
		globalPool = NewPool(logger)
	})
	return globalPool.Get(ctx, config)
}

// configKey 配置的唯一键（哈希，避免在日志中暴露凭据）
func configKey(c DatabaseConfig) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s",
		c.ResolveDriver(), c.LocalDataDir, c.PostgresDSN, c.MySQLDSN, c.SupabaseURL, c.SupabaseKey,
		c.ArangoURL, c.ArangoUser, c.ArangoPass, c.ArangoDatabase, c.FirestoreProjectID, c.FirestoreCredentialsFile)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Get 返回可用连接：复用健康的已有连接，否则新建
func (p *Pool) Get(ctx context.Context, config DatabaseConfig) (DatabaseInterface, error) {
	key := configKey(config)

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if conn, ok := p.connections[key]; ok {
		if now.Sub(conn.lastUsed) < healthCheckAfter {
			conn.lastUsed = now
			return conn.db, nil
		}
		if err := conn.db.HealthCheck(ctx); err == nil {
			conn.lastUsed = now
			p.logger.Debug("reusing database connection", zap.String("key", key[:8]))
			return conn.db, nil
		} else {
			p.logger.Warn("database health check failed, recreating", zap.String("key", key[:8]), zap.Error(err))
			conn.db.Close()
			delete(p.connections, key)
		}
	}

	p.logger.Info("creating database connection", zap.String("key", key[:8]))
	db, err := p.open(ctx, config, p.logger)
	if err != nil {
		return nil, err
	}
	p.connections[key] = &pooledConnection{
		db:       db,
		driver:   config.ResolveDriver(),
		created:  now,
		lastUsed: now,
	}
	return db, nil
}

// CleanupIdleConnections 关闭长时间未使用的连接
func (p *Pool) CleanupIdleConnections() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	closed := 0
	for key, conn := range p.connections {
		if now.Sub(conn.lastUsed) > idleExpiry {
			p.logger.Info("closing idle database connection", zap.String("key", key[:8]))
			conn.db.Close()
			delete(p.connections, key)
			closed++
		}
	}
	return closed
}

// Stats 连接池统计信息
func (p *Pool) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	conns := make([]map[string]interface{}, 0, len(p.connections))
	for key, conn := range p.connections {
		conns = append(conns, map[string]interface{}{
			"key":       key[:8],
			"driver":    conn.driver,
			"age":       now.Sub(conn.created).String(),
			"idle":      now.Sub(conn.lastUsed).String(),
			"last_used": conn.lastUsed.Format(time.RFC3339),
		})
	}
	return map[string]interface{}{
		"total_connections": len(p.connections),
		"connections":       conns,
	}
}

// GetConnectionStats 全局连接池统计
func GetConnectionStats() map[string]interface{} {
	if globalPool == nil {
		return map[string]interface{}{"total_connections": 0}
	}
	return globalPool.Stats()
}

// CloseAll 关闭所有连接（进程退出时调用）
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, conn := range p.connections {
		conn.db.Close()
		delete(p.connections, key)
	}
}

// CloseAll 关闭全局连接池中的所有连接
func CloseAll() {
	if globalPool != nil {
		globalPool.CloseAll()
	}
}
