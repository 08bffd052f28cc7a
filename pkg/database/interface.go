package database

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DatabaseInterface 文档存储访问接口。
// 路径按 users/{uid}/todos/{id} 的层级组织，所有后端语义一致。
type DatabaseInterface interface {
	// 单文档读写
	Get(ctx context.Context, doc Path) (*Snapshot, error)
	Set(ctx context.Context, doc Path, fields Document, merge bool) error
	Add(ctx context.Context, collection Path, fields Document) (string, error)
	// AddSequenced 原子地计算 seq.Field 的下一个值并插入，返回 (id, 值)
	AddSequenced(ctx context.Context, collection Path, fields Document, seq Sequence) (string, int64, error)
	// Update 浅合并；文档不存在时返回 ErrNotFound
	Update(ctx context.Context, doc Path, fields Document) error
	// Delete 文档不存在时不报错
	Delete(ctx context.Context, doc Path) error

	// 查询
	Query(ctx context.Context, collection Path, q Query) ([]Snapshot, error)

	// CommitBatch 原子批量更新：要么全部生效，要么都不生效
	CommitBatch(ctx context.Context, writes []Write) error

	// 健康检查
	HealthCheck(ctx context.Context) error

	// 关闭连接
	Close() error
}

// Supported drivers
const (
	DriverLocal     = "local"
	DriverPostgres  = "postgres"
	DriverMySQL     = "mysql"
	DriverSupabase  = "supabase"
	DriverArango    = "arangodb"
	DriverFirestore = "firestore"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string

	// 本地文件存储目录，空串表示纯内存
	LocalDataDir string

	PostgresDSN string
	MySQLDSN    string

	SupabaseURL string
	SupabaseKey string

	ArangoURL      string
	ArangoUser     string
	ArangoPass     string
	ArangoDatabase string

	FirestoreProjectID       string
	FirestoreCredentialsFile string

	// 建立连接的最长重试时间
	ConnectTimeout time.Duration
	Debug          bool
}

// ResolveDriver 未显式指定时，根据已配置的凭据推断后端
func (c DatabaseConfig) ResolveDriver() string {
	if c.Driver != "" {
		return strings.ToLower(strings.TrimSpace(c.Driver))
	}

	// Vercel 优先使用 Supabase REST（避免 IPv6 问题）
	if isVercelEnvironment() && c.SupabaseURL != "" && c.SupabaseKey != "" {
		return DriverSupabase
	}

	switch {
	case c.PostgresDSN != "":
		return DriverPostgres
	case c.MySQLDSN != "":
		return DriverMySQL
	case c.ArangoURL != "":
		return DriverArango
	case c.FirestoreProjectID != "":
		return DriverFirestore
	case c.SupabaseURL != "" && c.SupabaseKey != "":
		return DriverSupabase
	}
	return DriverLocal
}

// NewDatabase 根据配置选择数据库实现
func NewDatabase(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (DatabaseInterface, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	driver := config.ResolveDriver()
	logger.Info("selecting database backend", zap.String("driver", driver))

	switch driver {
	case DriverLocal:
		return NewLocalDatabase(config.LocalDataDir, logger)
	case DriverPostgres:
		db, err := NewPostgresDatabase(ctx, config.PostgresDSN, config.ConnectTimeout, logger)
		if err != nil {
			return nil, err
		}
		return withSchema(ctx, db)
	case DriverMySQL:
		db, err := NewMySQLDatabase(ctx, config.MySQLDSN, config.ConnectTimeout, logger)
		if err != nil {
			return nil, err
		}
		return withSchema(ctx, db)
	case DriverSupabase:
		if config.SupabaseURL == "" || config.SupabaseKey == "" {
			return nil, fmt.Errorf("supabase driver requires SUPABASE_URL and SUPABASE_SERVICE_KEY")
		}
		return NewSupabaseDatabase(config.SupabaseURL, config.SupabaseKey, logger), nil
	case DriverArango:
		return NewArangoDatabase(ctx, ArangoConfig{
			URL:      config.ArangoURL,
			User:     config.ArangoUser,
			Password: config.ArangoPass,
			Database: config.ArangoDatabase,
		}, config.ConnectTimeout, logger)
	case DriverFirestore:
		return NewFirestoreDatabase(ctx, config.FirestoreProjectID, config.FirestoreCredentialsFile, logger)
	}

	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

// isVercelEnvironment 内部检查 Vercel / Lambda 环境
func isVercelEnvironment() bool {
	vercelEnv := os.Getenv("VERCEL_ENV")
	vercelURL := os.Getenv("VERCEL_URL")
	awsLambda := os.Getenv("AWS_LAMBDA_FUNCTION_NAME")
	return vercelEnv != "" || vercelURL != "" || awsLambda != ""
}

// withSchema 连接建立后自动建表（CREATE ... IF NOT EXISTS，可重复执行）
func withSchema(ctx context.Context, db interface {
	DatabaseInterface
	EnsureSchema(ctx context.Context) error
}) (DatabaseInterface, error) {
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
