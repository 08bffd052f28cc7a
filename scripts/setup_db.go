package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"meeting-todos-backend/pkg/config"
	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/logging"
)

// schemaEnsurer SQL 后端可以自行建表
type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Must(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbCfg := cfg.Database()
	driver := dbCfg.ResolveDriver()
	logger.Info("setting up database", zap.String("driver", driver))

	// Supabase 通过 REST 调用 RPC 函数，函数本身需要用直连 DSN 执行 init_db.sql 创建
	if driver == database.DriverSupabase {
		dsn := cfg.PostgresDSN
		if len(os.Args) > 1 {
			dsn = os.Args[1]
		}
		if err := runScript(ctx, dsn, "scripts/init_db.sql"); err != nil {
			logger.Fatal("failed to initialise supabase schema", zap.String("dsn", maskPassword(dsn)), zap.Error(err))
		}
		logger.Info("executed init_db.sql")
	}

	db, err := database.NewDatabase(ctx, dbCfg, logger)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if ensurer, ok := db.(schemaEnsurer); ok {
		if err := ensurer.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to create schema", zap.Error(err))
		}
		logger.Info("schema is up to date")
	}

	if err := verify(ctx, db); err != nil {
		logger.Fatal("verification failed", zap.Error(err))
	}
	logger.Info("database setup completed")
}

// runScript 用 lib/pq 执行 SQL 脚本
func runScript(ctx context.Context, dsn, path string) error {
	if dsn == "" {
		return fmt.Errorf("POSTGRES_DSN is required to run %s", path)
	}
	script, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, string(script)); err != nil {
		return fmt.Errorf("failed to execute %s: %w", path, err)
	}
	return nil
}

// verify 写入、读取并删除一个探测文档
func verify(ctx context.Context, db database.DatabaseInterface) error {
	if err := db.HealthCheck(ctx); err != nil {
		return err
	}
	probe := database.Collection("_setup").Doc("probe")
	if err := db.Set(ctx, probe, database.Document{"checkedAt": time.Now().UTC()}, false); err != nil {
		return fmt.Errorf("failed to write probe document: %w", err)
	}
	if _, err := db.Get(ctx, probe); err != nil {
		return fmt.Errorf("failed to read probe document: %w", err)
	}
	return db.Delete(ctx, probe)
}

// maskPassword 隐藏密码
func maskPassword(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at == -1 || scheme == -1 {
		return dsn
	}
	userInfo := dsn[scheme+3 : at]
	if colon := strings.Index(userInfo, ":"); colon != -1 {
		return dsn[:scheme+3] + userInfo[:colon] + ":***" + dsn[at:]
	}
	return dsn
}
