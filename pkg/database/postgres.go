package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresSchema 所有文档存放在一张表，data 为 JSONB
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    data JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data jsonb_path_ops);
`

// PostgresDatabase PostgreSQL数据库实现
type PostgresDatabase struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresDatabase 创建PostgreSQL数据库实例
func NewPostgresDatabase(ctx context.Context, dsn string, connectTimeout time.Duration, logger *zap.Logger) (*PostgresDatabase, error) {
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	// 依次尝试多种连接参数（Lambda 环境下首选短超时）
	strategies := []string{
		addConnectionParams(dsn, "connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&connect_timeout=10"),
		dsn,
	}

	var db *sql.DB
	err := connectWithBackoff(ctx, "postgres", connectTimeout, logger, func() error {
		var lastErr error
		for i, strategy := range strategies {
			conn, err := sql.Open("postgres", strategy)
			if err != nil {
				lastErr = err
				continue
			}

			// 设置连接池参数，适合无服务器环境
			conn.SetMaxOpenConns(5)
			conn.SetMaxIdleConns(2)
			conn.SetConnMaxLifetime(5 * time.Minute)

			if err := conn.PingContext(ctx); err != nil {
				logger.Debug("postgres strategy failed", zap.Int("strategy", i+1), zap.Error(err))
				conn.Close()
				lastErr = err
				continue
			}
			db = conn
			return nil
		}
		return lastErr
	})
	if err != nil {
		return nil, err
	}

	return &PostgresDatabase{db: db, logger: logger}, nil
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}
	// key=value 形式的 DSN
	if !strings.Contains(dsn, "://") {
		return dsn + " " + strings.ReplaceAll(params, "&", " ")
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + params
}

// EnsureSchema 创建 documents 表
func (db *PostgresDatabase) EnsureSchema(ctx context.Context) error {
	if _, err := db.db.ExecContext(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Get 读取单个文档
func (db *PostgresDatabase) Get(ctx context.Context, doc Path) (*Snapshot, error) {
	if err := doc.validate(true); err != nil {
		return nil, err
	}

	var raw []byte
	err := db.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		doc.Parent().String(), doc.ID(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	data, err := unmarshalDocument(raw)
	if err != nil {
		return nil, err
	}
	return &Snapshot{ID: doc.ID(), Path: doc, Data: data}, nil
}

// Set 写入文档
func (db *PostgresDatabase) Set(ctx context.Context, doc Path, fields Document, merge bool) error {
	if err := doc.validate(true); err != nil {
		return err
	}

	// merge 时保留 nil 字段，由 jsonb_strip_nulls 删除
	payload := fields
	if !merge {
		payload = withoutNulls(fields)
	}
	raw, err := marshalDocument(payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, jsonb_strip_nulls($3::jsonb))
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`
	if merge {
		query = `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, jsonb_strip_nulls($3::jsonb))
		ON CONFLICT (collection, id) DO UPDATE
		SET data = jsonb_strip_nulls(documents.data || $3::jsonb), updated_at = NOW()`
	}

	if _, err := db.db.ExecContext(ctx, query, doc.Parent().String(), doc.ID(), string(raw)); err != nil {
		return fmt.Errorf("failed to set document: %w", err)
	}
	return nil
}

// Add 以随机 ID 插入文档
func (db *PostgresDatabase) Add(ctx context.Context, collection Path, fields Document) (string, error) {
	if err := collection.validate(false); err != nil {
		return "", err
	}
	raw, err := marshalDocument(withoutNulls(fields))
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	if _, err := db.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`,
		collection.String(), id, string(raw),
	); err != nil {
		return "", fmt.Errorf("failed to add document: %w", err)
	}
	return id, nil
}

// AddSequenced 事务内用 advisory lock 串行化同一集合的序号分配
func (db *PostgresDatabase) AddSequenced(ctx context.Context, collection Path, fields Document, seq Sequence) (string, int64, error) {
	if err := collection.validate(false); err != nil {
		return "", 0, err
	}
	if err := seq.validate(); err != nil {
		return "", 0, err
	}
	filter, err := marshalDocument(filterObject(seq.Filters))
	if err != nil {
		return "", 0, err
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, collection.String()); err != nil {
		return "", 0, fmt.Errorf("failed to lock collection: %w", err)
	}

	var max int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(FLOOR(MAX((data ->> $2::text)::numeric)), 0)::bigint
		FROM documents
		WHERE collection = $1 AND data @> $3::jsonb AND jsonb_typeof(data -> $2::text) = 'number'`,
		collection.String(), seq.Field, string(filter),
	).Scan(&max); err != nil {
		return "", 0, fmt.Errorf("failed to read sequence: %w", err)
	}

	next := max + 1
	doc := withoutNulls(fields)
	doc[seq.Field] = next
	raw, err := marshalDocument(doc)
	if err != nil {
		return "", 0, err
	}

	id := uuid.New().String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`,
		collection.String(), id, string(raw),
	); err != nil {
		return "", 0, fmt.Errorf("failed to add document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, next, nil
}

// Update 浅合并，不存在时返回 ErrNotFound
func (db *PostgresDatabase) Update(ctx context.Context, doc Path, fields Document) error {
	if err := doc.validate(true); err != nil {
		return err
	}
	return updateDocument(ctx, db.db, doc, fields)
}

// sqlExecer 同时适配 *sql.DB 与 *sql.Tx
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func updateDocument(ctx context.Context, exec sqlExecer, doc Path, fields Document) error {
	raw, err := marshalDocument(fields)
	if err != nil {
		return err
	}

	result, err := exec.ExecContext(ctx, `
		UPDATE documents
		SET data = jsonb_strip_nulls(data || $3::jsonb), updated_at = NOW()
		WHERE collection = $1 AND id = $2`,
		doc.Parent().String(), doc.ID(), string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update %q: %w", doc, ErrNotFound)
	}
	return nil
}

// Delete 删除文档，不存在时为空操作
func (db *PostgresDatabase) Delete(ctx context.Context, doc Path) error {
	if err := doc.validate(true); err != nil {
		return err
	}
	if _, err := db.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		doc.Parent().String(), doc.ID(),
	); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Query 集合查询
func (db *PostgresDatabase) Query(ctx context.Context, collection Path, q Query) ([]Snapshot, error) {
	if err := collection.validate(false); err != nil {
		return nil, err
	}
	if err := q.validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = $1`)
	args := []interface{}{collection.String()}

	if len(q.Filters) > 0 {
		filter, err := marshalDocument(filterObject(q.Filters))
		if err != nil {
			return nil, err
		}
		args = append(args, string(filter))
		fmt.Fprintf(&sb, ` AND data @> $%d::jsonb`, len(args))
	}
	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		fmt.Fprintf(&sb, ` ORDER BY data -> $%d::text %s, id`, len(args), q.Direction)
	} else {
		sb.WriteString(` ORDER BY id`)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, ` LIMIT %d`, q.Limit)
	}

	rows, err := db.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		data, err := unmarshalDocument(raw)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, Snapshot{ID: id, Path: collection.Doc(id), Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return snaps, nil
}

// CommitBatch 单个事务内执行全部更新
func (db *PostgresDatabase) CommitBatch(ctx context.Context, writes []Write) error {
	if err := validateWrites(writes); err != nil {
		return err
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, w := range writes {
		if err := updateDocument(ctx, tx, w.Path, w.Fields); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// HealthCheck 健康检查
func (db *PostgresDatabase) HealthCheck(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Close 关闭数据库连接
func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}
