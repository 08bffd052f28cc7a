package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MySQLSchema documents 表（JSON 列）
const MySQLSchema = `
CREATE TABLE IF NOT EXISTS documents (
    collection VARCHAR(512) NOT NULL,
    id VARCHAR(191) NOT NULL,
    data JSON NOT NULL,
    created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
    PRIMARY KEY (collection, id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// MySQLDatabase MySQL数据库实现
type MySQLDatabase struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLDatabase 创建MySQL数据库实例
func NewMySQLDatabase(ctx context.Context, dsn string, connectTimeout time.Duration, logger *zap.Logger) (*MySQLDatabase, error) {
	cfg, err := mysql.ParseDSN(strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	// RowsAffected 需要返回匹配行数而不是变更行数，用于判断文档是否存在
	cfg.ClientFoundRows = true
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MySQL connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := connectWithBackoff(ctx, "mysql", connectTimeout, logger, func() error {
		return db.PingContext(ctx)
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &MySQLDatabase{db: db, logger: logger}, nil
}

// EnsureSchema 创建 documents 表
func (db *MySQLDatabase) EnsureSchema(ctx context.Context) error {
	if _, err := db.db.ExecContext(ctx, MySQLSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func jsonPath(field string) string {
	return "$." + field
}

// Get 读取单个文档
func (db *MySQLDatabase) Get(ctx context.Context, doc Path) (*Snapshot, error) {
	if err := doc.validate(true); err != nil {
		return nil, err
	}

	var raw []byte
	err := db.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
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

// Set 写入文档；merge 使用 JSON_MERGE_PATCH（null 删除字段）
func (db *MySQLDatabase) Set(ctx context.Context, doc Path, fields Document, merge bool) error {
	if err := doc.validate(true); err != nil {
		return err
	}

	insert, err := marshalDocument(withoutNulls(fields))
	if err != nil {
		return err
	}
	patch, err := marshalDocument(fields)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (collection, id, data) VALUES (?, ?, CAST(? AS JSON))
		ON DUPLICATE KEY UPDATE data = CAST(? AS JSON)`
	args := []interface{}{doc.Parent().String(), doc.ID(), string(insert), string(insert)}
	if merge {
		query = `
		INSERT INTO documents (collection, id, data) VALUES (?, ?, CAST(? AS JSON))
		ON DUPLICATE KEY UPDATE data = JSON_MERGE_PATCH(data, CAST(? AS JSON))`
		args[3] = string(patch)
	}

	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to set document: %w", err)
	}
	return nil
}

// Add 以随机 ID 插入文档
func (db *MySQLDatabase) Add(ctx context.Context, collection Path, fields Document) (string, error) {
	if err := collection.validate(false); err != nil {
		return "", err
	}
	raw, err := marshalDocument(withoutNulls(fields))
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	if _, err := db.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, CAST(? AS JSON))`,
		collection.String(), id, string(raw),
	); err != nil {
		return "", fmt.Errorf("failed to add document: %w", err)
	}
	return id, nil
}

// AddSequenced 先对集合范围加 next-key 锁（FOR UPDATE），再计算序号并插入
func (db *MySQLDatabase) AddSequenced(ctx context.Context, collection Path, fields Document, seq Sequence) (string, int64, error) {
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

	locked, err := tx.QueryContext(ctx,
		`SELECT id FROM documents WHERE collection = ? FOR UPDATE`, collection.String())
	if err != nil {
		return "", 0, fmt.Errorf("failed to lock collection: %w", err)
	}
	for locked.Next() {
	}
	locked.Close()
	if err := locked.Err(); err != nil {
		return "", 0, fmt.Errorf("failed to lock collection: %w", err)
	}

	var max sql.NullInt64
	if err := tx.QueryRowContext(ctx, `
		SELECT MAX(CAST(JSON_UNQUOTE(JSON_EXTRACT(data, ?)) AS SIGNED))
		FROM documents
		WHERE collection = ? AND JSON_CONTAINS(data, CAST(? AS JSON))
		  AND JSON_TYPE(JSON_EXTRACT(data, ?)) IN ('INTEGER', 'UNSIGNED INTEGER', 'DOUBLE', 'DECIMAL')`,
		jsonPath(seq.Field), collection.String(), string(filter), jsonPath(seq.Field),
	).Scan(&max); err != nil {
		return "", 0, fmt.Errorf("failed to read sequence: %w", err)
	}

	next := max.Int64 + 1
	doc := withoutNulls(fields)
	doc[seq.Field] = next
	raw, err := marshalDocument(doc)
	if err != nil {
		return "", 0, err
	}

	id := uuid.New().String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, CAST(? AS JSON))`,
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
func (db *MySQLDatabase) Update(ctx context.Context, doc Path, fields Document) error {
	if err := doc.validate(true); err != nil {
		return err
	}
	return mysqlUpdate(ctx, db.db, doc, fields)
}

func mysqlUpdate(ctx context.Context, exec sqlExecer, doc Path, fields Document) error {
	raw, err := marshalDocument(fields)
	if err != nil {
		return err
	}

	result, err := exec.ExecContext(ctx, `
		UPDATE documents SET data = JSON_MERGE_PATCH(data, CAST(? AS JSON))
		WHERE collection = ? AND id = ?`,
		string(raw), doc.Parent().String(), doc.ID(),
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
func (db *MySQLDatabase) Delete(ctx context.Context, doc Path) error {
	if err := doc.validate(true); err != nil {
		return err
	}
	if _, err := db.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		doc.Parent().String(), doc.ID(),
	); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Query 集合查询
func (db *MySQLDatabase) Query(ctx context.Context, collection Path, q Query) ([]Snapshot, error) {
	if err := collection.validate(false); err != nil {
		return nil, err
	}
	if err := q.validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)
	args := []interface{}{collection.String()}

	if len(q.Filters) > 0 {
		filter, err := marshalDocument(filterObject(q.Filters))
		if err != nil {
			return nil, err
		}
		sb.WriteString(` AND JSON_CONTAINS(data, CAST(? AS JSON))`)
		args = append(args, string(filter))
	}
	if q.OrderBy != "" {
		fmt.Fprintf(&sb, ` ORDER BY JSON_EXTRACT(data, ?) %s, id`, q.Direction)
		args = append(args, jsonPath(q.OrderBy))
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
func (db *MySQLDatabase) CommitBatch(ctx context.Context, writes []Write) error {
	if err := validateWrites(writes); err != nil {
		return err
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, w := range writes {
		if err := mysqlUpdate(ctx, tx, w.Path, w.Fields); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// HealthCheck 健康检查
func (db *MySQLDatabase) HealthCheck(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Close 关闭数据库连接
func (db *MySQLDatabase) Close() error {
	return db.db.Close()
}
