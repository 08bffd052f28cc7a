package database

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	arangoCollection      = "documents"
	defaultArangoDatabase = "meeting_todos"
)

// ArangoConfig ArangoDB 连接配置
type ArangoConfig struct {
	URL      string
	User     string
	Password string
	Database string
}

// ArangoDatabase ArangoDB 实现：单个 documents 集合，_key 由路径派生。
// 批量与序号操作都是单条 AQL 语句，在单机部署下整体提交或整体回滚。
type ArangoDatabase struct {
	client arangodb.Client
	db     arangodb.Database
	logger *zap.Logger
}

func arangoConnectionConfig(endpoint connection.Endpoint, user, pass string) connection.HttpConfiguration {
	return connection.HttpConfiguration{
		Authentication: connection.NewBasicAuth(user, pass),
		Endpoint:       endpoint,
		ContentType:    connection.ApplicationJSON,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 90 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// NewArangoDatabase 连接 ArangoDB，必要时创建数据库、集合与索引
func NewArangoDatabase(ctx context.Context, cfg ArangoConfig, connectTimeout time.Duration, logger *zap.Logger) (*ArangoDatabase, error) {
	if cfg.Database == "" {
		cfg.Database = defaultArangoDatabase
	}

	var client arangodb.Client
	err := connectWithBackoff(ctx, "arangodb", connectTimeout, logger, func() error {
		endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL})
		conn := connection.NewHttpConnection(arangoConnectionConfig(endpoint, cfg.User, cfg.Password))
		client = arangodb.NewClient(conn)

		versionInfo, err := client.Version(ctx)
		if err != nil {
			return err
		}
		logger.Info("connected to ArangoDB",
			zap.String("version", string(versionInfo.Version)), zap.String("license", versionInfo.License))
		return nil
	})
	if err != nil {
		return nil, err
	}

	db, err := ensureArangoDatabase(ctx, client, cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &ArangoDatabase{client: client, db: db, logger: logger}
	if err := a.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func ensureArangoDatabase(ctx context.Context, client arangodb.Client, name string) (arangodb.Database, error) {
	dblist, err := client.Databases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	for _, dbinfo := range dblist {
		if dbinfo.Name() == name {
			var options arangodb.GetDatabaseOptions
			db, err := client.GetDatabase(ctx, name, &options)
			if err != nil {
				return nil, fmt.Errorf("failed to get database: %w", err)
			}
			return db, nil
		}
	}

	db, err := client.CreateDatabase(ctx, name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	return db, nil
}

func (a *ArangoDatabase) ensureCollection(ctx context.Context) error {
	var col arangodb.Collection

	exists, err := a.db.CollectionExists(ctx, arangoCollection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		var options arangodb.GetCollectionOptions
		if col, err = a.db.GetCollection(ctx, arangoCollection, &options); err != nil {
			return fmt.Errorf("failed to use collection: %w", err)
		}
	} else {
		if col, err = a.db.CreateCollectionV2(ctx, arangoCollection, nil); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}

	False := false
	indexOptions := arangodb.CreatePersistentIndexOptions{
		Unique: &False,
		Sparse: &False,
		Name:   "documents_collection",
	}
	if _, _, err := col.EnsurePersistentIndex(ctx, []string{"collection"}, &indexOptions); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

var arangoKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.@()+,=;$!*'%]{1,254}$`)

// arangoKey 路径中的 "/" 不能出现在 _key 中，替换为 ":"；仍不合法时使用哈希
func arangoKey(p Path) string {
	key := strings.ReplaceAll(p.String(), "/", ":")
	if arangoKeyPattern.MatchString(key) {
		return key
	}
	sum := sha1.Sum([]byte(p))
	return "h:" + hex.EncodeToString(sum[:])
}

type arangoRow struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// query 执行 AQL 并读取所有结果
func (a *ArangoDatabase) query(ctx context.Context, aql string, bindVars map[string]interface{}, each func(ctx context.Context, cursor arangodb.Cursor) error) error {
	cursor, err := a.db.Query(ctx, aql, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return err
	}
	defer cursor.Close()

	for cursor.HasMore() {
		if err := each(ctx, cursor); err != nil {
			return err
		}
	}
	return nil
}

func (a *ArangoDatabase) readRows(ctx context.Context, collection Path, aql string, bindVars map[string]interface{}) ([]Snapshot, error) {
	var snaps []Snapshot
	err := a.query(ctx, aql, bindVars, func(ctx context.Context, cursor arangodb.Cursor) error {
		var row arangoRow
		if _, err := cursor.ReadDocument(ctx, &row); err != nil {
			return err
		}
		doc, err := unmarshalDocument(row.Data)
		if err != nil {
			return err
		}
		snaps = append(snaps, Snapshot{ID: row.ID, Path: collection.Doc(row.ID), Data: doc})
		return nil
	})
	return snaps, err
}

func arangoData(doc Document) (json.RawMessage, error) {
	raw, err := marshalDocument(doc)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func isArangoNotFound(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "document not found")
}

// Get 读取单个文档
func (a *ArangoDatabase) Get(ctx context.Context, doc Path) (*Snapshot, error) {
	if err := doc.validate(true); err != nil {
		return nil, err
	}

	snaps, err := a.readRows(ctx, doc.Parent(), `
		FOR d IN documents
			FILTER d._key == @key
			RETURN { id: d.id, data: d.data }`,
		map[string]interface{}{"key": arangoKey(doc)})
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	return &snaps[0], nil
}

// Set 写入文档（UPSERT）
func (a *ArangoDatabase) Set(ctx context.Context, doc Path, fields Document, merge bool) error {
	if err := doc.validate(true); err != nil {
		return err
	}
	insert, err := arangoData(withoutNulls(fields))
	if err != nil {
		return err
	}
	data, err := arangoData(fields)
	if err != nil {
		return err
	}

	// mergeObjects 只能是常量，按模式选择语句
	mergeObjects := "false"
	if merge {
		mergeObjects = "true"
	}
	aql := `
		UPSERT { _key: @key }
		INSERT { _key: @key, collection: @collection, id: @id, data: @insert }
		UPDATE { data: @data }
		IN documents OPTIONS { keepNull: false, mergeObjects: ` + mergeObjects + ` }`

	bindVars := map[string]interface{}{
		"key":        arangoKey(doc),
		"collection": doc.Parent().String(),
		"id":         doc.ID(),
		"insert":     insert,
		"data":       data,
	}
	if err := a.query(ctx, aql, bindVars, func(context.Context, arangodb.Cursor) error { return nil }); err != nil {
		return fmt.Errorf("failed to set document: %w", err)
	}
	return nil
}

// Add 以随机 ID 插入文档
func (a *ArangoDatabase) Add(ctx context.Context, collection Path, fields Document) (string, error) {
	if err := collection.validate(false); err != nil {
		return "", err
	}
	data, err := arangoData(withoutNulls(fields))
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	bindVars := map[string]interface{}{
		"key":        arangoKey(collection.Doc(id)),
		"collection": collection.String(),
		"id":         id,
		"data":       data,
	}
	if err := a.query(ctx, `
		INSERT { _key: @key, collection: @collection, id: @id, data: @data } INTO documents`,
		bindVars, func(context.Context, arangodb.Cursor) error { return nil }); err != nil {
		return "", fmt.Errorf("failed to add document: %w", err)
	}
	return id, nil
}

// AddSequenced 单条 AQL 内读取最大值并插入
func (a *ArangoDatabase) AddSequenced(ctx context.Context, collection Path, fields Document, seq Sequence) (string, int64, error) {
	if err := collection.validate(false); err != nil {
		return "", 0, err
	}
	if err := seq.validate(); err != nil {
		return "", 0, err
	}
	data, err := arangoData(withoutNulls(fields))
	if err != nil {
		return "", 0, err
	}
	filter, err := arangoData(filterObject(seq.Filters))
	if err != nil {
		return "", 0, err
	}

	id := uuid.New().String()
	bindVars := map[string]interface{}{
		"key":        arangoKey(collection.Doc(id)),
		"collection": collection.String(),
		"id":         id,
		"data":       data,
		"field":      seq.Field,
		"filter":     filter,
	}
	aql := `
		LET current = (
			FOR d IN documents
				FILTER d.collection == @collection
				FILTER MATCHES(d.data, @filter)
				FILTER IS_NUMBER(d.data[@field])
				RETURN FLOOR(d.data[@field])
		)
		LET next = MAX(APPEND(current, [0])) + 1
		INSERT { _key: @key, collection: @collection, id: @id, data: MERGE(@data, { [@field]: next }) } INTO documents
		RETURN next`

	var next int64
	err = a.query(ctx, aql, bindVars, func(ctx context.Context, cursor arangodb.Cursor) error {
		_, err := cursor.ReadDocument(ctx, &next)
		return err
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to add sequenced document: %w", err)
	}
	return id, next, nil
}

// Update 浅合并，不存在时返回 ErrNotFound
func (a *ArangoDatabase) Update(ctx context.Context, doc Path, fields Document) error {
	if err := doc.validate(true); err != nil {
		return err
	}
	data, err := arangoData(fields)
	if err != nil {
		return err
	}

	updated := 0
	err = a.query(ctx, `
		FOR d IN documents
			FILTER d._key == @key
			UPDATE d WITH { data: @data } IN documents OPTIONS { keepNull: false, mergeObjects: true }
			RETURN NEW._key`,
		map[string]interface{}{"key": arangoKey(doc), "data": data},
		func(ctx context.Context, cursor arangodb.Cursor) error {
			var key string
			if _, err := cursor.ReadDocument(ctx, &key); err != nil {
				return err
			}
			updated++
			return nil
		})
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if updated == 0 {
		return fmt.Errorf("update %q: %w", doc, ErrNotFound)
	}
	return nil
}

// Delete 删除文档，不存在时为空操作
func (a *ArangoDatabase) Delete(ctx context.Context, doc Path) error {
	if err := doc.validate(true); err != nil {
		return err
	}
	if err := a.query(ctx, `
		FOR d IN documents
			FILTER d._key == @key
			REMOVE d IN documents`,
		map[string]interface{}{"key": arangoKey(doc)},
		func(context.Context, arangodb.Cursor) error { return nil }); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Query 集合查询
func (a *ArangoDatabase) Query(ctx context.Context, collection Path, q Query) ([]Snapshot, error) {
	if err := collection.validate(false); err != nil {
		return nil, err
	}
	if err := q.validate(); err != nil {
		return nil, err
	}

	bindVars := map[string]interface{}{"collection": collection.String()}
	var sb strings.Builder
	sb.WriteString("FOR d IN documents FILTER d.collection == @collection")
	if len(q.Filters) > 0 {
		filter, err := arangoData(filterObject(q.Filters))
		if err != nil {
			return nil, err
		}
		bindVars["filter"] = filter
		sb.WriteString(" FILTER MATCHES(d.data, @filter)")
	}
	if q.OrderBy != "" {
		bindVars["orderBy"] = q.OrderBy
		fmt.Fprintf(&sb, " SORT d.data[@orderBy] %s, d.id ASC", q.Direction)
	} else {
		sb.WriteString(" SORT d.id ASC")
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	sb.WriteString(" RETURN { id: d.id, data: d.data }")

	snaps, err := a.readRows(ctx, collection, sb.String(), bindVars)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	return snaps, nil
}

// CommitBatch 单条 AQL 更新全部文档；任一 _key 不存在时整个查询失败并回滚
func (a *ArangoDatabase) CommitBatch(ctx context.Context, writes []Write) error {
	if err := validateWrites(writes); err != nil {
		return err
	}

	payload := make([]map[string]interface{}, 0, len(writes))
	for _, w := range writes {
		data, err := arangoData(w.Fields)
		if err != nil {
			return err
		}
		payload = append(payload, map[string]interface{}{"key": arangoKey(w.Path), "fields": data})
	}

	err := a.query(ctx, `
		FOR w IN @writes
			UPDATE { _key: w.key } WITH { data: w.fields } IN documents
			OPTIONS { keepNull: false, mergeObjects: true }`,
		map[string]interface{}{"writes": payload},
		func(context.Context, arangodb.Cursor) error { return nil })
	if isArangoNotFound(err) {
		return fmt.Errorf("batch update: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// HealthCheck 健康检查
func (a *ArangoDatabase) HealthCheck(ctx context.Context) error {
	_, err := a.client.Version(ctx)
	return err
}

// Close HTTP 连接无需显式关闭
func (a *ArangoDatabase) Close() error {
	return nil
}
