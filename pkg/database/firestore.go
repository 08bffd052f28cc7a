package database

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreDatabase Cloud Firestore 实现，路径直接映射为 Firestore 的文档路径。
// 设置 FIRESTORE_EMULATOR_HOST 时客户端自动连接模拟器。
type FirestoreDatabase struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestoreDatabase 创建 Firestore 客户端
func NewFirestoreDatabase(ctx context.Context, projectID, credentialsFile string, logger *zap.Logger) (*FirestoreDatabase, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firestore driver requires FIRESTORE_PROJECT_ID")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	logger.Info("using Cloud Firestore", zap.String("project", projectID))
	return &FirestoreDatabase{client: client, logger: logger}, nil
}

func isFirestoreNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// firestoreValue Firestore 不接受 json.Number 等类型，这里只需要把 Document 转成普通 map
func firestoreValue(v interface{}) interface{} {
	switch val := v.(type) {
	case Document:
		return firestoreMap(val)
	case map[string]interface{}:
		return firestoreMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = firestoreValue(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = firestoreMap(item)
		}
		return out
	}
	return v
}

func firestoreMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = firestoreValue(v)
	}
	return out
}

// firestoreUpdates nil 值映射为删除字段
func firestoreUpdates(fields Document) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		if v == nil {
			updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: firestore.Delete})
			continue
		}
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: firestoreValue(v)})
	}
	return updates
}

func firestoreQuery(coll *firestore.CollectionRef, filters []Filter) firestore.Query {
	q := coll.Query
	for _, f := range filters {
		q = q.Where(f.Field, "==", firestoreValue(f.Value))
	}
	return q
}

// Get 读取单个文档
func (db *FirestoreDatabase) Get(ctx context.Context, doc Path) (*Snapshot, error) {
	if err := doc.validate(true); err != nil {
		return nil, err
	}
	snap, err := db.client.Doc(doc.String()).Get(ctx)
	if isFirestoreNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &Snapshot{ID: snap.Ref.ID, Path: doc, Data: Document(snap.Data())}, nil
}

// Set 写入文档
func (db *FirestoreDatabase) Set(ctx context.Context, doc Path, fields Document, merge bool) error {
	if err := doc.validate(true); err != nil {
		return err
	}
	ref := db.client.Doc(doc.String())

	var err error
	if merge {
		data := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			if v == nil {
				data[k] = firestore.Delete
				continue
			}
			data[k] = firestoreValue(v)
		}
		_, err = ref.Set(ctx, data, firestore.MergeAll)
	} else {
		_, err = ref.Set(ctx, firestoreMap(withoutNulls(fields)))
	}
	if err != nil {
		return fmt.Errorf("failed to set document: %w", err)
	}
	return nil
}

// Add 自动生成 ID 插入文档
func (db *FirestoreDatabase) Add(ctx context.Context, collection Path, fields Document) (string, error) {
	if err := collection.validate(false); err != nil {
		return "", err
	}
	ref := db.client.Collection(collection.String()).NewDoc()
	if _, err := ref.Create(ctx, firestoreMap(withoutNulls(fields))); err != nil {
		return "", fmt.Errorf("failed to add document: %w", err)
	}
	return ref.ID, nil
}

// AddSequenced 事务内读取匹配文档并创建新文档；冲突时事务自动重试
func (db *FirestoreDatabase) AddSequenced(ctx context.Context, collection Path, fields Document, seq Sequence) (string, int64, error) {
	if err := collection.validate(false); err != nil {
		return "", 0, err
	}
	if err := seq.validate(); err != nil {
		return "", 0, err
	}

	coll := db.client.Collection(collection.String())
	ref := coll.NewDoc()
	query := firestoreQuery(coll, seq.Filters)

	var next int64
	err := db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docs, err := tx.Documents(query).GetAll()
		if err != nil {
			return err
		}

		var max int64
		for _, snap := range docs {
			if n, ok := Int64Value(snap.Data()[seq.Field]); ok && n > max {
				max = n
			}
		}
		next = max + 1

		data := firestoreMap(withoutNulls(fields))
		data[seq.Field] = next
		return tx.Create(ref, data)
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to add sequenced document: %w", err)
	}
	return ref.ID, next, nil
}

// Update 浅合并，不存在时返回 ErrNotFound
func (db *FirestoreDatabase) Update(ctx context.Context, doc Path, fields Document) error {
	if err := doc.validate(true); err != nil {
		return err
	}
	_, err := db.client.Doc(doc.String()).Update(ctx, firestoreUpdates(fields))
	if isFirestoreNotFound(err) {
		return fmt.Errorf("update %q: %w", doc, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

// Delete Firestore 删除不存在的文档不会报错
func (db *FirestoreDatabase) Delete(ctx context.Context, doc Path) error {
	if err := doc.validate(true); err != nil {
		return err
	}
	if _, err := db.client.Doc(doc.String()).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Query 集合查询；注意 Firestore 的 OrderBy 会排除缺少该字段的文档
func (db *FirestoreDatabase) Query(ctx context.Context, collection Path, q Query) ([]Snapshot, error) {
	if err := collection.validate(false); err != nil {
		return nil, err
	}
	if err := q.validate(); err != nil {
		return nil, err
	}

	query := firestoreQuery(db.client.Collection(collection.String()), q.Filters)
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Direction == Descending {
			dir = firestore.Desc
		}
		query = query.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var snaps []Snapshot
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query documents: %w", err)
		}
		snaps = append(snaps, Snapshot{
			ID:   snap.Ref.ID,
			Path: collection.Doc(snap.Ref.ID),
			Data: Document(snap.Data()),
		})
	}
	return snaps, nil
}

// CommitBatch 在事务中执行全部 Update；任一文档不存在则整个事务失败
func (db *FirestoreDatabase) CommitBatch(ctx context.Context, writes []Write) error {
	if err := validateWrites(writes); err != nil {
		return err
	}

	err := db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, w := range writes {
			if err := tx.Update(db.client.Doc(w.Path.String()), firestoreUpdates(w.Fields)); err != nil {
				return err
			}
		}
		return nil
	})
	if isFirestoreNotFound(err) {
		return fmt.Errorf("batch update: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// HealthCheck 读取一个不存在的文档验证连通性
func (db *FirestoreDatabase) HealthCheck(ctx context.Context) error {
	_, err := db.client.Doc("_health/ping").Get(ctx)
	if err != nil && !isFirestoreNotFound(err) {
		return err
	}
	return nil
}

// Close 关闭客户端
func (db *FirestoreDatabase) Close() error {
	return db.client.Close()
}
