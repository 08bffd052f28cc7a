package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const localDataFile = "documents.json"

// LocalDatabase 本地文档存储：内存为主，可选落盘到 JSON 文件。
// 文档以编码后的 JSON 保存，读写都经过一次编解码，与远端 JSON 后端行为一致。
type LocalDatabase struct {
	mu      sync.RWMutex
	dataDir string
	// collection path -> id -> encoded document
	docs   map[Path]map[string][]byte
	logger *zap.Logger

	// beforeWrite 批量写入中每条写入前调用，测试用于注入故障
	beforeWrite func(i int, w Write) error
}

// NewMemoryDatabase 纯内存实例
func NewMemoryDatabase() *LocalDatabase {
	return &LocalDatabase{
		docs:   make(map[Path]map[string][]byte),
		logger: zap.NewNop(),
	}
}

// NewLocalDatabase 创建本地数据库实例；dataDir 为空时只在内存中保存
func NewLocalDatabase(dataDir string, logger *zap.Logger) (*LocalDatabase, error) {
	db := NewMemoryDatabase()
	if logger != nil {
		db.logger = logger
	}
	if dataDir == "" {
		db.logger.Info("using in-memory document store")
		return db, nil
	}

	// 在Vercel等只读文件系统中，回退到临时目录
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		db.logger.Warn("failed to create data directory, falling back to temp dir",
			zap.String("dir", dataDir), zap.Error(err))
		dataDir = filepath.Join(os.TempDir(), "meeting-todos-data")
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db.dataDir = dataDir

	if err := db.load(); err != nil {
		return nil, err
	}
	db.logger.Info("using local file document store", zap.String("dir", dataDir))
	return db, nil
}

// Get 读取单个文档
func (db *LocalDatabase) Get(ctx context.Context, doc Path) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := doc.validate(true); err != nil {
		return nil, err
	}

	db.mu.RLock()
	raw, ok := db.docs[doc.Parent()][doc.ID()]
	db.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	data, err := unmarshalDocument(raw)
	if err != nil {
		return nil, err
	}
	return &Snapshot{ID: doc.ID(), Path: doc, Data: data}, nil
}

// Set 写入文档；merge 为 true 时与已有字段浅合并
func (db *LocalDatabase) Set(ctx context.Context, doc Path, fields Document, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := doc.validate(true); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	next := withoutNulls(fields)
	if merge {
		current, err := db.decodeLocked(doc)
		if err != nil && err != ErrNotFound {
			return err
		}
		next = mergeFields(current, fields)
	}
	if err := db.putLocked(doc, next); err != nil {
		return err
	}
	return db.persistLocked()
}

// Add 以随机 ID 插入文档
func (db *LocalDatabase) Add(ctx context.Context, collection Path, fields Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := collection.validate(false); err != nil {
		return "", err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	id := uuid.New().String()
	if err := db.putLocked(collection.Doc(id), withoutNulls(fields)); err != nil {
		return "", err
	}
	return id, db.persistLocked()
}

// AddSequenced 在写锁内计算序号并插入
func (db *LocalDatabase) AddSequenced(ctx context.Context, collection Path, fields Document, seq Sequence) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	if err := collection.validate(false); err != nil {
		return "", 0, err
	}
	if err := seq.validate(); err != nil {
		return "", 0, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	var max int64
	for _, raw := range db.docs[collection] {
		data, err := unmarshalDocument(raw)
		if err != nil {
			return "", 0, err
		}
		if !matchesFilters(data, seq.Filters) {
			continue
		}
		if n, ok := Int64Value(data[seq.Field]); ok && n > max {
			max = n
		}
	}

	next := max + 1
	doc := withoutNulls(fields)
	doc[seq.Field] = next

	id := uuid.New().String()
	if err := db.putLocked(collection.Doc(id), doc); err != nil {
		return "", 0, err
	}
	return id, next, db.persistLocked()
}

// Update 浅合并，不存在时返回 ErrNotFound
func (db *LocalDatabase) Update(ctx context.Context, doc Path, fields Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := doc.validate(true); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	current, err := db.decodeLocked(doc)
	if err != nil {
		return err
	}
	if err := db.putLocked(doc, mergeFields(current, fields)); err != nil {
		return err
	}
	return db.persistLocked()
}

// Delete 删除文档，不存在时为空操作
func (db *LocalDatabase) Delete(ctx context.Context, doc Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := doc.validate(true); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	coll, ok := db.docs[doc.Parent()]
	if !ok {
		return nil
	}
	if _, ok := coll[doc.ID()]; !ok {
		return nil
	}
	delete(coll, doc.ID())
	return db.persistLocked()
}

// Query 过滤、排序、截断
func (db *LocalDatabase) Query(ctx context.Context, collection Path, q Query) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := collection.validate(false); err != nil {
		return nil, err
	}
	if err := q.validate(); err != nil {
		return nil, err
	}

	db.mu.RLock()
	snaps := make([]Snapshot, 0, len(db.docs[collection]))
	for id, raw := range db.docs[collection] {
		data, err := unmarshalDocument(raw)
		if err != nil {
			db.mu.RUnlock()
			return nil, err
		}
		if !matchesFilters(data, q.Filters) {
			continue
		}
		snaps = append(snaps, Snapshot{ID: id, Path: collection.Doc(id), Data: data})
	}
	db.mu.RUnlock()

	// map 迭代顺序随机，先按 ID 固定顺序
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	if q.OrderBy != "" {
		sort.SliceStable(snaps, func(i, j int) bool {
			c := compareValues(snaps[i].Data[q.OrderBy], snaps[j].Data[q.OrderBy])
			if q.Direction == Descending {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(snaps) > q.Limit {
		snaps = snaps[:q.Limit]
	}
	return snaps, nil
}

// CommitBatch 先在副本上应用全部写入，全部成功后再替换
func (db *LocalDatabase) CommitBatch(ctx context.Context, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateWrites(writes); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	staged := make(map[Path]Document, len(writes))
	for i, w := range writes {
		if db.beforeWrite != nil {
			if err := db.beforeWrite(i, w); err != nil {
				return fmt.Errorf("batch write %d/%d failed: %w", i+1, len(writes), err)
			}
		}

		current, ok := staged[w.Path]
		if !ok {
			var err error
			if current, err = db.decodeLocked(w.Path); err != nil {
				if err == ErrNotFound {
					return fmt.Errorf("batch write %q: %w", w.Path, ErrNotFound)
				}
				return err
			}
		}
		staged[w.Path] = mergeFields(current, w.Fields)
	}

	encoded := make(map[Path][]byte, len(staged))
	for path, doc := range staged {
		raw, err := marshalDocument(doc)
		if err != nil {
			return err
		}
		encoded[path] = raw
	}
	for path, raw := range encoded {
		db.docs[path.Parent()][path.ID()] = raw
	}
	return db.persistLocked()
}

// HealthCheck 本地存储总是可用；落盘模式下检查目录
func (db *LocalDatabase) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if db.dataDir == "" {
		return nil
	}
	if _, err := os.Stat(db.dataDir); err != nil {
		return fmt.Errorf("data directory unavailable: %w", err)
	}
	return nil
}

// Close 本地存储无需关闭
func (db *LocalDatabase) Close() error {
	return nil
}

func (db *LocalDatabase) decodeLocked(doc Path) (Document, error) {
	raw, ok := db.docs[doc.Parent()][doc.ID()]
	if !ok {
		return nil, ErrNotFound
	}
	return unmarshalDocument(raw)
}

func (db *LocalDatabase) putLocked(doc Path, data Document) error {
	raw, err := marshalDocument(data)
	if err != nil {
		return err
	}
	coll, ok := db.docs[doc.Parent()]
	if !ok {
		coll = make(map[string][]byte)
		db.docs[doc.Parent()] = coll
	}
	coll[doc.ID()] = raw
	return nil
}

// load 从数据文件恢复
func (db *LocalDatabase) load() error {
	raw, err := os.ReadFile(filepath.Join(db.dataDir, localDataFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read data file: %w", err)
	}

	var stored map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &stored); err != nil {
		return fmt.Errorf("failed to parse data file: %w", err)
	}
	for coll, docs := range stored {
		m := make(map[string][]byte, len(docs))
		for id, doc := range docs {
			m[id] = []byte(doc)
		}
		db.docs[Path(coll)] = m
	}
	return nil
}

// persistLocked 整体写回数据文件（先写临时文件再 rename）
func (db *LocalDatabase) persistLocked() error {
	if db.dataDir == "" {
		return nil
	}

	out := make(map[string]map[string]json.RawMessage, len(db.docs))
	for coll, docs := range db.docs {
		m := make(map[string]json.RawMessage, len(docs))
		for id, doc := range docs {
			m[id] = json.RawMessage(doc)
		}
		out[string(coll)] = m
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode data file: %w", err)
	}

	target := filepath.Join(db.dataDir, localDataFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write data file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to replace data file: %w", err)
	}
	return nil
}
