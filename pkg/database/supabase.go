package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SupabaseDatabase Supabase数据库实现（PostgREST）。
// 原子操作依赖 scripts/init_db.sql 中定义的 RPC 函数。
type SupabaseDatabase struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// apiError PostgREST 返回的错误状态
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.Status, e.Body)
}

// NewSupabaseDatabase 创建Supabase数据库实例
func NewSupabaseDatabase(baseURL, key string, logger *zap.Logger) *SupabaseDatabase {
	// 确保URL格式正确
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SupabaseDatabase{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  key,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// makeRequest 发送HTTP请求到Supabase
func (db *SupabaseDatabase) makeRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader

	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, db.baseURL+"/rest/v1"+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// 设置请求头
	req.Header.Set("apikey", db.apiKey)
	req.Header.Set("Authorization", "Bearer "+db.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := db.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &apiError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// rpc 调用数据库函数
func (db *SupabaseDatabase) rpc(ctx context.Context, fn string, args map[string]interface{}) ([]byte, error) {
	data, err := db.makeRequest(ctx, http.MethodPost, "/rpc/"+fn, args)
	if err != nil {
		var apiErr *apiError
		// commit_batch / merge_document 在文档缺失时抛出 P0002，PostgREST 映射为 404
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", fn, ErrNotFound)
		}
		return nil, fmt.Errorf("rpc %s failed: %w", fn, err)
	}
	return data, nil
}

type supabaseRow struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

func decodeRows(collection Path, data []byte) ([]Snapshot, error) {
	var rows []supabaseRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	snaps := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		doc, err := unmarshalDocument(row.Data)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, Snapshot{ID: row.ID, Path: collection.Doc(row.ID), Data: doc})
	}
	return snaps, nil
}

func encodedJSON(doc Document) (json.RawMessage, error) {
	raw, err := marshalDocument(doc)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// Get 读取单个文档
func (db *SupabaseDatabase) Get(ctx context.Context, doc Path) (*Snapshot, error) {
	if err := doc.validate(true); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("select", "id,data")
	params.Set("collection", "eq."+doc.Parent().String())
	params.Set("id", "eq."+doc.ID())

	data, err := db.makeRequest(ctx, http.MethodGet, "/documents?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	snaps, err := decodeRows(doc.Parent(), data)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	return &snaps[0], nil
}

// Set 写入文档
func (db *SupabaseDatabase) Set(ctx context.Context, doc Path, fields Document, merge bool) error {
	if err := doc.validate(true); err != nil {
		return err
	}
	payload := fields
	if !merge {
		payload = withoutNulls(fields)
	}
	raw, err := encodedJSON(payload)
	if err != nil {
		return err
	}

	_, err = db.rpc(ctx, "set_document", map[string]interface{}{
		"p_collection": doc.Parent().String(),
		"p_id":         doc.ID(),
		"p_data":       raw,
		"p_merge":      merge,
	})
	return err
}

// Add 以随机 ID 插入文档
func (db *SupabaseDatabase) Add(ctx context.Context, collection Path, fields Document) (string, error) {
	if err := collection.validate(false); err != nil {
		return "", err
	}
	raw, err := encodedJSON(withoutNulls(fields))
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	row := map[string]interface{}{"collection": collection.String(), "id": id, "data": raw}
	if _, err := db.makeRequest(ctx, http.MethodPost, "/documents", row); err != nil {
		return "", fmt.Errorf("failed to add document: %w", err)
	}
	return id, nil
}

// AddSequenced 通过 add_sequenced_document 函数在数据库内原子完成
func (db *SupabaseDatabase) AddSequenced(ctx context.Context, collection Path, fields Document, seq Sequence) (string, int64, error) {
	if err := collection.validate(false); err != nil {
		return "", 0, err
	}
	if err := seq.validate(); err != nil {
		return "", 0, err
	}
	raw, err := encodedJSON(withoutNulls(fields))
	if err != nil {
		return "", 0, err
	}
	filter, err := encodedJSON(filterObject(seq.Filters))
	if err != nil {
		return "", 0, err
	}

	id := uuid.New().String()
	data, err := db.rpc(ctx, "add_sequenced_document", map[string]interface{}{
		"p_collection": collection.String(),
		"p_id":         id,
		"p_data":       raw,
		"p_field":      seq.Field,
		"p_filter":     filter,
	})
	if err != nil {
		return "", 0, err
	}

	next, err := strconv.ParseInt(strings.Trim(strings.TrimSpace(string(data)), `"`), 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("unexpected sequence value %q: %w", data, err)
	}
	return id, next, nil
}

// Update 浅合并，不存在时返回 ErrNotFound
func (db *SupabaseDatabase) Update(ctx context.Context, doc Path, fields Document) error {
	if err := doc.validate(true); err != nil {
		return err
	}
	raw, err := encodedJSON(fields)
	if err != nil {
		return err
	}
	_, err = db.rpc(ctx, "merge_document", map[string]interface{}{
		"p_collection": doc.Parent().String(),
		"p_id":         doc.ID(),
		"p_fields":     raw,
	})
	return err
}

// Delete 删除文档，不存在时为空操作
func (db *SupabaseDatabase) Delete(ctx context.Context, doc Path) error {
	if err := doc.validate(true); err != nil {
		return err
	}
	params := url.Values{}
	params.Set("collection", "eq."+doc.Parent().String())
	params.Set("id", "eq."+doc.ID())
	if _, err := db.makeRequest(ctx, http.MethodDelete, "/documents?"+params.Encode(), nil); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Query 集合查询
func (db *SupabaseDatabase) Query(ctx context.Context, collection Path, q Query) ([]Snapshot, error) {
	if err := collection.validate(false); err != nil {
		return nil, err
	}
	if err := q.validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("select", "id,data")
	params.Set("collection", "eq."+collection.String())
	if len(q.Filters) > 0 {
		filter, err := marshalDocument(filterObject(q.Filters))
		if err != nil {
			return nil, err
		}
		params.Set("data", "cs."+string(filter))
	}
	if q.OrderBy != "" {
		params.Set("order", fmt.Sprintf("data->%s.%s,id.asc", q.OrderBy, strings.ToLower(q.Direction.String())))
	} else {
		params.Set("order", "id.asc")
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	data, err := db.makeRequest(ctx, http.MethodGet, "/documents?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	return decodeRows(collection, data)
}

// CommitBatch 通过 commit_batch 函数在单个事务中执行
func (db *SupabaseDatabase) CommitBatch(ctx context.Context, writes []Write) error {
	if err := validateWrites(writes); err != nil {
		return err
	}

	payload := make([]map[string]interface{}, 0, len(writes))
	for _, w := range writes {
		raw, err := encodedJSON(w.Fields)
		if err != nil {
			return err
		}
		payload = append(payload, map[string]interface{}{
			"collection": w.Path.Parent().String(),
			"id":         w.Path.ID(),
			"fields":     raw,
		})
	}

	_, err := db.rpc(ctx, "commit_batch", map[string]interface{}{"p_writes": payload})
	return err
}

// HealthCheck 健康检查
func (db *SupabaseDatabase) HealthCheck(ctx context.Context) error {
	_, err := db.makeRequest(ctx, http.MethodGet, "/documents?select=id&limit=1", nil)
	return err
}

// Close Supabase REST无需关闭
func (db *SupabaseDatabase) Close() error {
	db.httpClient.CloseIdleConnections()
	return nil
}
