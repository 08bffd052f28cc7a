package database

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNotFound 文档不存在
	ErrNotFound = errors.New("document not found")
	// ErrInvalidPath 路径格式错误（集合路径为奇数段，文档路径为偶数段）
	ErrInvalidPath = errors.New("invalid document path")
	// ErrInvalidQuery 查询或批量写入参数错误
	ErrInvalidQuery = errors.New("invalid query")
)

// Path 以 "/" 分隔的集合或文档路径，例如 users/u1/todos/t1
type Path string

// Collection 由路径段拼出集合路径
func Collection(segments ...string) Path {
	return Path(strings.Join(segments, "/"))
}

// Doc 集合下的文档路径
func (p Path) Doc(id string) Path {
	return Path(string(p) + "/" + id)
}

// Collection 文档下的子集合路径
func (p Path) Collection(name string) Path {
	return Path(string(p) + "/" + name)
}

// ID 最后一段
func (p Path) ID() string {
	s := string(p)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Parent 去掉最后一段
func (p Path) Parent() Path {
	s := string(p)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return Path(s[:i])
	}
	return ""
}

// IsDocument 偶数段为文档路径
func (p Path) IsDocument() bool {
	return len(strings.Split(string(p), "/"))%2 == 0
}

func (p Path) String() string { return string(p) }

// validate 检查路径段非空且奇偶性正确
func (p Path) validate(document bool) error {
	if p == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, seg := range strings.Split(string(p), "/") {
		if strings.TrimSpace(seg) == "" {
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, p)
		}
	}
	if p.IsDocument() != document {
		kind := "collection"
		if document {
			kind = "document"
		}
		return fmt.Errorf("%w: %q is not a %s path", ErrInvalidPath, p, kind)
	}
	return nil
}

// Document 单个文档的字段
type Document map[string]interface{}

// Clone 浅拷贝
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Snapshot 读取到的文档
type Snapshot struct {
	ID   string
	Path Path
	Data Document
}

// Direction 排序方向
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// Filter 顶层字段等值过滤
type Filter struct {
	Field string
	Value interface{}
}

// Query 集合查询
type Query struct {
	Filters   []Filter
	OrderBy   string
	Direction Direction
	Limit     int
}

// Write 批量写入中的一条部分更新
type Write struct {
	Path   Path
	Fields Document
}

// Sequence 描述 max(Field over docs matching Filters) + 1
type Sequence struct {
	Field   string
	Filters []Filter
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validField 字段名会被拼进 SQL/JSON 路径，只允许标识符
func validField(name string) error {
	if !fieldNamePattern.MatchString(name) {
		return fmt.Errorf("%w: field name %q", ErrInvalidQuery, name)
	}
	return nil
}

func (q Query) validate() error {
	for _, f := range q.Filters {
		if err := validField(f.Field); err != nil {
			return err
		}
	}
	if q.OrderBy != "" {
		if err := validField(q.OrderBy); err != nil {
			return err
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	return nil
}

func (s Sequence) validate() error {
	if err := validField(s.Field); err != nil {
		return err
	}
	for _, f := range s.Filters {
		if err := validField(f.Field); err != nil {
			return err
		}
	}
	return nil
}

func validateWrites(writes []Write) error {
	for _, w := range writes {
		if err := w.Path.validate(true); err != nil {
			return err
		}
		if len(w.Fields) == 0 {
			return fmt.Errorf("%w: empty write for %q", ErrInvalidQuery, w.Path)
		}
	}
	return nil
}

// filterObject 把等值过滤合成一个 JSON 对象，用于 @> / JSON_CONTAINS / cs.
func filterObject(filters []Filter) Document {
	obj := Document{}
	for _, f := range filters {
		obj[f.Field] = f.Value
	}
	return obj
}
