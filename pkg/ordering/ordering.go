package ordering

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/models"
)

// Field names used by the order key.
const (
	FieldOrder     = "order"
	FieldCompleted = "completed"
	FieldUpdatedAt = "updatedAt"
)

// ErrInvalidUpdate 排序请求不合法，未执行任何写入
var ErrInvalidUpdate = errors.New("invalid order update")

// Sequence 新待办的 order 序列：未完成待办的 max(order)+1
func Sequence() database.Sequence {
	return database.Sequence{
		Field:   FieldOrder,
		Filters: []database.Filter{{Field: FieldCompleted, Value: false}},
	}
}

// Next 计算下一个 order；没有未完成待办时为 1
func Next(todos []models.Todo) int64 {
	var max int64
	for _, t := range todos {
		if !t.Completed && t.Order > max {
			max = t.Order
		}
	}
	return max + 1
}

// Assigner 在存储层上分配和批量修改 order
type Assigner struct {
	db  database.DatabaseInterface
	now func() time.Time
}

// NewAssigner 创建 Assigner
func NewAssigner(db database.DatabaseInterface) *Assigner {
	return &Assigner{db: db, now: time.Now}
}

// Append 插入一条未完成待办并原子地分配 order，返回 (id, order)
func (a *Assigner) Append(ctx context.Context, collection database.Path, fields database.Document) (string, int64, error) {
	doc := fields.Clone()
	doc[FieldCompleted] = false
	delete(doc, FieldOrder)

	id, order, err := a.db.AddSequenced(ctx, collection, doc, Sequence())
	if err != nil {
		return "", 0, err
	}
	return id, order, nil
}

// ValidateUpdates 检查空 ID、重复 ID 和小于 1 的 order
func ValidateUpdates(updates []models.OrderUpdate) error {
	seen := make(map[string]bool, len(updates))
	for i, u := range updates {
		if u.ID == "" {
			return fmt.Errorf("%w: updates[%d] has an empty id", ErrInvalidUpdate, i)
		}
		if seen[u.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidUpdate, u.ID)
		}
		if u.Order < 1 {
			return fmt.Errorf("%w: order for %q must be at least 1", ErrInvalidUpdate, u.ID)
		}
		seen[u.ID] = true
	}
	return nil
}

// Apply 用一个原子批次写入全部 (id, order)；任一失败则全部不生效
func (a *Assigner) Apply(ctx context.Context, collection database.Path, updates []models.OrderUpdate) error {
	if err := ValidateUpdates(updates); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	now := a.now().UTC()
	writes := make([]database.Write, 0, len(updates))
	for _, u := range updates {
		writes = append(writes, database.Write{
			Path: collection.Doc(u.ID),
			Fields: database.Document{
				FieldOrder:     u.Order,
				FieldUpdatedAt: now,
			},
		})
	}
	return a.db.CommitBatch(ctx, writes)
}

// Renumber 按用户给出的 ID 顺序生成 1..n
func Renumber(ids []string) []models.OrderUpdate {
	updates := make([]models.OrderUpdate, len(ids))
	for i, id := range ids {
		updates[i] = models.OrderUpdate{ID: id, Order: int64(i + 1)}
	}
	return updates
}

// SortByOrder order 升序，相同时按 createdAt、ID
func SortByOrder(todos []models.Todo) {
	sort.SliceStable(todos, func(i, j int) bool {
		a, b := todos[i], todos[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Partition 未完成按 order 升序，已完成按 updatedAt 降序
func Partition(todos []models.Todo) (active, completed []models.Todo) {
	active = make([]models.Todo, 0, len(todos))
	completed = make([]models.Todo, 0)
	for _, t := range todos {
		if t.Completed {
			completed = append(completed, t)
		} else {
			active = append(active, t)
		}
	}

	SortByOrder(active)
	sort.SliceStable(completed, func(i, j int) bool {
		return completed[i].UpdatedAt.After(completed[j].UpdatedAt)
	})
	return active, completed
}
