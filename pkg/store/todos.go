package store

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/models"
	"meeting-todos-backend/pkg/ordering"
)

// Todos users/{uid}/todos 的数据访问
type Todos struct {
	base
	assigner *ordering.Assigner
}

// Create 创建待办并分配 order，返回新 ID
func (r *Todos) Create(ctx context.Context, scope Scope, in models.NewTodo) (string, error) {
	uid, err := userID(scope)
	if err != nil {
		return "", err
	}

	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	now := r.timestamp()
	fields := database.Document{
		"title":          in.Title,
		"description":    in.Description,
		"createdBy":      uid,
		"organisationId": in.OrganisationID,
		"priority":       string(priority),
		"createdAt":      now,
		"updatedAt":      now,
	}
	if due := dateField(in.DueDate); due != nil {
		fields["dueDate"] = due
	}

	coll := TodosOf(uid)
	id, order, err := r.assigner.Append(ctx, coll, fields)
	if err != nil {
		return "", r.fail("create todo in", coll, err)
	}
	r.logger.Debug("todo created", zap.String("user", uid), zap.String("id", id), zap.Int64("order", order))
	return id, nil
}

// List 当前用户的全部待办，按 order 升序（缺失 order 视为 0）
func (r *Todos) List(ctx context.Context, scope Scope) ([]models.Todo, error) {
	uid, err := userID(scope)
	if err != nil {
		return nil, err
	}

	// 不使用存储层排序：部分后端会排除缺少 order 字段的旧文档
	coll := TodosOf(uid)
	snaps, err := r.db.Query(ctx, coll, database.Query{})
	if err != nil {
		return nil, r.fail("list todos in", coll, err)
	}

	todos := make([]models.Todo, 0, len(snaps))
	for _, s := range snaps {
		todos = append(todos, todoFromSnapshot(s))
	}
	ordering.SortByOrder(todos)
	return todos, nil
}

// Get 读取单个待办
func (r *Todos) Get(ctx context.Context, scope Scope, id string) (*models.Todo, error) {
	uid, err := userID(scope)
	if err != nil {
		return nil, err
	}
	path := TodosOf(uid).Doc(id)
	snap, err := r.db.Get(ctx, path)
	if err != nil {
		return nil, r.fail("get todo", path, err)
	}
	todo := todoFromSnapshot(*snap)
	return &todo, nil
}

// Update 只合并给出的字段，并刷新 updatedAt
func (r *Todos) Update(ctx context.Context, scope Scope, id string, patch models.TodoPatch) error {
	uid, err := userID(scope)
	if err != nil {
		return err
	}
	fields := todoPatchFields(patch)
	fields["updatedAt"] = r.timestamp()

	path := TodosOf(uid).Doc(id)
	if err := r.db.Update(ctx, path, fields); err != nil {
		return r.fail("update todo", path, err)
	}
	return nil
}

// Delete 删除待办；ID 不存在时不报错
func (r *Todos) Delete(ctx context.Context, scope Scope, id string) error {
	uid, err := userID(scope)
	if err != nil {
		return err
	}
	path := TodosOf(uid).Doc(id)
	if err := r.db.Delete(ctx, path); err != nil {
		return r.fail("delete todo", path, err)
	}
	return nil
}

// Reorder 原子地批量修改 order
func (r *Todos) Reorder(ctx context.Context, scope Scope, updates []models.OrderUpdate) error {
	uid, err := userID(scope)
	if err != nil {
		return err
	}
	coll := TodosOf(uid)
	if err := r.assigner.Apply(ctx, coll, updates); err != nil {
		if errors.Is(err, ordering.ErrInvalidUpdate) {
			return err
		}
		return r.fail("reorder todos in", coll, err)
	}
	return nil
}
