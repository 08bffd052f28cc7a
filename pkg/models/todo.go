package models

import "time"

// Priority 待办优先级
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid 是否为合法的优先级
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Todo represents a to-do stored under users/{createdBy}/todos.
// Order is only meaningful while Completed is false.
type Todo struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Completed      bool      `json:"completed"`
	CreatedBy      string    `json:"createdBy"`
	OrganisationID string    `json:"organisationId"`
	Order          int64     `json:"order"`
	DueDate        *Date     `json:"dueDate,omitempty"`
	Priority       Priority  `json:"priority,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewTodo 创建待办的输入
type NewTodo struct {
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	OrganisationID string   `json:"organisationId,omitempty"`
	DueDate        *Date    `json:"dueDate,omitempty"`
	Priority       Priority `json:"priority,omitempty"`
}

// TodoPatch 部分更新，nil 字段不修改
type TodoPatch struct {
	Title          *string   `json:"title,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Completed      *bool     `json:"completed,omitempty"`
	DueDate        *Date     `json:"dueDate,omitempty"`
	ClearDueDate   bool      `json:"clearDueDate,omitempty"`
	Priority       *Priority `json:"priority,omitempty"`
	OrganisationID *string   `json:"organisationId,omitempty"`
}

// IsEmpty 没有任何字段需要更新
func (p TodoPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil &&
		p.DueDate == nil && !p.ClearDueDate && p.Priority == nil && p.OrganisationID == nil
}

// OrderUpdate 一条排序更新
type OrderUpdate struct {
	ID    string `json:"id"`
	Order int64  `json:"order"`
}

// ReorderRequest 批量排序请求：updates 或按顺序排列的 ids 二选一
type ReorderRequest struct {
	Updates []OrderUpdate `json:"updates,omitempty"`
	IDs     []string      `json:"ids,omitempty"`
}

// PartitionedTodos 按完成状态分组的列表
type PartitionedTodos struct {
	Active    []Todo `json:"active"`
	Completed []Todo `json:"completed"`
}
