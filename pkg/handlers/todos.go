package handlers

import (
	"net/http"

	chiRoute "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"meeting-todos-backend/pkg/models"
	"meeting-todos-backend/pkg/ordering"
	"meeting-todos-backend/pkg/store"
	"meeting-todos-backend/pkg/utils"
)

// TodosHandler 待办
type TodosHandler struct {
	todos  *store.Todos
	logger *zap.Logger
}

func NewTodosHandler(st *store.Store, logger *zap.Logger) *TodosHandler {
	return &TodosHandler{todos: st.Todos, logger: logger}
}

// GET /api/todos[?view=partitioned]
func (h *TodosHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	todos, err := h.todos.List(r.Context(), s)
	if err != nil {
		writeError(w, h.logger, err, "todos", "load")
		return
	}

	if utils.GetQueryParam(r, "view", "") == "partitioned" {
		active, completed := ordering.Partition(todos)
		if active == nil {
			active = []models.Todo{}
		}
		if completed == nil {
			completed = []models.Todo{}
		}
		utils.WriteSuccessResponse(w, models.PartitionedTodos{Active: active, Completed: completed})
		return
	}
	if todos == nil {
		todos = []models.Todo{}
	}
	utils.WriteSuccessResponse(w, todos)
}

// POST /api/todos
func (h *TodosHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req models.NewTodo
	if !decodeBody(w, r, &req) {
		return
	}
	orgID, ok := resolveOrganisation(w, s, req.OrganisationID)
	if !ok {
		return
	}
	req.OrganisationID = orgID

	id, err := h.todos.Create(r.Context(), s, req)
	if err != nil {
		writeError(w, h.logger, err, "todo", "create")
		return
	}
	h.writeTodo(w, r, s, id, http.StatusCreated)
}

// GET /api/todos/{id}
func (h *TodosHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	h.writeTodo(w, r, s, chiRoute.URLParam(r, "id"), http.StatusOK)
}

// PATCH /api/todos/{id}
func (h *TodosHandler) Update(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	var patch models.TodoPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	if patch.IsEmpty() {
		utils.WriteBadRequestResponse(w, "No fields to update")
		return
	}
	if patch.OrganisationID != nil {
		if _, ok := resolveOrganisation(w, s, *patch.OrganisationID); !ok {
			return
		}
	}

	id := chiRoute.URLParam(r, "id")
	if err := h.todos.Update(r.Context(), s, id, patch); err != nil {
		writeError(w, h.logger, err, "todo", "update")
		return
	}
	h.writeTodo(w, r, s, id, http.StatusOK)
}

// DELETE /api/todos/{id}
func (h *TodosHandler) Delete(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	if err := h.todos.Delete(r.Context(), s, chiRoute.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err, "todo", "delete")
		return
	}
	utils.WriteNoContentResponse(w)
}

// POST /api/todos/reorder
func (h *TodosHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req models.ReorderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	updates := req.Updates
	if len(req.IDs) > 0 {
		updates = ordering.Renumber(req.IDs)
	}
	if len(updates) == 0 {
		utils.WriteBadRequestResponse(w, "No order updates given")
		return
	}

	if err := h.todos.Reorder(r.Context(), s, updates); err != nil {
		writeError(w, h.logger, err, "todo", "reorder")
		return
	}
	utils.WriteSuccessResponse(w, map[string]int{"updated": len(updates)})
}

func (h *TodosHandler) writeTodo(w http.ResponseWriter, r *http.Request, scope store.Scope, id string, status int) {
	todo, err := h.todos.Get(r.Context(), scope, id)
	if err != nil {
		writeError(w, h.logger, err, "todo", "load")
		return
	}
	utils.WriteJSONResponse(w, status, todo)
}
