package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"meeting-todos-backend/pkg/gql"
)

// GraphQLHandler 只读 GraphQL 查询
type GraphQLHandler struct {
	schema graphql.Schema
	logger *zap.Logger
}

func NewGraphQLHandler(schema graphql.Schema, logger *zap.Logger) *GraphQLHandler {
	return &GraphQLHandler{schema: schema, logger: logger}
}

// POST /api/graphql
func (h *GraphQLHandler) Query(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}

	var params struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}
	if !decodeBody(w, r, &params) {
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  params.Query,
		VariableValues: params.Variables,
		OperationName:  params.OperationName,
		Context:        gql.WithViewer(r.Context(), s, s.Profile),
	})
	if result.HasErrors() {
		h.logger.Debug("graphql query returned errors", zap.String("user", s.UserID()), zap.Any("errors", result.Errors))
	}

	// GraphQL 响应保持 {data, errors} 原样，不套用 APIResponse
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
