package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/identity"
	"meeting-todos-backend/pkg/middleware"
	"meeting-todos-backend/pkg/ordering"
	"meeting-todos-backend/pkg/session"
	"meeting-todos-backend/pkg/store"
	"meeting-todos-backend/pkg/utils"
)

// requireSession 取出已认证会话，失败时直接写 401
func requireSession(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	s, err := middleware.RequireSession(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return s, false
	}
	return s, true
}

// decodeBody 解析请求体，失败时写 400
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := utils.ParseJSONBody(r, v); err != nil {
		if errors.Is(err, io.EOF) {
			utils.WriteBadRequestResponse(w, "Request body is required")
			return false
		}
		utils.WriteBadRequestResponse(w, "Invalid JSON format")
		return false
	}
	return true
}

// resolveOrganisation 确定新建记录所属组织：请求指定的必须是用户所在组织，否则取第一个组织
func resolveOrganisation(w http.ResponseWriter, s session.Session, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		if !s.Profile.HasOrganisation(requested) {
			utils.WriteForbiddenResponse(w, "Not a member of organisation")
			return "", false
		}
		return requested, true
	}
	orgID := s.Profile.DefaultOrganisation()
	if orgID == "" {
		utils.WriteErrorResponseWithCode(w, http.StatusBadRequest, "NO_ORGANISATION", "Join or create an organisation first", "")
		return "", false
	}
	return orgID, true
}

// writeError 把领域错误映射为 HTTP 响应；存储错误只返回固定信息
func writeError(w http.ResponseWriter, logger *zap.Logger, err error, resource, action string) {
	switch {
	case errors.Is(err, store.ErrNoSession):
		utils.WriteUnauthorizedResponse(w, "Authentication required")
	case errors.Is(err, ordering.ErrInvalidUpdate):
		utils.WriteValidationErrorResponse(w, "Invalid order update", err.Error())
	case errors.Is(err, database.ErrNotFound):
		utils.WriteNotFoundResponse(w, resource+" not found")
	default:
		if authErr, ok := identity.AsAuthError(err); ok {
			utils.WriteErrorResponseWithCode(w, http.StatusUnauthorized, "UNAUTHORIZED", authErr.Message, authErr.Code)
			return
		}
		var storeErr *store.StoreError
		if !errors.As(err, &storeErr) {
			logger.Error("unexpected error", zap.String("action", action), zap.Error(err))
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to "+action+" "+resource)
	}
}
