package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"meeting-todos-backend/pkg/config"
	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/utils"
)

// HealthHandler 健康检查
type HealthHandler struct {
	config *config.Config
	db     database.DatabaseInterface
	logger *zap.Logger
}

func NewHealthHandler(cfg *config.Config, db database.DatabaseInterface, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{config: cfg, db: db, logger: logger}
}

// Health GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]interface{}{
		"status":      "ok",
		"environment": h.config.Environment,
		"driver":      h.config.Database().ResolveDriver(),
		"time":        time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.db.HealthCheck(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		utils.WriteErrorResponseWithCode(w, http.StatusServiceUnavailable, "UNHEALTHY", "Database is unavailable", "")
		return
	}
	utils.WriteSuccessResponse(w, status)
}

// PoolStats GET /debug/db-pool（仅开发环境）
func (h *HealthHandler) PoolStats(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccessResponse(w, database.GetConnectionStats())
}
