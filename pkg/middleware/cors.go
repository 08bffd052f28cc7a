package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"meeting-todos-backend/pkg/config"
)

// CORS 创建CORS中间件
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
			http.MethodPatch,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
			"Cache-Control",
		},
		ExposedHeaders: []string{
			"X-Request-Id",
		},
		MaxAge: 300, // 5分钟
	}

	// 配置了具体来源时才允许凭据（AllowedOrigins 为 * 时不能设置 AllowCredentials）
	if len(cfg.AllowedOrigins) == 0 || cfg.IsDevelopment() {
		corsOptions.AllowedOrigins = []string{"*"}
	}
	for _, origin := range corsOptions.AllowedOrigins {
		if origin == "*" {
			corsOptions.AllowCredentials = false
			return cors.Handler(corsOptions)
		}
	}
	corsOptions.AllowCredentials = true

	return cors.Handler(corsOptions)
}
