package handler

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"meeting-todos-backend/pkg/config"
	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/gql"
	"meeting-todos-backend/pkg/handlers"
	"meeting-todos-backend/pkg/identity"
	"meeting-todos-backend/pkg/logging"
	customMiddleware "meeting-todos-backend/pkg/middleware"
	"meeting-todos-backend/pkg/session"
	"meeting-todos-backend/pkg/store"
	"meeting-todos-backend/pkg/utils"
)

var (
	routerOnce sync.Once
	router     http.Handler
	routerErr  error
)

// Handler 是Vercel函数的入口点
// 所有API端点集中在一个Chi路由器中；路由器在冷启动时构建一次，热调用复用
func Handler(w http.ResponseWriter, r *http.Request) {
	routerOnce.Do(func() {
		router, routerErr = buildFromEnvironment(context.Background())
	})
	if routerErr != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+routerErr.Error())
		return
	}
	router.ServeHTTP(w, r)
}

// buildFromEnvironment 加载配置、连接数据库并创建身份提供方
func buildFromEnvironment(ctx context.Context) (http.Handler, error) {
	cfg, err := config.GetCached()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.Must(cfg.Environment, cfg.LogLevel)

	// 连接由进程级连接池管理，无需手动关闭
	db, err := database.GetDatabase(ctx, cfg.Database(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	provider, err := BuildProvider(ctx, cfg, db, logger)
	if err != nil {
		return nil, err
	}

	return NewRouter(cfg, db, provider, logger)
}

// BuildProvider 按配置创建身份提供方；自签令牌的登出记录写入 users/{uid}，所有实例共享
func BuildProvider(ctx context.Context, cfg *config.Config, db database.DatabaseInterface, logger *zap.Logger) (identity.Provider, error) {
	switch cfg.IdentityProvider {
	case config.IdentityFirebase:
		return identity.NewFirebaseProvider(ctx, cfg.FirebaseProjectID, cfg.GoogleCredentialsFile, logger)
	case config.IdentityGoogle, "":
		tokens := identity.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, store.New(db, logger).Users)
		return identity.NewGoogleProvider(identity.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURI:  cfg.OAuthRedirectURI,
		}, tokens, logger), nil
	default:
		return nil, fmt.Errorf("unknown identity provider %q", cfg.IdentityProvider)
	}
}

// NewRouter 创建路由器
func NewRouter(cfg *config.Config, db database.DatabaseInterface, provider identity.Provider, logger *zap.Logger) (http.Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	st := store.New(db, logger)
	schema, err := gql.NewSchema(st)
	if err != nil {
		return nil, fmt.Errorf("failed to build graphql schema: %w", err)
	}

	r := chi.NewRouter()
	setupMiddleware(r, cfg, logger)
	setupRoutes(r, cfg, routeDeps{
		db:       db,
		store:    st,
		provider: provider,
		resolver: session.NewResolver(st, cfg.BootstrapOrganisation, logger),
		schema:   schema,
		logger:   logger,
	})
	return r, nil
}

type routeDeps struct {
	db       database.DatabaseInterface
	store    *store.Store
	provider identity.Provider
	resolver session.ProfileResolver
	schema   graphql.Schema
	logger   *zap.Logger
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config, logger *zap.Logger) {
	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.RequestLogger(logger))
	router.Use(customMiddleware.Recovery(cfg, logger))

	// CORS中间件
	router.Use(customMiddleware.CORS(cfg))

	// 超时中间件（Vercel函数有时间限制）
	if cfg.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	router.Use(customMiddleware.MaxBodySize(cfg.MaxBodyBytes))
	router.Use(customMiddleware.ContentTypeJSON)

	router.Use(middleware.Compress(5))
	router.Use(middleware.Heartbeat("/ping"))
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, cfg *config.Config, deps routeDeps) {
	authHandler := handlers.NewAuthHandler(cfg, deps.provider, deps.resolver, deps.logger)
	healthHandler := handlers.NewHealthHandler(cfg, deps.db, deps.logger)
	orgsHandler := handlers.NewOrganisationsHandler(deps.store, deps.logger)
	todosHandler := handlers.NewTodosHandler(deps.store, deps.logger)
	meetingsHandler := handlers.NewMeetingsHandler(deps.store, deps.logger)
	graphqlHandler := handlers.NewGraphQLHandler(deps.schema, deps.logger)

	validate := customMiddleware.ValidateJSON
	authenticate := customMiddleware.Authenticate(deps.provider, deps.resolver, deps.logger)

	router.Get("/", healthHandler.Health)

	// 连接池状态（调试用）
	if cfg.IsDevelopment() {
		router.Get("/debug/db-pool", healthHandler.PoolStats)
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)

		// 公开路由（不需要认证）
		r.Route("/auth", func(r chi.Router) {
			r.With(validate(handlers.SignInSchema)).Post("/signin", authHandler.SignIn)
			r.With(validate(handlers.RefreshSchema)).Post("/refresh", authHandler.Refresh)
			r.Get("/google/url", authHandler.GoogleURL)
			r.With(authenticate).Post("/logout", authHandler.Logout)
		})

		// 需要认证的路由
		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Get("/profile", handlers.Profile)

			r.Route("/organisations", func(r chi.Router) {
				r.Get("/", orgsHandler.List)
				r.With(validate(handlers.CreateOrganisationSchema)).Post("/", orgsHandler.Create)
				r.With(validate(handlers.CreateOrganisationSchema)).Patch("/{id}", orgsHandler.Rename)
			})

			r.Route("/todos", func(r chi.Router) {
				r.Get("/", todosHandler.List)
				r.With(validate(handlers.CreateTodoSchema)).Post("/", todosHandler.Create)
				r.With(validate(handlers.ReorderSchema)).Post("/reorder", todosHandler.Reorder)
				r.Get("/{id}", todosHandler.Get)
				r.With(validate(handlers.UpdateTodoSchema)).Patch("/{id}", todosHandler.Update)
				r.Delete("/{id}", todosHandler.Delete)
			})

			r.Route("/meetings", func(r chi.Router) {
				r.Get("/", meetingsHandler.List)
				r.With(validate(handlers.CreateMeetingSchema)).Post("/", meetingsHandler.Create)
				r.Get("/{id}", meetingsHandler.Get)
				r.With(validate(handlers.UpdateMeetingSchema)).Patch("/{id}", meetingsHandler.Update)
				r.Delete("/{id}", meetingsHandler.Delete)
			})

			r.With(validate(handlers.GraphQLSchema)).Post("/graphql", graphqlHandler.Query)
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}
