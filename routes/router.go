package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"civic-governance-backend/api"
	"civic-governance-backend/handlers"
	"civic-governance-backend/service"
	"civic-governance-backend/websocket"
)

// Dependencies 路由需要的组件，可选组件为空时对应路由不注册
type Dependencies struct {
	Logger      zerolog.Logger
	JWTSecret   []byte
	CORSOrigins []string

	Elections  service.ElectionService
	Votings    service.VotingService
	Roles      api.RoleStore
	GrantQueue api.GrantQueue

	Health      *handlers.HealthHandler
	RateLimiter *handlers.RateLimiter
	QuizLimit   gin.HandlerFunc
	Cache       *handlers.CacheHandler
	Hub         *websocket.Hub
	SSE         *handlers.SSEBroker
}

// Server 是HTTP服务器的封装
type Server struct {
	*http.Server
}

// SetupRouter 设置和配置Gin路由
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger(deps.Logger))

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: len(deps.CORSOrigins) > 0,
		MaxAge:           12 * time.Hour,
	}))

	// 健康检查和指标端点不限流
	if deps.Health != nil {
		router.GET("/health", deps.Health.HealthCheck)
		router.GET("/status", deps.Health.SystemStatus)
	}
	router.GET("/metrics", handlers.MetricsHandler())

	// 实时事件推送
	if deps.Hub != nil {
		websocket.NewHandler(deps.Hub, deps.CORSOrigins).RegisterRoutes(router)
	}
	if deps.SSE != nil {
		router.GET("/sse/events", deps.SSE.HandleSSE)
	}

	public := router.Group("/api")
	protected := router.Group("/api", handlers.JWTAuth(deps.JWTSecret))
	if deps.RateLimiter != nil {
		public.Use(deps.RateLimiter.Middleware())
		protected.Use(deps.RateLimiter.Middleware())
	}

	api.NewElectionController(deps.Elections).RegisterRoutes(public, protected)
	api.NewVotingController(deps.Votings).RegisterRoutes(public, protected)
	api.NewContentController(deps.Votings, deps.QuizLimit).RegisterRoutes(public, protected)
	api.NewRoleController(deps.Roles, deps.GrantQueue, deps.Votings).RegisterRoutes(public, protected)

	// 管理员运维接口
	admin := protected.Group("/admin", handlers.AdminOnly(deps.Roles))
	{
		if deps.RateLimiter != nil {
			admin.GET("/ratelimit/stats", deps.RateLimiter.GetRateLimiterStats)
		}
		if deps.Cache != nil {
			admin.POST("/cache/clean", deps.Cache.CleanupRedisCache)
			admin.POST("/cache/rebuild-filter", deps.Cache.RebuildKeyFilter)
		}
	}

	return router
}

// StartServer 启动HTTP服务器
func StartServer(router *gin.Engine, addr string, logger zerolog.Logger) *Server {
	srv := &Server{
		&http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	// 在单独的goroutine中启动服务器
	go func() {
		logger.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	return srv
}
