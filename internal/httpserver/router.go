package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"projecthub/internal/handler"
	"projecthub/pkg/otel"
	"projecthub/pkg/rbac"
	"projecthub/pkg/trace"
)

// Pinger 用于 readiness 检查数据库
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnChecker 用于 readiness 检查 MQ 连接
type ConnChecker interface {
	IsConnected() bool
}

type Handlers struct {
	Auth          *handler.AuthHandler
	Projects      *handler.ProjectHandler
	Tasks         *handler.TaskHandler
	Directory     *handler.DirectoryHandler
	Notifications *handler.NotificationHandler
	// Admin 为 nil 时不注册 outbox 管理接口
	Admin *handler.AdminHandler
}

type Deps struct {
	Handlers    Handlers
	Auth        Authenticator
	Errors      handler.ErrorMapper
	SearchLimit *RateLimiter
	CORSOrigins []string
	DB          Pinger
	MQ          ConnChecker
	Logger      *zap.Logger
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(d Deps) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     d.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", trace.HeaderName},
			ExposeHeaders:    []string{trace.HeaderName},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(TraceMiddleware(), otel.GinMiddleware(), RequestLogger(d.Logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", readyHandler(d.DB, d.MQ))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := d.Handlers
	api := r.Group("/api")

	// Public
	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)

	// Protected
	auth := api.Group("/")
	auth.Use(AuthMiddleware(d.Auth, d.Errors))
	{
		auth.POST("/auth/logout", h.Auth.Logout)

		auth.GET("/projects", h.Projects.ListProjects)
		auth.POST("/projects", RequirePermission(rbac.PermissionCreateProject), h.Projects.CreateProject)
		auth.GET("/projects/:id", h.Projects.GetProject)
		auth.PUT("/projects/:id", h.Projects.UpdateProject)
		auth.PATCH("/projects/:id", h.Projects.UpdateProject)
		auth.DELETE("/projects/:id", h.Projects.DeleteProject)
		auth.POST("/projects/:id/members", h.Projects.AddMember)
		auth.DELETE("/projects/:id/members/:userId", h.Projects.RemoveMember)

		auth.GET("/tasks", h.Tasks.ListTasks)
		auth.POST("/tasks", h.Tasks.CreateTask)
		auth.GET("/tasks/:id", h.Tasks.GetTask)
		auth.PUT("/tasks/:id", h.Tasks.UpdateTask)
		auth.PATCH("/tasks/:id", h.Tasks.UpdateTask)
		auth.DELETE("/tasks/:id", h.Tasks.DeleteTask)

		search := []gin.HandlerFunc{RequirePermission(rbac.PermissionSearch)}
		if d.SearchLimit != nil {
			search = append(search, d.SearchLimit.Middleware())
		}
		auth.GET("/search", append(search, h.Directory.Search)...)
		auth.GET("/milestones", h.Directory.ListMilestones)
		auth.GET("/timeline", h.Projects.Timeline)
		auth.GET("/dashboard", h.Directory.Dashboard)
		auth.GET("/members", RequirePermission(rbac.PermissionReadMembers), h.Directory.ListMembers)

		auth.GET("/notifications", h.Notifications.ListNotifications)
		auth.POST("/notifications/read-all", h.Notifications.MarkAllRead)
		auth.POST("/notifications/:id/read", h.Notifications.MarkRead)

		if h.Admin != nil {
			admin := auth.Group("/admin", RequirePermission(rbac.PermissionReplayOutbox))
			admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
			admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
		}
	}

	return &Router{Engine: r}
}

func readyHandler(db Pinger, mq ConnChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
				return
			}
		}
		if mq != nil && !mq.IsConnected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq_not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
