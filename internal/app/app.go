// Package app wires repositories, services and HTTP handlers into a router.
package app

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"projecthub/internal/config"
	"projecthub/internal/handler"
	"projecthub/internal/httpserver"
	"projecthub/internal/repository"
	"projecthub/internal/service"
	"projecthub/pkg/outbox"
)

type Options struct {
	Config *config.Config
	Store  repository.Store
	Redis  *redis.Client
	Logger *zap.Logger

	// Outbox 与 Publisher 都设置时才开启 outbox 管理接口
	Outbox    outbox.Store
	Publisher outbox.Publisher

	DB httpserver.Pinger
	MQ httpserver.ConnChecker
}

type Services struct {
	Auth          *service.AuthService
	Projects      *service.ProjectService
	Tasks         *service.TaskService
	Search        *service.SearchService
	Milestones    *service.MilestoneService
	Members       *service.MemberService
	Dashboard     *service.DashboardService
	Notifications *service.NotificationService
}

func NewServices(o Options) *Services {
	return &Services{
		Auth:          service.NewAuthService(o.Store, o.Redis, o.Config.JWT.Secret, o.Config.JWT.TTL, o.Logger),
		Projects:      service.NewProjectService(o.Store, o.Logger),
		Tasks:         service.NewTaskService(o.Store, o.Logger),
		Search:        service.NewSearchService(o.Store, o.Logger),
		Milestones:    service.NewMilestoneService(o.Store, o.Logger),
		Members:       service.NewMemberService(o.Store, o.Logger),
		Dashboard:     service.NewDashboardService(o.Store, o.Logger),
		Notifications: service.NewNotificationService(o.Store, o.Logger),
	}
}

// NewRouter 组装完整的 HTTP API
func NewRouter(o Options) (*httpserver.Router, *Services) {
	svcs := NewServices(o)
	errs := handler.ErrorMapper{
		ConcealForbidden: o.Config.Server.ConcealForbidden,
		Logger:           o.Logger,
	}

	handlers := httpserver.Handlers{
		Auth:          handler.NewAuthHandler(svcs.Auth, errs, o.Logger),
		Projects:      handler.NewProjectHandler(svcs.Projects, errs),
		Tasks:         handler.NewTaskHandler(svcs.Tasks, errs),
		Directory:     handler.NewDirectoryHandler(svcs.Search, svcs.Milestones, svcs.Members, svcs.Dashboard, errs),
		Notifications: handler.NewNotificationHandler(svcs.Notifications, errs),
	}
	if o.Outbox != nil && o.Publisher != nil {
		replay := outbox.NewReplayService(o.Outbox, o.Publisher, o.Logger)
		handlers.Admin = handler.NewAdminHandler(replay, o.Logger)
	}

	router := httpserver.NewRouter(httpserver.Deps{
		Handlers:    handlers,
		Auth:        svcs.Auth,
		Errors:      errs,
		SearchLimit: httpserver.NewRateLimiter(o.Config.Search.RatePerMinute, o.Config.Search.Burst),
		CORSOrigins: o.Config.Server.CORSOrigins,
		DB:          o.DB,
		MQ:          o.MQ,
		Logger:      o.Logger,
	})
	return router, svcs
}
