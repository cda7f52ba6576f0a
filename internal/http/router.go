package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/geocoder89/memberhub/internal/auth"
	"github.com/geocoder89/memberhub/internal/config"
	"github.com/geocoder89/memberhub/internal/http/handlers"
	"github.com/geocoder89/memberhub/internal/http/middlewares"
	"github.com/geocoder89/memberhub/internal/observability"
	"github.com/geocoder89/memberhub/internal/session"
)

const maxBodyBytes = 64 << 10

// Deps are the collaborators built once at startup.
type Deps struct {
	Auth     *auth.Service
	Sessions *session.Manager
	// Prom is optional; without it /metrics is not mounted.
	Prom   *observability.Prom
	Checks map[string]handlers.Pinger
	// ShuttingDown, when set, fails /readyz during graceful shutdown.
	ShuttingDown func() bool
}

func NewRouter(log *slog.Logger, cfg config.Config, deps Deps) *gin.Engine {
	switch cfg.Env {
	case "dev":
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}

	r.SetHTMLTemplate(handlers.Templates())
	r.StaticFS("/static", handlers.Static())

	// probes
	h := handlers.NewHealthHandler(deps.Checks).WithShutdown(deps.ShuttingDown)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	if deps.Prom != nil {
		r.GET("/metrics", gin.WrapH(deps.Prom.Handler()))
	}

	now := deps.Sessions.Now
	cookies := handlers.NewSessionCookie(deps.Sessions, deps.Sessions.TTL(), cfg.IsProd())

	authHandler := handlers.NewAuthHandler(deps.Auth, cookies)
	membersHandler := handlers.NewMembersHandler(deps.Auth, now)
	adminHandler := handlers.NewAdminHandler(deps.Auth)
	lookupHandler := handlers.NewLookupHandler(deps.Auth)

	pages := r.Group("/")
	pages.Use(middlewares.LoadSession(deps.Sessions, handlers.SessionFault))
	{
		pages.GET("/", membersHandler.Home)
		pages.GET("/signup", authHandler.SignUpPage)
		pages.POST("/submitUser", authHandler.SubmitUser)
		pages.GET("/login", authHandler.LoginPage)
		pages.POST("/loggingin", authHandler.LoggingIn)
		pages.GET("/logout", authHandler.Logout)
		pages.POST("/logout", authHandler.Logout)
		pages.GET("/nosql-injection", lookupHandler.ByName)
	}

	gated := pages.Group("/")
	gated.Use(middlewares.RequireAuthenticated(now))
	{
		gated.GET("/members", membersHandler.Members)
		gated.GET("/admin", adminHandler.Admin)
		gated.GET("/admin/promote/:userId", adminHandler.Promote)
		gated.GET("/admin/demote/:userId", adminHandler.Demote)
	}

	r.NoRoute(handlers.NotFound)

	log.Info("router ready", "session_ttl", deps.Sessions.TTL().String(), "metrics", deps.Prom != nil)
	return r
}
