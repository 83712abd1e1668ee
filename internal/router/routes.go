package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/octobees/lead-capture/internal/auth"
	"github.com/octobees/lead-capture/internal/config"
	"github.com/octobees/lead-capture/internal/handler"
	middlewarepkg "github.com/octobees/lead-capture/internal/middleware"
)

// Public write endpoints covered by the submit rate limiter.
var rateLimitedPaths = []string{"/submit-lead", "/submit_lead", "/subscribe"}

// Handlers aggregates HTTP handlers used by the router.
type Handlers struct {
	Auth        *handler.AuthHandler
	Leads       *handler.LeadHandler
	Admin       *handler.AdminHandler
	Subscribers *handler.SubscriberHandler
	Health      *handler.HealthHandler
}

// Register wires all HTTP routes for the API.
func Register(e *echo.Echo, cfg *config.Config, sessions *auth.SessionManager, handlers Handlers) {
	e.GET("/healthz", handlers.Health.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	limiter := middlewarepkg.SubmitRateLimiter(cfg.RateLimitSubmit, rateLimitedPaths...)
	e.POST("/submit-lead", handlers.Leads.Submit, limiter)
	e.POST("/submit_lead", handlers.Leads.SubmitWithCompany, limiter)
	e.GET("/leads/count", handlers.Leads.Count)

	e.POST("/subscribe", handlers.Subscribers.Subscribe, limiter)
	e.GET("/confirm/:token", handlers.Subscribers.Confirm)
	e.GET("/unsubscribe/:token", handlers.Subscribers.Unsubscribe)

	e.POST("/admin/login", handlers.Auth.Login)
	e.POST("/admin/logout", handlers.Auth.Logout)

	admin := e.Group("/admin", middlewarepkg.AdminSession(sessions), middlewarepkg.RequireRole(auth.RoleAdmin))
	admin.GET("", handlers.Admin.Dashboard)
	admin.GET("/export-leads", handlers.Admin.ExportLeads)
	admin.POST("/update-lead-status", handlers.Admin.UpdateLeadStatus)
	admin.POST("/update-lead", handlers.Admin.UpdateLead)
	admin.POST("/delete-lead", handlers.Admin.DeleteLead)
	admin.POST("/import-leads", handlers.Admin.ImportLeads)
	admin.GET("/leads/:id", handlers.Admin.GetLead)
	admin.DELETE("/leads/:id", handlers.Admin.DeleteLead)
	admin.GET("/subscribers/count", handlers.Subscribers.Count)
}
