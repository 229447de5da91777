// Package http serves the operator surface: probes, metrics, the audit trail
// and, in webhook mode, Telegram update deliveries.
package http

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetops/fleetbot/internal/core/ports"
	"github.com/fleetops/fleetbot/internal/infrastructure/http/handlers"
	"github.com/fleetops/fleetbot/internal/infrastructure/http/middleware"
)

// Deps collects what the ops router serves. Webhook is nil in poll mode.
type Deps struct {
	Checks       []handlers.Check
	Audit        ports.AuditReader
	Webhook      *handlers.WebhookHandler
	OpsJWTSecret string
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())

	ops := middleware.OpsAuth(d.OpsJWTSecret)

	// --- Health probes ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(d.Checks...)

	e.GET("/health", healthHandler.Liveness)                 // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness, ops) // readiness – are dependencies up?

	// --- Operator endpoints ---
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), ops)
	if d.Audit != nil {
		e.GET("/audit", handlers.NewAuditHandler(d.Audit).Recent, ops)
	}

	// --- Telegram ---
	if d.Webhook != nil {
		e.POST("/telegram/webhook", d.Webhook.Receive)
	}

	return e
}
