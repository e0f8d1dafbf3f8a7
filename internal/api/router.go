package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/phonebook/contacts-api/docs"
	"github.com/phonebook/contacts-api/internal/api/handler"
	"github.com/phonebook/contacts-api/internal/api/middleware"
	"github.com/phonebook/contacts-api/internal/core/ports"
	"github.com/phonebook/contacts-api/internal/infrastructure/storage"
	"github.com/phonebook/contacts-api/internal/pkg/config"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Config         *config.Config
	Logger         zerolog.Logger
	ContactService ports.ContactService
	AuthService    ports.AuthService
	// Redis backs the rate limiter; nil disables it.
	Redis *redis.Client
	// Readiness lists the dependencies /health/ready pings.
	Readiness map[string]handler.Pinger
	// UploadDir is served under /uploads when photos are stored locally.
	UploadDir string
	// Registerer receives the HTTP metrics; nil means the default registry.
	Registerer prometheus.Registerer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	cfg := deps.Config

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(deps.Logger))
	e.Use(echomiddleware.BodyLimit(cfg.MaxUploadSize))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "http",
		Registerer: deps.Registerer,
	}))

	// --- Operational routes (no auth required) ---
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Readiness)
	e.GET("/health", healthHandler.Liveness)            // liveness: is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness: are dependencies up?

	if deps.UploadDir != "" {
		e.Static(storage.UploadsRoute, deps.UploadDir)
	}

	// --- Auth routes ---
	authHandler := handler.NewAuthHandler(deps.AuthService)
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)

	// --- Contacts (authenticated, scoped to the caller) ---
	contactHandler := handler.NewContactHandler(deps.ContactService)
	contacts := e.Group("/contacts",
		middleware.Auth(cfg.JWTSecret),
		middleware.RateLimit(cfg.RateLimit, deps.Redis, deps.Logger),
	)
	validID := middleware.ValidID("contactId")

	contacts.GET("", contactHandler.List)
	contacts.POST("", contactHandler.Create)
	contacts.GET("/:contactId", contactHandler.Get, validID)
	contacts.PATCH("/:contactId", contactHandler.Patch, validID)
	contacts.DELETE("/:contactId", contactHandler.Delete, validID)

	return e
}
