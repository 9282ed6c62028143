package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/commissionhub/commission-api/docs"
	"github.com/commissionhub/commission-api/internal/api/handler"
	"github.com/commissionhub/commission-api/internal/api/middleware"
	"github.com/commissionhub/commission-api/internal/core/ports"
)

// Dependencies are the services and settings the HTTP layer is built from.
type Dependencies struct {
	Works         ports.WorkService
	Profiles      ports.ProfileService
	Identity      ports.IdentityService
	Notifications ports.NotificationService

	SessionSecret  string
	MaxUploadBytes int64
	HealthChecks   map[string]handler.Checker
	Logger         zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Logger))
	e.Use(echoprometheus.NewMiddleware("commissions"))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(deps.Identity)
	workHandler := handler.NewWorkHandler(deps.Works, deps.MaxUploadBytes)
	userHandler := handler.NewUserHandler(deps.Profiles)
	notificationHandler := handler.NewNotificationHandler(deps.Notifications)
	auth := middleware.Auth(deps.SessionSecret)

	// --- Auth routes ---
	e.POST("/auth/callback", authHandler.Callback)

	v1 := e.Group("/v1")

	// --- Works ---
	works := v1.Group("/works", auth)
	works.POST("", workHandler.Create, middleware.IdempotencyKey())
	works.GET("/received", workHandler.ListReceived)
	works.GET("/sent", workHandler.ListSent)
	works.GET("/:id", workHandler.Get)
	works.POST("/:id/deliver", workHandler.Deliver, uploadLimit(deps.MaxUploadBytes))
	works.POST("/:id/upload-url", workHandler.UploadURL)
	works.POST("/:id/deliver/complete", workHandler.CompleteUpload)
	works.POST("/:id/reject", workHandler.Reject)
	works.POST("/:id/paid", workHandler.ConfirmPayment)
	works.GET("/:id/delivery", workHandler.Delivery)

	// --- Users and plans ---
	users := v1.Group("/users")
	users.GET("/me", userHandler.GetMe, auth)
	users.PUT("/me", userHandler.UpdateMe, auth)
	users.POST("/me/plans", userHandler.CreatePlan, auth)
	users.PUT("/me/plans/:id", userHandler.UpdatePlan, auth)
	users.DELETE("/me/plans/:id", userHandler.DeletePlan, auth)

	// Public profiles live under their own prefix so no handle collides with /users/me.
	profiles := v1.Group("/profiles")
	profiles.GET("/:handle", userHandler.GetPublic)
	profiles.GET("/:handle/stats", userHandler.Stats)

	// --- Notifications ---
	notifications := v1.Group("/notifications", auth)
	notifications.GET("", notificationHandler.List)
	notifications.GET("/unread-count", notificationHandler.UnreadCount)
	notifications.POST("/:id/read", notificationHandler.MarkRead)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.HealthChecks)

	e.GET("/health", healthHandler.Liveness)            // liveness: is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness: are dependencies up?

	// --- Operations ---
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
