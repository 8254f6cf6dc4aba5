package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Newton-b/shipsmart-sub002/internal/api/handler"
	"github.com/Newton-b/shipsmart-sub002/internal/core/ports"
)

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(service ports.TrackingService, db *mongo.Database, rdb *redis.Client, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)
	e.Validator = handler.NewValidator()

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echoprometheus.NewMiddleware("tracking_http"))

	// --- Handlers ---
	trackingHandler := handler.NewTrackingHandler(service)
	carrierHandler := handler.NewCarrierHandler(service)

	// --- Tracking routes ---
	e.GET("/v1/tracking/:tracking_number", trackingHandler.Get)
	e.GET("/v1/tracking/:tracking_number/latest", trackingHandler.Latest)
	e.GET("/v1/tracking/:tracking_number/history", trackingHandler.History)
	e.POST("/v1/tracking/batch", trackingHandler.Batch)

	// --- Carrier routes ---
	e.GET("/v1/carriers", carrierHandler.List)
	e.GET("/v1/carriers/health", carrierHandler.Health)

	// --- Health probes ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(db, rdb)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	// --- Metrics ---
	e.GET("/metrics", echoprometheus.NewHandler())

	return e
}
