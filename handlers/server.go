// Package handlers is the HTTP surface of the tracking service: the
// websocket endpoint, the REST fallback, zone management, health and
// metrics.
package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "food-delivery/tracking/docs"
	"food-delivery/tracking/durable"
	"food-delivery/tracking/geofence"
	"food-delivery/tracking/location"
	"food-delivery/tracking/models"
	"food-delivery/tracking/position"
)

const defaultOutboxSize = 64

// Deps is everything the HTTP surface needs. Backends is the list of
// durable capabilities reported by /health.
type Deps struct {
	Gateway    *location.Gateway
	Positions  *position.Store
	Zones      *geofence.Index
	Backends   []*durable.Capability
	JWTSecret  string
	OutboxSize int
	Logger     *slog.Logger
}

// Server holds the connection lifecycle state for one process. There is no
// package-level state besides the prometheus collectors.
type Server struct {
	gateway    *location.Gateway
	positions  *position.Store
	zones      *geofence.Index
	backends   []*durable.Capability
	jwtSecret  string
	outboxSize int
	validate   *validator.Validate
	metrics    Metrics
	log        *slog.Logger
}

func NewServer(d Deps) *Server {
	s := &Server{
		gateway:    d.Gateway,
		positions:  d.Positions,
		zones:      d.Zones,
		backends:   d.Backends,
		jwtSecret:  d.JWTSecret,
		outboxSize: d.OutboxSize,
		validate:   validator.New(),
		log:        d.Logger,
	}
	if s.outboxSize <= 0 {
		s.outboxSize = defaultOutboxSize
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

type AppConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int
	AccessLog      bool
}

// NewApp builds the fiber application with every route mounted.
func NewApp(s *Server, cfg AppConfig) *fiber.App {
	fcfg := fiber.Config{
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	}
	if cfg.MaxConnections > 0 {
		fcfg.Concurrency = cfg.MaxConnections
	}
	app := fiber.New(fcfg)

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}
	app.Use(cors.New())
	app.Use(metricsMiddleware())

	s.Routes(app)
	return app
}

func (s *Server) Routes(app *fiber.App) {
	app.Get("/health", s.healthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/geofences", s.listGeofences)
	app.Post("/geofences", s.createGeofence)

	orders := app.Group("/orders")
	orders.Put("/:orderId/location/:role", s.putOrderLocation)
	orders.Get("/:orderId/location/:role", s.getOrderLocation)

	app.Use("/ws", s.ValidateToken)
	app.Get("/ws", websocket.New(s.handleWebSocket))
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	switch {
	case errors.As(err, &e):
		code = e.Code
	case errors.Is(err, models.ErrInvalidCoordinate),
		errors.Is(err, models.ErrInvalidGeometry),
		errors.Is(err, models.ErrInvalidPayload):
		code = fiber.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		code = fiber.StatusNotFound
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// healthCheck godoc
// @Summary Liveness check
// @Description Reports per-backend availability. Degraded backends never fail the check.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (s *Server) healthCheck(c *fiber.Ctx) error {
	backends := make(map[string]string, len(s.backends))
	for _, b := range s.backends {
		backends[b.Name()] = b.State().String()
	}
	return c.JSON(fiber.Map{
		"status":   "ok",
		"time":     time.Now().UTC(),
		"backends": backends,
	})
}
