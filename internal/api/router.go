package api

import (
	"fmt"

	"eo-trader/internal/engine"
	"eo-trader/internal/storage"
	"eo-trader/internal/tracker"
	"eo-trader/pkg/types"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog/log"
)

// Server represents the API server
type Server struct {
	app     *fiber.App
	handler *Handler
	config  types.APIConfig
}

// NewServer creates a new API server
func NewServer(
	manager *engine.Manager,
	store *storage.MemoryStorage,
	tracker *tracker.ResultTracker,
	config types.APIConfig,
) *Server {
	app := fiber.New(fiber.Config{
		AppName: "eo-trader API",
	})

	if config.EnableCORS {
		app.Use(cors.New(cors.Config{
			AllowOrigins: "*",
			AllowMethods: "GET,OPTIONS",
			AllowHeaders: "Origin, Content-Type, Accept",
		}))
	}

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))

	return &Server{
		app:     app,
		handler: NewHandler(manager, store, tracker),
		config:  config,
	}
}

// SetupRoutes configures all API routes
func (s *Server) SetupRoutes() {
	api := s.app.Group("/api")

	api.Get("/health", s.handler.Health)
	api.Get("/assets", s.handler.GetAssets)

	api.Get("/trend/:asset", s.handler.GetTrend)
	api.Get("/candles/:asset/:timeframe", s.handler.GetCandles)

	api.Get("/signals/:asset", s.handler.GetSignals)
	api.Get("/results/:asset", s.handler.GetResults)
	api.Get("/stats", s.handler.GetAllStats)
	api.Get("/stats/:asset", s.handler.GetStats)

	if s.config.WebSocketEnabled {
		api.Get("/stream/:asset", websocket.New(s.handler.WebSocketHandler))
	}

	s.app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(fiber.Map{
			"error": "Not found",
			"path":  c.Path(),
		})
	})
}

// Start starts the API server
func (s *Server) Start() error {
	s.SetupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	log.Info().Str("addr", addr).Msg("API server starting")

	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
