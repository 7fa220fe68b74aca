package status

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-migrator/internal/observability"
)

// Server exposes live run progress for operators watching a long migration.
type Server struct {
	app    *fiber.App
	logger *zap.Logger
}

// NewServer wires the progress counters into a minimal fiber app.
func NewServer(progress *observability.Progress, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "running",
			"counters": progress.Snapshot(),
		})
	})

	return &Server{app: app, logger: logger}
}

// Start listens in the background; a bind failure is logged, not fatal,
// because the endpoint is purely informational.
func (s *Server) Start(addr string) {
	go func() {
		if err := s.app.Listen(addr); err != nil {
			s.logger.Warn("status endpoint unavailable", zap.Error(err))
		}
	}()
	s.logger.Info("status endpoint listening", zap.String("addr", addr))
}

// Shutdown stops the listener.
func (s *Server) Shutdown() {
	if s == nil || s.app == nil {
		return
	}
	_ = s.app.Shutdown()
}
