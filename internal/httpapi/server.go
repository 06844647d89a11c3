// Package httpapi is the HTTP/JSON shell over the negotiation core.
package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/molbhav/molbhav/internal/config"
	"github.com/molbhav/molbhav/internal/nego"
	"github.com/molbhav/molbhav/internal/service"
	"github.com/molbhav/molbhav/internal/store"
)

// Server binds the negotiation service to its HTTP surface.
type Server struct {
	app *fiber.App
	svc *service.Service
	st  *store.Store
	cfg *config.Config
	log *zap.Logger
}

// New builds the Fiber app with middleware and routes.
func New(svc *service.Service, st *store.Store, cfg *config.Config, log *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "Mol-Bhav",
		ErrorHandler: errorHandler,
	})

	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} - ${ip} - ${latency} - ${locals:requestid}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.CORSAllowedOrigins, ","),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Session-Token,X-API-Key",
	}))

	s := &Server{app: app, svc: svc, st: st, cfg: cfg, log: log}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", s.handleHealth)

	n := s.app.Group("/negotiate")
	n.Post("/start", s.handleStart)
	n.Post("/:session_id/offer", s.handleOffer)
	n.Get("/:session_id/status", s.handleStatus)

	admin := s.app.Group("/admin", s.requireAdminKey)
	admin.Post("/products", s.handleCreateProduct)
	admin.Get("/products", s.handleListProducts)
	admin.Get("/products/:product_id", s.handleGetProduct)
	admin.Get("/sessions/:session_id", s.handleAdminSession)
	admin.Get("/sessions/:session_id/history", s.handleAdminHistory)
}

// Listen serves until the listener fails or is shut down.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the router for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// statusForKind maps the core's error vocabulary onto HTTP statuses.
func statusForKind(kind nego.Kind) int {
	switch kind {
	case nego.KindBadInput:
		return fiber.StatusBadRequest
	case nego.KindBadToken:
		return fiber.StatusUnauthorized
	case nego.KindNoSession:
		return fiber.StatusNotFound
	case nego.KindBusy:
		return fiber.StatusConflict
	case nego.KindSessionClosed:
		return fiber.StatusGone
	case nego.KindValidationFailed:
		return fiber.StatusUnprocessableEntity
	case nego.KindCooldown, nego.KindRateLimited:
		return fiber.StatusTooManyRequests
	case nego.KindDialogueFailed:
		return fiber.StatusBadGateway
	case nego.KindDegraded:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		msg = e.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": "internal", "message": msg})
}

// fail renders a kinded error. Internal detail never reaches the wire.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	kind := nego.KindOf(err)
	msg := "internal error"
	var e *nego.Error
	if ok := asNegoError(err, &e); ok && kind != nego.KindInternal {
		msg = e.Msg
	}
	if kind == nego.KindInternal {
		s.log.Error("request failed",
			zap.String("request_id", requestID(c)), zap.Error(err))
	}
	return c.Status(statusForKind(kind)).JSON(fiber.Map{
		"error":   string(kind),
		"message": msg,
	})
}

func requestID(c *fiber.Ctx) string {
	if v, ok := c.Locals("requestid").(string); ok {
		return v
	}
	return ""
}
