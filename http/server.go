// http/server.go
package http

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ViniZap4/lumi-notes/auth"
	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/metrics"
	"github.com/ViniZap4/lumi-notes/notes"
	"github.com/ViniZap4/lumi-notes/ws"
)

// Deps are the collaborators a Server routes requests to.
type Deps struct {
	Notes    *notes.Repository
	Accounts *auth.Accounts
	Resolver *auth.Resolver
	Hub      *ws.Hub
	Metrics  *metrics.Metrics
	Log      zerolog.Logger

	// Ping checks the backing store for /healthz. Nil means always healthy.
	Ping func(ctx context.Context) error

	// CORSOrigins is a comma separated allow list, or "*".
	CORSOrigins string
}

type Server struct {
	app      *fiber.App
	notes    *notes.Repository
	accounts *auth.Accounts
	resolver *auth.Resolver
	hub      *ws.Hub
	metrics  *metrics.Metrics
	ping     func(ctx context.Context) error
	log      zerolog.Logger
}

type errorBody struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func NewServer(deps Deps) *Server {
	s := &Server{
		notes:    deps.Notes,
		accounts: deps.Accounts,
		resolver: deps.Resolver,
		hub:      deps.Hub,
		metrics:  deps.Metrics,
		ping:     deps.Ping,
		log:      deps.Log.With().Str("component", "http").Logger(),
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "lumi-notes",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
		BodyLimit:             1 << 20,
	})

	origins := deps.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(s.logRequests)
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type, Authorization",
	}))

	s.routes()
	return s
}

// App exposes the fiber app for listening and in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	gate := auth.Middleware(s.resolver)

	s.app.Get("/healthz", s.HandleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))

	api := s.app.Group("/api")
	api.Post("/auth/register", s.HandleRegister)
	api.Post("/auth/login", s.HandleLogin)
	api.Post("/auth/validate-token", s.HandleValidateToken)
	api.Get("/auth/me", gate, s.HandleMe)

	n := api.Group("/notes", gate)
	n.Get("/", s.HandleNotes)
	n.Post("/", s.HandleCreateNote)
	n.Post("/import", s.HandleImportNote)
	n.Get("/:id", s.HandleGetNote)
	n.Put("/:id", s.HandleUpdateNote)
	n.Delete("/:id", s.HandleDeleteNote)
	n.Get("/:id/export", s.HandleExportNote)

	s.app.Get("/ws", requireUpgrade, gate, websocket.New(s.HandleWebSocket))
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if err != nil {
		// Run the error handler now so the logged status is the one sent.
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	status := c.Response().StatusCode()
	latency := time.Since(start)
	route := c.Route().Path

	s.metrics.RequestDuration.
		WithLabelValues(c.Method(), route, strconv.Itoa(status)).
		Observe(latency.Seconds())

	ev := s.log.Info()
	if status >= fiber.StatusInternalServerError {
		ev = s.log.Error()
	}
	ev.Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("latency", latency).
		Msg("request")
	return nil
}

// handleError maps errors to responses. Authentication failures all look
// the same to the client; the kind only reaches logs and metrics.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var verr *domain.ValidationError
	var ferr *fiber.Error

	switch {
	case auth.IsAuthFailure(err):
		kind := auth.FailureKind(err)
		s.metrics.AuthFailures.WithLabelValues(kind).Inc()
		s.log.Debug().Str("kind", kind).Str("path", c.Path()).Msg("authentication failed")
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody{Message: "Authentication failed"})

	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody{Message: "Invalid login or password"})

	case errors.Is(err, auth.ErrLoginTaken):
		return c.Status(fiber.StatusConflict).JSON(errorBody{Message: "Login already registered", Field: "login"})

	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(errorBody{Message: verr.Message, Field: verr.Field})

	case errors.Is(err, domain.ErrNoteNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorBody{Message: "Note not found"})

	case errors.As(err, &ferr):
		return c.Status(ferr.Code).JSON(errorBody{Message: ferr.Message})
	}

	s.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(errorBody{Message: "Internal server error"})
}
