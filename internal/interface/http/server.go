// Package http exposes the engine over a JSON REST API built on fiber.
//
// Every /v1 route sits behind the gateway bearer token; the gateway also
// resolves the caller and forwards it in X-User-ID. Operator routes under
// /v1/admin additionally require X-Admin-Token.
package http

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/habitquest/duel-engine/internal/application/command"
	"github.com/habitquest/duel-engine/internal/application/query"
	"github.com/habitquest/duel-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// BodyLimit caps request bodies in bytes.
	BodyLimit int

	// GatewayToken is the expected bearer token. Empty disables the check.
	GatewayToken string

	// AdminToken guards /v1/admin. Empty closes those routes.
	AdminToken string

	// AllowedOrigins for CORS, comma separated. Empty disables CORS.
	AllowedOrigins string

	// Location interprets completion dates. Defaults to UTC.
	Location *time.Location

	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BodyLimit:    64 * 1024,
		Location:     time.UTC,
	}
}

// Address returns the listen address.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains the application handlers the routes call.
type Dependencies struct {
	// Commands
	ProposeChallenge   *command.ProposeChallengeHandler
	RespondToChallenge *command.RespondToChallengeHandler
	CancelChallenge    *command.CancelChallengeHandler
	SettleChallenge    *command.SettleChallengeHandler
	RecordCompletion   *command.RecordCompletionHandler
	GrantXP            *command.GrantXPHandler

	// Queries
	Challenges      *query.ChallengeReader
	GetLevelInfo    *query.GetLevelInfoHandler
	GetXPHistory    *query.GetXPHistoryHandler
	SuggestStake    *query.SuggestStakeHandler
	ClassifyPersona *query.ClassifyPersonaHandler

	Health *HealthChecker
	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the API server.
type Server struct {
	config Config
	deps   Dependencies
	app    *fiber.App
	log    *logger.Logger

	mu      sync.RWMutex
	running bool
}

// NewServer builds the fiber app and its routes.
func NewServer(config Config, deps Dependencies) *Server {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Health == nil {
		deps.Health = NewHealthChecker(config.Version)
	}

	s := &Server{
		config: config,
		deps:   deps,
		log:    deps.Logger.With(logger.Component("http")),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "duel-engine",
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		IdleTimeout:           config.IdleTimeout,
		BodyLimit:             config.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(s.log),
	})

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(requestid.New(requestid.Config{
		Header:     HeaderRequestID,
		Generator:  uuid.NewString,
		ContextKey: localRequestID,
	}))
	s.app.Use(requestLogger(s.log))
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			s.log.Error("panic recovered",
				logger.Any("panic", e),
				logger.String("path", c.Path()),
				logger.String("request_id", requestID(c)),
			)
		},
	}))
	if s.config.AllowedOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: s.config.AllowedOrigins,
			AllowMethods: "GET,POST,OPTIONS",
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-User-ID",
			MaxAge:       86400,
		}))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health
	// ─────────────────────────────────────────────────────────────────────────
	s.app.Get("/healthz", s.handleHealth)

	v1 := s.app.Group("/v1", gatewayAuth(s.config.GatewayToken, s.log))

	// ─────────────────────────────────────────────────────────────────────────
	// Public calculators
	// ─────────────────────────────────────────────────────────────────────────
	v1.Get("/levels/:xp", s.handleLevelForXP)

	// ─────────────────────────────────────────────────────────────────────────
	// Operator
	// ─────────────────────────────────────────────────────────────────────────
	v1.Post("/admin/xp-grants", adminAuth(s.config.AdminToken), s.handleGrantXP)

	// ─────────────────────────────────────────────────────────────────────────
	// Caller-scoped
	// ─────────────────────────────────────────────────────────────────────────
	caller := callerIdentity()

	v1.Post("/challenges", caller, s.handleProposeChallenge)
	v1.Get("/challenges/:id", caller, s.handleGetChallenge)
	v1.Post("/challenges/:id/respond", caller, s.handleRespondToChallenge)
	v1.Post("/challenges/:id/cancel", caller, s.handleCancelChallenge)
	v1.Post("/challenges/:id/settle", caller, s.handleSettleChallenge)

	v1.Post("/completions", caller, s.handleRecordCompletion)

	v1.Get("/users/:id/level", caller, s.handleGetLevel)
	v1.Get("/users/:id/challenges", caller, s.handleListChallenges)
	v1.Get("/users/:id/xp-history", caller, s.handleXPHistory)

	v1.Get("/stakes/suggestion", caller, s.handleSuggestStake)
	v1.Post("/persona/classify", caller, s.handleClassifyPersona)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// App exposes the fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App { return s.app }

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info("starting HTTP server", logger.String("address", s.config.Address()))
	if err := s.app.Listen(s.config.Address()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine. The channel yields a listen
// error, if any, and is closed when the server stops.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.log.Info("shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
