// Package server contains the HTTP and WebSocket handlers for the API.
package server

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "askallery/docs" // swagger docs
	"askallery/internal/auth"
	"askallery/internal/bootstrap"
	"askallery/internal/cache"
	"askallery/internal/config"
	"askallery/internal/gate"
	"askallery/internal/middleware"
	"askallery/internal/models"
	"askallery/internal/notifications"
	"askallery/internal/repository"
	"askallery/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const mediaPrefix = "/media"

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	tokens         *auth.Tokens
	notifier       *notifications.Notifier
	presence       *notifications.Presence
	gate           *gate.Gate
	userRepo       repository.UserRepository
	postRepo       repository.PostRepository
	commentRepo    repository.CommentRepository
	ledgerRepo     repository.LedgerRepository
	userService    *service.UserService
	postService    *service.PostService
	ledgerService  *service.LedgerService
}

type serverDeps struct {
	oracle gate.Oracle
	mailer service.Mailer
}

// Option overrides a collaborator the server would otherwise build from config.
type Option func(*serverDeps)

// WithOracle replaces the reverse image search oracle.
func WithOracle(o gate.Oracle) Option {
	return func(d *serverDeps) { d.oracle = o }
}

// WithMailer replaces the SMTP mailer.
func WithMailer(m service.Mailer) Option {
	return func(d *serverDeps) { d.mailer = m }
}

// NewServer connects to the database and Redis and builds a server on top.
func NewServer(cfg *config.Config, rt bootstrap.Options, opts ...Option) (*Server, error) {
	db, redisClient, err := bootstrap.InitRuntime(cfg, rt)
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, redisClient, opts...)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	deps := serverDeps{}
	for _, opt := range opts {
		opt(&deps)
	}

	imageGate, err := buildGate(cfg, deps.oracle)
	if err != nil {
		return nil, err
	}

	mailer := deps.mailer
	if mailer == nil && cfg.SMTPHost != "" {
		mailer = &service.SMTPMailer{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}
	}

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("askallery-api"),
		tokens: auth.NewTokens(cfg.JWTSecret, cfg.AccessTokenTTL(), cfg.VerificationTokenTTL(),
			cache.TokenRevocations{}),
		notifier:    notifications.NewNotifier(redisClient),
		presence:    notifications.NewPresence(redisClient, notifications.PresenceConfig{}),
		gate:        imageGate,
		userRepo:    repository.NewUserRepository(db),
		postRepo:    repository.NewPostRepository(db),
		commentRepo: repository.NewCommentRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
	}

	s.userService = service.NewUserService(s.userRepo, s.postRepo, s.ledgerRepo, s.tokens, mailer, cfg.AppURL)
	s.ledgerService = service.NewLedgerService(s.ledgerRepo, s.postRepo, s.commentRepo, s.notifier)
	s.postService = service.NewPostService(s.postRepo, s.commentRepo, s.ledgerRepo, s.gate,
		service.NewFileStore(cfg.UploadDir, mediaPrefix),
		service.PostServiceConfig{
			MaxUploadBytes: cfg.MaxUploadBytes(),
			Prepare: gate.PrepareOptions{
				Quality:      cfg.ImageJPEGQuality,
				MaxDimension: cfg.ImageMaxDimension,
				MaxPixels:    cfg.ImageMaxPixels,
			},
		})

	return s, nil
}

// buildGate assembles the content gate from configuration. A policy file,
// when set, takes precedence over the keyword lists.
func buildGate(cfg *config.Config, oracle gate.Oracle) (*gate.Gate, error) {
	policy := gate.NewPolicy(config.SplitList(cfg.GateMandatoryKeywords), config.SplitList(cfg.GateForbiddenKeywords))
	if cfg.GatePolicyFile != "" {
		p, err := gate.LoadPolicyFile(cfg.GatePolicyFile)
		if err != nil {
			return nil, fmt.Errorf("load gate policy: %w", err)
		}
		policy = p
	}
	if !cfg.GateLocalDev && len(policy.Mandatory) == 0 {
		return nil, errors.New("content gate needs at least one mandatory keyword")
	}

	if oracle == nil && !cfg.GateLocalDev {
		oracle = gate.NewSearchOracle(cfg.GateOracleURL, gate.TempPublisher{
			Dir:     filepath.Join(cfg.UploadDir, "tmp"),
			BaseURL: strings.TrimRight(cfg.AppURL, "/") + mediaPrefix + "/tmp",
		})
	}

	return gate.New(oracle, policy, gate.Options{
		Attempts:   cfg.GateAttempts,
		RetryDelay: cfg.GateRetryDelay(),
		Timeout:    cfg.GateTimeout(),
		LocalDev:   cfg.GateLocalDev,
	}), nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// Tracing runs first so the trace id reaches the request context.
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Uploaded media is served cross-origin to the frontend.
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so error responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	app.Static(mediaPrefix, s.config.UploadDir)

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)

	authRequired := middleware.AuthRequired(s.tokens)
	verified := middleware.VerifiedRequired(s.userService.IsVerified)

	// Auth routes
	authGroup := api.Group("/auth")
	authGroup.Post("/signup", middleware.RateLimit(s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	authGroup.Get("/verify", s.VerifyEmail)
	authGroup.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)
	authGroup.Post("/logout", authRequired, s.Logout)

	// User routes. Specific /:id/:resource routes come before /:id.
	users := api.Group("/users", authRequired)
	users.Patch("/me", s.UpdateMyProfile)
	users.Get("/:id/followers", s.GetFollowers)
	users.Get("/:id/following", s.GetFollowing)
	users.Post("/:id/follow", verified, s.FollowUser)
	users.Delete("/:id/follow", verified, s.UnfollowUser)
	users.Get("/:id", s.GetUserProfile)

	// Post routes
	posts := api.Group("/posts", authRequired)
	posts.Get("/", s.GetPosts)
	posts.Post("/", verified, middleware.RateLimit(s.redis, 5, 5*time.Minute, "create_post"), s.CreatePost)
	posts.Post("/:id/like", verified, s.LikePost)
	posts.Delete("/:id/like", verified, s.UnlikePost)
	posts.Get("/:id/comments", s.GetComments)
	posts.Post("/:id/comments", verified, middleware.RateLimit(s.redis, 10, time.Minute, "create_comment"), s.CreateComment)
	posts.Post("/:id/comments/:commentId/like", verified, s.LikeComment)
	posts.Delete("/:id/comments/:commentId/like", verified, s.UnlikeComment)
	posts.Delete("/:id/comments/:commentId", verified, s.DeleteComment)
	posts.Get("/:id", s.GetPost)
	posts.Patch("/:id", verified, s.UpdatePost)
	posts.Delete("/:id", verified, s.DeletePost)

	// Browsers cannot set headers on a websocket handshake.
	ws := api.Group("/ws", middleware.QueryTokenAuth(s.tokens))
	ws.Get("/notifications", s.NotificationStreamHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional: without
// it caching and notifications are disabled but the API still serves.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"gate": fiber.Map{
			"local_dev": s.gate.LocalDev(),
		},
		"time": time.Now(),
	})
}

// App builds the Fiber application with middleware and routes installed.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}

	bodyLimit := int(s.config.MaxUploadBytes()) + 1024*1024
	app := fiber.New(fiber.Config{
		AppName:   "Askallery API",
		BodyLimit: bodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return models.RespondWithError(c, fe.Code, fe)
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err.Error())
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// Start starts the server and blocks until it stops listening.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()
	middleware.Logger.Info("server starting",
		"port", s.config.Port,
		"gate_local_dev", s.gate.LocalDev(),
	)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancelling the server context ends every notification stream.
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", "error", err.Error())
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", "error", cerr.Error())
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", "error", rerr.Error())
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}

// streamContext is the lifetime of long-lived connections.
func (s *Server) streamContext() context.Context {
	if s.shutdownCtx != nil {
		return s.shutdownCtx
	}
	return context.Background()
}
