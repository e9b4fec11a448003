package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/meridianledger/core/internal/catalog"
	"github.com/meridianledger/core/internal/config"
	"github.com/meridianledger/core/internal/handler"
	"github.com/meridianledger/core/internal/middleware"
	"github.com/meridianledger/core/internal/repository/postgres"
	"github.com/meridianledger/core/internal/service"
	"github.com/meridianledger/core/internal/storage"
	"github.com/meridianledger/core/internal/websocket"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Connected to database")

	// Repositories
	accountRepo := postgres.NewAccountRepository(pool)
	holdRepo := postgres.NewHoldRepository(pool)
	transactionRepo := postgres.NewTransactionRepository(pool)
	workflowRepo := postgres.NewWorkflowRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)

	// External collaborators
	productCatalog := catalog.NewClient(cfg.ProductCatalog.BaseURL, cfg.ProductCatalog.Timeout, cfg.ProductCatalog.CacheTTL)
	calendarClient := catalog.NewCalendarClient(cfg.CalendarService.BaseURL, cfg.CalendarService.Timeout)
	_ = calendarClient // consulted only by the interest-accrual collaborator, out of core scope

	documentStore, err := storage.NewDocumentStore(context.Background(), cfg.DocumentStore)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize document store")
	}

	// Services, in dependency order (leaves first)
	auditService := service.NewAuditService(auditRepo)
	accountService := service.NewAccountService(accountRepo, holdRepo, productCatalog, auditService)
	balanceService := service.NewBalanceService(accountRepo, holdRepo, auditRepo, cfg.BalanceCacheTTL)
	holdService := service.NewHoldService(holdRepo, accountRepo, balanceService, auditService)
	workflowService := service.NewWorkflowService(workflowRepo, auditService)
	postingService := service.NewPostingService(transactionRepo, accountRepo, balanceService, productCatalog, workflowService, auditService)

	sweepWorker := service.NewSweepWorker(holdService, workflowService, postingService, log.Logger, service.SweepWorkerConfig{Interval: cfg.SweepInterval})
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	sweepWorker.Start(sweepCtx)
	defer cancelSweep()
	defer sweepWorker.Stop()

	// WebSocket domain-event fan-out
	hub := websocket.NewHub()
	accountService.SetEventPublisher(hub)
	holdService.SetEventPublisher(hub)
	postingService.SetEventPublisher(hub)
	workflowService.SetEventPublisher(hub)

	identity := &identityAdapter{}

	authMiddleware, err := middleware.NewAuthMiddleware(cfg.Auth0Domain, cfg.Auth0Audience, identity)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auth middleware")
	}
	rateLimiter := middleware.NewRateLimiter()

	wsValidator, err := websocket.NewAuth0JWTValidator(cfg.Auth0Domain, cfg.Auth0Audience, identity)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create WebSocket JWT validator")
	}

	// Handlers
	accountHandler := handler.NewAccountHandler(accountService)
	holdHandler := handler.NewHoldHandler(holdService)
	transactionHandler := handler.NewTransactionHandler(postingService)
	workflowHandler := handler.NewWorkflowHandler(workflowService, documentStore)
	wsHandler := handler.NewWebSocketHandler(hub, wsValidator, cfg.CORSOrigins)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.RequestID())

	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	e.Use(zerologMiddleware())
	e.Use(echomiddleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	handler.RegisterRoutes(e, authMiddleware, rateLimiter, accountHandler, holdHandler, transactionHandler, workflowHandler, wsHandler)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// identityAdapter satisfies both middleware.PersonProvider and
// websocket.PersonLookup. Resolving an Auth0 subject to a PersonID is
// the person/identity registry's job (deliberately out of core scope,
// spec.md §1); this core only ever stores and compares the id the
// registry hands back. The registry attaches its resolved UUID to the
// token as the subject claim, so no further round-trip is needed here.
type identityAdapter struct{}

// GetPersonByAuth0ID implements middleware.PersonProvider and
// websocket.PersonLookup.
func (identityAdapter) GetPersonByAuth0ID(auth0ID string) (string, error) {
	return auth0ID, nil
}

// zerologMiddleware logs each request with zerolog, recording the
// request id the RequestID middleware attached.
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			log.Info().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")

			return nil
		}
	}
}
