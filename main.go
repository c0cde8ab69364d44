package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/config"
	"github.com/talentflow/ats-backend/database"
	"github.com/talentflow/ats-backend/handlers"
	"github.com/talentflow/ats-backend/jobs"
	"github.com/talentflow/ats-backend/middleware"
	"github.com/talentflow/ats-backend/services"
	"github.com/talentflow/ats-backend/shared"
)

func main() {
	// Load config
	cfg := config.LoadConfig()
	unified := cfg.Unified()
	shared.ConfigureLogging(unified.Logging)

	// Connect to database
	if err := database.ConnectWithConfig(cfg.DatabaseURL, &unified.Database); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	if err := database.HealthCheck(context.Background()); err != nil {
		logrus.WithError(err).Fatal("Database health check failed")
	}

	// Run migrations
	if err := database.Migrate(cfg.SchemaPath); err != nil {
		logrus.WithError(err).Warn("Migration warning")
	}
	if err := database.NewSchemaValidator(database.DB).ValidateSchema(context.Background()); err != nil {
		logrus.WithError(err).Fatal("Database schema is incomplete")
	}
	if data, err := unified.ToJSON(); err == nil {
		logrus.WithField("config", string(data)).Debug("Effective configuration")
	}

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// Rate limit store: redis when shared between replicas, memory otherwise
	var (
		windowStore shared.WindowStore
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logrus.WithError(err).Fatal("Invalid REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			logrus.WithError(err).Fatal("Failed to connect to redis")
		}
		cancel()
		windowStore = shared.NewRedisWindowStore(redisClient, "ats:public-apply:")
		logrus.Info("Using redis rate limit store")
	} else {
		memoryStore := shared.NewMemoryWindowStore()
		windowStore = memoryStore
		go jobs.NewRateLimitCleanupJob(memoryStore).Start(rootCtx, unified.Intake.RateLimitWindow)
		logrus.Info("Using in-memory rate limit store")
	}

	dispatcher := jobs.NewDispatcher(unified.Background)

	// Services
	utilityService := services.NewUtilityService()
	candidateService := services.NewCandidateService(utilityService)
	applicationService := services.NewApplicationService(database.DB, candidateService, utilityService)

	limiter := shared.NewSlidingWindowLimiter(windowStore, unified.Intake.RateLimitMax, unified.Intake.RateLimitWindow)
	httpFactory := shared.NewHTTPClientFactory(unified.Service.HTTPRequestTimeout)
	verifier := services.NewRecaptchaVerifier(httpFactory.CreateRestyClient(unified.Service.HTTPRequestTimeout, unified.Service.MaxRetryAttempts),
		unified.Intake.CaptchaSecret, unified.Intake.CaptchaVerifyURL)
	if unified.Intake.CaptchaRequired && !verifier.Configured() {
		logrus.Warn("Captcha is required but RECAPTCHA_SECRET_KEY is empty; public applications will fail")
	}
	abuseControl := services.NewAbuseControl(limiter, verifier, unified.Intake)
	attemptLogger := services.NewAttemptLogger(database.DB, dispatcher, unified.Intake.LogAttempts)

	var notifier services.Notifier = services.LogNotifier{}
	if cfg.SMTP.Enabled() {
		notifier = services.NewSMTPNotifier(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	}

	intakeService := services.NewPublicIntakeService(services.PublicIntakeDeps{
		DB:         database.DB,
		Abuse:      abuseControl,
		Ledger:     applicationService,
		Attempts:   attemptLogger,
		Notifier:   notifier,
		Dispatcher: dispatcher,
		Utility:    utilityService,
	}, unified.Intake)
	catalogCache := services.NewCacheService(cfg.GetCatalogCacheTTL(), cfg.CatalogCacheSize)
	go catalogCache.StartCleanup(rootCtx, 5*time.Minute)
	catalogService := services.NewCachedCatalogService(services.NewCatalogService(database.DB), catalogCache)
	reportService := services.NewReportService(database.DB)

	logrus.WithFields(logrus.Fields{
		"intake_enabled":    unified.Intake.Enabled,
		"captcha_required":  unified.Intake.CaptchaRequired,
		"rate_limit_max":    unified.Intake.RateLimitMax,
		"rate_limit_window": limiter.Window(),
		"attempt_logging":   attemptLogger.Enabled(),
		"smtp_enabled":      cfg.SMTP.Enabled(),
		"workers":           unified.Background.Workers,
		"catalog_cache_ttl": cfg.GetCatalogCacheTTL(),
	}).Info("ATS backend services initialized")

	// Handlers
	publicHandler := handlers.NewPublicHandler(intakeService, catalogService)
	applicationHandler := handlers.NewApplicationHandler(applicationService)
	reportHandler := handlers.NewReportHandler(reportService)
	performanceHandler := handlers.NewPerformanceHandler(database.DB,
		intakeService, applicationService, attemptLogger, reportService, catalogService, dispatcher, utilityService)
	performanceHandler.Cache = catalogService

	// Setup Fiber. Background tasks hold on to request strings.
	app := fiber.New(fiber.Config{
		Immutable:    true,
		ErrorHandler: handlers.FiberErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(cors.New())

	app.Get("/health", performanceHandler.Health)

	// Public routes
	public := app.Group("/public")
	public.Get("/companies", publicHandler.ListCompanies)
	public.Get("/jobs", publicHandler.ListJobs)
	public.Get("/jobs/:id", publicHandler.GetJob)
	public.Post("/jobs/:id/apply", publicHandler.Apply)

	// Authenticated routes
	api := app.Group("/api", middleware.TenantContext(cfg.JWTSecret, middleware.DBUserLoader{DB: database.DB}))

	api.Post("/applications", applicationHandler.Create)
	api.Put("/applications/:id", applicationHandler.UpdateStatus)
	api.Get("/applications/:id/stage-history", applicationHandler.StageHistory)
	api.Get("/applications/:id/notes", applicationHandler.ListNotes)
	api.Post("/applications/:id/notes", applicationHandler.AddNote)
	api.Get("/jobs/:job_id/applications", applicationHandler.ListByJob)

	reports := api.Group("/reports", middleware.RequireReportAccess())
	reports.Get("/public-applications", reportHandler.PublicApplications)
	reports.Get("/public-applications/conversion", reportHandler.Conversion)
	reports.Get("/public-applications/response-time", reportHandler.ResponseTime)
	reports.Get("/public-applications/sources", reportHandler.Sources)
	reports.Get("/public-applications/export", reportHandler.Export)
	reports.Get("/invitations", reportHandler.Invitations)

	api.Get("/performance/metrics", middleware.RequireReportAccess(), performanceHandler.GetPerformanceMetrics)
	api.Delete("/performance/cache", middleware.RequireReportAccess(), performanceHandler.ClearCache)

	go func() {
		logrus.WithField("port", cfg.ServerPort).Info("Server starting")
		if err := app.Listen(":" + cfg.ServerPort); err != nil {
			logrus.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Background tasks did not drain")
	}
	for _, source := range []handlers.MetricsSource{intakeService, applicationService, attemptLogger, reportService, dispatcher} {
		source.GetServiceMetrics().LogSummary()
	}
	logrus.WithFields(logrus.Fields{
		"dropped":  dispatcher.Dropped(),
		"failures": dispatcher.Failures(),
	}).Info("Background dispatcher totals")
	httpFactory.CleanupAllClients()
	if redisClient != nil {
		redisClient.Close()
	}
	database.Close()
}
