package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/registry_api/internal/cache"
	"github.com/GTDGit/registry_api/internal/config"
	"github.com/GTDGit/registry_api/internal/database"
	"github.com/GTDGit/registry_api/internal/handler"
	"github.com/GTDGit/registry_api/internal/metrics"
	"github.com/GTDGit/registry_api/internal/middleware"
	"github.com/GTDGit/registry_api/internal/repository"
	"github.com/GTDGit/registry_api/internal/service"
	"github.com/GTDGit/registry_api/internal/sse"
	"github.com/GTDGit/registry_api/internal/utils"
	"github.com/GTDGit/registry_api/internal/worker"
)

// main is the application entrypoint for the community registry API.
func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup logger
	setupLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Str("household_policy", cfg.Registration.HouseholdPolicy).Msg("starting registry api")

	// 3. Connect database
	db, err := database.Connect(&cfg.DB)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "database connection failed: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// 3a. Run migrations
	if err := runMigrations(db.DB); err != nil {
		log.Error().Err(err).Msg("migration failed")
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	log.Info().Msg("migrations completed successfully")

	// 3b. Connect to Redis. The registry runs without a cache if Redis is down.
	var (
		regCache    service.RegistrationCacher
		cachePinger handler.CachePinger
	)
	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis connection failed - status and statistics caching disabled")
	} else {
		defer redisClient.Close()
		regCache = cache.NewRegistrationCache(redisClient, cfg.Registration.StatusCacheTTL, cfg.Registration.StatsCacheTTL)
		cachePinger = redisClient
		log.Info().Msg("redis connected successfully")
	}

	// 4. Metrics
	m := metrics.New(prometheus.DefaultRegisterer)

	// 5. Initialize repositories
	registrationRepo := repository.NewRegistrationRepository(db)
	territoryRepo := repository.NewTerritoryRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	surveyRepo := repository.NewSurveyRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// 6. Initialize external clients
	var storage service.DocumentUploader
	s3Svc, err := service.NewS3Service(context.Background(), &cfg.S3)
	if err != nil {
		log.Warn().Err(err).Msg("S3 service initialization failed - document upload will be disabled")
	} else {
		storage = s3Svc
	}

	var faces service.FaceCounter
	if cfg.Document.FaceCheck {
		faceSvc, err := service.NewFaceCheckService(context.Background(), &cfg.AWS)
		if err != nil {
			log.Warn().Err(err).Msg("Rekognition initialization failed - face check disabled")
		} else {
			faces = faceSvc
		}
	}

	// 7. Initialize services
	policy, err := service.ParseHouseholdPolicy(cfg.Registration.HouseholdPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid household policy")
	}

	hub := sse.NewHub()
	notifier := sse.NewHubNotifier(hub)

	geoSvc := service.NewGeographyService(territoryRepo, cfg.Registration.ServiceAreaCity, cfg.Registration.DefaultZip)
	documentSvc := service.NewDocumentService(documentRepo, storage, faces, cfg.Document.MaxBytes)
	registrationSvc := service.NewRegistrationService(service.RegistrationServiceDeps{
		Store:        registrationRepo,
		Detector:     service.NewDuplicateDetector(registrationRepo, cfg.Registration.StoreTimeout, m),
		Allocator:    service.NewIdentityAllocator(policy, m),
		Area:         geoSvc,
		Documents:    documentSvc,
		Cache:        regCache,
		Queue:        notificationRepo,
		Notifier:     notifier,
		Metrics:      m,
		StoreTimeout: cfg.Registration.StoreTimeout,
	})
	reviewSvc := service.NewReviewService(registrationRepo, regCache, notificationRepo, notifier, m, cfg.Registration.StoreTimeout)
	surveySvc := service.NewSurveyService(surveyRepo, registrationRepo)
	notificationSvc := service.NewNotificationService(
		notificationRepo, service.LogSender{}, m,
		cfg.Worker.NotificationBatchSize, cfg.Worker.NotificationMaxTries,
	)

	// 8. Initialize handlers
	jwtManager := utils.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer)
	handlers := &Handlers{
		Health:            handler.NewHealthHandler(db, cachePinger),
		Registration:      handler.NewRegistrationHandler(registrationSvc),
		AdminRegistration: handler.NewAdminRegistrationHandler(reviewSvc),
		Document:          handler.NewDocumentHandler(documentSvc),
		Survey:            handler.NewSurveyHandler(surveySvc),
		Territory:         handler.NewTerritoryHandler(geoSvc),
		SSE:               handler.NewSSEHandler(hub, jwtManager),
	}

	// 9. Initialize middleware
	jwtMw := middleware.NewJWTMiddleware(jwtManager)
	submitLimiter := middleware.NewRateLimiter(cfg.HTTP.SubmitRateLimit, cfg.HTTP.SubmitRateWindow)

	// 10. Setup router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.HTTP.AllowedHosts))
	router.Use(middleware.LoggingMiddleware())
	setupRoutes(router, handlers, jwtMw, submitLimiter)

	// 11. Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 12. Start workers
	go submitLimiter.Cleanup(ctx)
	go worker.NewNotificationWorker(notificationSvc, cfg.Worker.NotificationInterval).Start(ctx)

	// 13. Start HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// 14. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// 15. Cancel context to stop workers and SSE streams
	cancel()

	// 16. Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

// Handlers groups all HTTP handlers used by the server.
type Handlers struct {
	Health            *handler.HealthHandler
	Registration      *handler.RegistrationHandler
	AdminRegistration *handler.AdminRegistrationHandler
	Document          *handler.DocumentHandler
	Survey            *handler.SurveyHandler
	Territory         *handler.TerritoryHandler
	SSE               *handler.SSEHandler
}

// setupRoutes registers all routes.
func setupRoutes(router *gin.Engine, handlers *Handlers, jwtMiddleware *middleware.JWTMiddleware, submitLimiter *middleware.RateLimiter) {
	router.GET("/v1/health", handlers.Health.GetHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Geography lookups used by the registration form (public)
	geo := router.Group("/v1/geo")
	{
		geo.GET("/regions", handlers.Territory.GetRegions)
		geo.GET("/regions/:code/cities", handlers.Territory.GetCities)
		geo.GET("/cities/:code/barangays", handlers.Territory.GetBarangays)
		geo.GET("/barangays/:code/postal-codes", handlers.Territory.GetPostalCodes)
		geo.GET("/service-area", handlers.Territory.GetServiceArea)
		geo.GET("/service-area/check", handlers.Territory.CheckServiceArea)
	}

	// Admin SSE authenticates through the token query param
	router.GET("/v1/admin/sse", handlers.SSE.Stream)

	// Resident routes
	resident := router.Group("/v1")
	resident.Use(jwtMiddleware.Handle())
	{
		resident.POST("/registrations", submitLimiter.Handle(), handlers.Registration.Submit)
		resident.GET("/registrations/me", handlers.Registration.Me)

		resident.POST("/documents", handlers.Document.Upload)
		resident.GET("/documents", handlers.Document.List)
		resident.DELETE("/documents/:id", handlers.Document.Delete)

		resident.GET("/survey/programs", handlers.Survey.Programs)
		resident.POST("/survey", handlers.Survey.Submit)
		resident.GET("/survey/me", handlers.Survey.Mine)
	}

	// Admin routes
	admin := router.Group("/v1/admin")
	admin.Use(jwtMiddleware.Handle(), jwtMiddleware.RequireAdmin())
	{
		admin.GET("/registrations", handlers.AdminRegistration.List)
		admin.GET("/registrations/:id", handlers.AdminRegistration.Get)
		admin.PATCH("/registrations/:id", handlers.AdminRegistration.UpdateData)
		admin.DELETE("/registrations/:id", handlers.AdminRegistration.Delete)
		admin.PATCH("/registrations/:id/status", handlers.AdminRegistration.UpdateStatus)
		admin.GET("/registrations/:id/history", handlers.AdminRegistration.History)

		admin.GET("/duplicates", handlers.AdminRegistration.Flagged)
		admin.GET("/duplicates/stats", handlers.AdminRegistration.Stats)
		admin.POST("/duplicates/:id/resolve", handlers.AdminRegistration.Resolve)

		admin.GET("/surveys", handlers.Survey.List)
	}
}

// runMigrations runs database migrations using golang-migrate.
func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func setupLogger(env string) {
	if env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
