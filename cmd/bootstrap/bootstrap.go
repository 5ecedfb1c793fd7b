package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"or-scheduler/config"
	deliveryHttp "or-scheduler/internal/delivery/http"
	"or-scheduler/internal/delivery/http/handler"
	"or-scheduler/internal/delivery/http/middleware"
	"or-scheduler/internal/infrastructure/cache"
	"or-scheduler/internal/infrastructure/database"
	"or-scheduler/internal/repository"
	"or-scheduler/internal/service"
	"or-scheduler/internal/usecase"
	"or-scheduler/pkg/jwt"
	"or-scheduler/pkg/validator"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App holds all dependencies for the application
type App struct {
	Config      *config.Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	Server      *http.Server

	closers []func()
}

// Setup loads configuration and configures the logger
func Setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.App.LogLevel)
	log.Info("Configuration loaded successfully")
	return cfg, log, nil
}

// OpenDatabase connects to postgres using the loaded configuration
func OpenDatabase(cfg *config.Config) (*gorm.DB, error) {
	return database.NewPostgresConnection(cfg.DB, cfg.App.Env == "development")
}

// New creates a new App instance with all dependencies initialized
func New() (*App, error) {
	cfg, log, err := Setup()
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Log: log}

	// Initialize database
	db, err := OpenDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = db
	log.Info("Database connected successfully")

	// Initialize Redis. Development runs without it on in-process locks.
	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		if cfg.App.Env != "development" {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Warnf("Redis unavailable, using in-process slot locks: %v", err)
		redisClient = nil
	} else {
		log.Info("Redis connected successfully")
	}
	app.RedisClient = redisClient

	// Initialize all layers
	server, err := app.initializeServer(cfg, log, db, redisClient)
	if err != nil {
		return nil, err
	}
	app.Server = server

	return app, nil
}

// setupLogger configures the logrus logger
func setupLogger(level string) *logrus.Logger {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// newNotifier fans events out to the log, redis pub/sub and an optional webhook
func newNotifier(cfg *config.Config, log *logrus.Logger, redisClient *redis.Client) service.Notifier {
	notifiers := []service.Notifier{service.NewLogNotifier(log)}
	if redisClient != nil {
		notifiers = append(notifiers, service.NewRedisNotifier(redisClient, cfg.Notify.RedisChannel, log))
	}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, service.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WebhookTimeout, log))
	}
	return service.NewMultiNotifier(notifiers...)
}

func (app *App) newSlotLocker(cfg *config.Config, log *logrus.Logger, redisClient *redis.Client) service.SlotLocker {
	if redisClient == nil {
		locker := service.NewLocalSlotLocker(cfg.Scheduler.SlotLockWait)
		app.closers = append(app.closers, locker.Stop)
		return locker
	}
	return service.NewRedisSlotLocker(redisClient, log, cfg.Scheduler.SlotLockTTL, cfg.Scheduler.SlotLockWait)
}

// initializeServer creates and configures the HTTP server
func (app *App) initializeServer(cfg *config.Config, log *logrus.Logger, db *gorm.DB, redisClient *redis.Client) (*http.Server, error) {
	location, err := cfg.App.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.App.Timezone, err)
	}

	// Initialize JWT service
	jwtService := jwt.NewJWTService(cfg.JWT)

	// Initialize validator
	customValidator := validator.NewValidator()

	// Initialize repositories
	bookingRepo := repository.NewBookingRepository()
	requestRepo := repository.NewSurgeryRequestRepository()
	roomRepo := repository.NewRoomRepository()
	staffRepo := repository.NewStaffRepository()
	surgeonRepo := repository.NewSurgeonRepository()
	mobileRepo := repository.NewMobileEquipmentRepository()
	patientRepo := repository.NewPatientRepository()
	auditLogRepo := repository.NewAuditLogRepository()

	// Initialize scheduling services
	deps := service.Deps{
		DB:       db,
		Log:      log,
		Bookings: bookingRepo,
		Requests: requestRepo,
		Rooms:    roomRepo,
		Staff:    staffRepo,
		Surgeons: surgeonRepo,
		Mobile:   mobileRepo,
		Patients: patientRepo,
		Location: location,
	}
	validatorService := service.NewScheduleValidator(deps, service.ValidatorConfig{
		DelayLookbackDays:     cfg.Scheduler.DelayLookbackDays,
		SurgeonDelayThreshold: cfg.Scheduler.SurgeonDelayThreshold,
		RoomDelayThreshold:    cfg.Scheduler.RoomDelayThreshold,
	})
	scorer := service.NewRoomScorer(deps)
	rescheduler := service.NewRescheduler(deps, scorer)
	lifecycle := service.NewLifecycle(deps)
	arrangement := service.NewArrangement(deps)
	auditService := service.NewAuditService(log, auditLogRepo)
	notifier := newNotifier(cfg, log, redisClient)
	locker := app.newSlotLocker(cfg, log, redisClient)

	// Initialize usecases
	bookingUsecase := usecase.NewBookingUsecase(db, log, bookingRepo, patientRepo, validatorService, rescheduler, lifecycle, locker, notifier, auditService, location)
	requestUsecase := usecase.NewSurgeryRequestUsecase(db, log, requestRepo, bookingRepo, patientRepo, scorer, validatorService, rescheduler, lifecycle, locker, notifier, auditService)
	workflowUsecase := usecase.NewWorkflowUsecase(db, log, bookingRepo, lifecycle, arrangement, notifier, auditService)
	directoryUsecase := usecase.NewDirectoryUsecase(db, log, roomRepo, staffRepo, surgeonRepo, mobileRepo, patientRepo, auditService)
	auditLogUsecase := usecase.NewAuditLogUsecase(db, log, auditLogRepo)

	// Initialize handlers
	bookingHandler := handler.NewBookingHandler(bookingUsecase, customValidator)
	requestHandler := handler.NewSurgeryRequestHandler(requestUsecase, customValidator)
	workflowHandler := handler.NewWorkflowHandler(workflowUsecase, customValidator)
	directoryHandler := handler.NewDirectoryHandler(directoryUsecase, customValidator)
	auditLogHandler := handler.NewAuditLogHandler(auditLogUsecase)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService, redisClient)
	corsMiddleware := middleware.NewCORSMiddleware(cfg.App.CORSOrigin)

	// Initialize router
	router := deliveryHttp.NewRouter(bookingHandler, requestHandler, workflowHandler, directoryHandler, auditLogHandler, authMiddleware, corsMiddleware)
	httpRouter := router.Setup()

	// Create server
	serverAddr := fmt.Sprintf(":%s", cfg.App.Port)
	return &http.Server{
		Addr:              serverAddr,
		Handler:           httpRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// Run starts the HTTP server and handles graceful shutdown
func (app *App) Run() {
	// Start server in goroutine
	go func() {
		app.Log.Infof("Server starting on port %s", app.Config.App.Port)
		app.Log.Infof("Environment: %s", app.Config.App.Env)
		if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	app.waitForShutdown()
}

// waitForShutdown blocks until an interrupt signal is received
func (app *App) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Log.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server gracefully
	if err := app.Server.Shutdown(ctx); err != nil {
		app.Log.Errorf("Server forced to shutdown: %v", err)
	}

	// Close connections
	app.Close()

	app.Log.Info("Server shutdown complete")
}

// Close closes all connections (database, redis, etc.)
func (app *App) Close() {
	for _, closeFn := range app.closers {
		closeFn()
	}

	// Close database connection
	if app.DB != nil {
		sqlDB, err := app.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}

	// Close Redis connection
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}
