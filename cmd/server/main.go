package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"voyage/internal/app"
	"voyage/internal/clock"
	"voyage/internal/config"
	"voyage/internal/eventbus"
	"voyage/internal/handler"
	"voyage/internal/ledger"
	internalRedis "voyage/internal/redis"
	"voyage/internal/repository/postgres"
	"voyage/internal/scheduler"
	"voyage/internal/service"
	"voyage/internal/uow"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s (with DB instrumentation)", cfg.NewRelic.AppName)
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	// Wire dependencies.
	server, background := wireServer(db, redisClient, nrApp, cfg)

	// Background workers: timer dispatch and recovery sweep.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	for _, worker := range background {
		go worker(workerCtx)
	}

	// Start server in goroutine.
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// wireServer wires all dependencies and returns the HTTP server plus
// the background workers to run alongside it.
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config) (*http.Server, []func(context.Context)) {
	systemClock := clock.System{}

	// Event bus and unit-of-work runner.
	bus := eventbus.New()
	runner := uow.NewRunner(db, bus)

	// Redis stores.
	jobLock := internalRedis.NewJobLock(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	// Durable timers and repositories.
	timerStore := postgres.NewTimerStore(db)
	tripRepo := postgres.NewTripRepository(db)

	// Ledger port. The in-memory ledger stands in for the remote
	// ledger service.
	fareLedger := ledger.NewMemory()

	// Core services.
	monitor := service.NewMonitor(cfg.Monitor, systemClock, timerStore)
	settlement := service.NewSettlement(fareLedger, monitor)
	tripService := service.NewTripService(monitor, settlement, systemClock)
	bookingService := service.NewBookingService(settlement, systemClock)
	confirmation := service.NewConfirmation(settlement)
	notifier := service.NewNotifier()
	projection := service.NewProjection(runner, cacheStore)
	sweep := service.NewSweep(cfg.Sweep, systemClock, tripRepo, monitor, runner, jobLock)

	// Event processors run after the emitting unit of work commits.
	service.RegisterSubscribers(bus, runner, settlement, notifier, projection)

	// Timer dispatch: each fired timer evaluates its trip in an
	// isolated unit of work.
	dispatcher := scheduler.NewDispatcher(timerStore, systemClock, cfg.Sweep.TimerPoll,
		func(ctx context.Context, tripID string) error {
			return monitor.EvaluateByID(ctx, runner, tripID, eventbus.TriggerTimer)
		})

	// Handlers.
	tripHandler := handler.NewTripHandler(runner, tripService, confirmation)
	bookingHandler := handler.NewBookingHandler(runner, bookingService)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		TripHandler:    tripHandler,
		BookingHandler: bookingHandler,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	background := []func(context.Context){
		dispatcher.Run,
		sweep.Run,
	}

	return server, background
}
