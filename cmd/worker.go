package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/payment-reconciliation/internal/core/events"
	"github.com/frahmantamala/payment-reconciliation/internal/intent"
	intentPostgres "github.com/frahmantamala/payment-reconciliation/internal/intent/postgres"
	"github.com/frahmantamala/payment-reconciliation/internal/notifier"
	"github.com/frahmantamala/payment-reconciliation/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start and manage background workers like the intent expiry sweeper`,
}

// Sweeper worker command
var sweeperWorkerCmd = &cobra.Command{
	Use:   "sweeper",
	Short: "Start the intent expiry sweeper",
	Long:  `Start the sweeper that expires payment intents that were never matched within their TTL`,
	Run: func(cmd *cobra.Command, args []string) {
		startSweeperWorker()
	},
}

var (
	sweepInterval time.Duration
	intentTTL     time.Duration
)

func startSweeperWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"), config.Observability.Logging.Level)
	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open gorm over database connection: %v\n", err)
		os.Exit(1)
	}

	// Use command line flags if provided, otherwise use config values
	ttl := getDurationFlag(intentTTL, config.Reconciliation.IntentTTL)
	interval := getDurationFlag(sweepInterval, config.Reconciliation.SweepInterval)

	log.Info("starting sweeper worker",
		"intent_ttl", ttl,
		"sweep_interval", interval)

	eventBus := events.NewEventBus(log)

	notifierClient := notifier.NewClient(notifier.Config{
		CallbackURL:    config.Notifier.CallbackURL,
		APIKey:         config.Notifier.APIKey,
		RequestTimeout: config.Notifier.RequestTimeout,
		MaxWorkers:     config.Notifier.MaxWorkers,
		JobQueueSize:   config.Notifier.JobQueueSize,
		WorkerPoolSize: config.Notifier.WorkerPoolSize,
	}, log)
	notifierHandler := notifier.NewEventHandler(notifierClient, log)
	notifierHandler.RegisterEventHandlers(eventBus)

	sweeper := intent.NewSweeper(intentPostgres.NewIntentRepository(gormDB), eventBus, log, ttl, interval)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go sweeper.Start(sweepCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("sweeper worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	log.Info("received signal, shutting down sweeper worker", "signal", sig)
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		notifierClient.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		log.Info("sweeper worker shutdown complete")
	case <-ctx.Done():
		log.Warn("shutdown timeout reached, forcing exit")
	}

	if err := db.Close(); err != nil {
		log.Error("database close error", "error", err)
	}
}

func getDurationFlag(flagValue, configValue time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	sweeperWorkerCmd.Flags().DurationVar(&intentTTL, "intent-ttl", 0, "Intent time-to-live before expiry (overrides config)")
	sweeperWorkerCmd.Flags().DurationVar(&sweepInterval, "sweep-interval", 0, "Interval between expiry sweeps (overrides config)")

	workerCmd.AddCommand(sweeperWorkerCmd)
}
