package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/core/events"
	"github.com/frahmantamala/payment-reconciliation/internal/intent"
	intentPostgres "github.com/frahmantamala/payment-reconciliation/internal/intent/postgres"
	"github.com/frahmantamala/payment-reconciliation/internal/ledger"
	ledgerPostgres "github.com/frahmantamala/payment-reconciliation/internal/ledger/postgres"
	"github.com/frahmantamala/payment-reconciliation/internal/notifier"
	"github.com/frahmantamala/payment-reconciliation/internal/reconciliation"
	reconciliationPostgres "github.com/frahmantamala/payment-reconciliation/internal/reconciliation/postgres"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
	"github.com/frahmantamala/payment-reconciliation/internal/transport/rest"
	"github.com/frahmantamala/payment-reconciliation/internal/transport/swagger"
	"github.com/frahmantamala/payment-reconciliation/pkg/logger"
)

var openAPIPath string

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server that receives provider webhooks and serves the bot-facing intent API`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config         *internal.Config
	DB             *sqlx.DB
	GormDB         *gorm.DB
	Router         *chi.Mux
	Logger         *slog.Logger
	EventBus       *events.EventBus
	IntentHandler  *intent.Handler
	LedgerHandler  *ledger.Handler
	WebhookHandler *reconciliation.WebhookHandler
	Sweeper        *intent.Sweeper
	Notifier       *notifier.Client
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	// sweeper runs alongside the server; the worker command runs it standalone
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go deps.Sweeper.Start(sweepCtx)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		stopSweeper()
		if err := deps.EventBus.Drain(ctx); err != nil {
			deps.Logger.Warn("event bus drain timed out", "error", err)
		}
		deps.Notifier.Shutdown()
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func setupRoutes(deps *Dependencies) {
	rest.RegisterAllRoutes(
		deps.Router,
		deps.DB.DB,
		deps.IntentHandler,
		deps.LedgerHandler,
		deps.WebhookHandler,
		rest.RouterConfig{
			AllowedOrigins:     deps.Config.Server.AllowedOrigins,
			ServiceTokenSecret: deps.Config.Security.ServiceTokenSecret,
			OpenAPIPath:        openAPIPath,
		},
		deps.Logger,
	)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"), config.Observability.Logging.Level)
	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm over database connection: %w", err)
	}

	if openAPIPath != "" {
		if err := swagger.ValidateSpec(openAPIPath); err != nil {
			return nil, err
		}
	}

	eventBus := events.NewEventBus(log)

	intentRepo := intentPostgres.NewIntentRepository(gormDB)
	notificationRepo := reconciliationPostgres.NewNotificationRepository(gormDB)
	ledgerRepo := ledgerPostgres.NewLedgerRepository(gormDB)

	intentService := intent.NewService(intentRepo, eventBus, log)
	ledgerService := ledger.NewService(ledgerRepo, ledger.DefaultConversion(config.Reconciliation.CreditRate), log)

	matcher := reconciliation.NewMatcher(intentRepo, config.Reconciliation.MatchWindow, log)
	orchestrator := reconciliation.NewOrchestrator(
		intentRepo,
		notificationRepo,
		matcher,
		ledgerService,
		eventBus,
		log,
		reconciliation.OrchestratorConfig{
			CreditAttempts:  config.Reconciliation.CreditAttempts,
			MatcherAttempts: config.Reconciliation.MatcherAttempts,
		},
	)

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

	sweeper := intent.NewSweeper(intentRepo, eventBus, log,
		config.Reconciliation.IntentTTL, config.Reconciliation.SweepInterval)

	baseHandler := transport.NewBaseHandler(log)

	return &Dependencies{
		Config:         config,
		DB:             db,
		GormDB:         gormDB,
		Router:         chi.NewRouter(),
		Logger:         log,
		EventBus:       eventBus,
		IntentHandler:  intent.NewHandler(baseHandler, intentService, config.Reconciliation.IntentTTL),
		LedgerHandler:  ledger.NewHandler(baseHandler, ledgerService),
		WebhookHandler: reconciliation.NewWebhookHandler(baseHandler, orchestrator, log),
		Sweeper:        sweeper,
		Notifier:       notifierClient,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

func init() {
	httpServerCmd.Flags().StringVar(&openAPIPath, "openapi", "./api/openapi.yml", "Path to the OpenAPI spec served at /openapi.yml (empty disables swagger)")
}
