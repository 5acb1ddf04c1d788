package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vietguard/vietguard-api/internal/config"
	"github.com/vietguard/vietguard-api/internal/events"
	"github.com/vietguard/vietguard-api/internal/notify"
	"github.com/vietguard/vietguard-api/internal/platform/mailer"
	"github.com/vietguard/vietguard-api/internal/platform/memory"
	"github.com/vietguard/vietguard-api/internal/platform/postgres"
	"github.com/vietguard/vietguard-api/internal/platform/scanapi"
	"github.com/vietguard/vietguard-api/internal/reconcile"
	"github.com/vietguard/vietguard-api/internal/service"
	"github.com/vietguard/vietguard-api/internal/service/token"
	"github.com/vietguard/vietguard-api/internal/store"
)

// dependencies are the collaborators established before the application
// is built. Zero values select the defaults.
type dependencies struct {
	// db selects PostgreSQL stores; nil selects in-memory stores.
	db *sql.DB
	// mailer replaces the SMTP dispatcher.
	mailer notify.Dispatcher
	// httpClient replaces the pooled client used for the scanning API.
	httpClient *http.Client
}

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// Stores
	taskStore         store.TaskStore
	memberStore       store.MemberStore
	verificationStore store.VerificationStore
	accessLogStore    store.AccessLogStore
	tokenStore        store.DownloadTokenStore
	historyStore      store.TaskHistoryStore

	// External collaborators
	scanner *scanapi.Client
	mailer  notify.Dispatcher

	// Services
	memberService    service.MemberService
	taskService      service.TaskService
	accessLogService *service.AccessLogService
	downloadService  *service.DownloadService
	historyRecorder  *service.HistoryRecorder

	eventEmitter *events.InMemoryEventEmitter

	// Background reconciliation
	reconciler *reconcile.Reconciler
	scheduler  *reconcile.Scheduler
}

// newApplication creates a new application instance with all dependencies
// initialized.
func newApplication(cfg *config.Config, logger *slog.Logger, deps dependencies) (*application, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &application{
		config: cfg,
		logger: logger,
		db:     deps.db,
	}

	app.initStores()

	var scanOpts []scanapi.Option
	if deps.httpClient != nil {
		scanOpts = append(scanOpts, scanapi.WithHTTPClient(deps.httpClient))
	}
	scanner, err := scanapi.NewClient(cfg.ScanAPI, logger, scanOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scan API client: %w", err)
	}
	app.scanner = scanner

	app.mailer = deps.mailer
	if app.mailer == nil {
		smtp, err := mailer.NewSMTPDispatcher(cfg.SMTP, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mailer: %w", err)
		}
		app.mailer = smtp
	}

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	app.historyRecorder = service.NewHistoryRecorder(app.historyStore, app.taskStore, logger)
	app.eventEmitter.RegisterHandler(app.historyRecorder)

	if err := app.initServices(); err != nil {
		return nil, err
	}

	app.reconciler = reconcile.NewReconciler(
		app.taskStore,
		app.scanner,
		app.mailer,
		cfg.Reconcile,
		logger,
		reconcile.WithLinkIssuer(app.downloadService),
		reconcile.WithEmitter(app.eventEmitter),
	)
	app.scheduler = reconcile.NewScheduler(app.reconciler, cfg.Reconcile.Interval, logger)

	logger.Info("Application initialized successfully", "storage", app.storageName())
	return app, nil
}

// initStores selects PostgreSQL stores when a database is configured and
// in-memory stores otherwise.
func (app *application) initStores() {
	if app.db != nil {
		app.taskStore = postgres.NewPostgresTaskStore(app.db, app.logger)
		app.memberStore = postgres.NewPostgresMemberStore(app.db, app.logger)
		app.verificationStore = postgres.NewPostgresVerificationStore(app.db, app.logger)
		app.accessLogStore = postgres.NewPostgresAccessLogStore(app.db, app.logger)
		app.tokenStore = postgres.NewPostgresDownloadTokenStore(app.db, app.logger)
		app.historyStore = postgres.NewPostgresTaskHistoryStore(app.db, app.logger)
		return
	}

	mem := memory.New()
	app.taskStore = mem.Tasks()
	app.memberStore = mem.Members()
	app.verificationStore = mem.Verifications()
	app.accessLogStore = mem.AccessLogs()
	app.tokenStore = mem.DownloadTokens()
	app.historyStore = mem.History()
}

func (app *application) initServices() error {
	var err error
	cfg := app.config

	app.memberService, err = service.NewMemberService(
		app.memberStore,
		app.verificationStore,
		app.taskStore,
		app.accessLogStore,
		app.scanner,
		app.mailer,
		cfg.OTP,
		app.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create member service: %w", err)
	}

	app.taskService, err = service.NewTaskService(
		app.taskStore,
		app.memberStore,
		app.scanner,
		app.eventEmitter,
		cfg.RateLimit,
		app.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create task service: %w", err)
	}

	app.accessLogService, err = service.NewAccessLogService(app.accessLogStore, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create access log service: %w", err)
	}

	signer, err := token.NewSigner(cfg.Download)
	if err != nil {
		return fmt.Errorf("failed to create download token signer: %w", err)
	}
	app.downloadService, err = service.NewDownloadService(
		signer,
		app.tokenStore,
		app.taskStore,
		app.scanner,
		cfg.Server.AppURL,
		app.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create download service: %w", err)
	}
	return nil
}

func (app *application) storageName() string {
	if app.db != nil {
		return "postgres"
	}
	return "memory"
}

// Run starts the scheduler and the HTTP server and blocks until ctx is
// cancelled or the server fails.
func (app *application) Run(ctx context.Context) error {
	if app.config.Reconcile.Enabled {
		if err := app.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start reconciliation scheduler: %w", err)
		}
	} else {
		app.logger.Warn("Reconciliation scheduler disabled")
	}

	router := app.setupRouter()
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup releases application resources.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}
}
