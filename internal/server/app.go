// Package server wires the intake server: storage, notifications, audit,
// archive export and the gRPC endpoint. It handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/catalog"
	"github.com/dmitrijs2005/intakekeeper/internal/dbx"
	"github.com/dmitrijs2005/intakekeeper/internal/logging"
	"github.com/dmitrijs2005/intakekeeper/internal/server/archive"
	"github.com/dmitrijs2005/intakekeeper/internal/server/audit"
	"github.com/dmitrijs2005/intakekeeper/internal/server/config"
	"github.com/dmitrijs2005/intakekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/intakekeeper/internal/server/notify"
	"github.com/dmitrijs2005/intakekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/intakekeeper/internal/server/services"

	gs "github.com/dmitrijs2005/intakekeeper/internal/server/grpc"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const auditDrainTimeout = 5 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	bus      *notify.RedisBus
	sink     *audit.AsyncSink
	limiter  *gs.ActorLimiter
	drafts   *services.DraftService
	sections *services.SectionService
}

// OpenDB opens the pgx-backed database and applies migrations.
func OpenDB(ctx context.Context, dsn string, rm repomanager.RepositoryManager) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}
	return db, nil
}

// NewDeps builds the service dependencies shared by the server and the
// backfill tool. The returned App owns what NewDeps opened; call Close.
func NewDeps(ctx context.Context, c *config.Config, logger logging.Logger) (services.Deps, *App, error) {
	app := &App{config: c, logger: logger}

	rm := repomanager.NewPostgresRepositoryManager()
	db, err := OpenDB(ctx, c.DatabaseDSN, rm)
	if err != nil {
		return services.Deps{}, nil, err
	}
	app.db = db

	cat := catalog.Default()
	validator, err := catalog.NewValidator(cat)
	if err != nil {
		_ = db.Close()
		return services.Deps{}, nil, fmt.Errorf("catalog: %w", err)
	}

	rec, err := metrics.NewRecorder(nil)
	if err != nil {
		_ = db.Close()
		return services.Deps{}, nil, fmt.Errorf("metrics: %w", err)
	}

	deps := services.Deps{
		Tx:          dbx.NewSQLTransactor(db, nil),
		RepoManager: rm,
		Catalog:     cat,
		Validator:   validator,
		Audit:       audit.Nop{},
		Notifier:    notify.Nop{},
		Subscriber:  notify.Nop{},
		Metrics:     rec,
		Logger:      logger,
	}

	if c.RedisURL != "" {
		bus, err := notify.NewRedisBus(ctx, c.RedisURL, logger)
		if err != nil {
			// notifications are best effort; saves still work without them
			logger.Warn(ctx, "redis unavailable, notifications disabled", "error", err)
		} else {
			app.bus = bus
			deps.Notifier = bus
			deps.Subscriber = bus
		}
	}

	if c.AuditBufferSize > 0 {
		app.sink = audit.NewAsyncSink(rm.Events(db), c.AuditBufferSize, logger, rec)
		deps.Audit = app.sink
	}

	if c.S3Bucket != "" {
		deps.Exporter = archive.NewS3Exporter(c)
	}

	return deps, app, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	slog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slog)

	deps, app, err := NewDeps(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	app.drafts = services.NewDraftService(deps)
	app.sections = services.NewSectionService(deps)
	app.limiter = gs.NewActorLimiter(c.RateLimit, c.RateBurst)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.drafts, app.sections, app.limiter, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Close drains the audit queue and releases connections.
func (app *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), auditDrainTimeout)
	defer cancel()

	if app.sink != nil {
		if err := app.sink.Close(ctx); err != nil {
			app.logger.Warn(ctx, "audit drain incomplete", "error", err)
		}
	}
	if app.bus != nil {
		_ = app.bus.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.limiter.Run(ctx)
	}()

	wg.Wait()

	app.Close()
	app.logger.Info(context.Background(), "Stopped")
}
