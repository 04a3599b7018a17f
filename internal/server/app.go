// Package server wires configuration, storage backends and services into the
// running vault: the gRPC API and the trash purge job.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/dmitrijs2005/sealvault/internal/logging"
	"github.com/dmitrijs2005/sealvault/internal/server/blob"
	"github.com/dmitrijs2005/sealvault/internal/server/config"
	"github.com/dmitrijs2005/sealvault/internal/server/events"
	gs "github.com/dmitrijs2005/sealvault/internal/server/grpc"
	"github.com/dmitrijs2005/sealvault/internal/server/locks"
	"github.com/dmitrijs2005/sealvault/internal/server/ratelimit"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sealvault/internal/server/scheduler"
	"github.com/dmitrijs2005/sealvault/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Components holds every long-lived dependency of the vault. The server and
// the admin CLI build it the same way.
type Components struct {
	DB       *sql.DB
	Manager  repomanager.RepositoryManager
	Blobs    blob.Store
	Locker   locks.Locker
	Events   events.Publisher
	Services gs.Services
	Files    *services.FileService
	Erasure  *services.ErasureService
	closers  []io.Closer
}

// Close releases the database and any remote clients.
func (c *Components) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenDatabase connects to Postgres through the pgx stdlib driver and applies
// pending migrations.
func OpenDatabase(ctx context.Context, dsn string) (*sql.DB, repomanager.RepositoryManager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db ping error: %w", err)
	}

	m, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("repository manager error: %w", err)
	}
	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migration error: %w", err)
	}
	return db, m, nil
}

// Build opens every backend named in cfg and constructs the services.
// Redis and SQS are optional: without them locking stays in-process and
// erasure events are dropped.
func Build(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Components, error) {
	db, m, err := OpenDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	c := &Components{DB: db, Manager: m, closers: []io.Closer{db}}

	store, err := blob.NewS3Store(ctx, cfg)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}
	c.Blobs = store

	if cfg.RedisAddr != "" {
		client, err := locks.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		c.closers = append(c.closers, client)
		c.Locker = locks.NewRedisLocker(client)
	} else {
		c.Locker = locks.NewLocalLocker()
	}

	if cfg.SQSQueueURL != "" {
		pub, err := events.NewSQSPublisher(ctx, cfg)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("sqs init error: %w", err)
		}
		c.Events = pub
	} else {
		c.Events = events.Nop{}
	}

	limiter := ratelimit.NewPerMinute(cfg.RecoveryAttemptsPerMinute)

	c.Files = services.NewFileService(db, m, c.Blobs, cfg.DefaultRetentionDays, logger)
	c.Erasure = services.NewErasureService(db, m, c.Blobs, c.Events, logger)
	c.Services = gs.Services{
		Users:    services.NewUserService(db, m, cfg, logger),
		Identity: services.NewIdentityService(db, m, logger),
		Settings: services.NewSettingsService(db, m, cfg.DefaultRetentionDays),
		Files:    c.Files,
		Sharing:  services.NewSharingService(db, m, logger),
		Folders:  services.NewFolderService(db, m, logger),
		Recovery: services.NewRecoveryService(db, m, limiter, cfg.RecoveryTokenTTL, logger),
		Erasure:  c.Erasure,
	}
	return c, nil
}

type App struct {
	config     *config.Config
	logger     logging.Logger
	components *Components
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)

	components, err := Build(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	return &App{config: c, logger: logger, components: components}, nil
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewServer(app.config.EndpointAddrGRPC, app.logger, app.components.Services, app.config.SecretKey)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "grpc server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startPurgeJob(ctx context.Context) {
	job := scheduler.NewPurgeJob(app.components.Files, app.components.Locker, app.config.PurgeInterval, app.config.PurgeBatchSize, app.logger)
	job.Run(ctx)
}

// Run serves until ctx is cancelled or the gRPC server fails, then waits for
// the background jobs and closes the backends.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startPurgeJob(ctx)
	}()

	wg.Wait()

	if err := app.components.Close(); err != nil {
		app.logger.Error(context.Background(), "close error", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
