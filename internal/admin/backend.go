package admin

import (
	"context"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/sealvault/internal/logging"
	"github.com/dmitrijs2005/sealvault/internal/server"
	"github.com/dmitrijs2005/sealvault/internal/server/config"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
	"github.com/dmitrijs2005/sealvault/internal/server/scheduler"
	"github.com/dmitrijs2005/sealvault/internal/server/services"
)

// liveBackend connects to the configured backends on first use. Migrate
// needs only the database, so it does not touch blob storage or Redis.
type liveBackend struct {
	cfg        *config.Config
	logger     logging.Logger
	components *server.Components
}

// OpenLive is the Opener used by the vaultctl binary.
func OpenLive(ctx context.Context, cfg *config.Config) (Backend, error) {
	logger := logging.NewJSONLogger(os.Stderr, slog.LevelWarn).With("module", "vaultctl")
	return &liveBackend{cfg: cfg, logger: logger}, nil
}

func (b *liveBackend) build(ctx context.Context) (*server.Components, error) {
	if b.components != nil {
		return b.components, nil
	}
	c, err := server.Build(ctx, b.cfg, b.logger)
	if err != nil {
		return nil, err
	}
	b.components = c
	return c, nil
}

func (b *liveBackend) Migrate(ctx context.Context) error {
	db, _, err := server.OpenDatabase(ctx, b.cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	return db.Close()
}

func (b *liveBackend) PurgeOnce(ctx context.Context) (services.PurgeResult, error) {
	c, err := b.build(ctx)
	if err != nil {
		return services.PurgeResult{}, err
	}
	job := scheduler.NewPurgeJob(c.Files, c.Locker, b.cfg.PurgeInterval, b.cfg.PurgeBatchSize, b.logger)
	return job.RunOnce(ctx)
}

func (b *liveBackend) EraseByEmail(ctx context.Context, email string) (*models.ErasureReport, error) {
	c, err := b.build(ctx)
	if err != nil {
		return nil, err
	}
	return c.Erasure.EraseByEmail(ctx, email)
}

func (b *liveBackend) Close() error {
	if b.components == nil {
		return nil
	}
	return b.components.Close()
}
