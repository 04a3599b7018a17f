// Package admin implements vaultctl, the operator CLI for a vault deployment:
// schema migrations, one-off purge sweeps and account erasure.
package admin

import (
	"context"
	"io"

	"github.com/dmitrijs2005/sealvault/internal/server/config"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
	"github.com/dmitrijs2005/sealvault/internal/server/services"
	"github.com/spf13/cobra"
)

// Backend performs the operations behind each command.
type Backend interface {
	Migrate(ctx context.Context) error
	PurgeOnce(ctx context.Context) (services.PurgeResult, error)
	EraseByEmail(ctx context.Context, email string) (*models.ErasureReport, error)
	Close() error
}

// Opener builds a Backend from the resolved configuration.
type Opener func(ctx context.Context, cfg *config.Config) (Backend, error)

type options struct {
	configPath string
	dsn        string
}

// NewRootCmd assembles the command tree. open is called lazily by each
// command after flags are parsed.
func NewRootCmd(open Opener, in io.Reader, out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Operate a sealvault deployment",
		Long:          `Runs database migrations, trash purge sweeps and account erasure against a vault's backends.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the server JSON config file")
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "database DSN, overrides the config file")

	connect := func(cmd *cobra.Command) (Backend, error) {
		cfg, err := config.LoadFile(opts.configPath)
		if err != nil {
			return nil, err
		}
		if opts.dsn != "" {
			cfg.DatabaseDSN = opts.dsn
		}
		return open(cmd.Context(), cfg)
	}

	root.AddCommand(newMigrateCmd(connect))
	root.AddCommand(newPurgeCmd(connect))
	root.AddCommand(newEraseCmd(connect))
	return root
}

type connectFunc func(cmd *cobra.Command) (Backend, error)
