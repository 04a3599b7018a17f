// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/sealvault/internal/dbx"
	"github.com/dmitrijs2005/sealvault/internal/server/migrations"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/filegrants"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/files"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/folderfiles"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/foldergrants"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/folders"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/identities"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/questions"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/recoverytokens"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/settings"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Credentials(db dbx.DBTX) credentials.Repository {
	return credentials.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Identities(db dbx.DBTX) identities.Repository {
	return identities.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Settings(db dbx.DBTX) settings.Repository {
	return settings.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Files(db dbx.DBTX) files.Repository {
	return files.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) FileGrants(db dbx.DBTX) filegrants.Repository {
	return filegrants.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Folders(db dbx.DBTX) folders.Repository {
	return folders.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) FolderGrants(db dbx.DBTX) foldergrants.Repository {
	return foldergrants.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) FolderFiles(db dbx.DBTX) folderfiles.Repository {
	return folderfiles.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Questions(db dbx.DBTX) questions.Repository {
	return questions.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RecoveryTokens(db dbx.DBTX) recoverytokens.Repository {
	return recoverytokens.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) (RepositoryManager, error) {
	return &PostgresRepositoryManager{}, nil
}
