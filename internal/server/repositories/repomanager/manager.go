package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/sealvault/internal/dbx"
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
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Credentials(db dbx.DBTX) credentials.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Identities(db dbx.DBTX) identities.Repository
	Settings(db dbx.DBTX) settings.Repository
	Files(db dbx.DBTX) files.Repository
	FileGrants(db dbx.DBTX) filegrants.Repository
	Folders(db dbx.DBTX) folders.Repository
	FolderGrants(db dbx.DBTX) foldergrants.Repository
	FolderFiles(db dbx.DBTX) folderfiles.Repository
	Questions(db dbx.DBTX) questions.Repository
	RecoveryTokens(db dbx.DBTX) recoverytokens.Repository
}
