package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/inkpost/internal/dbx"
	"github.com/dmitrijs2005/inkpost/internal/server/repositories/blogs"
	"github.com/dmitrijs2005/inkpost/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/inkpost/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either a *sql.DB or a
// *sql.Tx, so services can run several repositories in one unit of work.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Blogs(db dbx.DBTX) blogs.Repository
}
