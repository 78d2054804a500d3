package repomanager

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
)

// Repositories is the set of stores visible inside a unit of work.
type Repositories interface {
	Users() users.Repository
	RefreshTokens() refreshtokens.Repository
}

// TxFunc runs against repositories bound to one transaction.
type TxFunc func(ctx context.Context, repos Repositories) error

// RepositoryManager vends repositories outside a transaction and runs TxFunc
// atomically: everything fn wrote is committed when it returns nil and
// discarded otherwise.
type RepositoryManager interface {
	Repositories
	WithTx(ctx context.Context, fn TxFunc) error
	RunMigrations(ctx context.Context) error
	Close() error
}
