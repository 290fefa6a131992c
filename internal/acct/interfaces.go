package acct

import (
	"context"
	"time"

	"github.com/mohit83k/radius-aaa/internal/model"
)

// Catalog reads products and saves accounts, invalidating cached copies.
type Catalog interface {
	Account(ctx context.Context, number string) (*model.Account, error)
	Product(ctx context.Context, id string) (*model.Product, error)
	SaveAccount(ctx context.Context, acc *model.Account) error
}

// Accounts reads account rows straight from the store. Balances are
// read-modify-written, so they are never taken from a cache.
type Accounts interface {
	GetAccount(ctx context.Context, number string) (*model.Account, error)
}

// Sessions is the online session registry.
type Sessions interface {
	Insert(ctx context.Context, s model.OnlineSession) (bool, error)
	Get(ctx context.Context, key model.SessionKey) (*model.OnlineSession, error)
	Checkpoint(ctx context.Context, s model.OnlineSession) error
	Remove(ctx context.Context, s model.OnlineSession) (bool, error)
	ListByNas(ctx context.Context, nasAddr string) ([]model.OnlineSession, error)
}

// Ledger stores billing records, tickets and the Stop and Interim-Update
// markers used to drop duplicates.
type Ledger interface {
	AppendBilling(ctx context.Context, rec model.BillingRecord) error
	AppendTicket(ctx context.Context, t model.Ticket) error
	MarkStopped(ctx context.Context, key model.SessionKey, ttl time.Duration) (bool, error)
	UnmarkStopped(ctx context.Context, key model.SessionKey) error
	IsStopped(ctx context.Context, key model.SessionKey) (bool, error)
	MarkInterim(ctx context.Context, key model.SessionKey, c model.Checkpoint, ttl time.Duration) (bool, error)
	UnmarkInterim(ctx context.Context, key model.SessionKey, c model.Checkpoint) error
}
