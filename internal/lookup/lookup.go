// Package lookup reads accounts, products and NAS rows through the cache.
package lookup

import (
	"context"
	"time"

	"github.com/mohit83k/radius-aaa/internal/cache"
	"github.com/mohit83k/radius-aaa/internal/events"
	"github.com/mohit83k/radius-aaa/internal/model"
)

// Store is the subset of the row store used for cached reads.
type Store interface {
	GetAccount(ctx context.Context, number string) (*model.Account, error)
	SaveAccount(ctx context.Context, acc *model.Account) error
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	GetNAS(ctx context.Context, addr string) (*model.NAS, error)
}

// AccountKey, ProductKey and NASKey are the cache keys of each row kind.
func AccountKey(number string) string { return "account:" + number }
func ProductKey(id string) string     { return "product:" + id }
func NASKey(addr string) string       { return "nas:" + addr }

// Lookup serves rows from the cache, falling back to the store on a miss.
// Returned values are copies and may be modified by the caller.
type Lookup struct {
	store  Store
	cache  *cache.Cache
	ttl    time.Duration
	events events.Publisher
}

// New returns a Lookup.
func New(store Store, c *cache.Cache, ttl time.Duration, pub events.Publisher) *Lookup {
	if pub == nil {
		pub = events.Discard
	}
	return &Lookup{store: store, cache: c, ttl: ttl, events: pub}
}

// Account returns the account with the given number.
func (l *Lookup) Account(ctx context.Context, number string) (*model.Account, error) {
	v, err := l.cache.GetOrCompute(ctx, AccountKey(number), func(ctx context.Context) (any, error) {
		return l.store.GetAccount(ctx, number)
	}, l.ttl)
	if err != nil {
		return nil, err
	}
	acc := *v.(*model.Account)
	return &acc, nil
}

// Product returns the product with the given id.
func (l *Lookup) Product(ctx context.Context, id string) (*model.Product, error) {
	v, err := l.cache.GetOrCompute(ctx, ProductKey(id), func(ctx context.Context) (any, error) {
		return l.store.GetProduct(ctx, id)
	}, l.ttl)
	if err != nil {
		return nil, err
	}
	p := *v.(*model.Product)
	return &p, nil
}

// NAS returns the NAS registered at addr.
func (l *Lookup) NAS(ctx context.Context, addr string) (*model.NAS, error) {
	v, err := l.cache.GetOrCompute(ctx, NASKey(addr), func(ctx context.Context) (any, error) {
		return l.store.GetNAS(ctx, addr)
	}, l.ttl)
	if err != nil {
		return nil, err
	}
	n := *v.(*model.NAS)
	return &n, nil
}

// SaveAccount writes acc to the store, then invalidates it here and in other
// processes.
func (l *Lookup) SaveAccount(ctx context.Context, acc *model.Account) error {
	if err := l.store.SaveAccount(ctx, acc); err != nil {
		return err
	}
	l.Invalidate(ctx, AccountKey(acc.Number))
	return nil
}

// Invalidate drops key locally and broadcasts the invalidation.
func (l *Lookup) Invalidate(ctx context.Context, key string) {
	l.cache.Invalidate(key)
	l.events.Publish(ctx, events.Event{Name: events.CacheInvalidate, CacheKey: key})
}

// OnEvent applies invalidations published by other processes.
func (l *Lookup) OnEvent(e events.Event) {
	if e.Name == events.CacheInvalidate && e.CacheKey != "" {
		l.cache.Invalidate(e.CacheKey)
	}
}
