// Package registry tracks active sessions on top of the shared store.
//
// The store's per-key insert is the only concurrency guarantee: two Inserts
// for the same key race there and exactly one wins. CountByAccount is a plain
// read and may be stale by the time the caller acts on it.
package registry

import (
	"context"
	"errors"
	"sort"

	"github.com/mohit83k/radius-aaa/internal/model"
	"github.com/mohit83k/radius-aaa/internal/redisclient"
)

// Store is the online-row subset of the row store.
type Store interface {
	InsertOnline(ctx context.Context, s model.OnlineSession) (bool, error)
	GetOnline(ctx context.Context, key model.SessionKey) (*model.OnlineSession, error)
	UpdateOnline(ctx context.Context, s model.OnlineSession) error
	DeleteOnline(ctx context.Context, s model.OnlineSession) (bool, error)
	CountOnlineByAccount(ctx context.Context, account string) (int64, error)
	ListOnlineByAccount(ctx context.Context, account string) ([]model.OnlineSession, error)
	ListOnlineByNas(ctx context.Context, nasAddr string) ([]model.OnlineSession, error)
}

// Registry is the online session registry.
type Registry struct {
	store Store
}

// New returns a Registry backed by store.
func New(store Store) *Registry {
	return &Registry{store: store}
}

// Insert adds s. It returns false, without error, when a session with the
// same key already exists.
func (r *Registry) Insert(ctx context.Context, s model.OnlineSession) (bool, error) {
	return r.store.InsertOnline(ctx, s)
}

// Get returns the session for key, or nil when there is none.
func (r *Registry) Get(ctx context.Context, key model.SessionKey) (*model.OnlineSession, error) {
	s, err := r.store.GetOnline(ctx, key)
	if errors.Is(err, redisclient.ErrNotFound) {
		return nil, nil
	}
	return s, err
}

// Checkpoint persists the session's new billing checkpoint.
func (r *Registry) Checkpoint(ctx context.Context, s model.OnlineSession) error {
	return r.store.UpdateOnline(ctx, s)
}

// Remove deletes s and reports whether it was still present.
func (r *Registry) Remove(ctx context.Context, s model.OnlineSession) (bool, error) {
	return r.store.DeleteOnline(ctx, s)
}

// CountByAccount returns the number of active sessions of account.
func (r *Registry) CountByAccount(ctx context.Context, account string) (int, error) {
	n, err := r.store.CountOnlineByAccount(ctx, account)
	return int(n), err
}

// ListByAccount returns the active sessions of account, oldest first.
func (r *Registry) ListByAccount(ctx context.Context, account string) ([]model.OnlineSession, error) {
	sessions, err := r.store.ListOnlineByAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
	return sessions, nil
}

// ListByNas returns the active sessions reported by a NAS.
func (r *Registry) ListByNas(ctx context.Context, nasAddr string) ([]model.OnlineSession, error) {
	return r.store.ListOnlineByNas(ctx, nasAddr)
}
