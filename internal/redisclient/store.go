package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/mohit83k/radius-aaa/internal/model"
)

// RedisStore is the row store for accounts, products, NAS devices, online
// sessions and the billing/ticket ledgers.
type RedisStore struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// NewClient returns a go-redis client with auto-reconnect and retry.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		MaxRetries:      5,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 1 * time.Second,
	})
}

// NewRedisStore wraps client with a circuit breaker that trips after five
// consecutive failures.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "redis-store",
			MaxRequests: 1,
			Timeout:     5 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, redis.Nil) || errors.Is(err, ErrNotFound)
			},
		}),
	}
}

// Client returns the underlying go-redis client.
func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func (r *RedisStore) do(fn func() error) error {
	_, err := r.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	case errors.Is(err, redis.Nil):
		return ErrNotFound
	case errors.Is(err, ErrNotFound):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func (r *RedisStore) getJSON(ctx context.Context, key string, v any) error {
	return r.do(func() error {
		raw, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", key, err)
		}
		return nil
	})
}

func (r *RedisStore) setJSON(ctx context.Context, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return r.do(func() error {
		return r.client.Set(ctx, key, string(value), 0).Err()
	})
}

// GetAccount loads an account by number.
func (r *RedisStore) GetAccount(ctx context.Context, number string) (*model.Account, error) {
	var acc model.Account
	if err := r.getJSON(ctx, keyAccount+number, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// SaveAccount overwrites an account row.
func (r *RedisStore) SaveAccount(ctx context.Context, acc *model.Account) error {
	return r.setJSON(ctx, keyAccount+acc.Number, acc)
}

// GetProduct loads a product by id.
func (r *RedisStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	if err := r.getJSON(ctx, keyProduct+id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProduct overwrites a product row.
func (r *RedisStore) SaveProduct(ctx context.Context, p *model.Product) error {
	return r.setJSON(ctx, keyProduct+p.ID, p)
}

// GetNAS loads a NAS by its IP address.
func (r *RedisStore) GetNAS(ctx context.Context, addr string) (*model.NAS, error) {
	var n model.NAS
	if err := r.getJSON(ctx, keyNAS+addr, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// SaveNAS overwrites a NAS row.
func (r *RedisStore) SaveNAS(ctx context.Context, n *model.NAS) error {
	return r.setJSON(ctx, keyNAS+n.Addr, n)
}

// AppendBilling appends a billing record to the account's ledger.
func (r *RedisStore) AppendBilling(ctx context.Context, rec model.BillingRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal billing record: %w", err)
	}
	return r.do(func() error {
		return r.client.RPush(ctx, keyBilling+rec.AccountNumber, string(value)).Err()
	})
}

// ListBilling returns the account's billing ledger, oldest first.
func (r *RedisStore) ListBilling(ctx context.Context, account string) ([]model.BillingRecord, error) {
	var out []model.BillingRecord
	err := r.listJSON(ctx, keyBilling+account, func(raw []byte) error {
		var rec model.BillingRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// AppendTicket appends a closed-session ticket to the account's history.
func (r *RedisStore) AppendTicket(ctx context.Context, t model.Ticket) error {
	value, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}
	return r.do(func() error {
		return r.client.RPush(ctx, keyTicket+t.AccountNumber, string(value)).Err()
	})
}

// ListTickets returns the account's tickets, oldest first.
func (r *RedisStore) ListTickets(ctx context.Context, account string) ([]model.Ticket, error) {
	var out []model.Ticket
	err := r.listJSON(ctx, keyTicket+account, func(raw []byte) error {
		var t model.Ticket
		if err := json.Unmarshal(raw, &t); err != nil {
			return err
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

func (r *RedisStore) listJSON(ctx context.Context, key string, each func([]byte) error) error {
	return r.do(func() error {
		vals, err := r.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		for _, v := range vals {
			if err := each([]byte(v)); err != nil {
				return fmt.Errorf("failed to unmarshal %s: %w", key, err)
			}
		}
		return nil
	})
}

// MarkStopped records that a Stop was processed for key. It returns false
// when the marker already existed.
func (r *RedisStore) MarkStopped(ctx context.Context, key model.SessionKey, ttl time.Duration) (bool, error) {
	var first bool
	err := r.do(func() error {
		ok, err := r.client.SetNX(ctx, stoppedKey(key), "stop", ttl).Result()
		first = ok
		return err
	})
	return first, err
}

// UnmarkStopped removes the Stop marker so a failed Stop can be retried.
func (r *RedisStore) UnmarkStopped(ctx context.Context, key model.SessionKey) error {
	return r.do(func() error {
		return r.client.Del(ctx, stoppedKey(key)).Err()
	})
}

// IsStopped reports whether a Stop was already processed for key.
func (r *RedisStore) IsStopped(ctx context.Context, key model.SessionKey) (bool, error) {
	var stopped bool
	err := r.do(func() error {
		n, err := r.client.Exists(ctx, stoppedKey(key)).Result()
		stopped = n > 0
		return err
	})
	return stopped, err
}

// MarkInterim records that an Interim-Update carrying counters c was
// processed for key. It returns false when the same update was seen before.
func (r *RedisStore) MarkInterim(ctx context.Context, key model.SessionKey, c model.Checkpoint, ttl time.Duration) (bool, error) {
	var first bool
	err := r.do(func() error {
		ok, err := r.client.SetNX(ctx, interimKey(key, c), "interim", ttl).Result()
		first = ok
		return err
	})
	return first, err
}

// UnmarkInterim removes an Interim-Update marker so a failed update can be
// retried.
func (r *RedisStore) UnmarkInterim(ctx context.Context, key model.SessionKey, c model.Checkpoint) error {
	return r.do(func() error {
		return r.client.Del(ctx, interimKey(key, c)).Err()
	})
}
