package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/mohit83k/radius-aaa/internal/model"
)

// insertOnline creates the row and both index entries in one step. SET NX on
// the row key is the uniqueness guarantee.
var insertOnline = redis.NewScript(`
if not redis.call('SET', KEYS[1], ARGV[1], 'NX') then
	return 0
end
redis.call('SADD', KEYS[2], ARGV[2])
redis.call('SADD', KEYS[3], ARGV[3])
return 1
`)

// InsertOnline creates the online row for s.Key together with its index
// entries. It returns false when the row already exists.
func (r *RedisStore) InsertOnline(ctx context.Context, s model.OnlineSession) (bool, error) {
	value, err := json.Marshal(s)
	if err != nil {
		return false, fmt.Errorf("failed to marshal online session: %w", err)
	}

	var inserted bool
	err = r.do(func() error {
		n, err := insertOnline.Run(ctx, r.client,
			[]string{onlineKey(s.SessionKey), keyOnlineByAccount + s.AccountNumber, keyOnlineByNas + s.NasAddr},
			string(value), indexMember(s.SessionKey), s.SessionID,
		).Int()
		inserted = n == 1
		return err
	})
	return inserted, err
}

// GetOnline loads the online row for key.
func (r *RedisStore) GetOnline(ctx context.Context, key model.SessionKey) (*model.OnlineSession, error) {
	var s model.OnlineSession
	if err := r.getJSON(ctx, onlineKey(key), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateOnline overwrites an existing online row. It returns ErrNotFound
// when the row has been removed concurrently.
func (r *RedisStore) UpdateOnline(ctx context.Context, s model.OnlineSession) error {
	value, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal online session: %w", err)
	}
	return r.do(func() error {
		ok, err := r.client.SetXX(ctx, onlineKey(s.SessionKey), string(value), 0).Result()
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteOnline removes the online row and its index entries. It reports
// whether the row existed.
func (r *RedisStore) DeleteOnline(ctx context.Context, s model.OnlineSession) (bool, error) {
	var removed bool
	err := r.do(func() error {
		var del *redis.IntCmd
		_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			del = pipe.Del(ctx, onlineKey(s.SessionKey))
			pipe.SRem(ctx, keyOnlineByAccount+s.AccountNumber, indexMember(s.SessionKey))
			pipe.SRem(ctx, keyOnlineByNas+s.NasAddr, s.SessionID)
			return nil
		})
		if err != nil {
			return err
		}
		removed = del.Val() > 0
		return nil
	})
	return removed, err
}

// CountOnlineByAccount returns the number of online rows of an account.
func (r *RedisStore) CountOnlineByAccount(ctx context.Context, account string) (int64, error) {
	var n int64
	err := r.do(func() error {
		var err error
		n, err = r.client.SCard(ctx, keyOnlineByAccount+account).Result()
		return err
	})
	return n, err
}

// ListOnlineByAccount returns the online rows of an account.
func (r *RedisStore) ListOnlineByAccount(ctx context.Context, account string) ([]model.OnlineSession, error) {
	var keys []model.SessionKey
	err := r.do(func() error {
		members, err := r.client.SMembers(ctx, keyOnlineByAccount+account).Result()
		if err != nil {
			return err
		}
		for _, m := range members {
			nas, sid, ok := strings.Cut(m, "|")
			if !ok {
				continue
			}
			keys = append(keys, model.SessionKey{NasAddr: nas, SessionID: sid})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.loadOnline(ctx, keys)
}

// ListOnlineByNas returns the online rows of a NAS.
func (r *RedisStore) ListOnlineByNas(ctx context.Context, nasAddr string) ([]model.OnlineSession, error) {
	var keys []model.SessionKey
	err := r.do(func() error {
		ids, err := r.client.SMembers(ctx, keyOnlineByNas+nasAddr).Result()
		if err != nil {
			return err
		}
		for _, id := range ids {
			keys = append(keys, model.SessionKey{NasAddr: nasAddr, SessionID: id})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.loadOnline(ctx, keys)
}

// loadOnline fetches rows for keys, skipping index entries whose row is gone.
func (r *RedisStore) loadOnline(ctx context.Context, keys []model.SessionKey) ([]model.OnlineSession, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rowKeys := make([]string, len(keys))
	for i, k := range keys {
		rowKeys[i] = onlineKey(k)
	}

	var out []model.OnlineSession
	err := r.do(func() error {
		vals, err := r.client.MGet(ctx, rowKeys...).Result()
		if err != nil {
			return err
		}
		for _, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var s model.OnlineSession
			if err := json.Unmarshal([]byte(raw), &s); err != nil {
				return fmt.Errorf("failed to unmarshal online session: %w", err)
			}
			out = append(out, s)
		}
		return nil
	})
	return out, err
}
