package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/mohit83k/radius-aaa/internal/model"
	"github.com/mohit83k/radius-aaa/internal/redisclient"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisclient.NewClient(mr.Addr(), "", 0)
	t.Cleanup(func() { client.Close() })
	return New(redisclient.NewRedisStore(client))
}

func online(id, account string, start time.Time) model.OnlineSession {
	return model.OnlineSession{
		SessionKey:    model.SessionKey{NasAddr: "10.0.0.1", SessionID: id},
		AccountNumber: account,
		StartTime:     start,
	}
}

func TestInsert_ConcurrentSameKey(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.Insert(ctx, online("dup", "alice", base))
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	n, _ := r.CountByAccount(ctx, "alice")
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestGet_Missing(t *testing.T) {
	r := newRegistry(t)
	s, err := r.Get(context.Background(), model.SessionKey{NasAddr: "10.0.0.1", SessionID: "none"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Errorf("expected nil session, got %+v", s)
	}
}

func TestListByAccount_OldestFirst(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"c", "a", "b"} {
		start := base.Add(time.Duration(2-i) * time.Minute)
		if _, err := r.Insert(ctx, online(id, "alice", start)); err != nil {
			t.Fatal(err)
		}
	}

	list, err := r.ListByAccount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	if list[0].SessionID != "b" || list[2].SessionID != "c" {
		t.Errorf("unexpected order: %s %s %s", list[0].SessionID, list[1].SessionID, list[2].SessionID)
	}
}

func TestRemove(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()
	s := online("x", "bob", time.Now())

	if _, err := r.Insert(ctx, s); err != nil {
		t.Fatal(err)
	}
	removed, err := r.Remove(ctx, s)
	if err != nil || !removed {
		t.Fatalf("remove: %v %v", removed, err)
	}
	removed, err = r.Remove(ctx, s)
	if err != nil || removed {
		t.Fatalf("second remove: %v %v", removed, err)
	}
	list, _ := r.ListByNas(ctx, "10.0.0.1")
	if len(list) != 0 {
		t.Errorf("expected empty nas list, got %d", len(list))
	}
}
