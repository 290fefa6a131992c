package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"github.com/mohit83k/radius-aaa/internal/model"
)

func TestRedisStore_AppendTicket_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db)

	ticket := model.Ticket{
		ID:            "t-1",
		Key:           model.SessionKey{NasAddr: "10.0.0.1", SessionID: "abc123"},
		AccountNumber: "testuser",
		StartTime:     time.Date(2025, 6, 21, 10, 0, 0, 0, time.UTC),
		StopTime:      time.Date(2025, 6, 21, 11, 0, 0, 0, time.UTC),
		SessionTime:   3600,
	}

	val, _ := json.Marshal(ticket)
	mock.ExpectRPush("radius:ticket:testuser", string(val)).SetVal(1)

	if err := store.AppendTicket(context.Background(), ticket); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRedisStore_AppendTicket_Failure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db)

	ticket := model.Ticket{ID: "t-2", AccountNumber: "failuser"}
	val, _ := json.Marshal(ticket)

	mock.ExpectRPush("radius:ticket:failuser", string(val)).
		SetErr(fmt.Errorf("redis is down"))

	err := store.AppendTicket(context.Background(), ticket)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRedisStore_GetAccount_NotFound(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db)

	mock.ExpectGet("radius:account:ghost").RedisNil()

	_, err := store.GetAccount(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStore_GetAccount_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db)

	acc := model.Account{Number: "alice", Status: model.StatusNormal, Balance: 500}
	val, _ := json.Marshal(acc)
	mock.ExpectGet("radius:account:alice").SetVal(string(val))

	got, err := store.GetAccount(context.Background(), "alice")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Balance != 500 || got.Status != model.StatusNormal {
		t.Errorf("unexpected account: %+v", got)
	}
}

func TestRedisStore_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		mock.ExpectGet("radius:product:p1").SetErr(errors.New("connection refused"))
	}
	for i := 0; i < 5; i++ {
		if _, err := store.GetProduct(ctx, "p1"); !errors.Is(err, ErrStoreUnavailable) {
			t.Fatalf("call %d: expected ErrStoreUnavailable, got %v", i, err)
		}
	}

	// open breaker fails fast without touching redis
	if _, err := store.GetProduct(ctx, "p1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from open breaker, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRedisStore_NotFoundDoesNotTripBreaker(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		mock.ExpectGet("radius:nas:10.9.9.9").RedisNil()
	}
	for i := 0; i < 6; i++ {
		if _, err := store.GetNAS(ctx, "10.9.9.9"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("call %d: expected ErrNotFound, got %v", i, err)
		}
	}
}
