// Package acct is the accounting state machine. It keeps the online session
// registry in step with Start, Interim-Update, Stop and Accounting-On/Off
// messages and bills metered usage on every update.
package acct

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"layeh.com/radius/rfc2866"

	"github.com/mohit83k/radius-aaa/internal/billing"
	"github.com/mohit83k/radius-aaa/internal/disconnect"
	"github.com/mohit83k/radius-aaa/internal/logger"
	"github.com/mohit83k/radius-aaa/internal/model"
	"github.com/mohit83k/radius-aaa/internal/radiusx"
	"github.com/mohit83k/radius-aaa/internal/redisclient"
)

// Machine processes accounting requests.
type Machine struct {
	catalog      Catalog
	accounts     Accounts
	sessions     Sessions
	ledger       Ledger
	disconnector disconnect.Disconnector
	log          logger.Logger
	stopTTL      time.Duration

	now   func() time.Time
	newID func() string
}

// NewMachine returns a Machine. stopTTL is how long processed Stops and
// Interim-Updates are remembered for duplicate suppression.
func NewMachine(catalog Catalog, accounts Accounts, sessions Sessions, ledger Ledger, d disconnect.Disconnector, log logger.Logger, stopTTL time.Duration) *Machine {
	return &Machine{
		catalog:      catalog,
		accounts:     accounts,
		sessions:     sessions,
		ledger:       ledger,
		disconnector: d,
		log:          log,
		stopTTL:      stopTTL,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// SetClock replaces the time source. Used by tests.
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// Handle dispatches req on its Acct-Status-Type. A returned error means the
// request had no billing effect; the caller logs it and still acknowledges.
func (m *Machine) Handle(ctx context.Context, req *radiusx.Request) error {
	switch status := req.AcctStatusType(); status {
	case rfc2866.AcctStatusType_Value_Start:
		return m.Start(ctx, req)
	case rfc2866.AcctStatusType_Value_InterimUpdate:
		return m.Update(ctx, req)
	case rfc2866.AcctStatusType_Value_Stop:
		return m.Stop(ctx, req)
	case rfc2866.AcctStatusType_Value_AccountingOn:
		return m.NasReload(ctx, req.NasAddr(), model.StopSourceNasOn)
	case rfc2866.AcctStatusType_Value_AccountingOff:
		return m.NasReload(ctx, req.NasAddr(), model.StopSourceNasOff)
	default:
		m.log.WithFields(map[string]any{
			"nas":    req.NasAddr(),
			"status": uint32(status),
		}).Warn("Ignoring unsupported Acct-Status-Type")
		return nil
	}
}

func (m *Machine) requestLog(req *radiusx.Request) logger.Logger {
	return m.log.WithFields(map[string]any{
		"account": req.UserName(),
		"nas":     req.NasAddr(),
		"session": rfc2866.AcctSessionID_GetString(req.Packet),
	})
}

// account loads the request's account from the store. A missing account
// yields nil without error.
func (m *Machine) account(ctx context.Context, req *radiusx.Request) (*model.Account, error) {
	acc, err := m.accounts.GetAccount(ctx, req.UserName())
	if errors.Is(err, redisclient.ErrNotFound) {
		m.requestLog(req).Warn("Accounting for unknown account")
		return nil, nil
	}
	return acc, err
}

// stopped reports whether req's session was already closed by a Stop. Late
// Starts and Interim-Updates must not bring such a session back online.
func (m *Machine) stopped(ctx context.Context, req *radiusx.Request) (bool, error) {
	done, err := m.ledger.IsStopped(ctx, req.SessionKey())
	if err != nil {
		return false, fmt.Errorf("failed to check stop marker: %w", err)
	}
	if done {
		m.requestLog(req).Warn("Accounting after Stop ignored")
	}
	return done, nil
}

func counters(req *radiusx.Request) billing.Counters {
	return billing.Counters{
		SessionTime: req.SessionTime(),
		InputTotal:  req.InputTotal(),
		OutputTotal: req.OutputTotal(),
	}
}

func checkpointOf(c billing.Counters) model.Checkpoint {
	return model.Checkpoint{
		BilledSeconds: c.SessionTime,
		InputTotal:    c.InputTotal,
		OutputTotal:   c.OutputTotal,
	}
}

// bill charges the usage since s's checkpoint to acc, persists the new
// balances and checkpoint and appends a billing record. A missing product
// skips billing.
func (m *Machine) bill(ctx context.Context, acc *model.Account, s *model.OnlineSession, c billing.Counters) (*billing.Outcome, error) {
	product, err := m.catalog.Product(ctx, acc.ProductID)
	if errors.Is(err, redisclient.ErrNotFound) {
		m.log.WithFields(map[string]any{
			"account": acc.Number,
			"product": acc.ProductID,
		}).Warn("Skipping billing for unknown product")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	before := billing.Balances{Balance: acc.Balance, TimeLength: acc.TimeLength, FlowLength: acc.FlowLength}
	out := billing.Calculate(product, before, s.Checkpoint, c)
	log := m.log.WithFields(map[string]any{
		"account": acc.Number,
		"nas":     s.NasAddr,
		"session": s.SessionID,
	})
	if out.CounterReset {
		log.Warn("Session counters went backwards, restarting checkpoint")
	}
	if out.Clamped {
		log.Warn("Charge clamped to remaining allowance")
	}

	if out.Balances != before {
		acc.Balance = out.Balances.Balance
		acc.TimeLength = out.Balances.TimeLength
		acc.FlowLength = out.Balances.FlowLength
		if err := m.catalog.SaveAccount(ctx, acc); err != nil {
			return nil, fmt.Errorf("failed to save account balances: %w", err)
		}
	}

	s.Checkpoint = out.Checkpoint
	rec := out.Record(m.newID(), s.SessionKey, acc.Number, product.Policy, m.now())
	if err := m.ledger.AppendBilling(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to append billing record: %w", err)
	}
	return &out, nil
}
