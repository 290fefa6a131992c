package acct

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohit83k/radius-aaa/internal/model"
	"github.com/mohit83k/radius-aaa/internal/radiusx"
	"github.com/mohit83k/radius-aaa/internal/redisclient"
)

// Update bills the usage since the last checkpoint and advances it. An update
// for a session that is not online registers it from the reported counters
// without billing. Retransmitted updates and updates after Stop are ignored.
func (m *Machine) Update(ctx context.Context, req *radiusx.Request) error {
	acc, err := m.account(ctx, req)
	if err != nil || acc == nil {
		return err
	}
	if done, err := m.stopped(ctx, req); err != nil || done {
		return err
	}

	key := req.SessionKey()
	seen := checkpointOf(counters(req))
	first, err := m.ledger.MarkInterim(ctx, key, seen, m.stopTTL)
	if err != nil {
		return fmt.Errorf("failed to mark update: %w", err)
	}
	if !first {
		m.requestLog(req).Debug("Duplicate Interim-Update ignored")
		return nil
	}

	if err := m.update(ctx, req, acc); err != nil {
		if uerr := m.ledger.UnmarkInterim(ctx, key, seen); uerr != nil {
			m.log.Error(fmt.Errorf("failed to clear update marker for %s: %w", key, uerr))
		}
		return err
	}
	return nil
}

func (m *Machine) update(ctx context.Context, req *radiusx.Request, acc *model.Account) error {
	s, err := m.sessions.Get(ctx, req.SessionKey())
	if err != nil {
		return err
	}
	if s == nil {
		return m.adopt(ctx, req, acc)
	}

	out, err := m.bill(ctx, acc, s, counters(req))
	if err != nil || out == nil {
		return err
	}
	if err := m.sessions.Checkpoint(ctx, *s); err != nil {
		if errors.Is(err, redisclient.ErrNotFound) {
			m.requestLog(req).Warn("Session closed while billing update")
			return nil
		}
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	if out.Exhausted {
		m.requestLog(req).Info("Allowance exhausted, disconnecting session")
		m.disconnector.Disconnect(ctx, *s, "exhausted")
	}
	return nil
}

// adopt registers a session first seen through an Interim-Update, e.g. after
// a lost Start or a server restart.
func (m *Machine) adopt(ctx context.Context, req *radiusx.Request, acc *model.Account) error {
	c := counters(req)
	s := model.OnlineSession{
		SessionKey:    req.SessionKey(),
		AccountNumber: acc.Number,
		StartTime:     m.now().Add(-time.Duration(c.SessionTime) * time.Second),
		Checkpoint:    checkpointOf(c),
		FramedIP:      req.FramedIP(),
		MACAddr:       req.MacAddr(),
		StartSource:   model.SourceUpdate,
	}
	if _, err := m.sessions.Insert(ctx, s); err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	m.requestLog(req).Info("Session registered from Interim-Update")
	return nil
}
