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

// Stop bills the final usage, closes the session and writes its ticket. Each
// session is closed at most once; repeated Stops are ignored.
func (m *Machine) Stop(ctx context.Context, req *radiusx.Request) error {
	key := req.SessionKey()
	first, err := m.ledger.MarkStopped(ctx, key, m.stopTTL)
	if err != nil {
		return fmt.Errorf("failed to mark stop: %w", err)
	}
	if !first {
		m.requestLog(req).Debug("Duplicate Accounting-Stop ignored")
		return nil
	}

	if err := m.stop(ctx, req); err != nil {
		if uerr := m.ledger.UnmarkStopped(ctx, key); uerr != nil {
			m.log.Error(fmt.Errorf("failed to clear stop marker for %s: %w", key, uerr))
		}
		return err
	}
	return nil
}

func (m *Machine) stop(ctx context.Context, req *radiusx.Request) error {
	acc, err := m.account(ctx, req)
	if err != nil {
		return err
	}
	s, err := m.sessions.Get(ctx, req.SessionKey())
	if err != nil {
		return err
	}

	now := m.now()
	c := counters(req)
	ticket := model.Ticket{
		ID:             m.newID(),
		Key:            req.SessionKey(),
		AccountNumber:  req.UserName(),
		StopTime:       now,
		SessionTime:    c.SessionTime,
		InputTotal:     c.InputTotal,
		OutputTotal:    c.OutputTotal,
		FramedIP:       req.FramedIP(),
		MACAddr:        req.MacAddr(),
		TerminateCause: req.TerminateCause(),
		StopSource:     model.StopSourceStop,
	}

	if s == nil {
		ticket.StartTime = now.Add(-time.Duration(c.SessionTime) * time.Second)
		ticket.Reconstructed = true
		if err := m.ledger.AppendTicket(ctx, ticket); err != nil {
			return fmt.Errorf("failed to append ticket: %w", err)
		}
		m.requestLog(req).Info("Accounting-Stop without online session, ticket reconstructed")
		return nil
	}

	if acc != nil {
		out, err := m.bill(ctx, acc, s, c)
		if err != nil {
			return err
		}
		// A retried Stop bills from the final checkpoint.
		if out != nil {
			if err := m.sessions.Checkpoint(ctx, *s); err != nil && !errors.Is(err, redisclient.ErrNotFound) {
				return fmt.Errorf("failed to save checkpoint: %w", err)
			}
		}
	}
	ticket.AccountNumber = s.AccountNumber
	ticket.StartTime = s.StartTime
	if ticket.FramedIP == "" {
		ticket.FramedIP = s.FramedIP
	}
	if ticket.MACAddr == "" {
		ticket.MACAddr = s.MACAddr
	}

	if _, err := m.sessions.Remove(ctx, *s); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	if err := m.ledger.AppendTicket(ctx, ticket); err != nil {
		return fmt.Errorf("failed to append ticket: %w", err)
	}
	m.requestLog(req).Info("Session stopped")
	return nil
}
