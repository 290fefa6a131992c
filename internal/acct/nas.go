package acct

import (
	"context"
	"errors"
	"fmt"

	"layeh.com/radius/rfc2866"

	"github.com/mohit83k/radius-aaa/internal/model"
)

// NasReload closes every session of a NAS that reported Accounting-On or
// Accounting-Off. Tickets are written from the last checkpoint; the usage
// since then is not billed.
func (m *Machine) NasReload(ctx context.Context, nasAddr, source string) error {
	online, err := m.sessions.ListByNas(ctx, nasAddr)
	if err != nil {
		return fmt.Errorf("failed to list sessions of %s: %w", nasAddr, err)
	}

	now := m.now()
	var errs []error
	for _, s := range online {
		ticket := model.Ticket{
			ID:             m.newID(),
			Key:            s.SessionKey,
			AccountNumber:  s.AccountNumber,
			StartTime:      s.StartTime,
			StopTime:       now,
			SessionTime:    int64(now.Sub(s.StartTime).Seconds()),
			InputTotal:     s.Checkpoint.InputTotal,
			OutputTotal:    s.Checkpoint.OutputTotal,
			FramedIP:       s.FramedIP,
			MACAddr:        s.MACAddr,
			TerminateCause: uint32(rfc2866.AcctTerminateCause_Value_NASReboot),
			StopSource:     source,
		}
		removed, err := m.sessions.Remove(ctx, s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !removed {
			continue
		}
		if err := m.ledger.AppendTicket(ctx, ticket); err != nil {
			errs = append(errs, err)
		}
	}

	m.log.WithFields(map[string]any{
		"nas":      nasAddr,
		"source":   source,
		"sessions": len(online),
		"failed":   len(errs),
	}).Info("Closed sessions on NAS reload")
	return errors.Join(errs...)
}
