package acct

import (
	"context"
	"fmt"

	"github.com/mohit83k/radius-aaa/internal/model"
	"github.com/mohit83k/radius-aaa/internal/radiusx"
)

// Start registers a new online session. A Start for a session that is already
// online is a retransmission and changes nothing, as is one that arrives after
// the session's Stop.
func (m *Machine) Start(ctx context.Context, req *radiusx.Request) error {
	acc, err := m.account(ctx, req)
	if err != nil || acc == nil {
		return err
	}
	if done, err := m.stopped(ctx, req); err != nil || done {
		return err
	}

	s := model.OnlineSession{
		SessionKey:    req.SessionKey(),
		AccountNumber: acc.Number,
		StartTime:     m.now(),
		FramedIP:      req.FramedIP(),
		MACAddr:       req.MacAddr(),
		StartSource:   model.SourceStart,
	}
	inserted, err := m.sessions.Insert(ctx, s)
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	log := m.requestLog(req)
	if !inserted {
		log.Debug("Duplicate Accounting-Start ignored")
		return nil
	}
	log.Info("Session started")

	if acc.Status == model.StatusPreAuth {
		return m.activate(ctx, acc)
	}
	return nil
}

// activate moves a pre-authorized account to normal on its first session and
// starts its subscription period.
func (m *Machine) activate(ctx context.Context, acc *model.Account) error {
	acc.Status = model.StatusNormal
	product, err := m.catalog.Product(ctx, acc.ProductID)
	if err == nil && product.Policy.IsMonthly() && product.BuyoutMonths > 0 {
		acc.ExpireDate = m.now().AddDate(0, product.BuyoutMonths, 0)
	}
	if err := m.catalog.SaveAccount(ctx, acc); err != nil {
		return fmt.Errorf("failed to activate account: %w", err)
	}
	m.log.WithFields(map[string]any{
		"account":     acc.Number,
		"expire_date": acc.ExpireDate,
	}).Info("Account activated on first session")
	return nil
}
