// Package auth is the authorization decision engine.
//
// Authorize runs a fixed pipeline of filters over the request. The first
// filter that rejects ends the pipeline with its reason; store failures are
// returned as errors so the caller can drop the request.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/mohit83k/radius-aaa/internal/disconnect"
	"github.com/mohit83k/radius-aaa/internal/events"
	"github.com/mohit83k/radius-aaa/internal/logger"
	"github.com/mohit83k/radius-aaa/internal/model"
	"github.com/mohit83k/radius-aaa/internal/radiusx"
	"github.com/mohit83k/radius-aaa/internal/redisclient"
)

// Reject reasons sent back in Reply-Message.
const (
	ReasonUnknownAccount = "user not exists"
	ReasonUnknownProduct = "product not exists"
	ReasonPaused         = "user status is paused"
	ReasonCancelled      = "user status is cancelled"
	ReasonExpired        = "user is expired"
	ReasonBadPassword    = "password not match"
	ReasonMACMismatch    = "mac address binding mismatch"
	ReasonVLANMismatch   = "vlan binding mismatch"
	ReasonNoBalance      = "user balance not enough"
	ReasonNoTime         = "user time length not enough"
	ReasonNoFlow         = "user flow length not enough"
	ReasonOnlineLimit    = "user online count exceeds limit"
	ReasonInternal       = "internal server error"
)

// Result is the authorization decision.
type Result struct {
	Granted bool
	Reason  string
	Attrs   radiusx.Attrs
}

// Catalog reads and writes the rows the engine needs.
type Catalog interface {
	Account(ctx context.Context, number string) (*model.Account, error)
	Product(ctx context.Context, id string) (*model.Product, error)
	SaveAccount(ctx context.Context, acc *model.Account) error
}

// Sessions is the read side of the online session registry.
type Sessions interface {
	CountByAccount(ctx context.Context, account string) (int, error)
	ListByAccount(ctx context.Context, account string) ([]model.OnlineSession, error)
}

// Options tune the engine.
type Options struct {
	// MaxSessionTimeout caps Session-Timeout in seconds; 0 disables the cap.
	MaxSessionTimeout int64
	InterimInterval   uint32
	// AutoUnlock disconnects the oldest session instead of rejecting when
	// the account is at its online limit.
	AutoUnlock bool
}

// Engine runs the authorization pipeline.
type Engine struct {
	catalog      Catalog
	sessions     Sessions
	disconnector disconnect.Disconnector
	events       events.Publisher
	log          logger.Logger
	opts         Options
	now          func() time.Time
	filters      []filter
}

// request is the state carried through the filters.
type request struct {
	req     *radiusx.Request
	account *model.Account
	product *model.Product
	// grace is set when the account is served under the product's grace
	// policy instead of its normal policy.
	grace bool
	attrs radiusx.Attrs
}

// filter rejects with a non-empty reason, or fails with an error.
type filter func(ctx context.Context, r *request) (string, error)

// NewEngine returns an Engine.
func NewEngine(catalog Catalog, sessions Sessions, d disconnect.Disconnector, pub events.Publisher, log logger.Logger, opts Options) *Engine {
	e := &Engine{
		catalog:      catalog,
		sessions:     sessions,
		disconnector: d,
		events:       pub,
		log:          log,
		opts:         opts,
		now:          time.Now,
	}
	e.filters = []filter{e.statusFilter, e.bindFilter, e.policyFilter, e.limitFilter, e.sessionFilter}
	return e
}

// SetClock replaces the time source. Used by tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Authorize decides whether req may connect.
func (e *Engine) Authorize(ctx context.Context, req *radiusx.Request) (*Result, error) {
	r := &request{req: req, attrs: radiusx.Attrs{}}
	for _, f := range e.filters {
		reason, err := f(ctx, r)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			return &Result{Granted: false, Reason: reason}, nil
		}
	}
	return &Result{Granted: true, Attrs: r.attrs}, nil
}

func (e *Engine) statusFilter(ctx context.Context, r *request) (string, error) {
	acc, err := e.catalog.Account(ctx, r.req.UserName())
	if errors.Is(err, redisclient.ErrNotFound) {
		return ReasonUnknownAccount, nil
	}
	if err != nil {
		return "", err
	}
	r.account = acc

	product, err := e.catalog.Product(ctx, acc.ProductID)
	if errors.Is(err, redisclient.ErrNotFound) {
		return ReasonUnknownProduct, nil
	}
	if err != nil {
		return "", err
	}
	r.product = product

	switch acc.Status {
	case model.StatusPaused:
		return ReasonPaused, nil
	case model.StatusCancelled:
		return ReasonCancelled, nil
	}

	if acc.IsExpiredAt(e.now()) {
		if product.Grace == nil {
			e.events.Publish(ctx, events.Event{Name: events.AccountExpire, Account: acc.Number})
			return ReasonExpired, nil
		}
		r.grace = true
	}

	if !r.req.Bypass && !r.req.IsValidPassword(acc.Password) {
		return ReasonBadPassword, nil
	}
	return "", nil
}

func (e *Engine) bindFilter(ctx context.Context, r *request) (string, error) {
	acc := r.account
	changed := false

	if mac := r.req.MacAddr(); mac != "" {
		switch {
		case acc.MACAddr == "":
			acc.MACAddr = mac
			changed = true
		case acc.BindMAC && acc.MACAddr != mac:
			return ReasonMACMismatch, nil
		}
	}

	vlan1, vlan2 := r.req.VLANIDs()
	if vlan1 != 0 {
		switch {
		case acc.VLANID1 == 0:
			acc.VLANID1 = vlan1
			changed = true
		case acc.BindVLAN && acc.VLANID1 != vlan1:
			return ReasonVLANMismatch, nil
		}
	}
	if vlan2 != 0 {
		switch {
		case acc.VLANID2 == 0:
			acc.VLANID2 = vlan2
			changed = true
		case acc.BindVLAN && acc.VLANID2 != vlan2:
			return ReasonVLANMismatch, nil
		}
	}

	if changed {
		if err := e.catalog.SaveAccount(ctx, acc); err != nil {
			return "", err
		}
		e.log.WithFields(map[string]any{
			"account": acc.Number,
			"mac":     acc.MACAddr,
			"vlan1":   acc.VLANID1,
			"vlan2":   acc.VLANID2,
		}).Info("Bound account to first-use MAC/VLAN")
	}
	return "", nil
}

func (e *Engine) policyFilter(_ context.Context, r *request) (string, error) {
	acc, p := r.account, r.product

	exhausted := func(reason string) string {
		if p.Grace == nil {
			return reason
		}
		r.grace = true
		return ""
	}

	var reason string
	if !r.grace {
		switch p.Policy {
		case model.PolicyPrepaidTime, model.PolicyPrepaidFlow:
			if acc.Balance <= 0 {
				reason = exhausted(ReasonNoBalance)
			}
		case model.PolicyBuyoutTime:
			if acc.TimeLength <= 0 {
				reason = exhausted(ReasonNoTime)
			}
		case model.PolicyBuyoutFlow:
			if acc.FlowLength <= 0 {
				reason = exhausted(ReasonNoFlow)
			}
		}
	}
	if reason != "" {
		return reason, nil
	}

	if r.grace {
		r.attrs[radiusx.AttrUpRate] = p.Grace.UpRate
		r.attrs[radiusx.AttrDownRate] = p.Grace.DownRate
	} else {
		r.attrs[radiusx.AttrUpRate] = p.UpRate
		r.attrs[radiusx.AttrDownRate] = p.DownRate
	}
	return "", nil
}

func (e *Engine) limitFilter(ctx context.Context, r *request) (string, error) {
	limit := r.account.OnlineLimit
	if limit <= 0 {
		return "", nil
	}
	n, err := e.sessions.CountByAccount(ctx, r.account.Number)
	if err != nil {
		return "", err
	}
	if n < limit {
		return "", nil
	}
	if !e.opts.AutoUnlock {
		return ReasonOnlineLimit, nil
	}

	online, err := e.sessions.ListByAccount(ctx, r.account.Number)
	if err != nil {
		return "", err
	}
	excess := len(online) - limit + 1
	for i := 0; i < excess && i < len(online); i++ {
		s := online[i]
		e.log.WithFields(map[string]any{
			"account": s.AccountNumber,
			"nas":     s.NasAddr,
			"session": s.SessionID,
		}).Info("Online limit reached, unlocking oldest session")
		e.disconnector.Disconnect(ctx, s, "auto-unlock")
		e.events.Publish(ctx, events.Event{
			Name:      events.UnlockOnline,
			Account:   s.AccountNumber,
			NasAddr:   s.NasAddr,
			SessionID: s.SessionID,
		})
	}
	return "", nil
}

func (e *Engine) sessionFilter(_ context.Context, r *request) (string, error) {
	acc, p := r.account, r.product
	now := e.now()

	timeout := e.opts.MaxSessionTimeout
	if r.grace {
		timeout = minTimeout(timeout, p.Grace.Timeout)
	} else {
		if p.Policy.IsMonthly() {
			if deadline := acc.ExpireDeadline(); !deadline.IsZero() {
				timeout = minTimeout(timeout, int64(deadline.Sub(now)/time.Second))
			}
		}
		switch p.Policy {
		case model.PolicyBuyoutTime:
			timeout = minTimeout(timeout, acc.TimeLength)
		case model.PolicyPrepaidTime:
			timeout = minTimeout(timeout, affordable(acc.Balance, p.Price))
		}
	}
	if timeout > 0 {
		r.attrs[radiusx.AttrSessionTimeout] = timeout
	}

	if e.opts.InterimInterval > 0 {
		r.attrs[radiusx.AttrInterimInterval] = e.opts.InterimInterval
	}
	if acc.StaticIP != "" {
		r.attrs[radiusx.AttrFramedIP] = acc.StaticIP
	}
	for _, a := range p.ReplyAttrs {
		r.attrs[a.Name] = a.Value
	}
	for _, a := range acc.ReplyAttrs {
		r.attrs[a.Name] = a.Value
	}
	return "", nil
}
