// Package server is the RADIUS protocol front door and the job handlers that
// run inside the worker pool.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"

	"github.com/mohit83k/radius-aaa/internal/auth"
	"github.com/mohit83k/radius-aaa/internal/logger"
	"github.com/mohit83k/radius-aaa/internal/model"
	"github.com/mohit83k/radius-aaa/internal/radiusx"
	"github.com/mohit83k/radius-aaa/internal/redisclient"
	"github.com/mohit83k/radius-aaa/internal/stats"
	"github.com/mohit83k/radius-aaa/internal/worker"
)

// NASLookup resolves the NAS a datagram came from.
type NASLookup interface {
	NAS(ctx context.Context, addr string) (*model.NAS, error)
}

// Authorizer decides Access-Requests.
type Authorizer interface {
	Authorize(ctx context.Context, req *radiusx.Request) (*auth.Result, error)
}

// Accounter processes Accounting-Requests.
type Accounter interface {
	Handle(ctx context.Context, req *radiusx.Request) error
}

// Clients resolves the sending NAS of a job to its secret and vendor adapter.
// NAS devices that are not registered use DefaultSecret and the standard
// dialect.
type Clients struct {
	NAS           NASLookup
	Vendors       *radiusx.Vendors
	DefaultSecret string
}

func (c *Clients) resolve(ctx context.Context, addr net.Addr) (*model.NAS, radiusx.VendorAdapter, error) {
	host := hostOf(addr)
	nas, err := c.NAS.NAS(ctx, host)
	switch {
	case errors.Is(err, redisclient.ErrNotFound):
		nas = &model.NAS{Addr: host, Secret: c.DefaultSecret}
	case err != nil:
		return nil, nil, err
	}
	return nas, c.Vendors.Lookup(nas.VendorID), nil
}

func hostOf(addr net.Addr) string {
	if u, ok := addr.(*net.UDPAddr); ok {
		return u.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", radiusx.ErrMalformed, err)
}

// DropReason labels handler errors for the dropped counter.
func DropReason(err error) string {
	switch {
	case errors.Is(err, radiusx.ErrMalformed):
		return "malformed"
	case errors.Is(err, redisclient.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}

// AuthHandler answers Access-Request and Status-Server on the auth socket.
type AuthHandler struct {
	Clients *Clients
	Engine  Authorizer
	Logger  logger.Logger
	Stats   *stats.Stats
	// BypassPassword skips password checks for every request.
	BypassPassword bool
}

// Handle implements worker.Handler. Requests that get no reply are counted
// with the dropped result.
func (h *AuthHandler) Handle(ctx context.Context, job worker.Job) ([]byte, error) {
	reply, err := h.handle(ctx, job)
	if err != nil {
		h.Stats.AuthRequest(stats.AuthDropped)
	}
	return reply, err
}

func (h *AuthHandler) handle(ctx context.Context, job worker.Job) ([]byte, error) {
	nas, vendor, err := h.Clients.resolve(ctx, job.Addr)
	if err != nil {
		return nil, err
	}
	p, err := radius.Parse(job.Data, []byte(nas.Secret))
	if err != nil {
		return nil, malformed(err)
	}

	switch p.Code {
	case radius.CodeStatusServer:
		return p.Response(radius.CodeAccessAccept).Encode()
	case radius.CodeAccessRequest:
	default:
		return nil, malformed(fmt.Errorf("unexpected code %v on auth port", p.Code))
	}

	req := radiusx.Decode(p, nas, vendor)
	req.Bypass = h.BypassPassword
	if req.UserName() == "" {
		return nil, malformed(errors.New("missing User-Name"))
	}

	resp, err := h.decide(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Encode()
}

// decide runs the engine. A panic becomes a generic reject.
func (h *AuthHandler) decide(ctx context.Context, req *radiusx.Request) (resp *radius.Packet, err error) {
	log := h.Logger.WithFields(map[string]any{
		"user": req.UserName(),
		"nas":  req.NasAddr(),
		"mac":  req.MacAddr(),
	})
	defer func() {
		if r := recover(); r != nil {
			log.Error(fmt.Errorf("%w: %v", worker.ErrPanic, r))
			resp, err = h.reject(req, auth.ReasonInternal), nil
		}
	}()

	res, err := h.Engine.Authorize(ctx, req)
	if err != nil {
		return nil, err
	}
	if !res.Granted {
		log.WithFields(map[string]any{"reason": res.Reason}).Info("Access rejected")
		return h.reject(req, res.Reason), nil
	}

	resp = req.Packet.Response(radius.CodeAccessAccept)
	if err := radiusx.Apply(resp, res.Attrs, req.Vendor); err != nil {
		log.Warn(err.Error())
	}
	h.Stats.AuthRequest(stats.AuthAccept)
	log.Info("Access accepted")
	return resp, nil
}

func (h *AuthHandler) reject(req *radiusx.Request, reason string) *radius.Packet {
	resp := req.Packet.Response(radius.CodeAccessReject)
	_ = rfc2865.ReplyMessage_SetString(resp, reason)
	h.Stats.AuthRequest(stats.AuthReject)
	return resp
}

// AcctHandler answers Accounting-Request and Status-Server on the acct socket.
type AcctHandler struct {
	Clients *Clients
	Machine Accounter
	Logger  logger.Logger
	Stats   *stats.Stats
}

// Handle implements worker.Handler. Every authentic Accounting-Request is
// acknowledged, including those whose processing failed on the store.
func (h *AcctHandler) Handle(ctx context.Context, job worker.Job) ([]byte, error) {
	nas, vendor, err := h.Clients.resolve(ctx, job.Addr)
	if err != nil {
		return nil, err
	}
	secret := []byte(nas.Secret)
	p, err := radius.Parse(job.Data, secret)
	if err != nil {
		return nil, malformed(err)
	}

	switch p.Code {
	case radius.CodeStatusServer:
		return p.Response(radius.CodeAccountingResponse).Encode()
	case radius.CodeAccountingRequest:
	default:
		return nil, malformed(fmt.Errorf("unexpected code %v on acct port", p.Code))
	}
	if !radius.IsAuthenticRequest(job.Data, secret) {
		return nil, malformed(errors.New("invalid request authenticator"))
	}

	req := radiusx.Decode(p, nas, vendor)
	status := req.AcctStatusType().String()
	h.Stats.AcctRequest(status)

	if err := h.Machine.Handle(ctx, req); err != nil {
		h.Logger.WithFields(map[string]any{
			"user":   req.UserName(),
			"nas":    req.NasAddr(),
			"status": status,
		}).Error(fmt.Errorf("accounting not applied: %w", err))
	}
	return p.Response(radius.CodeAccountingResponse).Encode()
}
