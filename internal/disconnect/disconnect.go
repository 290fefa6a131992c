//go:generate mockgen -source=disconnect.go -destination=mocks/mock_disconnect.go -package=mocks

// Package disconnect asks NAS devices to tear down sessions with RFC 3576
// Disconnect-Request messages.
package disconnect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"

	"github.com/mohit83k/radius-aaa/internal/logger"
	"github.com/mohit83k/radius-aaa/internal/model"
	"github.com/mohit83k/radius-aaa/internal/redisclient"
	"github.com/mohit83k/radius-aaa/internal/stats"
)

// Disconnector requests that a NAS terminate a session. Implementations must
// not block the caller on network I/O.
type Disconnector interface {
	Disconnect(ctx context.Context, s model.OnlineSession, reason string)
}

// NASLookup resolves NAS rows.
type NASLookup interface {
	NAS(ctx context.Context, addr string) (*model.NAS, error)
}

// ErrNAK is returned when the NAS answers Disconnect-NAK.
var ErrNAK = errors.New("disconnect rejected by NAS")

// Client sends Disconnect-Requests in the background.
type Client struct {
	NAS           NASLookup
	DefaultSecret string
	Timeout       time.Duration
	Logger        logger.Logger
	Stats         *stats.Stats
	// Exchange sends a packet and waits for its reply.
	Exchange func(ctx context.Context, p *radius.Packet, addr string) (*radius.Packet, error)

	wg sync.WaitGroup
}

// NewClient returns a Client using radius.Exchange.
func NewClient(nas NASLookup, defaultSecret string, timeout time.Duration, log logger.Logger, st *stats.Stats) *Client {
	return &Client{
		NAS:           nas,
		DefaultSecret: defaultSecret,
		Timeout:       timeout,
		Logger:        log,
		Stats:         st,
		Exchange:      radius.Exchange,
	}
}

// Disconnect sends the request asynchronously; failures are only logged.
func (c *Client) Disconnect(_ context.Context, s model.OnlineSession, reason string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
		defer cancel()

		log := c.Logger.WithFields(map[string]any{
			"account": s.AccountNumber,
			"nas":     s.NasAddr,
			"session": s.SessionID,
			"reason":  reason,
		})
		if err := c.Send(ctx, s); err != nil {
			c.Stats.Disconnect("failed")
			log.Error(fmt.Errorf("disconnect failed: %w", err))
			return
		}
		c.Stats.Disconnect("ack")
		log.Info("Session disconnected")
	}()
}

// Wait blocks until all in-flight requests have finished.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Send performs one Disconnect-Request exchange.
func (c *Client) Send(ctx context.Context, s model.OnlineSession) error {
	secret, port := c.DefaultSecret, model.DefaultCoAPort
	nas, err := c.NAS.NAS(ctx, s.NasAddr)
	switch {
	case err == nil:
		secret = nas.Secret
		if nas.CoAPort > 0 {
			port = nas.CoAPort
		}
	case !errors.Is(err, redisclient.ErrNotFound):
		return err
	}

	p := radius.New(radius.CodeDisconnectRequest, []byte(secret))
	if err := rfc2865.UserName_SetString(p, s.AccountNumber); err != nil {
		return err
	}
	if err := rfc2866.AcctSessionID_SetString(p, s.SessionID); err != nil {
		return err
	}
	if ip := net.ParseIP(s.NasAddr); ip != nil && ip.To4() != nil {
		_ = rfc2865.NASIPAddress_Set(p, ip)
	}
	if ip := net.ParseIP(s.FramedIP); ip != nil && ip.To4() != nil {
		_ = rfc2865.FramedIPAddress_Set(p, ip)
	}

	resp, err := c.Exchange(ctx, p, net.JoinHostPort(s.NasAddr, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	if resp.Code != radius.CodeDisconnectACK {
		return fmt.Errorf("%w: code %v", ErrNAK, resp.Code)
	}
	return nil
}
