package server

import (
	"context"
	"fmt"
	"net"

	"github.com/mohit83k/radius-aaa/internal/logger"
	"github.com/mohit83k/radius-aaa/internal/stats"
	"github.com/mohit83k/radius-aaa/internal/worker"
)

// Services served by a FrontDoor.
const (
	ServiceAuth = "auth"
	ServiceAcct = "acct"
)

// maxPacketSize is the RADIUS maximum datagram length.
const maxPacketSize = 4096

// Pool is the job transport between a FrontDoor and its workers.
type Pool interface {
	Submit(job worker.Job) bool
	Results() <-chan worker.Result
}

// FrontDoor owns the UDP socket of one service. It only moves bytes: received
// datagrams go to the pool and replies come back from it.
type FrontDoor struct {
	Service string
	Addr    string
	Pool    Pool
	Logger  logger.Logger
	Stats   *stats.Stats
}

// NewFrontDoor returns a FrontDoor for service listening on addr.
func NewFrontDoor(service, addr string, pool Pool, log logger.Logger, st *stats.Stats) *FrontDoor {
	return &FrontDoor{
		Service: service,
		Addr:    addr,
		Pool:    pool,
		Logger:  log,
		Stats:   st,
	}
}

// ListenAndServe listens on Addr and serves until ctx is cancelled.
func (f *FrontDoor) ListenAndServe(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", f.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	return f.Serve(ctx, conn)
}

// Serve reads datagrams from conn until ctx is cancelled. Replies are
// written by a single goroutine draining the pool's results.
func (f *FrontDoor) Serve(ctx context.Context, conn net.PacketConn) error {
	defer conn.Close()

	f.Logger.WithFields(map[string]any{
		"service": f.Service,
		"addr":    conn.LocalAddr().String(),
	}).Info("RADIUS front door listening")

	go func() {
		<-ctx.Done()
		_ = conn.Close() // this will unblock ReadFrom
	}()

	go func() {
		for r := range f.Pool.Results() {
			f.OnResult(conn, r)
		}
	}()

	buf := make([]byte, maxPacketSize)
	for {
		n, remoteAddr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				f.Logger.Info("Shutting down RADIUS front door " + f.Service)
				return nil
			}
			f.Logger.Error(fmt.Errorf("failed to read UDP: %w", err))
			continue
		}
		f.OnDatagram(buf[:n], remoteAddr)
	}
}

// OnDatagram hands a datagram to the pool without blocking. The datagram is
// dropped when the queue is full.
func (f *FrontDoor) OnDatagram(data []byte, addr net.Addr) {
	job := worker.Job{
		Service: f.Service,
		Data:    append([]byte(nil), data...),
		Addr:    addr,
	}
	if !f.Pool.Submit(job) {
		f.Stats.Dropped(f.Service, "queue_full")
		f.Logger.WithFields(map[string]any{
			"service": f.Service,
			"from":    addr.String(),
		}).Warn("Job queue full, dropping datagram")
	}
}

// OnResult writes a reply to the address its request came from. It is the
// only code that writes to the socket.
func (f *FrontDoor) OnResult(conn net.PacketConn, r worker.Result) {
	if _, err := conn.WriteTo(r.Reply, r.Job.Addr); err != nil {
		f.Logger.Error(fmt.Errorf("failed to send response: %w", err))
	}
}
