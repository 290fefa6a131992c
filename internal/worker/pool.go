// Package worker runs request jobs on a fixed pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mohit83k/radius-aaa/internal/logger"
	"github.com/mohit83k/radius-aaa/internal/stats"
)

// Job is one received datagram.
type Job struct {
	Service string
	Data    []byte
	Addr    net.Addr
	TraceID string
}

// Result carries the reply for a job back to its front door.
type Result struct {
	Job   Job
	Reply []byte
}

// Handler processes a job. A nil reply with a nil error means the job is
// answered by silence.
type Handler interface {
	Handle(ctx context.Context, job Job) ([]byte, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) ([]byte, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job Job) ([]byte, error) {
	return f(ctx, job)
}

// ErrPanic wraps a panic recovered from a handler.
var ErrPanic = errors.New("handler panicked")

// Options configure a Pool.
type Options struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	// DropReason labels a handler error for the dropped counter.
	DropReason func(err error) string
}

// Pool runs a Handler on Workers goroutines fed from a bounded queue.
type Pool struct {
	handler Handler
	opts    Options
	log     logger.Logger
	stats   *stats.Stats

	jobs    chan Job
	results chan Result
}

// New returns a Pool. Call Run to start the workers.
func New(h Handler, opts Options, log logger.Logger, st *stats.Stats) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = opts.Workers
	}
	return &Pool{
		handler: h,
		opts:    opts,
		log:     log,
		stats:   st,
		jobs:    make(chan Job, opts.QueueSize),
		results: make(chan Result, opts.QueueSize),
	}
}

// Submit enqueues job without blocking. It returns false when the queue is
// full.
func (p *Pool) Submit(job Job) bool {
	if job.TraceID == "" {
		job.TraceID = uuid.NewString()
	}
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Results delivers replies. It is closed when Run returns.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Run processes jobs until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Workers; i++ {
		g.Go(func() error {
			p.loop(ctx)
			return nil
		})
	}
	err := g.Wait()
	close(p.results)
	return err
}

func (p *Pool) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			reply := p.process(ctx, job)
			if reply == nil {
				continue
			}
			select {
			case p.results <- Result{Job: job, Reply: reply}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pool) process(ctx context.Context, job Job) []byte {
	if p.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.JobTimeout)
		defer cancel()
	}
	log := p.log.WithFields(map[string]any{
		"service": job.Service,
		"from":    addrString(job.Addr),
		"trace":   job.TraceID,
	})

	reply, err := p.safeHandle(ctx, job)
	if errors.Is(err, ErrPanic) {
		log.Error(err)
		p.stats.Dropped(job.Service, "panic")
		return nil
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		log.Error(fmt.Errorf("job dropped: %w", err))
		p.stats.Dropped(job.Service, p.dropReason(err))
		return nil
	}
	return reply
}

func (p *Pool) safeHandle(ctx context.Context, job Job) (reply []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			reply = nil
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
		}
	}()
	return p.handler.Handle(ctx, job)
}

func (p *Pool) dropReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if p.opts.DropReason != nil {
		return p.opts.DropReason(err)
	}
	return "error"
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
