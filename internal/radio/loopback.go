// Package radio provides a loopback Radio for running smsboxd without a modem.
package radio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rbaliyan/smsbox"
	"github.com/rbaliyan/smsbox/retry"
)

// ErrNotAttached is returned by Transmit before Attach or after Close.
var ErrNotAttached = errors.New("radio: not attached")

// SubmitFunc delivers an event to the service, normally Service.Submit.
type SubmitFunc func(ctx context.Context, ev smsbox.Event) error

var _ smsbox.Radio = (*Loopback)(nil)

// Loopback accepts every transmission and reports its result after a delay.
// Results are delivered through the SubmitFunc passed to Attach.
type Loopback struct {
	mu     sync.Mutex
	submit SubmitFunc
	closed bool
	wg     sync.WaitGroup
	sent   int64

	delay  time.Duration
	result func(smsbox.Transmission) smsbox.ResultCode
	retry  retry.Config
	logger *slog.Logger
}

// Option configures a Loopback.
type Option func(*Loopback)

// WithDelay sets how long a transmission takes before its result is reported.
func WithDelay(d time.Duration) Option {
	return func(l *Loopback) {
		if d >= 0 {
			l.delay = d
		}
	}
}

// WithResult sets the function that decides each transmission's outcome.
// Default reports ResultOK for everything.
func WithResult(fn func(smsbox.Transmission) smsbox.ResultCode) Option {
	return func(l *Loopback) {
		if fn != nil {
			l.result = fn
		}
	}
}

// WithSubmitRetry sets how a result is resubmitted while the service queue
// is full. Other submit errors are not retried.
func WithSubmitRetry(cfg retry.Config) Option {
	return func(l *Loopback) {
		l.retry = cfg
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loopback) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a detached loopback radio.
func New(opts ...Option) *Loopback {
	l := &Loopback{
		delay:  10 * time.Millisecond,
		result: func(smsbox.Transmission) smsbox.ResultCode { return smsbox.ResultOK },
		retry: retry.Config{
			MaxRetries:     8,
			InitialBackoff: 20 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2,
			Jitter:         0.1,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	// A dropped result would leave its Outbox record waiting until the next boot.
	l.retry.IsRetryable = func(err error) bool { return errors.Is(err, smsbox.ErrQueueFull) }
	return l
}

// Attach sets where send results go. The service needs the radio before it
// exists, so attaching is a separate step.
func (l *Loopback) Attach(submit SubmitFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submit = submit
	l.closed = false
}

// Transmit schedules a result for t and returns immediately.
func (l *Loopback) Transmit(ctx context.Context, t smsbox.Transmission) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.submit == nil || l.closed {
		return ErrNotAttached
	}
	submit := l.submit
	l.sent++
	l.wg.Add(1)

	// Results outlive the request that triggered the send.
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer l.wg.Done()
		if l.delay > 0 {
			time.Sleep(l.delay)
		}
		code := l.result(t)
		ev := smsbox.SendResult{Code: code, TargetRef: t.MessageID}
		cfg := l.retry
		cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
			l.logger.Debug("service queue full, resubmitting result", "message_id", t.MessageID, "attempt", attempt, "wait", wait)
		}
		err := retry.Do(ctx, cfg, func(ctx context.Context) error { return submit(ctx, ev) })
		if err != nil {
			l.logger.Warn("loopback result dropped", "message_id", t.MessageID, "result", code, "error", err)
			return
		}
		l.logger.Debug("loopback transmitted", "message_id", t.MessageID, "address", t.Address, "result", code)
	}()
	return nil
}

// Sent returns the number of accepted transmissions.
func (l *Loopback) Sent() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent
}

// Close stops accepting transmissions and waits for pending results or ctx.
func (l *Loopback) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
