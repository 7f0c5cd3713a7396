package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gyrusdentatus/nym/pkg/log"
)

// Reconnection errors.
var (
	// ErrMaxRetriesExceeded is the terminal failure after the attempt
	// budget is spent.
	ErrMaxRetriesExceeded = errors.New("maximum reconnection attempts exceeded")

	// ErrReconnectAttemptFailed wraps a single failed dial. It is reported
	// to OnAttempt and the event log, never returned by Run.
	ErrReconnectAttemptFailed = errors.New("reconnection attempt failed")
)

// State is the state of a Reconnector.
type State uint8

const (
	// StateBackoff waits for the backoff timer.
	StateBackoff State = iota

	// StateConnecting waits for a dial to resolve.
	StateConnecting

	// StateSucceeded holds an established connection (terminal).
	StateSucceeded

	// StateFailed holds the reason reconnection gave up (terminal).
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateBackoff:
		return "BACKOFF"
	case StateConnecting:
		return "CONNECTING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// DialFunc establishes a connection to the reconnection target.
type DialFunc func(ctx context.Context) (net.Conn, error)

// AttemptFunc observes the outcome of each dial. err is nil on success;
// next is the delay before the following attempt, zero when none follows.
type AttemptFunc func(attempt int, err error, next time.Duration)

type dialResult struct {
	conn net.Conn
	err  error
}

// Reconnector re-establishes one connection under a Policy.
//
// A Reconnector is single-use. Step and Run must be called from one
// goroutine; State, Attempts and Result may be called from any.
type Reconnector struct {
	target         string
	dial           DialFunc
	policy         Policy
	connectTimeout time.Duration
	logger         log.Logger
	onAttempt      AttemptFunc

	timer   *time.Timer
	pending chan dialResult

	mu       sync.Mutex
	state    State
	attempts int
	conn     net.Conn
	err      error
}

// ReconnectorOption configures a Reconnector.
type ReconnectorOption func(*Reconnector)

// WithLogger sets the event logger.
func WithLogger(l log.Logger) ReconnectorOption {
	return func(r *Reconnector) { r.logger = log.OrNoop(l) }
}

// WithConnectTimeout bounds each dial.
func WithConnectTimeout(d time.Duration) ReconnectorOption {
	return func(r *Reconnector) { r.connectTimeout = d }
}

// WithOnAttempt sets a callback invoked after every dial.
func WithOnAttempt(fn AttemptFunc) ReconnectorOption {
	return func(r *Reconnector) { r.onAttempt = fn }
}

// NewReconnector creates a Reconnector for target. The first dial happens
// on the first Step, without delay.
func NewReconnector(target string, dial DialFunc, policy Policy, opts ...ReconnectorOption) *Reconnector {
	r := &Reconnector{
		target: target,
		dial:   dial,
		policy: policy,
		logger: log.NoopLogger{},
		state:  StateBackoff,
		timer:  time.NewTimer(0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current state.
func (r *Reconnector) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Attempts returns the number of failed dials so far.
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Result returns the connection or the failure reason once the
// Reconnector is terminal. Both are nil before that.
func (r *Reconnector) Result() (net.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn, r.err
}

// Run steps the Reconnector until it reaches a terminal state.
func (r *Reconnector) Run(ctx context.Context) (net.Conn, error) {
	for !r.Step(ctx) {
	}
	return r.Result()
}

// Step performs one transition, blocking until the timer fires, the
// pending dial resolves, or ctx is done. It reports whether the
// Reconnector is terminal afterwards.
func (r *Reconnector) Step(ctx context.Context) bool {
	switch r.State() {
	case StateBackoff:
		select {
		case <-ctx.Done():
			r.timer.Stop()
			r.cancelled(ctx.Err())
			return true
		case <-r.timer.C:
			r.startDial(ctx)
			return false
		}

	case StateConnecting:
		select {
		case <-ctx.Done():
			r.abandon(r.pending)
			r.cancelled(ctx.Err())
			return true
		case res := <-r.pending:
			r.pending = nil
			if res.err != nil && ctx.Err() != nil {
				if res.conn != nil {
					res.conn.Close()
				}
				r.cancelled(ctx.Err())
				return true
			}
			return r.resolve(res)
		}

	default:
		return true
	}
}

// startDial launches the dial and moves to Connecting.
func (r *Reconnector) startDial(ctx context.Context) {
	dctx, cancel := ctx, context.CancelFunc(func() {})
	if r.connectTimeout > 0 {
		dctx, cancel = context.WithTimeout(ctx, r.connectTimeout)
	}

	ch := make(chan dialResult, 1)
	r.pending = ch
	r.setState(StateConnecting)

	go func() {
		defer cancel()
		conn, err := r.dial(dctx)
		ch <- dialResult{conn: conn, err: err}
	}()
}

// abandon closes a connection that completes after the Reconnector gave up.
func (r *Reconnector) abandon(ch chan dialResult) {
	r.pending = nil
	if ch == nil {
		return
	}
	go func() {
		if res := <-ch; res.conn != nil {
			res.conn.Close()
		}
	}()
}

// resolve handles a finished dial.
func (r *Reconnector) resolve(res dialResult) bool {
	if res.err == nil {
		r.mu.Lock()
		r.state = StateSucceeded
		r.conn = res.conn
		attempt := r.attempts + 1
		r.mu.Unlock()

		r.timer.Stop()
		r.logOutcome(log.ReconnectConnected, attempt, 0, nil)
		r.notify(attempt, nil, 0)
		return true
	}

	failure := fmt.Errorf("%w: %w", ErrReconnectAttemptFailed, res.err)

	r.mu.Lock()
	r.attempts++
	attempt := r.attempts
	exhausted := attempt >= r.policy.Attempts()
	if exhausted {
		r.state = StateFailed
		r.err = fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, attempt, res.err)
	}
	r.mu.Unlock()

	if exhausted {
		r.timer.Stop()
		r.logOutcome(log.ReconnectExhausted, attempt, 0, failure)
		r.notify(attempt, failure, 0)
		return true
	}

	delay := r.policy.next(attempt)
	r.timer.Reset(delay)
	r.setState(StateBackoff)
	r.logOutcome(log.ReconnectRetry, attempt, delay, failure)
	r.notify(attempt, failure, delay)
	return false
}

func (r *Reconnector) cancelled(err error) {
	r.mu.Lock()
	r.state = StateFailed
	r.err = err
	attempt := r.attempts
	r.mu.Unlock()

	r.logOutcome(log.ReconnectCancelled, attempt, 0, err)
}

func (r *Reconnector) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Reconnector) notify(attempt int, err error, next time.Duration) {
	if r.onAttempt != nil {
		r.onAttempt(attempt, err, next)
	}
}

func (r *Reconnector) logOutcome(outcome log.ReconnectOutcome, attempt int, next time.Duration, err error) {
	ev := &log.ReconnectEvent{
		Attempt:     attempt,
		MaxAttempts: r.policy.Attempts(),
		Outcome:     outcome,
		NextDelay:   next,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	r.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerReconnect,
		Category:  log.CategoryReconnect,
		Endpoint:  r.target,
		Reconnect: ev,
	})
}
