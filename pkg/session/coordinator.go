package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mymmrac/telego"

	"github.com/tinyland-inc/sellerbot/pkg/logger"
)

const (
	DefaultFlushTimeout = 20 * time.Second
	DefaultDedupeWindow = 256
)

// Event outcomes reported to the Observer.
const (
	OutcomeOK         = "ok"
	OutcomeFailed     = "failed"
	OutcomeTimeout    = "timeout"
	OutcomeMalformed  = "malformed"
	OutcomeIgnored    = "ignored"
	OutcomeDuplicate  = "duplicate"
	OutcomeInitFailed = "init_failed"
)

// State is the lifecycle position of the coordinator's session. It moves
// Uncreated to Creating to Ready. A failed build moves Creating back to
// Uncreated, so Creating is entered again by the next event. Ready is
// terminal.
type State int32

const (
	StateUncreated State = iota
	StateCreating
	StateReady
)

func (s State) String() string {
	switch s {
	case StateCreating:
		return "creating"
	case StateReady:
		return "ready"
	default:
		return "uncreated"
	}
}

// BuildFunc constructs a session with its handlers registered. The
// coordinator starts it.
type BuildFunc func(ctx context.Context) (*Session, error)

// Observer receives lifecycle and dispatch measurements.
type Observer interface {
	ObserveInit(err error)
	ObserveEvent(outcome string)
	ObserveFlush(elapsed time.Duration, timedOut bool)
}

type Options struct {
	// FlushTimeout bounds how long a dispatch waits for the work it caused.
	FlushTimeout time.Duration
	DedupeWindow int
	Observer     Observer
}

// Coordinator lazily creates exactly one Session and routes events into it,
// returning only once every operation an event caused has completed or the
// flush timeout has passed.
type Coordinator struct {
	build BuildFunc
	opts  Options

	mu      sync.Mutex
	state   atomic.Int32
	session atomic.Pointer[Session]
	flush   atomic.Int64
	recent  *recentIDs
}

func NewCoordinator(build BuildFunc, opts Options) *Coordinator {
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = DefaultFlushTimeout
	}
	if opts.DedupeWindow <= 0 {
		opts.DedupeWindow = DefaultDedupeWindow
	}
	c := &Coordinator{
		build:  build,
		opts:   opts,
		recent: newRecentIDs(opts.DedupeWindow),
	}
	c.flush.Store(int64(opts.FlushTimeout))
	return c
}

// SetFlushTimeout changes the wait bound for later dispatches. Build functions
// that load configuration lazily call it once the value is known.
func (c *Coordinator) SetFlushTimeout(d time.Duration) {
	if d > 0 {
		c.flush.Store(int64(d))
	}
}

func (c *Coordinator) FlushTimeout() time.Duration {
	return time.Duration(c.flush.Load())
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// EnsureSession returns the ready session, building and starting it on first
// use. Concurrent first callers wait for the one build in progress. A failed
// build leaves the coordinator uncreated so a later call can try again.
func (c *Coordinator) EnsureSession(ctx context.Context) (*Session, error) {
	if s := c.session.Load(); s != nil {
		return s, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.session.Load(); s != nil {
		return s, nil
	}

	c.state.Store(int32(StateCreating))
	logger.InfoC("session", "Creating session")

	s, err := c.build(ctx)
	if err == nil {
		err = s.Start(ctx)
	}
	c.observeInit(err)
	if err != nil {
		c.state.Store(int32(StateUncreated))
		logger.ErrorCF("session", "Session initialization failed", map[string]any{"error": err})
		return nil, fmt.Errorf("initializing session: %w", err)
	}

	c.session.Store(s)
	c.state.Store(int32(StateReady))
	logger.InfoCF("session", "Session ready", map[string]any{"handlers": s.Handlers()})
	return s, nil
}

// Dispatch decodes a raw webhook body and handles it. Malformed bodies fail
// with ErrMalformedEvent before the session is touched.
func (c *Coordinator) Dispatch(ctx context.Context, raw []byte) error {
	u, err := DecodeUpdate(raw)
	if err != nil {
		c.observeEvent(OutcomeMalformed)
		logger.WarnCF("session", "Rejected malformed update", map[string]any{"error": err})
		return err
	}
	return c.DispatchUpdate(ctx, u)
}

// DispatchUpdate handles a decoded update. Only session initialization errors
// are returned. Handler failures, panics and flush timeouts are logged and
// acknowledged so the platform does not redeliver the update.
func (c *Coordinator) DispatchUpdate(ctx context.Context, u telego.Update) error {
	s, err := c.EnsureSession(ctx)
	if err != nil {
		c.observeEvent(OutcomeInitFailed)
		return err
	}

	msg, ok := ToInbound(u)
	if !ok {
		c.observeEvent(OutcomeIgnored)
		logger.DebugCF("session", "Ignoring update without a message", map[string]any{"update_id": u.UpdateID})
		return nil
	}

	if u.UpdateID != 0 && !c.recent.add(u.UpdateID) {
		c.observeEvent(OutcomeDuplicate)
		logger.InfoCF("session", "Skipping redelivered update", map[string]any{"update_id": u.UpdateID})
		return nil
	}

	r, ok := s.match(msg)
	if !ok {
		c.observeEvent(OutcomeIgnored)
		return nil
	}

	fields := map[string]any{
		"event_id": msg.EventID,
		"user_id":  msg.SenderID,
		"handler":  r.name,
	}
	logger.InfoCF("session", "Dispatching update", fields)

	flight := NewFlight(context.WithoutCancel(ctx), s.Channel())
	flight.Go(func(ctx context.Context) error {
		return r.handler(ctx, msg, flight)
	})

	start := time.Now()
	finished := flight.Wait(c.FlushTimeout())
	elapsed := time.Since(start)
	if c.opts.Observer != nil {
		c.opts.Observer.ObserveFlush(elapsed, !finished)
	}

	fields["elapsed_ms"] = elapsed.Milliseconds()
	if !finished {
		c.observeEvent(OutcomeTimeout)
		logger.WarnCF("session", "Flush timeout, returning with operations still running", fields)
		return nil
	}
	if err := flight.Err(); err != nil {
		c.observeEvent(OutcomeFailed)
		fields["error"] = err
		logger.ErrorCF("session", "Update handling failed", fields)
		return nil
	}

	c.observeEvent(OutcomeOK)
	logger.DebugCF("session", "Update handled", fields)
	return nil
}

// Shutdown stops the session if one was started.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if s := c.session.Load(); s != nil {
		return s.Stop(ctx)
	}
	return nil
}

func (c *Coordinator) observeInit(err error) {
	if c.opts.Observer != nil {
		c.opts.Observer.ObserveInit(err)
	}
}

func (c *Coordinator) observeEvent(outcome string) {
	if c.opts.Observer != nil {
		c.opts.Observer.ObserveEvent(outcome)
	}
}

// recentIDs remembers the last n update ids.
type recentIDs struct {
	mu   sync.Mutex
	ids  map[int]struct{}
	ring []int
	next int
}

func newRecentIDs(n int) *recentIDs {
	return &recentIDs{ids: make(map[int]struct{}, n), ring: make([]int, 0, n)}
}

// add records id and reports whether it was new.
func (r *recentIDs) add(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[id]; ok {
		return false
	}
	if len(r.ring) < cap(r.ring) {
		r.ring = append(r.ring, id)
	} else {
		delete(r.ids, r.ring[r.next])
		r.ring[r.next] = id
		r.next = (r.next + 1) % len(r.ring)
	}
	r.ids[id] = struct{}{}
	return true
}
