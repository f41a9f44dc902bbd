package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/tinyland-inc/sellerbot/pkg/bus"
	"github.com/tinyland-inc/sellerbot/pkg/channels"
	"github.com/tinyland-inc/sellerbot/pkg/logger"
)

// Flight tracks every operation caused by one inbound event so the caller can
// wait for all of them before answering the host.
//
// Sends issued through a Flight run asynchronously but are delivered in the
// order they were issued. Flight itself implements channels.Sender.
type Flight struct {
	ctx    context.Context
	sender channels.Sender

	wg   sync.WaitGroup
	mu   sync.Mutex
	tail chan struct{}
	errs []error
}

// NewFlight binds tracked operations to ctx. Callers pass a context that is
// not cancelled with the inbound request: work outliving a timed-out wait
// keeps running and its result is dropped.
func NewFlight(ctx context.Context, sender channels.Sender) *Flight {
	return &Flight{ctx: ctx, sender: sender}
}

// Go runs fn on its own goroutine. A panic in fn is recovered and recorded as
// an error.
func (f *Flight) Go(fn func(ctx context.Context) error) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.recoverPanic("task")
		if err := fn(f.ctx); err != nil {
			f.fail(err)
		}
	}()
}

// Send queues msg behind every earlier send and returns immediately. Delivery
// errors surface through Err once Wait returns.
func (f *Flight) Send(_ context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	prev := f.tail
	done := make(chan struct{})
	f.tail = done
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		defer close(done)
		defer f.recoverPanic("send")

		if prev != nil {
			<-prev
		}
		if err := f.sender.Send(f.ctx, msg); err != nil {
			f.fail(fmt.Errorf("sending to chat %d: %w", msg.ChatID, err))
		}
	}()
	return nil
}

// Wait blocks until every tracked operation has finished or timeout elapses.
// It reports whether everything finished.
func (f *Flight) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Err joins every failure recorded so far.
func (f *Flight) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return errors.Join(f.errs...)
}

func (f *Flight) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *Flight) recoverPanic(kind string) {
	if r := recover(); r != nil {
		logger.ErrorCF("session", "Recovered panic in tracked "+kind, map[string]any{
			"panic": fmt.Sprint(r),
			"stack": string(debug.Stack()),
		})
		f.fail(fmt.Errorf("panic in %s: %v", kind, r))
	}
}
