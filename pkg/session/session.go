// Package session owns the long-lived bot instance and feeds it one inbound
// event at a time from whatever delivery model the process runs under:
// a serverless webhook invocation, a persistent HTTP gateway or long polling.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tinyland-inc/sellerbot/pkg/bus"
	"github.com/tinyland-inc/sellerbot/pkg/channels"
	"github.com/tinyland-inc/sellerbot/pkg/logger"
)

var ErrDuplicateHandler = errors.New("handler already registered")

// HandlerFunc processes one inbound message, replying through out.
type HandlerFunc func(ctx context.Context, msg bus.InboundMessage, out channels.Sender) error

// Matcher selects the messages a handler receives.
type Matcher func(msg bus.InboundMessage) bool

func MatchAny(bus.InboundMessage) bool { return true }

// MatchText accepts any message with non-blank text.
func MatchText(msg bus.InboundMessage) bool {
	return strings.TrimSpace(msg.Text) != ""
}

// MatchCommand accepts "/cmd" and "/cmd@botname", with or without arguments.
func MatchCommand(cmd string) Matcher {
	return func(msg bus.InboundMessage) bool {
		text := strings.TrimSpace(msg.Text)
		head, _, _ := strings.Cut(text, " ")
		head, _, _ = strings.Cut(head, "@")
		return head == "/"+strings.TrimPrefix(cmd, "/")
	}
}

type route struct {
	name    string
	match   Matcher
	handler HandlerFunc
}

// Session is the application instance: registered handlers plus the outbound
// transport they reply through.
type Session struct {
	channel channels.Channel

	mu      sync.RWMutex
	routes  []route
	started bool
}

func New(ch channels.Channel) *Session {
	return &Session{channel: ch}
}

func (s *Session) Channel() channels.Channel {
	return s.channel
}

// Handle registers a handler. Handlers are tried in registration order and the
// first match wins.
func (s *Session) Handle(name string, match Matcher, handler HandlerFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.routes {
		if r.name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
		}
	}
	if match == nil {
		match = MatchAny
	}
	s.routes = append(s.routes, route{name: name, match: match, handler: handler})
	return nil
}

// Handlers lists registered handler names in order.
func (s *Session) Handlers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.routes))
	for _, r := range s.routes {
		names = append(names, r.name)
	}
	return names
}

func (s *Session) match(msg bus.InboundMessage) (route, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.routes {
		if r.match(msg) {
			return r, true
		}
	}
	return route{}, false
}

// Start opens the outbound transport. Later calls are no-ops.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if err := s.channel.Start(ctx); err != nil {
		return fmt.Errorf("starting %s channel: %w", s.channel.Name(), err)
	}
	s.started = true

	logger.InfoCF("session", "Session started", map[string]any{
		"channel":  s.channel.Name(),
		"handlers": len(s.routes),
	})
	return nil
}

func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	return s.channel.Stop(ctx)
}

func (s *Session) IsStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
