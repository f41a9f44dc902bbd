// Package keepalive pings the service's own /ping route on a cron schedule so
// hosts that idle out quiet instances keep the gateway warm.
package keepalive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/go-resty/resty/v2"

	"github.com/tinyland-inc/sellerbot/pkg/logger"
)

const (
	DefaultSchedule = "*/5 * * * *"

	pingTimeout = 10 * time.Second
)

type Pinger struct {
	target   string
	schedule string
	client   *resty.Client
}

// New validates schedule and builds a pinger for baseURL + "/ping".
func New(baseURL, schedule string) (*Pinger, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("keep-alive URL is empty")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if !gronx.New().IsValid(schedule) {
		return nil, fmt.Errorf("invalid keep-alive schedule %q", schedule)
	}

	return &Pinger{
		target:   strings.TrimRight(baseURL, "/") + "/ping",
		schedule: schedule,
		client:   resty.New().SetTimeout(pingTimeout).SetRetryCount(0),
	}, nil
}

func (p *Pinger) Target() string {
	return p.target
}

// NextRun returns the first scheduled tick strictly after from.
func (p *Pinger) NextRun(from time.Time) (time.Time, error) {
	return gronx.NextTickAfter(p.schedule, from, false)
}

// Ping performs one request and returns the HTTP status.
func (p *Pinger) Ping(ctx context.Context) (int, error) {
	resp, err := p.client.R().SetContext(ctx).Get(p.target)
	if err != nil {
		return 0, fmt.Errorf("pinging %s: %w", p.target, err)
	}
	return resp.StatusCode(), nil
}

// Run pings on every tick until ctx is cancelled.
func (p *Pinger) Run(ctx context.Context) {
	logger.InfoCF("keepalive", "Keep-alive started", map[string]any{
		"target":   p.target,
		"schedule": p.schedule,
	})

	for {
		next, err := p.NextRun(time.Now())
		if err != nil {
			logger.ErrorCF("keepalive", "Cannot compute next tick", map[string]any{"error": err})
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.InfoC("keepalive", "Keep-alive stopped")
			return
		case <-timer.C:
		}

		status, err := p.Ping(ctx)
		if err != nil {
			logger.WarnCF("keepalive", "Ping failed", map[string]any{"error": err})
			continue
		}
		logger.DebugCF("keepalive", "Ping", map[string]any{"status": status})
	}
}
