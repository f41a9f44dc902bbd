// Package marketplace talks to the two seller REST APIs: Magnit, the account
// being managed, and Ozon, the source of stock levels and prices.
//
// Every call is a single attempt with a bounded timeout. Failures come back as
// *Error values carrying the platform, the operation and a readable reason.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tinyland-inc/sellerbot/pkg/logger"
)

const (
	PlatformMagnit = "magnit"
	PlatformOzon   = "ozon"

	DefaultTimeout = 30 * time.Second

	maxReasonBody = 200
)

// Error is the tagged failure of one upstream call.
type Error struct {
	Platform string
	Op       string
	// Status is the HTTP status code, 0 for transport failures.
	Status int
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Platform, e.Op, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts the upstream failure from err, if any.
func AsError(err error) (*Error, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// Observer is notified after every upstream call.
type Observer interface {
	ObserveCall(platform, op string, status int, err error, elapsed time.Duration)
}

// Options configures one platform client.
type Options struct {
	BaseURL  string
	Headers  map[string]string
	Timeout  time.Duration
	Observer Observer
	// HTTPClient replaces the underlying transport client, mainly for tests.
	HTTPClient *http.Client
}

// Client posts JSON to one platform.
type Client struct {
	platform string
	rc       *resty.Client
	observer Observer
}

func NewClient(platform string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}

	rc.SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetLogger(restyLogger{platform: platform}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeaders(opts.Headers)

	return &Client{
		platform: platform,
		rc:       rc,
		observer: opts.Observer,
	}
}

func (c *Client) Platform() string {
	return c.platform
}

// Post sends body to path and decodes a JSON response into out when out is
// not nil. With out nil any 2xx body counts as success. With out set, a
// non-empty body that is not JSON is an error.
func (c *Client) Post(ctx context.Context, op, path string, body, out any) error {
	start := time.Now()

	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)

	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}

	switch {
	case err != nil:
		err = &Error{Platform: c.platform, Op: op, Status: status, Reason: err.Error(), Err: err}
	case !resp.IsSuccess():
		err = &Error{Platform: c.platform, Op: op, Status: status, Reason: statusReason(resp)}
	case out != nil && len(bytes.TrimSpace(resp.Body())) > 0:
		if jerr := json.Unmarshal(resp.Body(), out); jerr != nil {
			err = &Error{Platform: c.platform, Op: op, Status: status, Reason: "invalid JSON response", Err: jerr}
		}
	}

	elapsed := time.Since(start)
	if c.observer != nil {
		c.observer.ObserveCall(c.platform, op, status, err, elapsed)
	}

	if err != nil {
		logger.WarnCF("marketplace", "Upstream call failed", map[string]any{
			"platform": c.platform,
			"op":       op,
			"status":   status,
			"error":    err,
		})
		return err
	}

	logger.DebugCF("marketplace", "Upstream call", map[string]any{
		"platform":   c.platform,
		"op":         op,
		"status":     status,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	return nil
}

func statusReason(resp *resty.Response) string {
	reason := fmt.Sprintf("HTTP %d", resp.StatusCode())
	body := strings.TrimSpace(string(resp.Body()))
	if body == "" {
		return reason
	}
	if r := []rune(body); len(r) > maxReasonBody {
		body = string(r[:maxReasonBody]) + "..."
	}
	return reason + ": " + body
}

type restyLogger struct {
	platform string
}

func (l restyLogger) Errorf(format string, v ...any) {
	logger.ErrorCF("marketplace", fmt.Sprintf(format, v...), map[string]any{"platform": l.platform})
}

func (l restyLogger) Warnf(format string, v ...any) {
	logger.WarnCF("marketplace", fmt.Sprintf(format, v...), map[string]any{"platform": l.platform})
}

func (l restyLogger) Debugf(format string, v ...any) {
	logger.DebugCF("marketplace", fmt.Sprintf(format, v...), map[string]any{"platform": l.platform})
}
