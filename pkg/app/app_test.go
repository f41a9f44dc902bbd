package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/sellerbot/pkg/config"
	"github.com/tinyland-inc/sellerbot/pkg/dispatcher"
	"github.com/tinyland-inc/sellerbot/pkg/logger"
	"github.com/tinyland-inc/sellerbot/pkg/metrics"
	"github.com/tinyland-inc/sellerbot/pkg/webhook"
)

const testToken = "123456789:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// recorder is a fake upstream that answers every POST and keeps the bodies.
type recorder struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
	reply  func(path string) string
}

func (r *recorder) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(req.Body).Decode(&body)

		r.mu.Lock()
		r.paths = append(r.paths, req.URL.Path)
		r.bodies = append(r.bodies, body)
		r.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, r.reply(req.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

type fixture struct {
	telegram *recorder
	market   *recorder
	cfg      *config.Config
}

func newFixture(t *testing.T, admins ...int64) *fixture {
	f := &fixture{
		telegram: &recorder{reply: func(path string) string {
			if strings.HasSuffix(path, "/sendMessage") {
				return `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":111,"type":"private"}}}`
			}
			return `{"ok":true,"result":true}`
		}},
		market: &recorder{reply: func(string) string { return `{"items":[]}` }},
	}
	tg := f.telegram.server(t)
	mk := f.market.server(t)

	cfg := config.DefaultConfig()
	cfg.Telegram.Token = testToken
	cfg.Telegram.APIServer = tg.URL
	cfg.Telegram.AdminIDs = admins
	cfg.Magnit.APIKey = "magnit-key"
	cfg.Magnit.BaseURL = mk.URL
	cfg.Magnit.WarehouseID = "WH-1"
	cfg.Ozon.APIKey = "ozon-key"
	cfg.Ozon.ClientID = "42"
	cfg.Ozon.BaseURL = mk.URL
	f.cfg = cfg
	return f
}

func (f *fixture) load() (*config.Config, error) {
	return f.cfg, f.cfg.Validate()
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body)))
	return rec
}

const startFrom111 = `{"update_id":1,"message":{"message_id":1,"date":0,` +
	`"chat":{"id":111,"type":"private"},"from":{"id":111,"is_bot":false,"first_name":"A"},"text":"/start"}}`

func TestWebhook_StartFromAdmin(t *testing.T) {
	f := newFixture(t, 111)
	m := metrics.New()
	router := webhook.NewRouter("/api/webhook", NewCoordinator(f.load, Options{Metrics: m}))

	rec := post(t, router, startFrom111)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, f.telegram.count())
	assert.True(t, strings.HasSuffix(f.telegram.paths[0], "/sendMessage"))

	sent := f.telegram.bodies[0]
	assert.EqualValues(t, 111, sent["chat_id"])
	assert.Contains(t, sent["text"], "Choose an action")

	markup, ok := sent["reply_markup"].(map[string]any)
	require.True(t, ok)
	rows, ok := markup["keyboard"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 3)
	first := rows[0].([]any)[0].(map[string]any)
	assert.Equal(t, dispatcher.BtnOrders, first["text"])

	assert.Zero(t, f.market.count())
	n, err := testutil.GatherAndCount(m.Registry(), "sellerbot_events_total", "sellerbot_session_initializations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, scrape.Body.String(), `sellerbot_events_total{outcome="ok"} 1`)
	assert.Contains(t, scrape.Body.String(), `sellerbot_session_initializations_total{result="ok"} 1`)
}

func TestWebhook_StartFromStranger(t *testing.T) {
	f := newFixture(t, 222)
	router := webhook.NewRouter("/api/webhook", NewCoordinator(f.load, Options{}))

	rec := post(t, router, startFrom111)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, f.telegram.count())
	assert.Equal(t, dispatcher.TextDenied, f.telegram.bodies[0]["text"])
	assert.Zero(t, f.market.count())
}

func TestWebhook_MalformedBody(t *testing.T) {
	f := newFixture(t, 111)
	router := webhook.NewRouter("/api/webhook", NewCoordinator(f.load, Options{}))

	rec := post(t, router, "not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.telegram.count())
	assert.Zero(t, f.market.count())
}

func TestWebhook_MissingConfigThenRecovered(t *testing.T) {
	f := newFixture(t, 111)
	var loads int
	load := func() (*config.Config, error) {
		loads++
		if loads == 1 {
			return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN: %w", config.ErrMissingRequired)
		}
		return f.load()
	}
	router := webhook.NewRouter("/api/webhook", NewCoordinator(load, Options{}))

	rec := post(t, router, startFrom111)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "TELEGRAM_BOT_TOKEN")
	assert.Zero(t, f.telegram.count())

	rec = post(t, router, startFrom111)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, loads)
	assert.Equal(t, 1, f.telegram.count())
}

func TestWebhook_SyncStocksEndToEnd(t *testing.T) {
	f := newFixture(t, 111)
	f.market.reply = func(path string) string {
		if strings.Contains(path, "/v4/product/info/stocks") {
			return `{"cursor":"","total":1,"items":[{"offer_id":"A-1","stocks":[{"present":3},{"present":4}]}]}`
		}
		return `{}`
	}
	router := webhook.NewRouter("/api/webhook", NewCoordinator(f.load, Options{}))

	body := strings.Replace(startFrom111, `"/start"`, fmt.Sprintf("%q", dispatcher.BtnSyncStocks), 1)
	rec := post(t, router, body)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, 2, f.telegram.count())
	assert.Contains(t, f.telegram.bodies[0]["text"], "Synchronizing stocks")
	assert.Contains(t, f.telegram.bodies[1]["text"], "Stocks synchronized: 1 items")

	f.market.mu.Lock()
	defer f.market.mu.Unlock()
	require.Len(t, f.market.bodies, 2)
	pushed := f.market.bodies[1]["stocks"].([]any)[0].(map[string]any)
	assert.Equal(t, "A-1", pushed["seller_sku_id"])
	assert.EqualValues(t, 7, pushed["stock"])
	assert.Equal(t, "WH-1", pushed["warehouse_id"])
}

func TestBuildSession_RegistersDispatcher(t *testing.T) {
	f := newFixture(t, 111)
	s, d, err := BuildSession(f.cfg, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{HandlerName}, s.Handlers())
	assert.Equal(t, "telegram", s.Channel().Name())
	assert.True(t, d.IsAllowed(111))
	assert.False(t, d.IsAllowed(222))
}

func TestApplyLogLevel_IgnoresUnknown(t *testing.T) {
	before := logger.GetLevel()
	t.Cleanup(func() { logger.SetLevel(before) })

	applyLogLevel("loud")
	assert.Equal(t, before, logger.GetLevel())

	applyLogLevel("debug")
	assert.Equal(t, logger.DEBUG, logger.GetLevel())
}
