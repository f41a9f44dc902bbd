package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/sellerbot/pkg/bus"
	"github.com/tinyland-inc/sellerbot/pkg/channels"
	"github.com/tinyland-inc/sellerbot/pkg/config"
	"github.com/tinyland-inc/sellerbot/pkg/session"
)

func TestNewGatewayCommand(t *testing.T) {
	cmd := NewGatewayCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "gateway", cmd.Use)
	assert.Equal(t, []string{"g"}, cmd.Aliases)
	assert.Nil(t, cmd.Run)
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
	assert.NotNil(t, cmd.Flags().Lookup("polling"))
}

func TestPrepare(t *testing.T) {
	busSession := session.New(channels.NewBusChannel(bus.NewMessageBus()))
	tgSession := session.New(channels.NewTelegramChannel(channels.TelegramConfig{
		Token: "123456789:" + strings.Repeat("A", 35),
	}))

	t.Run("keep-alive disabled, webhook mode", func(t *testing.T) {
		pinger, tc, err := prepare(config.DefaultConfig(), busSession, false)
		require.NoError(t, err)
		assert.Nil(t, pinger)
		assert.Nil(t, tc)
	})

	t.Run("bad keep-alive settings refuse to start", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.KeepAlive.Enabled = true
		cfg.KeepAlive.URL = "https://bot.example.com"
		cfg.KeepAlive.Schedule = "every so often"

		_, _, err := prepare(cfg, busSession, false)
		assert.ErrorContains(t, err, "invalid keep-alive schedule")
	})

	t.Run("keep-alive enabled", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.KeepAlive.Enabled = true
		cfg.KeepAlive.URL = "https://bot.example.com/"

		pinger, _, err := prepare(cfg, busSession, false)
		require.NoError(t, err)
		require.NotNil(t, pinger)
		assert.Equal(t, "https://bot.example.com/ping", pinger.Target())
	})

	t.Run("polling needs telegram", func(t *testing.T) {
		_, _, err := prepare(config.DefaultConfig(), busSession, true)
		assert.ErrorContains(t, err, "long polling needs the telegram channel")

		_, tc, err := prepare(config.DefaultConfig(), tgSession, true)
		require.NoError(t, err)
		assert.NotNil(t, tc)
	})
}

func TestPoll_DispatchesUpdatesUntilCancelled(t *testing.T) {
	var served atomic.Bool
	var deleted atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/deleteWebhook"):
			deleted.Store(true)
			fmt.Fprint(w, `{"ok":true,"result":true}`)
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if served.CompareAndSwap(false, true) {
				fmt.Fprint(w, `{"ok":true,"result":[{"update_id":5,"message":{"message_id":1,"date":0,`+
					`"chat":{"id":111,"type":"private"},"from":{"id":111,"is_bot":false,"first_name":"A"},"text":"hi"}}]}`)
				return
			}
			time.Sleep(20 * time.Millisecond)
			fmt.Fprint(w, `{"ok":true,"result":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	bot, err := channels.NewBot(channels.TelegramConfig{
		Token:     "123456789:" + strings.Repeat("A", 35),
		APIServer: srv.URL,
	})
	require.NoError(t, err)

	mb := bus.NewMessageBus()
	coordinator := session.NewCoordinator(func(context.Context) (*session.Session, error) {
		s := session.New(channels.NewBusChannel(mb))
		err := s.Handle("echo", session.MatchText, func(ctx context.Context, msg bus.InboundMessage, out channels.Sender) error {
			return out.Send(ctx, bus.OutboundMessage{ChatID: msg.ReplyChatID(), Text: "echo: " + msg.Text})
		})
		return s, err
	}, session.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poll(ctx, bot, coordinator) }()

	waitCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	reply, ok := mb.SubscribeOutbound(waitCtx)
	require.True(t, ok, "no reply before timeout")
	assert.Equal(t, "echo: hi", reply.Text)
	assert.EqualValues(t, 111, reply.ChatID)
	assert.True(t, deleted.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not return after cancel")
	}
}
