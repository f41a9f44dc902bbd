// Package dispatcher turns operator text into marketplace actions.
//
// Every sender is checked against the admin allow-list first. Allowed users
// move through a small per-user state machine for the edit flows; everything
// else is a stateless menu command.
package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/tinyland-inc/sellerbot/pkg/bus"
	"github.com/tinyland-inc/sellerbot/pkg/channels"
	"github.com/tinyland-inc/sellerbot/pkg/logger"
	"github.com/tinyland-inc/sellerbot/pkg/marketplace"
)

// DefaultListLimit is how many products the current stocks and prices
// listings show before summarizing the rest.
const DefaultListLimit = 10

// Marketplace is the data surface the dispatcher drives.
// *marketplace.Service implements it.
type Marketplace interface {
	UnprocessedOrders(ctx context.Context) ([]marketplace.Order, error)
	Products(ctx context.Context) ([]marketplace.Product, error)
	StockLevels(ctx context.Context, products []marketplace.Product) (map[marketplace.ID]marketplace.StockLevel, error)
	Prices(ctx context.Context, products []marketplace.Product) (map[string]float64, error)
	UpdateStock(ctx context.Context, sellerSKU string, stock int) marketplace.Result
	UpdatePrice(ctx context.Context, sellerSKU string, price float64) marketplace.Result
	SyncStocks(ctx context.Context) marketplace.Result
	SyncPrices(ctx context.Context) marketplace.Result
}

type Option func(*Dispatcher)

func WithListLimit(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.listLimit = n
		}
	}
}

type Dispatcher struct {
	market    Marketplace
	admins    map[int64]struct{}
	states    *StateStore
	listLimit int
}

func New(market Marketplace, adminIDs []int64, opts ...Option) *Dispatcher {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	d := &Dispatcher{
		market:    market,
		admins:    admins,
		states:    NewStateStore(),
		listLimit: DefaultListLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) States() *StateStore {
	return d.states
}

func (d *Dispatcher) IsAllowed(userID int64) bool {
	_, ok := d.admins[userID]
	return ok
}

// Handle processes one inbound message and writes every reply to out.
// Events from the same user are handled one at a time. The returned error is
// the first reply that could not be delivered.
func (d *Dispatcher) Handle(ctx context.Context, msg bus.InboundMessage, out channels.Sender) error {
	r := &replier{ctx: ctx, out: out, chatID: msg.ReplyChatID()}

	if !d.IsAllowed(msg.SenderID) {
		logger.WarnCF("dispatcher", "Access denied", map[string]any{
			"user_id":  msg.SenderID,
			"username": msg.Username,
		})
		r.send(TextDenied)
		return r.err
	}

	h := d.states.Acquire(msg.SenderID)
	defer h.Release()

	text := strings.TrimSpace(msg.Text)
	st := h.State()

	logger.DebugCF("dispatcher", "Handling message", map[string]any{
		"user_id":  msg.SenderID,
		"event_id": msg.EventID,
		"phase":    st.Phase().String(),
	})

	switch command(text) {
	case CmdStart:
		h.Reset()
		r.menu(textWelcome, mainKeyboard())
		return r.err
	case CmdMyID:
		r.send(fmt.Sprintf("🆔 Your ID: %d\n\nAdd it to ADMIN_IDS to grant access.", msg.SenderID))
		return r.err
	}
	if text == BtnBack {
		h.Reset()
		r.menu(textMainMenu, mainKeyboard())
		return r.err
	}

	switch st.Phase() {
	case PhaseAwaitingProduct:
		d.selectProduct(r, h, text)
	case PhaseAwaitingValue:
		d.applyValue(ctx, r, h, text)
	default:
		d.route(ctx, r, h, text)
	}
	return r.err
}

func (d *Dispatcher) route(ctx context.Context, r *replier, h *Handle, text string) {
	switch text {
	case BtnOrders:
		d.showOrders(ctx, r)
	case BtnSync:
		r.menu(textSyncMenu, syncKeyboard())
	case BtnStocks:
		r.menu(textStocksMenu, stocksKeyboard())
	case BtnPrices:
		r.menu(textPricesMenu, pricesKeyboard())
	case BtnHelp, CmdHelp:
		r.html(textHelp)
	case BtnSyncStocks:
		r.send("🔄 Synchronizing stocks...")
		r.send(resultLine(d.market.SyncStocks(ctx)))
	case BtnSyncPrices:
		r.send("🔄 Synchronizing prices...")
		r.send(resultLine(d.market.SyncPrices(ctx)))
	case BtnSyncAll:
		d.syncAll(ctx, r)
	case BtnManualStocks, BtnEditStock:
		d.startEdit(ctx, r, h, KindStock)
	case BtnManualPrices, BtnEditPrice:
		d.startEdit(ctx, r, h, KindPrice)
	case BtnCurrentStocks:
		d.showStocks(ctx, r)
	case BtnCurrentPrices:
		d.showPrices(ctx, r)
	default:
		r.menu(TextUnknown, mainKeyboard())
	}
}

// command strips a "@botname" suffix from slash commands.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd
}

func resultLine(res marketplace.Result) string {
	if res.OK {
		return "✅ " + res.Message
	}
	return "❌ " + res.Message
}

// replier sends to one chat and remembers the first delivery failure.
type replier struct {
	ctx    context.Context
	out    channels.Sender
	chatID int64
	err    error
}

func (r *replier) send(text string) {
	r.deliver(bus.OutboundMessage{Text: text})
}

func (r *replier) menu(text string, kb bus.Keyboard) {
	r.deliver(bus.OutboundMessage{Text: text, Keyboard: kb})
}

func (r *replier) html(text string) {
	r.deliver(bus.OutboundMessage{Text: text, ParseMode: parseModeHTML})
}

func (r *replier) deliver(msg bus.OutboundMessage) {
	msg.ChatID = r.chatID
	if err := r.out.Send(r.ctx, msg); err != nil {
		logger.WarnCF("dispatcher", "Reply not delivered", map[string]any{
			"chat_id": r.chatID,
			"error":   err,
		})
		if r.err == nil {
			r.err = err
		}
	}
}
