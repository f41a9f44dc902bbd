package dispatcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/sellerbot/pkg/bus"
	"github.com/tinyland-inc/sellerbot/pkg/marketplace"
)

const (
	adminID    int64 = 111
	strangerID int64 = 222
)

type stockCall struct {
	sku   string
	stock int
}

type priceCall struct {
	sku   string
	price float64
}

type fakeMarket struct {
	mu sync.Mutex

	products    []marketplace.Product
	productsErr error
	orders      []marketplace.Order
	levels      map[marketplace.ID]marketplace.StockLevel
	prices      map[string]float64

	syncStocks marketplace.Result
	syncPrices marketplace.Result

	calls  []string
	stocks []stockCall
	priced []priceCall
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		products: []marketplace.Product{
			{SKUID: "1", SellerSKUID: "A-1", Title: "Alpha"},
			{SKUID: "2", SellerSKUID: "B-2", Title: "Bravo"},
			{SKUID: "3", SellerSKUID: "C-3", Title: "Charlie"},
		},
		syncStocks: marketplace.Result{OK: true, Message: "Stocks synchronized: 3 items"},
		syncPrices: marketplace.Result{OK: true, Message: "Prices synchronized: 3 items"},
	}
}

func (f *fakeMarket) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeMarket) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeMarket) UnprocessedOrders(context.Context) ([]marketplace.Order, error) {
	f.record("orders")
	return f.orders, nil
}

func (f *fakeMarket) Products(context.Context) ([]marketplace.Product, error) {
	f.record("products")
	return f.products, f.productsErr
}

func (f *fakeMarket) StockLevels(context.Context, []marketplace.Product) (map[marketplace.ID]marketplace.StockLevel, error) {
	f.record("stock levels")
	return f.levels, nil
}

func (f *fakeMarket) Prices(context.Context, []marketplace.Product) (map[string]float64, error) {
	f.record("prices")
	return f.prices, nil
}

func (f *fakeMarket) UpdateStock(_ context.Context, sku string, stock int) marketplace.Result {
	f.record("update stock")
	f.mu.Lock()
	f.stocks = append(f.stocks, stockCall{sku, stock})
	f.mu.Unlock()
	return marketplace.Result{OK: true, Message: fmt.Sprintf("Stock for %s updated: %d pcs", sku, stock)}
}

func (f *fakeMarket) UpdatePrice(_ context.Context, sku string, price float64) marketplace.Result {
	f.record("update price")
	f.mu.Lock()
	f.priced = append(f.priced, priceCall{sku, price})
	f.mu.Unlock()
	return marketplace.Result{OK: true, Message: "Price updated"}
}

func (f *fakeMarket) SyncStocks(context.Context) marketplace.Result {
	f.record("sync stocks")
	return f.syncStocks
}

func (f *fakeMarket) SyncPrices(context.Context) marketplace.Result {
	f.record("sync prices")
	return f.syncPrices
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []bus.OutboundMessage
}

func (s *recordingSender) Send(_ context.Context, msg bus.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.msgs))
	for _, m := range s.msgs {
		out = append(out, m.Text)
	}
	return out
}

func (s *recordingSender) last() bus.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs[len(s.msgs)-1]
}

func (s *recordingSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
}

func say(t *testing.T, d *Dispatcher, out *recordingSender, from int64, text string) {
	t.Helper()
	err := d.Handle(context.Background(), bus.InboundMessage{SenderID: from, ChatID: from, Text: text}, out)
	require.NoError(t, err)
}

func TestHandle_StartShowsMainMenu(t *testing.T) {
	market := newFakeMarket()
	d := New(market, []int64{adminID})
	out := &recordingSender{}

	say(t, d, out, adminID, "/start")

	require.Len(t, out.msgs, 1)
	assert.Equal(t, adminID, out.msgs[0].ChatID)
	assert.Contains(t, out.msgs[0].Text, "Magnit Marketplace control bot")
	assert.Equal(t, mainKeyboard(), out.msgs[0].Keyboard)
	assert.Zero(t, market.callCount())
}

func TestHandle_UnauthorizedGetsDenialOnly(t *testing.T) {
	market := newFakeMarket()
	d := New(market, []int64{adminID})
	out := &recordingSender{}

	for _, text := range []string{"/start", "/myid", BtnOrders, BtnSyncAll, BtnEditStock, "1"} {
		say(t, d, out, strangerID, text)
	}

	for _, text := range out.texts() {
		assert.Equal(t, TextDenied, text)
	}
	assert.Len(t, out.msgs, 6)
	assert.Zero(t, market.callCount())
	assert.True(t, d.States().Get(strangerID).IsIdle())
}

func TestHandle_MyID(t *testing.T) {
	d := New(newFakeMarket(), []int64{adminID})
	out := &recordingSender{}

	say(t, d, out, adminID, "/myid@sellerbot")

	assert.Contains(t, out.last().Text, "111")
}

func TestHandle_UnknownCommand(t *testing.T) {
	d := New(newFakeMarket(), []int64{adminID})
	out := &recordingSender{}

	say(t, d, out, adminID, "hello?")

	assert.Equal(t, TextUnknown, out.last().Text)
	assert.Equal(t, mainKeyboard(), out.last().Keyboard)
}

func TestHandle_StockSelectionFlow(t *testing.T) {
	market := newFakeMarket()
	d := New(market, []int64{adminID})
	out := &recordingSender{}

	say(t, d, out, adminID, BtnEditStock)
	st := d.States().Get(adminID)
	require.Equal(t, PhaseAwaitingProduct, st.Phase())
	assert.Contains(t, out.last().Text, "2. B-2 - Bravo")
	assert.Equal(t, backKeyboard(), out.last().Keyboard)

	say(t, d, out, adminID, "2")
	st = d.States().Get(adminID)
	require.Equal(t, PhaseAwaitingValue, st.Phase())
	assert.Equal(t, "B-2", st.Selected().SellerSKUID)

	say(t, d, out, adminID, "15")

	assert.Equal(t, []stockCall{{"B-2", 15}}, market.stocks)
	assert.True(t, d.States().Get(adminID).IsIdle())
	assert.Equal(t, stocksKeyboard(), out.last().Keyboard)
	assert.Contains(t, out.texts(), "✅ Stock for B-2 updated: 15 pcs")
}

func TestHandle_InvalidSelectionKeepsState(t *testing.T) {
	market := newFakeMarket()
	d := New(market, []int64{adminID})
	out := &recordingSender{}

	say(t, d, out, adminID, BtnEditPrice)
	before := d.States().Get(adminID)

	for _, input := range []string{"0", "4", "99"} {
		say(t, d, out, adminID, input)
		assert.Equal(t, textInvalidProduct, out.last().Text)
	}
	say(t, d, out, adminID, "abc")
	assert.Equal(t, textEnterNumber, out.last().Text)

	after := d.States().Get(adminID)
	assert.Equal(t, PhaseAwaitingProduct, after.Phase())
	assert.Equal(t, before.Kind(), after.Kind())
	assert.Equal(t, before.Products(), after.Products())
}

func TestHandle_NegativePriceRejectedWithoutCall(t *testing.T) {
	market := newFakeMarket()
	d := New(market, []int64{adminID})
	out := &recordingSender{}

	say(t, d, out, adminID, BtnEditPrice)
	say(t, d, out, adminID, "1")
	say(t, d, out, adminID, "-5")

	assert.Equal(t, "❌ Price cannot be negative", out.last().Text)
	assert.Empty(t, market.priced)
	assert.Equal(t, PhaseAwaitingValue, d.States().Get(adminID).Phase())

	say(t, d, out, adminID, "1 299,50")
	assert.Equal(t, []priceCall{{"A-1", 1299.5}}, market.priced)
	assert.True(t, d.States().Get(adminID).IsIdle())
}

func TestHandle_NonFinitePriceKeepsState(t *testing.T) {
	market := newFakeMarket()
	d := New(market, []int64{adminID})
	out := &recordingSender{}

	say(t, d, out, adminID, BtnEditPrice)
	say(t, d, out, adminID, "1")
	for _, input := range []string{"NaN", "inf", "1e999"} {
		say(t, d, out, adminID, input)
		assert.Equal(t, textEnterNumber, out.last().Text)
	}

	assert.Empty(t, market.priced)
	assert.Equal(t, PhaseAwaitingValue, d.States().Get(adminID).Phase())
}

func TestHandle_NonNumericStockKeepsState(t *testing.T) {
	market := newFakeMarket()
	d := New(market, []int64{adminID})
	out := &recordingSender{}

	say(t, d, out, adminID, BtnManualStocks)
	say(t, d, out, adminID, "3")
	for _, input := range []string{"ten", "1.5", "-1"} {
		say(t, d, out, adminID, input)
	}

	assert.Empty(t, market.stocks)
	st := d.States().Get(adminID)
	assert.Equal(t, PhaseAwaitingValue, st.Phase())
	assert.Equal(t, "C-3", st.Selected().SellerSKUID)
}

func TestHandle_BackResetsFromAnyState(t *testing.T) {
	d := New(newFakeMarket(), []int64{adminID})
	out := &recordingSender{}

	say(t, d, out, adminID, BtnEditStock)
	say(t, d, out, adminID, BtnBack)
	assert.True(t, d.States().Get(adminID).IsIdle())
	assert.Equal(t, mainKeyboard(), out.last().Keyboard)

	say(t, d, out, adminID, BtnEditStock)
	say(t, d, out, adminID, "1")
	say(t, d, out, adminID, "/start")
	assert.True(t, d.States().Get(adminID).IsIdle())
}

func TestHandle_ProductFetchFailureLeavesIdle(t *testing.T) {
	market := newFakeMarket()
	market.productsErr = &marketplace.Error{Platform: "magnit", Op: "list products", Status: 500, Reason: "HTTP 500"}
	d := New(market, []int64{adminID})
	out := &recordingSender{}

	say(t, d, out, adminID, BtnEditStock)

	assert.Equal(t, "❌ Could not fetch the product list: HTTP 500", out.last().Text)
	assert.True(t, d.States().Get(adminID).IsIdle())
}

func TestHandle_CurrentStocksListsFirstTen(t *testing.T) {
	market := newFakeMarket()
	market.products = nil
	for i := 1; i <= 12; i++ {
		market.products = append(market.products, marketplace.Product{
			SKUID:       marketplace.ID(fmt.Sprint(i)),
			SellerSKUID: fmt.Sprintf("SKU-%02d", i),
			Title:       fmt.Sprintf("Item %d", i),
		})
	}
	market.levels = map[marketplace.ID]marketplace.StockLevel{"1": {Stock: 4, Reserved: 2}}
	d := New(market, []int64{adminID})
	out := &recordingSender{}

	say(t, d, out, adminID, BtnCurrentStocks)

	text := out.last().Text
	assert.Contains(t, text, "1. SKU-01 - Item 1\n   📦 Available: 4 pcs\n   🔒 Reserved: 2 pcs")
	assert.Contains(t, text, "10. SKU-10")
	assert.NotContains(t, text, "11. SKU-11")
	assert.Contains(t, text, "... and 2 more products")
}

func TestHandle_OrdersListing(t *testing.T) {
	market := newFakeMarket()
	market.orders = []marketplace.Order{{
		ID:     "1001",
		Status: "NEW",
		Items: []marketplace.OrderItem{
			{SKUID: "1", Quantity: 2},
			{SKUID: "9", Quantity: 1},
		},
	}}
	d := New(market, []int64{adminID})
	out := &recordingSender{}

	say(t, d, out, adminID, BtnOrders)

	text := out.last().Text
	assert.Contains(t, text, "UNPROCESSED ORDERS (1)")
	assert.Contains(t, text, "├─ A-1: Alpha - 2 pcs")
	assert.Contains(t, text, "└─ N/A: Product 9 - 1 pcs")
}

func TestHandle_SyncAllReportsHalvesIndependently(t *testing.T) {
	market := newFakeMarket()
	market.syncPrices = marketplace.Result{Message: "Price sync failed: HTTP 500"}
	d := New(market, []int64{adminID})
	out := &recordingSender{}

	say(t, d, out, adminID, BtnSyncAll)

	texts := out.texts()
	assert.Contains(t, texts, "📊 Stocks: ✅ Stocks synchronized: 3 items")
	assert.Contains(t, texts, "💰 Prices: ❌ Price sync failed: HTTP 500")
	assert.Equal(t, "⚠️ Synchronization finished with errors", out.last().Text)
}

func TestHandle_SyncAllAgainstUpstreamFailure(t *testing.T) {
	var magnitPushes, ozonCalls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v4/product/info/stocks":
			ozonCalls++
			_, _ = io.WriteString(w, `{"cursor":"","items":[{"offer_id":"A-1","stocks":[{"present":5}]}]}`)
		case "/v5/product/info/prices":
			ozonCalls++
			w.WriteHeader(http.StatusBadGateway)
		case "/api/seller/v1/products/sku/stocks":
			magnitPushes++
			_, _ = io.WriteString(w, `{}`)
		default:
			magnitPushes++
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	svc := marketplace.NewService(
		marketplace.NewMagnit(marketplace.MagnitConfig{BaseURL: srv.URL, APIKey: "k", WarehouseID: "w", Timeout: time.Second}, nil),
		marketplace.NewOzon(marketplace.OzonConfig{BaseURL: srv.URL, ClientID: "c", APIKey: "k", Timeout: time.Second}, nil),
	)
	d := New(svc, []int64{adminID})
	out := &recordingSender{}

	say(t, d, out, adminID, BtnSyncAll)

	texts := out.texts()
	assert.Contains(t, texts, "📊 Stocks: ✅ Stocks synchronized: 1 items")
	assert.Contains(t, texts, "💰 Prices: ❌ Price sync failed: could not fetch Ozon prices (HTTP 502)")
	assert.Equal(t, 2, ozonCalls)
	assert.Equal(t, 1, magnitPushes, "only the stock half pushes")
}

func TestHandle_UsersAreIndependent(t *testing.T) {
	market := newFakeMarket()
	d := New(market, []int64{adminID, 333})
	out := &recordingSender{}

	say(t, d, out, adminID, BtnEditStock)
	say(t, d, out, 333, BtnEditPrice)
	say(t, d, out, 333, "2")

	assert.Equal(t, PhaseAwaitingProduct, d.States().Get(adminID).Phase())
	assert.Equal(t, KindStock, d.States().Get(adminID).Kind())
	assert.Equal(t, PhaseAwaitingValue, d.States().Get(333).Phase())
	assert.Equal(t, KindPrice, d.States().Get(333).Kind())
}

func TestHandle_SameUserIsSerialized(t *testing.T) {
	market := newFakeMarket()
	d := New(market, []int64{adminID})
	out := &recordingSender{}

	say(t, d, out, adminID, BtnEditStock)
	say(t, d, out, adminID, "1")
	out.reset()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = d.Handle(context.Background(), bus.InboundMessage{SenderID: adminID, Text: fmt.Sprint(n)}, out)
		}(i)
	}
	wg.Wait()

	// The first value applied ends the flow; the rest arrive in Idle.
	assert.Len(t, market.stocks, 1)
	assert.True(t, d.States().Get(adminID).IsIdle())
}
