package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tinyland-inc/sellerbot/pkg/logger"
	"github.com/tinyland-inc/sellerbot/pkg/marketplace"
)

func (d *Dispatcher) showOrders(ctx context.Context, r *replier) {
	r.send("📦 Fetching orders...")

	orders, err := d.market.UnprocessedOrders(ctx)
	if err != nil {
		r.send("❌ Failed to fetch orders: " + reason(err))
		return
	}
	if len(orders) == 0 {
		r.send("✅ No unprocessed orders")
		return
	}

	// Titles are a nicety; the listing still goes out without them.
	products, err := d.market.Products(ctx)
	if err != nil {
		logger.WarnCF("dispatcher", "Order listing without product titles", map[string]any{"error": err})
	}
	bySKU := make(map[marketplace.ID]marketplace.Product, len(products))
	for _, p := range products {
		bySKU[p.SKUID] = p
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📦 UNPROCESSED ORDERS (%d):\n\n", len(orders))
	for _, o := range orders {
		fmt.Fprintf(&b, "🆔 Order: %s\n", orDefault(o.ID.String(), "N/A"))
		fmt.Fprintf(&b, "📊 Status: %s\n", orDefault(o.Status, "N/A"))
		fmt.Fprintf(&b, "📦 Items: %d\n", len(o.Items))
		for j, item := range o.Items {
			connector := "├─"
			if j == len(o.Items)-1 {
				connector = "└─"
			}
			sellerSKU, title := "N/A", "Product "+item.SKUID.String()
			if p, ok := bySKU[item.SKUID]; ok {
				sellerSKU, title = p.SellerSKUID, p.Title
			}
			fmt.Fprintf(&b, "  %s %s: %s - %d pcs\n", connector, sellerSKU, title, item.Quantity)
		}
		b.WriteString("\n" + strings.Repeat("─", 40) + "\n\n")
	}
	r.send(b.String())
}

func (d *Dispatcher) showStocks(ctx context.Context, r *replier) {
	r.send("📊 Fetching stock levels...")

	products, ok := d.fetchProducts(ctx, r)
	if !ok {
		return
	}
	levels, err := d.market.StockLevels(ctx, products)
	if err != nil {
		r.send("❌ Failed to fetch stock levels: " + reason(err))
		return
	}

	var b strings.Builder
	b.WriteString("📊 CURRENT STOCKS:\n\n")
	shown := min(len(products), d.listLimit)
	for i, p := range products[:shown] {
		lvl := levels[p.SKUID]
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, p.SellerSKUID, p.Title)
		fmt.Fprintf(&b, "   📦 Available: %d pcs\n", lvl.Stock)
		fmt.Fprintf(&b, "   🔒 Reserved: %d pcs\n\n", lvl.Reserved)
	}
	writeMore(&b, len(products)-shown)
	r.send(b.String())
}

func (d *Dispatcher) showPrices(ctx context.Context, r *replier) {
	r.send("💰 Fetching prices...")

	products, ok := d.fetchProducts(ctx, r)
	if !ok {
		return
	}
	prices, err := d.market.Prices(ctx, products)
	if err != nil {
		r.send("❌ Failed to fetch prices: " + reason(err))
		return
	}

	var b strings.Builder
	b.WriteString("💰 CURRENT PRICES:\n\n")
	shown := min(len(products), d.listLimit)
	for i, p := range products[:shown] {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, p.SellerSKUID, p.Title)
		fmt.Fprintf(&b, "   💰 Price: %.2f RUB\n\n", prices[p.SellerSKUID])
	}
	writeMore(&b, len(products)-shown)
	r.send(b.String())
}

func writeMore(b *strings.Builder, rest int) {
	if rest > 0 {
		fmt.Fprintf(b, "... and %d more products", rest)
	}
}

// syncAll runs both halves concurrently and reports each on its own.
func (d *Dispatcher) syncAll(ctx context.Context, r *replier) {
	r.send("🔄 Starting full synchronization...")

	var stocks, prices marketplace.Result
	var g errgroup.Group
	g.Go(func() error {
		stocks = d.market.SyncStocks(ctx)
		return nil
	})
	g.Go(func() error {
		prices = d.market.SyncPrices(ctx)
		return nil
	})
	_ = g.Wait()

	r.send("📊 Stocks: " + resultLine(stocks))
	r.send("💰 Prices: " + resultLine(prices))

	if stocks.OK && prices.OK {
		r.send("🎉 Full synchronization completed successfully!")
	} else {
		r.send("⚠️ Synchronization finished with errors")
	}
}

func (d *Dispatcher) fetchProducts(ctx context.Context, r *replier) ([]marketplace.Product, bool) {
	products, err := d.market.Products(ctx)
	if err != nil {
		r.send(textProductsFailed + ": " + reason(err))
		return nil, false
	}
	if len(products) == 0 {
		r.send(textProductsFailed)
		return nil, false
	}
	return products, true
}

func (d *Dispatcher) startEdit(ctx context.Context, r *replier, h *Handle, kind Kind) {
	products, ok := d.fetchProducts(ctx, r)
	if !ok {
		return
	}

	var b strings.Builder
	if kind == KindPrice {
		b.WriteString("💰 Choose a product to edit the price:\n\n")
	} else {
		b.WriteString("📦 Choose a product to edit the stock:\n\n")
	}
	for i, p := range products {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, p.SellerSKUID, p.Title)
	}
	b.WriteString("\nEnter the product number:")

	h.Set(AwaitingProduct(kind, products))
	r.menu(b.String(), backKeyboard())
}

func (d *Dispatcher) selectProduct(r *replier, h *Handle, text string) {
	st := h.State()

	n, err := strconv.Atoi(text)
	if err != nil {
		r.send(textEnterNumber)
		return
	}
	products := st.Products()
	if n < 1 || n > len(products) {
		r.send(textInvalidProduct)
		return
	}

	p := products[n-1]
	h.Set(AwaitingValue(st.Kind(), p))

	prompt := "Enter the new stock:"
	if st.Kind() == KindPrice {
		prompt = "Enter the new price:"
	}
	r.send(fmt.Sprintf("✏️ Editing: %s\n📝 Title: %s\n\n%s", p.SellerSKUID, p.Title, prompt))
}

func (d *Dispatcher) applyValue(ctx context.Context, r *replier, h *Handle, text string) {
	st := h.State()
	p := st.Selected()

	var res marketplace.Result
	switch st.Kind() {
	case KindStock:
		n, err := strconv.Atoi(text)
		if err != nil {
			r.send(textEnterNumber)
			return
		}
		if n < 0 {
			r.send("❌ Stock cannot be negative")
			return
		}
		r.send(fmt.Sprintf("🔄 Updating stock for %s...", p.SellerSKUID))
		res = d.market.UpdateStock(ctx, p.SellerSKUID, n)
	case KindPrice:
		v, ok := marketplace.ParseAmount(text)
		if !ok {
			r.send(textEnterNumber)
			return
		}
		if v < 0 {
			r.send("❌ Price cannot be negative")
			return
		}
		r.send(fmt.Sprintf("🔄 Updating price for %s...", p.SellerSKUID))
		res = d.market.UpdatePrice(ctx, p.SellerSKUID, v)
	}

	r.send(resultLine(res))
	h.Reset()

	if st.Kind() == KindPrice {
		r.menu(textPricesMenu, pricesKeyboard())
	} else {
		r.menu(textStocksMenu, stocksKeyboard())
	}
}

func reason(err error) string {
	if me, ok := marketplace.AsError(err); ok {
		return me.Reason
	}
	return err.Error()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
