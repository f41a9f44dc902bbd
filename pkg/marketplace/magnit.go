package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	magnitOrdersPath     = "/api/seller/v1/orders/list/unprocessed"
	magnitProductsPath   = "/api/seller/v1/products/sku/list"
	magnitStocksInfoPath = "/api/seller/v1/products/sku/stocks/info"
	magnitPriceInfoPath  = "/api/seller/v1/products/sku/price/info"
	magnitStocksPath     = "/api/seller/v1/products/sku/stocks"
	magnitPricesPath     = "/api/seller/v1/products/sku/price"

	ordersPageLimit   = 100
	productsPageLimit = 1000

	stockTypeFBS = "FBS"
)

// ID is an upstream identifier that may arrive as a JSON number or string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	*id = ID(b)
	return nil
}

func (id ID) String() string { return string(id) }

type Order struct {
	ID     ID          `json:"order_id"`
	Status string      `json:"status"`
	Items  []OrderItem `json:"items"`
}

type OrderItem struct {
	SKUID    ID  `json:"sku_id"`
	Quantity int `json:"quantity"`
}

// Product is reference data about one listed SKU.
type Product struct {
	SKUID       ID     `json:"sku_id"`
	SellerSKUID string `json:"seller_sku_id"`
	Title       string `json:"title"`
}

type StockLevel struct {
	Stock    int
	Reserved int
}

// StockUpdate sets the FBS stock of one seller SKU.
type StockUpdate struct {
	SellerSKUID string `json:"seller_sku_id"`
	Stock       int    `json:"stock"`
	WarehouseID string `json:"warehouse_id"`
}

// PriceUpdate sets the price of one seller SKU.
type PriceUpdate struct {
	SellerSKUID  string  `json:"seller_sku_id"`
	Price        float64 `json:"price"`
	CurrencyCode string  `json:"currency_code"`
}

type MagnitConfig struct {
	BaseURL     string
	APIKey      string
	WarehouseID string
	Currency    string
	Timeout     time.Duration
}

// Magnit is the seller account being managed.
type Magnit struct {
	client      *Client
	warehouseID string
	currency    string
}

func NewMagnit(cfg MagnitConfig, observer Observer) *Magnit {
	currency := cfg.Currency
	if currency == "" {
		currency = "RUB"
	}
	return &Magnit{
		client: NewClient(PlatformMagnit, Options{
			BaseURL:  cfg.BaseURL,
			Headers:  map[string]string{"X-Api-Key": cfg.APIKey},
			Timeout:  cfg.Timeout,
			Observer: observer,
		}),
		warehouseID: cfg.WarehouseID,
		currency:    currency,
	}
}

func (m *Magnit) UnprocessedOrders(ctx context.Context) ([]Order, error) {
	var resp struct {
		Orders []Order `json:"orders"`
	}
	body := map[string]any{"limit": ordersPageLimit, "offset": 0}
	if err := m.client.Post(ctx, "list orders", magnitOrdersPath, body, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// Products lists the catalogue sorted by seller SKU, the order used for every
// numbered listing shown to the operator.
func (m *Magnit) Products(ctx context.Context) ([]Product, error) {
	var resp struct {
		Result []Product `json:"result"`
	}
	body := map[string]any{"limit": productsPageLimit}
	if err := m.client.Post(ctx, "list products", magnitProductsPath, body, &resp); err != nil {
		return nil, err
	}

	products := resp.Result
	for i := range products {
		if products[i].SellerSKUID == "" {
			products[i].SellerSKUID = "N/A"
		}
		if products[i].Title == "" {
			products[i].Title = "N/A"
		}
	}
	slices.SortStableFunc(products, func(a, b Product) int {
		return strings.Compare(a.SellerSKUID, b.SellerSKUID)
	})
	return products, nil
}

// StockLevels returns the FBS stock of the given SKUs keyed by SKU id.
func (m *Magnit) StockLevels(ctx context.Context, skuIDs []ID) (map[ID]StockLevel, error) {
	ids := make([]int64, 0, len(skuIDs))
	for _, id := range skuIDs {
		n, err := strconv.ParseInt(string(id), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, n)
	}
	if len(ids) == 0 {
		return map[ID]StockLevel{}, nil
	}

	body := map[string]any{
		"filter":     map[string]any{"sku_ids": ids},
		"pagination": map[string]any{"dir": "DESC", "page": 0, "page_size": len(ids)},
	}
	var resp struct {
		Result []struct {
			SKUID   ID `json:"sku_id"`
			Details []struct {
				Type     string `json:"type"`
				Stock    int    `json:"stock"`
				Reserved int    `json:"reserved"`
			} `json:"stock_info_details"`
		} `json:"result"`
	}
	if err := m.client.Post(ctx, "fetch stocks", magnitStocksInfoPath, body, &resp); err != nil {
		return nil, err
	}

	levels := make(map[ID]StockLevel, len(resp.Result))
	for _, item := range resp.Result {
		for _, d := range item.Details {
			if d.Type == stockTypeFBS {
				levels[item.SKUID] = StockLevel{Stock: d.Stock, Reserved: d.Reserved}
			}
		}
	}
	return levels, nil
}

// Prices returns current prices keyed by seller SKU.
func (m *Magnit) Prices(ctx context.Context, sellerSKUs []string) (map[string]float64, error) {
	skus := make([]string, 0, len(sellerSKUs))
	for _, s := range sellerSKUs {
		if s != "" && s != "N/A" {
			skus = append(skus, s)
		}
	}
	if len(skus) == 0 {
		return map[string]float64{}, nil
	}

	body := map[string]any{
		"filter":     map[string]any{"seller_sku_ids": skus},
		"pagination": map[string]any{"dir": "DESC", "page": 0, "page_size": len(skus)},
	}
	var resp struct {
		Result []struct {
			SellerSKUID string `json:"seller_sku_id"`
			Price       Amount `json:"price"`
		} `json:"result"`
	}
	if err := m.client.Post(ctx, "fetch prices", magnitPriceInfoPath, body, &resp); err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(resp.Result))
	for _, item := range resp.Result {
		if item.SellerSKUID == "" {
			continue
		}
		prices[item.SellerSKUID] = item.Price.Value
	}
	return prices, nil
}

func (m *Magnit) PushStocks(ctx context.Context, op string, stocks []StockUpdate) error {
	for i := range stocks {
		if stocks[i].WarehouseID == "" {
			stocks[i].WarehouseID = m.warehouseID
		}
	}
	return m.client.Post(ctx, op, magnitStocksPath, map[string]any{"stocks": stocks}, nil)
}

func (m *Magnit) PushPrices(ctx context.Context, op string, prices []PriceUpdate) error {
	for i := range prices {
		if prices[i].CurrencyCode == "" {
			prices[i].CurrencyCode = m.currency
		}
	}
	return m.client.Post(ctx, op, magnitPricesPath, map[string]any{"prices": prices}, nil)
}
