package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	ozonStocksPath = "/v4/product/info/stocks"
	ozonPricesPath = "/v5/product/info/prices"

	ozonPageLimit = 100
	// Guards against an upstream that keeps returning a cursor.
	ozonMaxPages = 500
)

// Amount is a price that Ozon may send as a number or as a formatted string
// such as "1 299 ₽". Valid is false when the value could not be parsed.
type Amount struct {
	Value float64
	Valid bool
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*a = Amount{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if v, ok := ParseAmount(s); ok {
			*a = Amount{Value: v, Valid: true}
		}
		return nil
	}
	if v, err := strconv.ParseFloat(string(b), 64); err == nil && finite(v) {
		*a = Amount{Value: v, Valid: true}
	}
	return nil
}

// ParseAmount reads a decimal that may carry a currency sign, spaces as
// thousands separators, or a decimal comma. NaN and infinities are rejected.
func ParseAmount(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '₽', ' ', '\u00a0', '\u202f', '\t':
			return -1
		case ',':
			return '.'
		}
		return r
	}, s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(v) {
		return 0, false
	}
	return v, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// OzonStock is the stock present across all warehouses for one offer.
type OzonStock struct {
	OfferID string
	Present int
}

type OzonPrice struct {
	OfferID string
	Price   Amount
}

type OzonConfig struct {
	BaseURL  string
	ClientID string
	APIKey   string
	Timeout  time.Duration
}

// Ozon is the read-only source of stocks and prices.
type Ozon struct {
	client *Client
}

func NewOzon(cfg OzonConfig, observer Observer) *Ozon {
	return &Ozon{
		client: NewClient(PlatformOzon, Options{
			BaseURL: cfg.BaseURL,
			Headers: map[string]string{
				"Client-Id": cfg.ClientID,
				"Api-Key":   cfg.APIKey,
			},
			Timeout:  cfg.Timeout,
			Observer: observer,
		}),
	}
}

type ozonPage[T any] struct {
	Cursor string `json:"cursor"`
	Items  []T    `json:"items"`
	Total  int    `json:"total"`
}

// fetchAll walks the cursor pagination. Any failed page fails the whole
// fetch so callers never act on partial data.
func fetchAll[T any](ctx context.Context, c *Client, op, path string) ([]T, error) {
	var (
		all    []T
		cursor string
	)
	for page := 0; page < ozonMaxPages; page++ {
		body := map[string]any{
			"filter": map[string]any{"visibility": "ALL"},
			"limit":  ozonPageLimit,
			"cursor": cursor,
		}
		var resp ozonPage[T]
		if err := c.Post(ctx, op, path, body, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Items...)

		if resp.Cursor == "" || resp.Cursor == cursor || len(resp.Items) == 0 {
			return all, nil
		}
		cursor = resp.Cursor
	}
	return nil, &Error{
		Platform: c.Platform(),
		Op:       op,
		Reason:   fmt.Sprintf("pagination did not finish after %d pages", ozonMaxPages),
	}
}

func (o *Ozon) Stocks(ctx context.Context) ([]OzonStock, error) {
	type item struct {
		OfferID string `json:"offer_id"`
		Stocks  []struct {
			Present int `json:"present"`
		} `json:"stocks"`
	}
	items, err := fetchAll[item](ctx, o.client, "fetch stocks", ozonStocksPath)
	if err != nil {
		return nil, err
	}

	stocks := make([]OzonStock, 0, len(items))
	for _, it := range items {
		present := 0
		for _, s := range it.Stocks {
			present += s.Present
		}
		stocks = append(stocks, OzonStock{OfferID: it.OfferID, Present: present})
	}
	return stocks, nil
}

func (o *Ozon) Prices(ctx context.Context) ([]OzonPrice, error) {
	type item struct {
		OfferID string `json:"offer_id"`
		Price   struct {
			Price Amount `json:"price"`
		} `json:"price"`
	}
	items, err := fetchAll[item](ctx, o.client, "fetch prices", ozonPricesPath)
	if err != nil {
		return nil, err
	}

	prices := make([]OzonPrice, 0, len(items))
	for _, it := range items {
		prices = append(prices, OzonPrice{OfferID: it.OfferID, Price: it.Price.Price})
	}
	return prices, nil
}
