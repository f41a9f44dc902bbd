package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrNegativeValue rejects a stock or price below zero before any call.
var ErrNegativeValue = errors.New("value must not be negative")

// Result is the outcome of a push or sync, ready to show to the operator.
type Result struct {
	OK      bool
	Message string
	Err     error
}

func success(format string, args ...any) Result {
	return Result{OK: true, Message: fmt.Sprintf(format, args...)}
}

func failure(err error, format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...), Err: err}
}

// Service combines both platforms into the operations the operator can run.
type Service struct {
	magnit *Magnit
	ozon   *Ozon
}

func NewService(magnit *Magnit, ozon *Ozon) *Service {
	return &Service{magnit: magnit, ozon: ozon}
}

func (s *Service) UnprocessedOrders(ctx context.Context) ([]Order, error) {
	return s.magnit.UnprocessedOrders(ctx)
}

func (s *Service) Products(ctx context.Context) ([]Product, error) {
	return s.magnit.Products(ctx)
}

func (s *Service) StockLevels(ctx context.Context, products []Product) (map[ID]StockLevel, error) {
	ids := make([]ID, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.SKUID)
	}
	return s.magnit.StockLevels(ctx, ids)
}

func (s *Service) Prices(ctx context.Context, products []Product) (map[string]float64, error) {
	skus := make([]string, 0, len(products))
	for _, p := range products {
		skus = append(skus, p.SellerSKUID)
	}
	return s.magnit.Prices(ctx, skus)
}

func (s *Service) UpdateStock(ctx context.Context, sellerSKU string, stock int) Result {
	if stock < 0 {
		return failure(ErrNegativeValue, "Stock for %s cannot be negative", sellerSKU)
	}
	err := s.magnit.PushStocks(ctx, "update stock", []StockUpdate{{SellerSKUID: sellerSKU, Stock: stock}})
	if err != nil {
		return failure(err, "Failed to update stock for %s: %s", sellerSKU, reason(err))
	}
	return success("Stock for %s updated: %d pcs", sellerSKU, stock)
}

func (s *Service) UpdatePrice(ctx context.Context, sellerSKU string, price float64) Result {
	if price < 0 {
		return failure(ErrNegativeValue, "Price for %s cannot be negative", sellerSKU)
	}
	err := s.magnit.PushPrices(ctx, "update price", []PriceUpdate{{SellerSKUID: sellerSKU, Price: price}})
	if err != nil {
		return failure(err, "Failed to update price for %s: %s", sellerSKU, reason(err))
	}
	return success("Price for %s updated: %s RUB", sellerSKU, FormatPrice(price))
}

// SyncStocks copies Ozon stock levels to Magnit in a single push.
func (s *Service) SyncStocks(ctx context.Context) Result {
	source, err := s.ozon.Stocks(ctx)
	if err != nil {
		return failure(err, "Stock sync failed: could not fetch Ozon stocks (%s)", reason(err))
	}
	if len(source) == 0 {
		return failure(nil, "Stock sync failed: no stock data from Ozon")
	}

	stocks := make([]StockUpdate, 0, len(source))
	for _, item := range source {
		if item.OfferID == "" {
			continue
		}
		stocks = append(stocks, StockUpdate{SellerSKUID: item.OfferID, Stock: item.Present})
	}
	if len(stocks) == 0 {
		return failure(nil, "Stock sync failed: no stock entries to send")
	}

	if err := s.magnit.PushStocks(ctx, "sync stocks", stocks); err != nil {
		return failure(err, "Stock sync failed: %s", reason(err))
	}
	return success("Stocks synchronized: %d items", len(stocks))
}

// SyncPrices copies Ozon prices to Magnit in a single push. Offers whose
// price cannot be parsed are skipped.
func (s *Service) SyncPrices(ctx context.Context) Result {
	source, err := s.ozon.Prices(ctx)
	if err != nil {
		return failure(err, "Price sync failed: could not fetch Ozon prices (%s)", reason(err))
	}
	if len(source) == 0 {
		return failure(nil, "Price sync failed: no price data from Ozon")
	}

	prices := make([]PriceUpdate, 0, len(source))
	for _, item := range source {
		if item.OfferID == "" || !item.Price.Valid {
			continue
		}
		prices = append(prices, PriceUpdate{SellerSKUID: item.OfferID, Price: item.Price.Value})
	}
	if len(prices) == 0 {
		return failure(nil, "Price sync failed: no price entries to send")
	}

	if err := s.magnit.PushPrices(ctx, "sync prices", prices); err != nil {
		return failure(err, "Price sync failed: %s", reason(err))
	}
	return success("Prices synchronized: %d items", len(prices))
}

// FormatPrice prints a price without a trailing ".00" for whole values.
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func reason(err error) string {
	if me, ok := AsError(err); ok {
		return me.Reason
	}
	return err.Error()
}
