// Package ledger builds the immutable transaction records that pair with every
// stock mutation, and derives read-side aggregates (revenue series, top
// sellers, conversion rate) from the transaction log.
package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"glasstock/backend/internal/domain"
	"glasstock/backend/internal/xid"
)

var oneHundred = decimal.NewFromInt(100)

// NewReceiveRecord logs a stock receipt with before/after totals.
func NewReceiveRecord(p domain.Product, qty int, notes string, at time.Time) domain.Transaction {
	before := p.TotalStock
	after := p.TotalStock + qty
	return domain.Transaction{
		ID:             xid.New("tx"),
		ProductID:      p.ID,
		ProductName:    p.Name,
		ProductSKU:     p.SKU,
		Type:           domain.TxTypeReceive,
		Quantity:       qty,
		QuantityBefore: &before,
		QuantityAfter:  &after,
		Notes:          notes,
		Timestamp:      at,
	}
}

// NewSellRecord logs a committed sale. Notes fall back to an auto-description
// of any Hold/Display reduction so the history explains where units came from.
func NewSellRecord(p domain.Product, qty int, b domain.SellBreakdown, discount float64, notes string, at time.Time) domain.Transaction {
	before := p.TotalStock
	after := p.TotalStock - qty

	original := p.RetailPrice.Mul(decimal.NewFromInt(int64(qty)))
	final := original.Sub(original.Mul(decimal.NewFromFloat(discount)).Div(oneHundred))

	if notes == "" {
		notes = sellNotes(b, discount)
	}

	return domain.Transaction{
		ID:             xid.New("tx"),
		ProductID:      p.ID,
		ProductName:    p.Name,
		ProductSKU:     p.SKU,
		Type:           domain.TxTypeSell,
		Quantity:       qty,
		QuantityBefore: &before,
		QuantityAfter:  &after,
		Discount:       discount,
		OriginalPrice:  &original,
		FinalPrice:     &final,
		Notes:          notes,
		Timestamp:      at,
	}
}

// NewReturnRecord logs a customer return with the refunded value.
func NewReturnRecord(p domain.Product, qty int, notes string, at time.Time) domain.Transaction {
	before := p.TotalStock
	after := p.TotalStock + qty
	value := p.RetailPrice.Mul(decimal.NewFromInt(int64(qty)))
	return domain.Transaction{
		ID:             xid.New("tx"),
		ProductID:      p.ID,
		ProductName:    p.Name,
		ProductSKU:     p.SKU,
		Type:           domain.TxTypeReturn,
		Quantity:       qty,
		QuantityBefore: &before,
		QuantityAfter:  &after,
		ReturnValue:    &value,
		Notes:          notes,
		Timestamp:      at,
	}
}

// NewExchangeRecord logs an exchange. The same physical unit is assumed
// swapped, not consumed, so totals and buckets carry no before/after.
func NewExchangeRecord(p domain.Product, qty int, notes string, at time.Time) domain.Transaction {
	if notes == "" {
		notes = "Exchange transaction"
	}
	return domain.Transaction{
		ID:          xid.New("tx"),
		ProductID:   p.ID,
		ProductName: p.Name,
		ProductSKU:  p.SKU,
		Type:        domain.TxTypeExchange,
		Quantity:    qty,
		Notes:       notes,
		Timestamp:   at,
	}
}

// NewManageRecord logs a bucket reallocation as a quantity-0 record whose
// notes capture the before/after of all three buckets.
func NewManageRecord(p domain.Product, newHold, newDisplay, newFault int, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID:          xid.New("tx"),
		ProductID:   p.ID,
		ProductName: p.Name,
		ProductSKU:  p.SKU,
		Type:        domain.TxTypeManage,
		Quantity:    0,
		Notes: fmt.Sprintf("Hold: %d → %d, Display: %d → %d, Fault: %d → %d",
			p.OnHold, newHold, p.OnDisplay, newDisplay, p.OnFault, newFault),
		Timestamp: at,
	}
}

func sellNotes(b domain.SellBreakdown, discount float64) string {
	var parts []string
	if b.FromHold > 0 || b.FromDisplay > 0 {
		if b.FromFree > 0 {
			parts = append(parts, fmt.Sprintf("From: Free=%d, Hold=%d, Display=%d", b.FromFree, b.FromHold, b.FromDisplay))
		} else {
			parts = append(parts, fmt.Sprintf("Reduced Hold by %d, Display by %d", b.FromHold, b.FromDisplay))
		}
	}
	if discount > 0 {
		parts = append(parts, fmt.Sprintf("Discount: %g%%", discount))
	}
	return strings.Join(parts, ", ")
}

// sellRevenue prefers the recorded final price; older records without one fall
// back to quantity times the product's current retail price.
func sellRevenue(t domain.Transaction, products map[string]domain.Product) decimal.Decimal {
	if t.FinalPrice != nil {
		return *t.FinalPrice
	}
	p, ok := products[t.ProductID]
	if !ok {
		return decimal.Zero
	}
	return p.RetailPrice.Mul(decimal.NewFromInt(int64(t.Quantity)))
}

func returnValue(t domain.Transaction, products map[string]domain.Product) decimal.Decimal {
	if t.ReturnValue != nil {
		return *t.ReturnValue
	}
	p, ok := products[t.ProductID]
	if !ok {
		return decimal.Zero
	}
	return p.RetailPrice.Mul(decimal.NewFromInt(int64(t.Quantity)))
}

func productIndex(products []domain.Product) map[string]domain.Product {
	index := make(map[string]domain.Product, len(products))
	for _, p := range products {
		index[p.ID] = p
	}
	return index
}

const dayFormat = "2006-01-02"

// RevenueSeries buckets sell and return transactions by calendar day within
// [start, end], producing one zero-filled entry per day in chronological
// order. Returns subtract from the day's revenue and quantity.
func RevenueSeries(txs []domain.Transaction, products []domain.Product, start, end time.Time) []domain.DailyRevenue {
	if end.Before(start) {
		return nil
	}
	index := productIndex(products)

	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	byDay := make(map[string]*domain.DailyRevenue)
	series := make([]domain.DailyRevenue, 0, 32)
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		series = append(series, domain.DailyRevenue{Date: day.Format(dayFormat), Revenue: decimal.Zero})
	}
	for i := range series {
		byDay[series[i].Date] = &series[i]
	}

	for _, t := range txs {
		if t.Type != domain.TxTypeSell && t.Type != domain.TxTypeReturn {
			continue
		}
		if t.Timestamp.Before(start) || t.Timestamp.After(end) {
			continue
		}
		entry, ok := byDay[t.Timestamp.UTC().Format(dayFormat)]
		if !ok {
			continue
		}
		if t.Type == domain.TxTypeSell {
			entry.Revenue = entry.Revenue.Add(sellRevenue(t, index))
			entry.Quantity += t.Quantity
		} else {
			entry.Revenue = entry.Revenue.Sub(returnValue(t, index))
			entry.Quantity -= t.Quantity
		}
	}

	return series
}

// TopSellingProducts aggregates net quantity and net revenue per product
// across sells minus returns, keeps only products with strictly positive net
// revenue, and sorts descending by revenue.
func TopSellingProducts(txs []domain.Transaction, products []domain.Product) []domain.ProductSales {
	index := productIndex(products)
	byProduct := make(map[string]*domain.ProductSales)

	for _, t := range txs {
		if t.Type != domain.TxTypeSell && t.Type != domain.TxTypeReturn {
			continue
		}
		sales, ok := byProduct[t.ProductID]
		if !ok {
			sales = &domain.ProductSales{
				ProductID:    t.ProductID,
				ProductName:  t.ProductName,
				ProductSKU:   t.ProductSKU,
				TotalRevenue: decimal.Zero,
			}
			byProduct[t.ProductID] = sales
		}
		if t.Type == domain.TxTypeSell {
			sales.TotalQuantity += t.Quantity
			sales.TotalRevenue = sales.TotalRevenue.Add(sellRevenue(t, index))
		} else {
			sales.TotalQuantity -= t.Quantity
			sales.TotalRevenue = sales.TotalRevenue.Sub(returnValue(t, index))
		}
	}

	result := make([]domain.ProductSales, 0, len(byProduct))
	for _, sales := range byProduct {
		if sales.TotalRevenue.IsPositive() {
			result = append(result, *sales)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TotalRevenue.GreaterThan(result[j].TotalRevenue)
	})
	return result
}

// Conversion derives footfall-based stats for a period. Each sell transaction
// counts as one converted visitor; the rate is capped at 100% since repeat
// buyers can outnumber recorded visitors.
func Conversion(txs []domain.Transaction, products []domain.Product, footfall []domain.FootfallRecord, start, end time.Time) domain.ConversionStats {
	index := productIndex(products)

	stats := domain.ConversionStats{
		NetRevenue:    decimal.Zero,
		AvgPerVisitor: decimal.Zero,
	}

	for _, r := range footfall {
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		stats.TotalFootfall += r.Count
	}

	for _, t := range txs {
		if t.Timestamp.Before(start) || t.Timestamp.After(end) {
			continue
		}
		switch t.Type {
		case domain.TxTypeSell:
			stats.SaleCount++
			stats.NetRevenue = stats.NetRevenue.Add(sellRevenue(t, index))
		case domain.TxTypeReturn:
			stats.NetRevenue = stats.NetRevenue.Sub(returnValue(t, index))
		}
	}

	if stats.TotalFootfall > 0 {
		rate := float64(stats.SaleCount) / float64(stats.TotalFootfall) * 100
		if rate > 100 {
			rate = 100
		}
		stats.ConversionRate = rate
		stats.AvgPerVisitor = stats.NetRevenue.Div(decimal.NewFromInt(int64(stats.TotalFootfall))).Round(2)
	}

	return stats
}
