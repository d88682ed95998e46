package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"glasstock/backend/internal/domain"
)

func testProduct(id string, price int64) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        "Lismore Wine Glass",
		SKU:         "LIS-WINE-01",
		TotalStock:  20,
		RetailPrice: decimal.NewFromInt(price),
	}
}

func day(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNewSellRecordPricing(t *testing.T) {
	p := testProduct("prod-1", 100)
	at := day("2026-08-01")

	tx := NewSellRecord(p, 3, domain.SellBreakdown{FromFree: 3}, 10, "", at)

	if tx.Type != domain.TxTypeSell {
		t.Fatalf("unexpected type %s", tx.Type)
	}
	if tx.OriginalPrice == nil || !tx.OriginalPrice.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected original 300, got %v", tx.OriginalPrice)
	}
	if tx.FinalPrice == nil || !tx.FinalPrice.Equal(decimal.NewFromInt(270)) {
		t.Fatalf("expected final 270 after 10%% discount, got %v", tx.FinalPrice)
	}
	if tx.QuantityBefore == nil || *tx.QuantityBefore != 20 {
		t.Fatalf("expected quantity before 20")
	}
	if tx.QuantityAfter == nil || *tx.QuantityAfter != 17 {
		t.Fatalf("expected quantity after 17")
	}
	if !strings.Contains(tx.Notes, "Discount: 10%") {
		t.Fatalf("expected discount note, got %q", tx.Notes)
	}
}

func TestSellNotesDescribeBreakdown(t *testing.T) {
	if got := sellNotes(domain.SellBreakdown{FromHold: 2, FromDisplay: 1}, 0); got != "Reduced Hold by 2, Display by 1" {
		t.Fatalf("unexpected notes %q", got)
	}
	if got := sellNotes(domain.SellBreakdown{FromFree: 1, FromHold: 2, FromDisplay: 1}, 0); got != "From: Free=1, Hold=2, Display=1" {
		t.Fatalf("unexpected notes %q", got)
	}
	if got := sellNotes(domain.SellBreakdown{FromFree: 3}, 0); got != "" {
		t.Fatalf("free-only sale should have no auto note, got %q", got)
	}
}

func TestNewManageRecordNotes(t *testing.T) {
	p := testProduct("prod-1", 100)
	p.OnHold, p.OnDisplay, p.OnFault = 1, 2, 3

	tx := NewManageRecord(p, 4, 5, 6, day("2026-08-01"))
	want := "Hold: 1 → 4, Display: 2 → 5, Fault: 3 → 6"
	if tx.Notes != want {
		t.Fatalf("notes %q, want %q", tx.Notes, want)
	}
	if tx.Quantity != 0 {
		t.Fatalf("manage records carry quantity 0")
	}
}

func TestRevenueSeriesZeroFillsAndSubtractsReturns(t *testing.T) {
	p := testProduct("prod-1", 100)
	final := decimal.NewFromInt(200)
	returned := decimal.NewFromInt(100)

	txs := []domain.Transaction{
		{ProductID: "prod-1", Type: domain.TxTypeSell, Quantity: 2, FinalPrice: &final, Timestamp: day("2026-08-01").Add(10 * time.Hour)},
		{ProductID: "prod-1", Type: domain.TxTypeReturn, Quantity: 1, ReturnValue: &returned, Timestamp: day("2026-08-03").Add(12 * time.Hour)},
		{ProductID: "prod-1", Type: domain.TxTypeReceive, Quantity: 50, Timestamp: day("2026-08-02")},
	}

	series := RevenueSeries(txs, []domain.Product{p}, day("2026-08-01"), day("2026-08-03").Add(23*time.Hour))

	if len(series) != 3 {
		t.Fatalf("expected 3 days, got %d", len(series))
	}
	if series[0].Date != "2026-08-01" || series[1].Date != "2026-08-02" || series[2].Date != "2026-08-03" {
		t.Fatalf("series out of order: %+v", series)
	}
	if !series[0].Revenue.Equal(decimal.NewFromInt(200)) || series[0].Quantity != 2 {
		t.Fatalf("day 1 wrong: %+v", series[0])
	}
	if !series[1].Revenue.IsZero() || series[1].Quantity != 0 {
		t.Fatalf("day 2 should be zero-filled and ignore receives: %+v", series[1])
	}
	if !series[2].Revenue.Equal(decimal.NewFromInt(-100)) || series[2].Quantity != -1 {
		t.Fatalf("day 3 should subtract the return: %+v", series[2])
	}
}

func TestRevenueFallsBackToCurrentRetailPrice(t *testing.T) {
	p := testProduct("prod-1", 150)

	txs := []domain.Transaction{
		// Legacy record without a final price.
		{ProductID: "prod-1", Type: domain.TxTypeSell, Quantity: 2, Timestamp: day("2026-08-01").Add(time.Hour)},
	}

	series := RevenueSeries(txs, []domain.Product{p}, day("2026-08-01"), day("2026-08-01").Add(23*time.Hour))
	if len(series) != 1 {
		t.Fatalf("expected 1 day, got %d", len(series))
	}
	if !series[0].Revenue.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected fallback revenue 300, got %v", series[0].Revenue)
	}
}

func TestTopSellingProductsFilterAndOrder(t *testing.T) {
	products := []domain.Product{testProduct("prod-1", 100), testProduct("prod-2", 50)}
	sellBig := decimal.NewFromInt(500)
	sellSmall := decimal.NewFromInt(100)
	refund := decimal.NewFromInt(150)

	txs := []domain.Transaction{
		{ProductID: "prod-2", ProductName: "B", Type: domain.TxTypeSell, Quantity: 2, FinalPrice: &sellSmall, Timestamp: day("2026-08-01")},
		{ProductID: "prod-1", ProductName: "A", Type: domain.TxTypeSell, Quantity: 5, FinalPrice: &sellBig, Timestamp: day("2026-08-01")},
		// prod-3 nets negative revenue and must be filtered out.
		{ProductID: "prod-3", ProductName: "C", Type: domain.TxTypeReturn, Quantity: 1, ReturnValue: &refund, Timestamp: day("2026-08-02")},
	}

	top := TopSellingProducts(txs, products)
	if len(top) != 2 {
		t.Fatalf("expected 2 products, got %d", len(top))
	}
	if top[0].ProductID != "prod-1" || top[1].ProductID != "prod-2" {
		t.Fatalf("wrong order: %+v", top)
	}
	if top[0].TotalQuantity != 5 {
		t.Fatalf("expected quantity 5, got %d", top[0].TotalQuantity)
	}
}

func TestConversionCapsRateAt100(t *testing.T) {
	p := testProduct("prod-1", 10)
	final := decimal.NewFromInt(10)

	footfall := []domain.FootfallRecord{
		{ID: "ff-1", Count: 2, Timestamp: day("2026-08-01").Add(time.Hour)},
	}
	txs := make([]domain.Transaction, 0, 5)
	for i := 0; i < 5; i++ {
		txs = append(txs, domain.Transaction{
			ProductID: "prod-1", Type: domain.TxTypeSell, Quantity: 1, FinalPrice: &final,
			Timestamp: day("2026-08-01").Add(time.Duration(i+1) * time.Hour),
		})
	}

	stats := Conversion(txs, []domain.Product{p}, footfall, day("2026-08-01"), day("2026-08-02"))
	if stats.TotalFootfall != 2 || stats.SaleCount != 5 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.ConversionRate != 100 {
		t.Fatalf("expected capped rate 100, got %v", stats.ConversionRate)
	}
	if !stats.NetRevenue.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected net revenue 50, got %v", stats.NetRevenue)
	}
	if !stats.AvgPerVisitor.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected avg per visitor 25, got %v", stats.AvgPerVisitor)
	}
}

func TestConversionZeroFootfall(t *testing.T) {
	stats := Conversion(nil, nil, nil, day("2026-08-01"), day("2026-08-02"))
	if stats.ConversionRate != 0 {
		t.Fatalf("expected rate 0 with no footfall, got %v", stats.ConversionRate)
	}
	if !stats.AvgPerVisitor.IsZero() {
		t.Fatalf("expected avg 0 with no footfall")
	}
}
