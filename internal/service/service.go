package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"glasstock/backend/internal/cache"
	"glasstock/backend/internal/domain"
	"glasstock/backend/internal/ledger"
	"glasstock/backend/internal/stock"
	"glasstock/backend/internal/store"
	"glasstock/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var ErrMissingRequiredField = errors.New("product name and SKU are required")

// DuplicateError reports which field collided and with which existing product,
// so the caller can render a precise message.
type DuplicateError struct {
	Field    string
	Existing domain.Product
}

func (e *DuplicateError) Error() string {
	if e.Field == "sku" {
		return fmt.Sprintf("a product with article number %q already exists: %s", e.Existing.SKU, e.Existing.Name)
	}
	return fmt.Sprintf("a product with name %q already exists (article no: %s)", e.Existing.Name, e.Existing.SKU)
}

type Service struct {
	repo     store.Repository
	stats    cache.StatsCache
	statsTTL time.Duration
}

func New(repo store.Repository, stats cache.StatsCache, statsTTL time.Duration) *Service {
	if stats == nil {
		stats = cache.NoopStatsCache{}
	}
	if statsTTL <= 0 {
		statsTTL = 30 * time.Second
	}

	return &Service{
		repo:     repo,
		stats:    stats,
		statsTTL: statsTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) GetProductBySKU(ctx context.Context, sku string) (domain.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return domain.Product{}, ErrMissingRequiredField
	}
	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// checkDuplicate matches name and SKU case-insensitively against all other
// products. SKU collisions win over name collisions, mirroring the order the
// concession staff see errors in.
func (s *Service) checkDuplicate(ctx context.Context, name string, sku string, excludeID string) error {
	matches, err := s.repo.FindByNameOrSKU(ctx, name, sku, excludeID)
	if err != nil {
		return err
	}
	for _, match := range matches {
		if strings.EqualFold(match.SKU, sku) {
			return &DuplicateError{Field: "sku", Existing: match}
		}
	}
	for _, match := range matches {
		if strings.EqualFold(match.Name, name) {
			return &DuplicateError{Field: "name", Existing: match}
		}
	}
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.TrimSpace(req.SKU)
	if req.Name == "" || req.SKU == "" {
		return domain.Product{}, ErrMissingRequiredField
	}
	if req.TotalStock < 0 || req.MinStockLevel < 0 || req.RetailPrice.IsNegative() {
		return domain.Product{}, store.ErrInvalidRecord
	}

	if err := s.checkDuplicate(ctx, req.Name, req.SKU, ""); err != nil {
		return domain.Product{}, err
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:            xid.New("prod"),
		Name:          req.Name,
		SKU:           req.SKU,
		MainCategory:  defaultString(req.MainCategory, "Collections"),
		SubCategory:   defaultString(req.SubCategory, "Other"),
		Category:      defaultString(req.Category, "Stemware"),
		TotalStock:    req.TotalStock,
		MinStockLevel: req.MinStockLevel,
		RetailPrice:   req.RetailPrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.SKU != nil {
		updated.SKU = strings.TrimSpace(*req.SKU)
	}
	if updated.Name == "" || updated.SKU == "" {
		return domain.Product{}, ErrMissingRequiredField
	}
	if req.MainCategory != nil {
		updated.MainCategory = strings.TrimSpace(*req.MainCategory)
	}
	if req.SubCategory != nil {
		updated.SubCategory = strings.TrimSpace(*req.SubCategory)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.TotalStock != nil {
		if err := stock.ValidateEditTotal(*existing, *req.TotalStock); err != nil {
			return domain.Product{}, err
		}
		updated.TotalStock = *req.TotalStock
	}
	if req.MinStockLevel != nil {
		if *req.MinStockLevel < 0 {
			return domain.Product{}, store.ErrInvalidRecord
		}
		updated.MinStockLevel = *req.MinStockLevel
	}
	if req.RetailPrice != nil {
		if req.RetailPrice.IsNegative() {
			return domain.Product{}, store.ErrInvalidRecord
		}
		updated.RetailPrice = *req.RetailPrice
	}

	if err := s.checkDuplicate(ctx, updated.Name, updated.SKU, updated.ID); err != nil {
		return domain.Product{}, err
	}

	updated.UpdatedAt = time.Now().UTC()
	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	return s.repo.DeleteProduct(ctx, id)
}

// resolveTimestamp returns the caller-supplied historical timestamp when one
// is given, rejecting future times; otherwise the server's current UTC time.
func resolveTimestamp(at *time.Time) (time.Time, error) {
	now := time.Now().UTC()
	if at == nil {
		return now, nil
	}
	ts := at.UTC()
	if ts.After(now) {
		return time.Time{}, stock.ErrFutureTimestamp
	}
	return ts, nil
}

func validateDiscount(discount float64) error {
	if discount < 0 || discount > 100 {
		return fmt.Errorf("discount must be between 0 and 100")
	}
	return nil
}

func (s *Service) Receive(ctx context.Context, productID string, req domain.StockRequest) (domain.StockResult, error) {
	if req.Quantity <= 0 {
		return domain.StockResult{}, stock.ErrInvalidQuantity
	}
	at, err := resolveTimestamp(req.At)
	if err != nil {
		return domain.StockResult{}, err
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.StockResult{}, err
	}

	tx := ledger.NewReceiveRecord(*product, req.Quantity, req.Notes, at)
	updated := *product
	updated.TotalStock += req.Quantity
	updated.UpdatedAt = time.Now().UTC()

	if err := s.repo.ApplyStockChange(ctx, updated, tx); err != nil {
		return domain.StockResult{}, err
	}
	return domain.StockResult{Product: updated, Transaction: tx}, nil
}

func (s *Service) Return(ctx context.Context, productID string, req domain.StockRequest) (domain.StockResult, error) {
	if req.Quantity <= 0 {
		return domain.StockResult{}, stock.ErrInvalidQuantity
	}
	at, err := resolveTimestamp(req.At)
	if err != nil {
		return domain.StockResult{}, err
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.StockResult{}, err
	}

	tx := ledger.NewReturnRecord(*product, req.Quantity, req.Notes, at)
	updated := *product
	updated.TotalStock += req.Quantity
	updated.UpdatedAt = time.Now().UTC()

	if err := s.repo.ApplyStockChange(ctx, updated, tx); err != nil {
		return domain.StockResult{}, err
	}
	return domain.StockResult{Product: updated, Transaction: tx}, nil
}

// Exchange records the swap without touching totals or buckets; the same
// physical unit goes back on the shelf.
func (s *Service) Exchange(ctx context.Context, productID string, req domain.StockRequest) (domain.StockResult, error) {
	if req.Quantity <= 0 {
		return domain.StockResult{}, stock.ErrInvalidQuantity
	}
	at, err := resolveTimestamp(req.At)
	if err != nil {
		return domain.StockResult{}, err
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.StockResult{}, err
	}

	tx := ledger.NewExchangeRecord(*product, req.Quantity, req.Notes, at)
	saved, err := s.repo.AppendTransaction(ctx, tx)
	if err != nil {
		return domain.StockResult{}, err
	}
	return domain.StockResult{Product: *product, Transaction: *saved}, nil
}

// Sell validates the sale and either commits it in one step (at most one
// bucket holds stock) or returns a pending proposal that the caller must
// confirm through ConfirmSell. Nothing is persisted for a pending proposal,
// so cancelling is a client-side no-op.
func (s *Service) Sell(ctx context.Context, productID string, req domain.StockRequest) (domain.SellResult, error) {
	if err := validateDiscount(req.Discount); err != nil {
		return domain.SellResult{}, err
	}
	at, err := resolveTimestamp(req.At)
	if err != nil {
		return domain.SellResult{}, err
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.SellResult{}, err
	}

	plan, err := stock.PlanSell(*product, req.Quantity)
	if err != nil {
		return domain.SellResult{}, err
	}

	if plan.Pending {
		return domain.SellResult{
			State: domain.SellStatePendingBreakdown,
			Proposal: &domain.SellProposal{
				ProductID: product.ID,
				Quantity:  req.Quantity,
				Discount:  req.Discount,
				Breakdown: plan.Breakdown,
				State:     domain.SellStatePendingBreakdown,
			},
		}, nil
	}

	return s.commitSell(ctx, *product, req.Quantity, plan.Breakdown, req.Discount, req.Notes, at)
}

// ConfirmSell commits a multi-source sale with a caller-adjusted breakdown.
// The breakdown is validated again against the product's current buckets.
func (s *Service) ConfirmSell(ctx context.Context, productID string, req domain.SellConfirmRequest) (domain.SellResult, error) {
	if err := validateDiscount(req.Discount); err != nil {
		return domain.SellResult{}, err
	}
	at, err := resolveTimestamp(req.At)
	if err != nil {
		return domain.SellResult{}, err
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.SellResult{}, err
	}

	if err := stock.ValidateBreakdown(*product, req.Quantity, req.Breakdown); err != nil {
		return domain.SellResult{}, err
	}

	return s.commitSell(ctx, *product, req.Quantity, req.Breakdown, req.Discount, req.Notes, at)
}

func (s *Service) commitSell(ctx context.Context, product domain.Product, qty int, b domain.SellBreakdown, discount float64, notes string, at time.Time) (domain.SellResult, error) {
	tx := ledger.NewSellRecord(product, qty, b, discount, notes, at)
	updated := stock.ApplySell(product, qty, b)
	updated.UpdatedAt = time.Now().UTC()

	if err := s.repo.ApplyStockChange(ctx, updated, tx); err != nil {
		return domain.SellResult{}, err
	}
	return domain.SellResult{
		Product:     &updated,
		Transaction: &tx,
		State:       domain.SellStateCommitted,
	}, nil
}

// ManageAllocation reconciles the Hold/Display/Fault buckets. When Hold and
// Display together exceed total stock the caller gets the conflict with two
// candidate resolutions back and nothing is applied until one is chosen.
func (s *Service) ManageAllocation(ctx context.Context, productID string, req domain.AllocationRequest) (domain.AllocationResult, error) {
	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.AllocationResult{}, err
	}

	switch req.Resolution {
	case "", domain.ResolutionKeepDisplay, domain.ResolutionKeepHold:
	default:
		return domain.AllocationResult{}, fmt.Errorf("unknown resolution %q", req.Resolution)
	}

	newHold, newDisplay, newFault := req.NewHold, req.NewDisplay, req.NewFault

	conflict, err := stock.PlanAllocation(*product, newHold, newDisplay, newFault)
	if err != nil {
		return domain.AllocationResult{}, err
	}
	if conflict != nil {
		switch req.Resolution {
		case domain.ResolutionKeepDisplay:
			newHold = 0
		case domain.ResolutionKeepHold:
			newDisplay = 0
		default:
			return domain.AllocationResult{Conflict: conflict}, nil
		}
	}

	tx := ledger.NewManageRecord(*product, newHold, newDisplay, newFault, time.Now().UTC())
	updated := stock.ApplyAllocation(*product, newHold, newDisplay, newFault)
	updated.UpdatedAt = time.Now().UTC()

	if err := s.repo.ApplyStockChange(ctx, updated, tx); err != nil {
		return domain.AllocationResult{}, err
	}
	return domain.AllocationResult{Product: &updated, Transaction: &tx}, nil
}

func (s *Service) RecordFootfall(ctx context.Context, req domain.FootfallRequest) (domain.FootfallRecord, error) {
	if req.Count <= 0 {
		return domain.FootfallRecord{}, stock.ErrInvalidQuantity
	}

	now := time.Now().UTC()
	record := domain.FootfallRecord{
		ID:        xid.New("ff"),
		Date:      now.Format("2006-01-02"),
		Hour:      now.Hour(),
		Count:     req.Count,
		Timestamp: now,
	}

	saved, err := s.repo.AppendFootfall(ctx, record)
	if err != nil {
		return domain.FootfallRecord{}, err
	}
	return *saved, nil
}

func (s *Service) ListFootfall(ctx context.Context, limit int) ([]domain.FootfallRecord, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListFootfall(ctx, limit)
}

func (s *Service) RecentTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListRecentTransactions(ctx, limit)
}

// ClearSellHistory bulk-deletes sell records only. Receive, return, exchange
// and manage records are kept. Irreversible; the API layer demands an explicit
// confirmation flag before calling this.
func (s *Service) ClearSellHistory(ctx context.Context) (domain.ClearHistoryResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.ClearHistoryResponse{}, fmt.Errorf("admin role required")
	}

	deleted, err := s.repo.DeleteTransactionsByType(ctx, domain.TxTypeSell)
	if err != nil {
		return domain.ClearHistoryResponse{}, err
	}
	log.Printf("[service] cleared %d sell records (by %s)", deleted, actor.Email)
	return domain.ClearHistoryResponse{Deleted: deleted}, nil
}

func (s *Service) Dashboard(ctx context.Context) (domain.DashboardStats, error) {
	if cached, ok, err := s.stats.Get(ctx, "dashboard"); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: stats cache read failed: %v", err)
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	stats := domain.DashboardStats{TotalValue: decimal.Zero}
	for _, p := range products {
		stats.TotalProducts++
		stats.TotalStockCount += p.TotalStock
		avail := stock.Available(p)
		if avail == 0 {
			stats.OutOfStock++
		} else if avail <= p.MinStockLevel {
			stats.LowStock++
		}
		stats.TotalValue = stats.TotalValue.Add(p.RetailPrice.Mul(decimal.NewFromInt(int64(p.TotalStock))))
	}

	if err := s.stats.Set(ctx, "dashboard", &stats, s.statsTTL); err != nil {
		log.Printf("[service] WARN: stats cache write failed: %v", err)
	}
	return stats, nil
}

func (s *Service) RevenueSeries(ctx context.Context, start, end time.Time) ([]domain.DailyRevenue, error) {
	txs, products, err := s.loadAnalyticsInputs(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.RevenueSeries(txs, products, start, end), nil
}

func (s *Service) TopSelling(ctx context.Context) ([]domain.ProductSales, error) {
	txs, products, err := s.loadAnalyticsInputs(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.TopSellingProducts(txs, products), nil
}

func (s *Service) Conversion(ctx context.Context, start, end time.Time) (domain.ConversionStats, error) {
	txs, products, err := s.loadAnalyticsInputs(ctx)
	if err != nil {
		return domain.ConversionStats{}, err
	}
	footfall, err := s.repo.ListFootfall(ctx, 1000)
	if err != nil {
		return domain.ConversionStats{}, err
	}
	return ledger.Conversion(txs, products, footfall, start, end), nil
}

func (s *Service) loadAnalyticsInputs(ctx context.Context) ([]domain.Transaction, []domain.Product, error) {
	txs, err := s.repo.ListRecentTransactions(ctx, 5000)
	if err != nil {
		return nil, nil, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, nil, err
	}
	return txs, products, nil
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
