// Package memory is the in-memory Repository used for dev/demo mode and tests.
// All state lives behind one RWMutex, which also makes ApplyStockChange
// trivially atomic.
package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"glasstock/backend/internal/domain"
	"glasstock/backend/internal/store"
	"glasstock/backend/internal/xid"
)

type Store struct {
	mu           sync.RWMutex
	productsByID map[string]domain.Product
	transactions []domain.Transaction
	footfall     []domain.FootfallRecord
	usersByEmail map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		productsByID: make(map[string]domain.Product),
		transactions: make([]domain.Transaction, 0, 128),
		footfall:     make([]domain.FootfallRecord, 0, 64),
		usersByEmail: seedUsers(),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD. If unset,
// hardcoded dev defaults are used with a warning. These credentials are never
// used in production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		email    string
		password string
		role     string
	}{
		{"admin@glasstock.local", adminPwd, "admin"},
		{"staff@glasstock.local", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		users[u.email] = domain.UserAccount{
			Email:     u.email,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store preloaded with a small crystal glassware catalog.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	seed := []domain.Product{
		{Name: "Lismore Wine Glass", SKU: "LIS-WINE-01", MainCategory: "Collections", SubCategory: "Lismore", Category: "Stemware", TotalStock: 48, OnDisplay: 6, MinStockLevel: 12, RetailPrice: decimal.NewFromInt(95)},
		{Name: "Lismore Champagne Flute", SKU: "LIS-FLUTE-01", MainCategory: "Collections", SubCategory: "Lismore", Category: "Stemware", TotalStock: 36, OnDisplay: 4, MinStockLevel: 10, RetailPrice: decimal.NewFromInt(105)},
		{Name: "Lismore Tumbler", SKU: "LIS-TUMB-01", MainCategory: "Collections", SubCategory: "Lismore", Category: "Barware", TotalStock: 40, OnHold: 6, MinStockLevel: 10, RetailPrice: decimal.NewFromInt(85)},
		{Name: "Elegance Decanter", SKU: "ELG-DEC-01", MainCategory: "Collections", SubCategory: "Elegance", Category: "Barware", TotalStock: 12, OnDisplay: 2, MinStockLevel: 4, RetailPrice: decimal.NewFromInt(250)},
		{Name: "Marquis Vase 23cm", SKU: "MRQ-VASE-23", MainCategory: "Collections", SubCategory: "Marquis", Category: "Giftware", TotalStock: 18, MinStockLevel: 5, RetailPrice: decimal.NewFromInt(120)},
		{Name: "Crystal Bowl 20cm", SKU: "CLA-BOWL-20", MainCategory: "Classics", SubCategory: "Other", Category: "Giftware", TotalStock: 8, OnFault: 1, MinStockLevel: 3, RetailPrice: decimal.NewFromInt(160)},
	}
	for _, p := range seed {
		p.ID = xid.New("prod")
		p.CreatedAt = now
		p.UpdatedAt = now
		s.productsByID[p.ID] = p
	}

	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.productsByID {
		if strings.EqualFold(p.SKU, sku) {
			copyProduct := p
			return &copyProduct, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) FindByNameOrSKU(_ context.Context, name string, sku string, excludeID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Product, 0, 2)
	for _, p := range s.productsByID {
		if p.ID == excludeID {
			continue
		}
		if strings.EqualFold(p.Name, name) || strings.EqualFold(p.SKU, sku) {
			matches = append(matches, p)
		}
	}
	slices.SortFunc(matches, func(a, b domain.Product) int {
		return cmpString(a.ID, b.ID)
	})
	return matches, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.SKU == "" {
		return nil, store.ErrInvalidRecord
	}
	if _, exists := s.productsByID[product.ID]; exists {
		return nil, store.ErrConflict
	}

	s.productsByID[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.SKU == "" {
		return nil, store.ErrInvalidRecord
	}
	if _, exists := s.productsByID[product.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.productsByID[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productsByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.productsByID, id)
	return nil
}

func (s *Store) ApplyStockChange(_ context.Context, product domain.Product, tx domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productsByID[product.ID]; !exists {
		return store.ErrNotFound
	}
	if tx.ID == "" || tx.ProductID != product.ID {
		return store.ErrInvalidRecord
	}

	s.productsByID[product.ID] = product
	s.transactions = append(s.transactions, tx)
	return nil
}

func (s *Store) AppendTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" || tx.ProductID == "" {
		return nil, store.ErrInvalidRecord
	}
	s.transactions = append(s.transactions, tx)
	saved := tx
	return &saved, nil
}

func (s *Store) ListRecentTransactions(_ context.Context, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, len(s.transactions))
	copy(result, s.transactions)

	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if a.Timestamp.Equal(b.Timestamp) {
			return cmpString(b.ID, a.ID)
		}
		if a.Timestamp.After(b.Timestamp) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) DeleteTransactionsByType(_ context.Context, txType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]domain.Transaction, 0, len(s.transactions))
	deleted := 0
	for _, tx := range s.transactions {
		if tx.Type == txType {
			deleted++
			continue
		}
		kept = append(kept, tx)
	}
	s.transactions = kept
	return deleted, nil
}

func (s *Store) AppendFootfall(_ context.Context, record domain.FootfallRecord) (*domain.FootfallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" || record.Count < 1 {
		return nil, store.ErrInvalidRecord
	}
	s.footfall = append(s.footfall, record)
	saved := record
	return &saved, nil
}

func (s *Store) ListFootfall(_ context.Context, limit int) ([]domain.FootfallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.FootfallRecord, len(s.footfall))
	copy(result, s.footfall)

	slices.SortFunc(result, func(a, b domain.FootfallRecord) int {
		if a.Timestamp.Equal(b.Timestamp) {
			return cmpString(b.ID, a.ID)
		}
		if a.Timestamp.After(b.Timestamp) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if _, exists := s.usersByEmail[email]; exists {
		return store.ErrConflict
	}
	user.Email = email
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByEmail[user.Email] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByEmail))
	for _, user := range s.usersByEmail {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Email, b.Email)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, email string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}
	user, exists := s.usersByEmail[email]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByEmail[email] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
