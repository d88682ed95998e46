package store

import (
	"context"
	"errors"

	"glasstock/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidRecord = errors.New("invalid record")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	// FindByNameOrSKU returns products whose name or SKU matches
	// case-insensitively, excluding excludeID. Used for duplicate detection.
	FindByNameOrSKU(ctx context.Context, name string, sku string, excludeID string) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// ApplyStockChange persists the updated product and appends the paired
	// transaction record in one atomic step.
	ApplyStockChange(ctx context.Context, product domain.Product, tx domain.Transaction) error
	AppendTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	ListRecentTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	DeleteTransactionsByType(ctx context.Context, txType string) (int, error)

	AppendFootfall(ctx context.Context, record domain.FootfallRecord) (*domain.FootfallRecord, error)
	ListFootfall(ctx context.Context, limit int) ([]domain.FootfallRecord, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, email string, password string) error
}
