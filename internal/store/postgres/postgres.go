package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"glasstock/backend/internal/domain"
	"glasstock/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, sku, main_category, sub_category, category,
	total_stock, on_hold, on_display, on_fault, min_stock_level, retail_price,
	created_at, updated_at`

func scanProduct(row interface{ Scan(dest ...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.MainCategory, &p.SubCategory, &p.Category,
		&p.TotalStock, &p.OnHold, &p.OnDisplay, &p.OnFault, &p.MinStockLevel, &p.RetailPrice,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE lower(sku) = lower($1)
	`, sku)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) FindByNameOrSKU(ctx context.Context, name string, sku string, excludeID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE (lower(name) = lower($1) OR lower(sku) = lower($2)) AND id <> $3
		ORDER BY id
	`, name, sku, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]domain.Product, 0, 2)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.SKU == "" {
		return nil, store.ErrInvalidRecord
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, product.ID, product.Name, product.SKU, product.MainCategory, product.SubCategory, product.Category,
		product.TotalStock, product.OnHold, product.OnDisplay, product.OnFault, product.MinStockLevel, product.RetailPrice,
		product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SKU == "" {
		return nil, store.ErrInvalidRecord
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, sku = $3, main_category = $4, sub_category = $5, category = $6,
			total_stock = $7, on_hold = $8, on_display = $9, on_fault = $10,
			min_stock_level = $11, retail_price = $12, updated_at = $13
		WHERE id = $1
	`, product.ID, product.Name, product.SKU, product.MainCategory, product.SubCategory, product.Category,
		product.TotalStock, product.OnHold, product.OnDisplay, product.OnFault,
		product.MinStockLevel, product.RetailPrice, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ApplyStockChange writes the product row and the transaction record in one
// SQL transaction so the ledger never diverges from the bucket state.
func (s *Store) ApplyStockChange(ctx context.Context, product domain.Product, tx domain.Transaction) error {
	if tx.ID == "" || tx.ProductID != product.ID {
		return store.ErrInvalidRecord
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		UPDATE products
		SET total_stock = $2, on_hold = $3, on_display = $4, on_fault = $5, updated_at = $6
		WHERE id = $1
	`, product.ID, product.TotalStock, product.OnHold, product.OnDisplay, product.OnFault, product.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	if err := insertTransaction(ctx, pgTx, tx); err != nil {
		return err
	}

	return pgTx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, db execer, tx domain.Transaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, product_id, product_name, product_sku, type, quantity,
			quantity_before, quantity_after, discount,
			original_price, final_price, return_value, notes, ts
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, tx.ID, tx.ProductID, tx.ProductName, tx.ProductSKU, tx.Type, tx.Quantity,
		nullInt(tx.QuantityBefore), nullInt(tx.QuantityAfter), tx.Discount,
		nullDecimal(tx.OriginalPrice), nullDecimal(tx.FinalPrice), nullDecimal(tx.ReturnValue),
		tx.Notes, tx.Timestamp)
	return err
}

func (s *Store) AppendTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" || tx.ProductID == "" {
		return nil, store.ErrInvalidRecord
	}
	if err := insertTransaction(ctx, s.db, tx); err != nil {
		return nil, err
	}
	saved := tx
	return &saved, nil
}

func (s *Store) ListRecentTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, product_sku, type, quantity,
			quantity_before, quantity_after, discount,
			original_price, final_price, return_value, notes, ts
		FROM transactions
		ORDER BY ts DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		var tx domain.Transaction
		var before, after sql.NullInt64
		var original, final, returned decimal.NullDecimal
		if err := rows.Scan(&tx.ID, &tx.ProductID, &tx.ProductName, &tx.ProductSKU, &tx.Type, &tx.Quantity,
			&before, &after, &tx.Discount, &original, &final, &returned, &tx.Notes, &tx.Timestamp); err != nil {
			return nil, err
		}
		tx.Timestamp = tx.Timestamp.UTC()
		tx.QuantityBefore = intPtr(before)
		tx.QuantityAfter = intPtr(after)
		tx.OriginalPrice = decimalPtr(original)
		tx.FinalPrice = decimalPtr(final)
		tx.ReturnValue = decimalPtr(returned)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) DeleteTransactionsByType(ctx context.Context, txType string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE type = $1`, txType)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) AppendFootfall(ctx context.Context, record domain.FootfallRecord) (*domain.FootfallRecord, error) {
	if record.ID == "" || record.Count < 1 {
		return nil, store.ErrInvalidRecord
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO footfall_records (id, record_date, record_hour, visitor_count, ts)
		VALUES ($1,$2,$3,$4,$5)
	`, record.ID, record.Date, record.Hour, record.Count, record.Timestamp)
	if err != nil {
		return nil, err
	}
	saved := record
	return &saved, nil
}

func (s *Store) ListFootfall(ctx context.Context, limit int) ([]domain.FootfallRecord, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_date, record_hour, visitor_count, ts
		FROM footfall_records
		ORDER BY ts DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.FootfallRecord, 0, limit)
	for rows.Next() {
		var r domain.FootfallRecord
		if err := rows.Scan(&r.ID, &r.Date, &r.Hour, &r.Count, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Timestamp = r.Timestamp.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Email == "" || user.Password == "" {
		return store.ErrInvalidRecord
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Email, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email, password, role, active, created_at
		FROM users
		ORDER BY email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Email, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, email string, password string) error {
	if email == "" || password == "" {
		return store.ErrInvalidRecord
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE email = $1
	`, email, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullInt(val *int) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}

func intPtr(val sql.NullInt64) *int {
	if !val.Valid {
		return nil
	}
	i := int(val.Int64)
	return &i
}

func decimalPtr(val decimal.NullDecimal) *decimal.Decimal {
	if !val.Valid {
		return nil
	}
	d := val.Decimal
	return &d
}
