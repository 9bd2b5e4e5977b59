// Package postgres implements the ledger repository on PostgreSQL via pgx's
// database/sql driver. Sale creation and the milk-counter increment run in
// one serializable transaction.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"teapos/backend/internal/domain"
	"teapos/backend/internal/store"
	"teapos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			cost_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			selling_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			has_milk BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			token_number TEXT NOT NULL UNIQUE,
			total_amount NUMERIC(12,2) NOT NULL,
			payment_method TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
			line_no INT NOT NULL,
			product_id TEXT NOT NULL,
			product_name TEXT NOT NULL,
			quantity INT NOT NULL,
			unit_price NUMERIC(12,2) NOT NULL,
			total NUMERIC(12,2) NOT NULL,
			PRIMARY KEY (sale_id, line_no)
		)`,
		`CREATE TABLE IF NOT EXISTS milk_usage (
			date TEXT PRIMARY KEY,
			morning_milk NUMERIC(8,2) NOT NULL DEFAULT 0,
			evening_milk NUMERIC(8,2) NOT NULL DEFAULT 0,
			tea_cups_sold BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_entries (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			collection_name TEXT NOT NULL,
			target_id TEXT NOT NULL,
			old_value JSONB,
			new_value JSONB,
			performed_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_entries (created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, cost_price, selling_price, has_milk, created_at, updated_at
		FROM products
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.CostPrice, &p.SellingPrice, &p.HasMilk, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidSale
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, cost_price, selling_price, has_milk, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		product.ID, product.Name, product.Category, product.CostPrice, product.SellingPrice, product.HasMilk, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidSale
		}
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return &product, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, cost_price, selling_price, has_milk, created_at, updated_at
		FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Category, &p.CostPrice, &p.SellingPrice, &p.HasMilk, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, cost_price, selling_price, has_milk, created_at, updated_at
		FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	result := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.CostPrice, &p.SellingPrice, &p.HasMilk, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidSale
	}
	product.UpdatedAt = time.Now().UTC()

	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, cost_price = $4, selling_price = $5, has_milk = $6, updated_at = $7
		WHERE id = $1
		RETURNING created_at`,
		product.ID, product.Name, product.Category, product.CostPrice, product.SellingPrice, product.HasMilk, product.UpdatedAt).
		Scan(&product.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return &product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, milkDate string, teaCups int64) (*domain.Sale, error) {
	if sale.TokenNumber == "" || !domain.IsSupportedPaymentMethod(sale.PaymentMethod) {
		return nil, store.ErrInvalidSale
	}
	if teaCups < 0 {
		return nil, store.ErrInvalidSale
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.UpdatedAt = sale.CreatedAt

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, token_number, total_amount, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sale.ID, sale.TokenNumber, sale.TotalAmount, sale.PaymentMethod, sale.CreatedAt, sale.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrTokenConflict
		}
		return nil, fmt.Errorf("insert sale: %w", err)
	}

	for i, line := range sale.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, line_no, product_id, product_name, quantity, unit_price, total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sale.ID, i, line.ProductID, line.ProductName, line.Quantity, line.UnitPrice, line.Total)
		if err != nil {
			return nil, fmt.Errorf("insert sale item: %w", err)
		}
	}

	if teaCups > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO milk_usage (date, morning_milk, evening_milk, tea_cups_sold, updated_at)
			VALUES ($1, 0, 0, $2, $3)
			ON CONFLICT (date) DO UPDATE
			SET tea_cups_sold = milk_usage.tea_cups_sold + EXCLUDED.tea_cups_sold,
			    updated_at = EXCLUDED.updated_at`,
			milkDate, teaCups, time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("increment tea cups: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit sale: %w", err)
	}
	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, token_number, total_amount, payment_method, created_at, updated_at
		FROM sales WHERE id = $1`, id).
		Scan(&sale.ID, &sale.TokenNumber, &sale.TotalAmount, &sale.PaymentMethod, &sale.CreatedAt, &sale.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	if err := s.attachItems(ctx, []*domain.Sale{&sale}); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	return s.querySales(ctx, `
		SELECT id, token_number, total_amount, payment_method, created_at, updated_at
		FROM sales ORDER BY created_at DESC, token_number DESC LIMIT $1`, limit)
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	return s.querySales(ctx, `
		SELECT id, token_number, total_amount, payment_method, created_at, updated_at
		FROM sales WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC, token_number ASC`, from, to)
}

func (s *Store) querySales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	var sales []domain.Sale
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.TokenNumber, &sale.TotalAmount, &sale.PaymentMethod, &sale.CreatedAt, &sale.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	refs := make([]*domain.Sale, len(sales))
	for i := range sales {
		refs[i] = &sales[i]
	}
	if err := s.attachItems(ctx, refs); err != nil {
		return nil, err
	}
	return sales, nil
}

// attachItems loads lines for the given sales in one query.
func (s *Store) attachItems(ctx context.Context, sales []*domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, len(sales))
	byID := make(map[string]*domain.Sale, len(sales))
	for i, sale := range sales {
		ids[i] = sale.ID
		byID[sale.ID] = sale
		sale.Items = []domain.SaleLine{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, product_name, quantity, unit_price, total
		FROM sale_items WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no`, ids)
	if err != nil {
		return fmt.Errorf("list sale items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var saleID string
		var line domain.SaleLine
		if err := rows.Scan(&saleID, &line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice, &line.Total); err != nil {
			return fmt.Errorf("scan sale item: %w", err)
		}
		if sale, ok := byID[saleID]; ok {
			sale.Items = append(sale.Items, line)
		}
	}
	return rows.Err()
}

func (s *Store) UpdateSalePayment(ctx context.Context, id string, method string, at time.Time) (*domain.Sale, error) {
	if !domain.IsSupportedPaymentMethod(method) {
		return nil, store.ErrInvalidSale
	}

	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		UPDATE sales SET payment_method = $2, updated_at = $3
		WHERE id = $1
		RETURNING id, token_number, total_amount, payment_method, created_at, updated_at`,
		id, method, at).
		Scan(&sale.ID, &sale.TokenNumber, &sale.TotalAmount, &sale.PaymentMethod, &sale.CreatedAt, &sale.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update sale payment: %w", err)
	}
	if err := s.attachItems(ctx, []*domain.Sale{&sale}); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := s.GetSaleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("delete sale: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("delete sale: %w", err)
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return sale, nil
}

func (s *Store) UpsertMilkEntry(ctx context.Context, date string, morning decimal.Decimal, evening decimal.Decimal) (*domain.MilkUsageRecord, error) {
	if date == "" || morning.IsNegative() || evening.IsNegative() {
		return nil, store.ErrInvalidSale
	}

	var record domain.MilkUsageRecord
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO milk_usage (date, morning_milk, evening_milk, tea_cups_sold, updated_at)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (date) DO UPDATE
		SET morning_milk = EXCLUDED.morning_milk,
		    evening_milk = EXCLUDED.evening_milk,
		    updated_at = EXCLUDED.updated_at
		RETURNING date, morning_milk, evening_milk, tea_cups_sold, updated_at`,
		date, morning, evening, time.Now().UTC()).
		Scan(&record.Date, &record.MorningMilk, &record.EveningMilk, &record.TeaCupsSold, &record.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert milk entry: %w", err)
	}
	return &record, nil
}

func (s *Store) IncrementTeaCups(ctx context.Context, date string, delta int64) (*domain.MilkUsageRecord, error) {
	if date == "" || delta < 1 {
		return nil, store.ErrInvalidSale
	}

	var record domain.MilkUsageRecord
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO milk_usage (date, morning_milk, evening_milk, tea_cups_sold, updated_at)
		VALUES ($1, 0, 0, $2, $3)
		ON CONFLICT (date) DO UPDATE
		SET tea_cups_sold = milk_usage.tea_cups_sold + EXCLUDED.tea_cups_sold,
		    updated_at = EXCLUDED.updated_at
		RETURNING date, morning_milk, evening_milk, tea_cups_sold, updated_at`,
		date, delta, time.Now().UTC()).
		Scan(&record.Date, &record.MorningMilk, &record.EveningMilk, &record.TeaCupsSold, &record.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("increment tea cups: %w", err)
	}
	return &record, nil
}

func (s *Store) ListMilkHistory(ctx context.Context, limit int) ([]domain.MilkUsageRecord, error) {
	if limit < 1 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, morning_milk, evening_milk, tea_cups_sold, updated_at
		FROM milk_usage ORDER BY date DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list milk history: %w", err)
	}
	defer rows.Close()

	var records []domain.MilkUsageRecord
	for rows.Next() {
		var record domain.MilkUsageRecord
		if err := rows.Scan(&record.Date, &record.MorningMilk, &record.EveningMilk, &record.TeaCupsSold, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan milk record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Store) CreateAuditEntry(ctx context.Context, entry domain.AuditEntry) error {
	if entry.Action == "" || entry.TargetID == "" {
		return store.ErrInvalidSale
	}
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, action, collection_name, target_id, old_value, new_value, performed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.Action, entry.Collection, entry.TargetID,
		nullableJSON(entry.OldValue), nullableJSON(entry.NewValue), entry.PerformedBy, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListAuditEntries(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, collection_name, target_id, old_value, new_value, performed_by, created_at
		FROM audit_entries ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var oldValue, newValue sql.NullString
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.Collection, &entry.TargetID, &oldValue, &newValue, &entry.PerformedBy, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if oldValue.Valid {
			entry.OldValue = json.RawMessage(oldValue.String)
		}
		if newValue.Valid {
			entry.NewValue = json.RawMessage(newValue.String)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidSale
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, created_at)
		VALUES ($1, $2, $3)`,
		user.Username, user.Password, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidSale
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, created_at FROM users WHERE username = $1`, username).
		Scan(&user.Username, &user.Password, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
