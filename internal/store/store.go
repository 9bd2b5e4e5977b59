package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"teapos/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidSale   = errors.New("invalid sale")
	ErrTokenConflict = errors.New("token number already exists")
	ErrUnavailable   = errors.New("store unavailable")
)

// Repository is the durable storage contract for the sale ledger. CreateSale
// must persist the sale and apply the milk-counter increment as one unit: if
// the sale write fails no increment may remain, and concurrent increments to
// the same day's bucket must not lose updates.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CreateSale(ctx context.Context, sale domain.Sale, milkDate string, teaCups int64) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, limit int) ([]domain.Sale, error)
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	UpdateSalePayment(ctx context.Context, id string, method string, at time.Time) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) (*domain.Sale, error)

	UpsertMilkEntry(ctx context.Context, date string, morning decimal.Decimal, evening decimal.Decimal) (*domain.MilkUsageRecord, error)
	IncrementTeaCups(ctx context.Context, date string, delta int64) (*domain.MilkUsageRecord, error)
	ListMilkHistory(ctx context.Context, limit int) ([]domain.MilkUsageRecord, error)

	CreateAuditEntry(ctx context.Context, entry domain.AuditEntry) error
	ListAuditEntries(ctx context.Context, limit int) ([]domain.AuditEntry, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
}
