// Package service implements the ledger's business rules on top of the
// repository: sale processing with token allocation and milk accounting,
// audited mutations, milk entry, and the catalog.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"teapos/backend/internal/cache"
	"teapos/backend/internal/domain"
	"teapos/backend/internal/store"
	"teapos/backend/internal/token"
)

const (
	maxTokenAttempts = 3
	dateLayout       = "2006-01-02"
)

type actorContextKey struct{}

// WithActor attaches the authenticated operator to the context. Audit entries
// record this identity.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo        store.Repository
	tokens      *token.Allocator
	snapshots   cache.SnapshotCache
	snapshotTTL time.Duration
	opTimeout   time.Duration
}

func New(repo store.Repository, tokens *token.Allocator, snapshots cache.SnapshotCache, snapshotTTL, opTimeout time.Duration) *Service {
	if snapshots == nil {
		snapshots = cache.NewNoop()
	}
	if snapshotTTL <= 0 {
		snapshotTTL = 30 * time.Second
	}
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &Service{
		repo:        repo,
		tokens:      tokens,
		snapshots:   snapshots,
		snapshotTTL: snapshotTTL,
		opTimeout:   opTimeout,
	}
}

// ProcessSale validates the cart, snapshots catalog prices into sale lines,
// allocates a token number and persists the sale together with the day's
// tea-cup increment. Unknown product ids are skipped rather than rejected;
// the sale completes with whatever lines resolved.
func (s *Service) ProcessSale(ctx context.Context, req domain.SaleCreateRequest) (*domain.Sale, error) {
	if !domain.IsSupportedPaymentMethod(req.PaymentMethod) {
		return nil, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidSale, req.PaymentMethod)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: empty cart", store.ErrInvalidSale)
	}
	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidSale)
		}
		ids = append(ids, item.ProductID)
	}

	products, err := s.getProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sale := domain.Sale{
		Items:         make([]domain.SaleLine, 0, len(req.Items)),
		PaymentMethod: req.PaymentMethod,
		CreatedAt:     now.UTC(),
	}
	var teaCups int64
	for _, item := range req.Items {
		product, ok := products[item.ProductID]
		if !ok {
			log.Printf("[service] WARN: sale references unknown product %s, skipping line", item.ProductID)
			continue
		}
		qty := int64(item.Quantity)
		lineTotal := product.SellingPrice.Mul(decimal.NewFromInt(qty))
		sale.Items = append(sale.Items, domain.SaleLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.SellingPrice,
			Total:       lineTotal,
		})
		sale.TotalAmount = sale.TotalAmount.Add(lineTotal)
		if product.HasMilk {
			teaCups += qty
		}
	}

	milkDate := now.Format(dateLayout)

	var created *domain.Sale
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		sale.TokenNumber = s.tokens.Next()
		created, err = s.createSale(ctx, sale, milkDate, teaCups)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrTokenConflict) {
			return nil, err
		}
	}
	if err != nil {
		return nil, fmt.Errorf("allocate token: %w", err)
	}

	s.bumpSnapshots(ctx)
	return created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	sale, err := s.repo.GetSaleByID(ctx, id)
	return sale, s.translate(err)
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 || limit > 100 {
		limit = 100
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	sales, err := s.repo.ListSales(ctx, limit)
	return sales, s.translate(err)
}

// UpdateSalePayment switches the recorded payment method and writes an
// UPDATE audit entry carrying both the old and the new value.
func (s *Service) UpdateSalePayment(ctx context.Context, id string, req domain.SalePaymentUpdateRequest) (*domain.Sale, error) {
	if !domain.IsSupportedPaymentMethod(req.PaymentMethod) {
		return nil, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidSale, req.PaymentMethod)
	}

	before, err := s.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}

	boundCtx, cancel := s.bound(ctx)
	updated, err := s.repo.UpdateSalePayment(boundCtx, id, req.PaymentMethod, time.Now().UTC())
	cancel()
	if err != nil {
		return nil, s.translate(err)
	}

	s.logAudit(ctx, domain.AuditEntry{
		Action:      domain.AuditActionUpdate,
		Collection:  "sales",
		TargetID:    id,
		OldValue:    mustJSON(map[string]string{"paymentMethod": before.PaymentMethod}),
		NewValue:    mustJSON(map[string]string{"paymentMethod": updated.PaymentMethod}),
		PerformedBy: s.performedBy(ctx),
	})
	s.bumpSnapshots(ctx)
	return updated, nil
}

// DeleteSale removes the sale and writes a DELETE audit entry holding the
// full prior record. The day's milk counter is left untouched; the audit
// trail is the record of what was removed.
func (s *Service) DeleteSale(ctx context.Context, id string) error {
	boundCtx, cancel := s.bound(ctx)
	deleted, err := s.repo.DeleteSale(boundCtx, id)
	cancel()
	if err != nil {
		return s.translate(err)
	}

	snapshot, err := json.Marshal(deleted)
	if err != nil {
		log.Printf("[service] WARN: failed to encode deleted sale %s for audit: %v", id, err)
		snapshot = nil
	}
	s.logAudit(ctx, domain.AuditEntry{
		Action:      domain.AuditActionDelete,
		Collection:  "sales",
		TargetID:    id,
		OldValue:    snapshot,
		PerformedBy: s.performedBy(ctx),
	})
	s.bumpSnapshots(ctx)
	return nil
}

// RecordMilkEntry sets the day's morning and evening volumes. The tea-cup
// counter on the same record is preserved. Date defaults to today.
func (s *Service) RecordMilkEntry(ctx context.Context, req domain.MilkEntryRequest) (*domain.MilkUsageRecord, error) {
	date := req.Date
	if date == "" {
		date = time.Now().Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidSale)
	}
	if req.MorningMilk.IsNegative() || req.EveningMilk.IsNegative() {
		return nil, fmt.Errorf("%w: milk volumes must be non-negative", store.ErrInvalidSale)
	}

	ctx2, cancel := s.bound(ctx)
	defer cancel()
	record, err := s.repo.UpsertMilkEntry(ctx2, date, req.MorningMilk, req.EveningMilk)
	if err != nil {
		return nil, s.translate(err)
	}
	s.bumpSnapshots(ctx)
	return record, nil
}

func (s *Service) ListMilkHistory(ctx context.Context, limit int) ([]domain.MilkUsageRecord, error) {
	if limit < 1 || limit > 365 {
		limit = 30
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	records, err := s.repo.ListMilkHistory(ctx, limit)
	return records, s.translate(err)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	products, err := s.repo.ListProducts(ctx)
	return products, s.translate(err)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if err := validateProductFields(req.Name, req.Category, req.CostPrice.IsNegative(), req.SellingPrice.IsNegative()); err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	product, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:         req.Name,
		Category:     req.Category,
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
		HasMilk:      req.HasMilk,
	})
	return product, s.translate(err)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	current, err := s.getProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		current.Name = *req.Name
	}
	if req.Category != nil {
		current.Category = *req.Category
	}
	if req.CostPrice != nil {
		current.CostPrice = *req.CostPrice
	}
	if req.SellingPrice != nil {
		current.SellingPrice = *req.SellingPrice
	}
	if req.HasMilk != nil {
		current.HasMilk = *req.HasMilk
	}
	if err := validateProductFields(current.Name, current.Category, current.CostPrice.IsNegative(), current.SellingPrice.IsNegative()); err != nil {
		return nil, err
	}

	ctx2, cancel := s.bound(ctx)
	defer cancel()
	product, err := s.repo.UpdateProduct(ctx2, *current)
	return product, s.translate(err)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.translate(s.repo.DeleteProduct(ctx, id))
}

func (s *Service) ListAuditEntries(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	entries, err := s.repo.ListAuditEntries(ctx, limit)
	return entries, s.translate(err)
}

func validateProductFields(name, category string, negCost, negSell bool) error {
	if name == "" {
		return fmt.Errorf("%w: product name required", store.ErrInvalidSale)
	}
	if category != domain.CategoryTea && category != domain.CategorySnacks {
		return fmt.Errorf("%w: category must be tea or snacks", store.ErrInvalidSale)
	}
	if negCost || negSell {
		return fmt.Errorf("%w: prices must be non-negative", store.ErrInvalidSale)
	}
	return nil
}

func (s *Service) getProduct(ctx context.Context, id string) (*domain.Product, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	product, err := s.repo.GetProductByID(ctx, id)
	return product, s.translate(err)
}

func (s *Service) getProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	return products, s.translate(err)
}

func (s *Service) createSale(ctx context.Context, sale domain.Sale, milkDate string, teaCups int64) (*domain.Sale, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	created, err := s.repo.CreateSale(ctx, sale, milkDate, teaCups)
	return created, s.translate(err)
}

// logAudit records the entry best-effort. A failed audit write is logged but
// never fails the primary operation.
func (s *Service) logAudit(ctx context.Context, entry domain.AuditEntry) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.repo.CreateAuditEntry(ctx, entry); err != nil {
		log.Printf("[service] WARN: failed to record audit entry for %s %s: %v", entry.Action, entry.TargetID, err)
	}
}

func (s *Service) bumpSnapshots(ctx context.Context) {
	if err := s.snapshots.Bump(ctx); err != nil {
		log.Printf("[service] WARN: failed to bump snapshot version: %v", err)
	}
}

func (s *Service) performedBy(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "admin"
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *Service) translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
