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

	"teapos/backend/internal/domain"
	"teapos/backend/internal/store"
	"teapos/backend/internal/xid"
)

type Store struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	salesByID    map[string]*domain.Sale
	salesByToken map[string]string
	milkByDate   map[string]domain.MilkUsageRecord
	auditEntries []domain.AuditEntry
	users        map[string]domain.UserAccount
}

// seedUsers builds the initial admin account for dev/demo mode. The password
// is read from SEED_ADMIN_PASSWORD; if unset a hardcoded dev default is used
// with a warning printed to stdout.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminPwd == "" {
		adminPwd = "admin123"
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD to override.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}

	return map[string]domain.UserAccount{
		"admin": {
			Username:  "admin",
			Password:  string(hash),
			CreatedAt: time.Now().UTC(),
		},
	}
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prd-chai-01", Name: "Masala Chai", Category: domain.CategoryTea, CostPrice: decimal.NewFromInt(6), SellingPrice: decimal.NewFromInt(15), HasMilk: true},
		{ID: "prd-ginger-01", Name: "Ginger Tea", Category: domain.CategoryTea, CostPrice: decimal.NewFromInt(6), SellingPrice: decimal.NewFromInt(15), HasMilk: true},
		{ID: "prd-black-01", Name: "Black Tea", Category: domain.CategoryTea, CostPrice: decimal.NewFromInt(4), SellingPrice: decimal.NewFromInt(10), HasMilk: false},
		{ID: "prd-samosa-01", Name: "Samosa", Category: domain.CategorySnacks, CostPrice: decimal.NewFromInt(8), SellingPrice: decimal.NewFromInt(20), HasMilk: false},
		{ID: "prd-biscuit-01", Name: "Butter Biscuit", Category: domain.CategorySnacks, CostPrice: decimal.NewFromInt(4), SellingPrice: decimal.NewFromInt(10), HasMilk: false},
		{ID: "prd-vadapav-01", Name: "Vada Pav", Category: domain.CategorySnacks, CostPrice: decimal.NewFromInt(10), SellingPrice: decimal.NewFromInt(25), HasMilk: false},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		productMap[p.ID] = p
	}

	return &Store{
		products:     productMap,
		salesByID:    make(map[string]*domain.Sale),
		salesByToken: make(map[string]string),
		milkByDate:   make(map[string]domain.MilkUsageRecord),
		auditEntries: make([]domain.AuditEntry, 0, 64),
		users:        seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidSale
	}
	if product.CostPrice.IsNegative() || product.SellingPrice.IsNegative() {
		return nil, store.ErrInvalidSale
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidSale
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidSale
	}
	if product.CostPrice.IsNegative() || product.SellingPrice.IsNegative() {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

// CreateSale persists the sale and folds the tea-cup increment into the
// day's milk bucket under the same lock, so a failed sale write leaves no
// stray increment and concurrent sales never lose one.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale, milkDate string, teaCups int64) (*domain.Sale, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByToken[sale.TokenNumber]; exists {
		return nil, store.ErrTokenConflict
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, store.ErrInvalidSale
	}

	stored := cloneSale(&sale)
	s.salesByID[sale.ID] = stored
	s.salesByToken[sale.TokenNumber] = sale.ID

	if teaCups > 0 {
		s.addTeaCupsLocked(milkDate, teaCups)
	}

	created := cloneSale(stored)
	return created, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := s.snapshotSalesLocked()
	sortSalesDesc(sales)
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

// ListSalesBetween returns sales with from <= createdAt < to, oldest first.
func (s *Store) ListSalesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 64)
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	sortSalesAsc(sales)
	return sales, nil
}

func (s *Store) UpdateSalePayment(_ context.Context, id string, method string, at time.Time) (*domain.Sale, error) {
	if !domain.IsSupportedPaymentMethod(method) {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale.PaymentMethod = method
	sale.UpdatedAt = at
	return cloneSale(sale), nil
}

func (s *Store) DeleteSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	deleted := cloneSale(sale)
	delete(s.salesByID, id)
	delete(s.salesByToken, sale.TokenNumber)
	return deleted, nil
}

func (s *Store) UpsertMilkEntry(_ context.Context, date string, morning decimal.Decimal, evening decimal.Decimal) (*domain.MilkUsageRecord, error) {
	if date == "" || morning.IsNegative() || evening.IsNegative() {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.milkByDate[date]
	if !ok {
		record = domain.MilkUsageRecord{Date: date}
	}
	record.MorningMilk = morning
	record.EveningMilk = evening
	record.UpdatedAt = time.Now().UTC()
	s.milkByDate[date] = record

	saved := record
	return &saved, nil
}

func (s *Store) IncrementTeaCups(_ context.Context, date string, delta int64) (*domain.MilkUsageRecord, error) {
	if date == "" || delta < 1 {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.addTeaCupsLocked(date, delta)
	return &record, nil
}

func (s *Store) addTeaCupsLocked(date string, delta int64) domain.MilkUsageRecord {
	record, ok := s.milkByDate[date]
	if !ok {
		record = domain.MilkUsageRecord{
			Date:        date,
			MorningMilk: decimal.Zero,
			EveningMilk: decimal.Zero,
		}
	}
	record.TeaCupsSold += delta
	record.UpdatedAt = time.Now().UTC()
	s.milkByDate[date] = record
	return record
}

func (s *Store) ListMilkHistory(_ context.Context, limit int) ([]domain.MilkUsageRecord, error) {
	if limit < 1 {
		limit = 30
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.MilkUsageRecord, 0, len(s.milkByDate))
	for _, record := range s.milkByDate {
		records = append(records, record)
	}
	slices.SortFunc(records, func(a, b domain.MilkUsageRecord) int {
		return strings.Compare(b.Date, a.Date)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Store) CreateAuditEntry(_ context.Context, entry domain.AuditEntry) error {
	if entry.Action == "" || entry.TargetID == "" {
		return store.ErrInvalidSale
	}
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditEntries = append(s.auditEntries, entry)
	return nil
}

func (s *Store) ListAuditEntries(_ context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.AuditEntry, len(s.auditEntries))
	copy(entries, s.auditEntries)
	slices.SortStableFunc(entries, func(a, b domain.AuditEntry) int {
		if a.Timestamp.Equal(b.Timestamp) {
			return 0
		}
		if a.Timestamp.After(b.Timestamp) {
			return -1
		}
		return 1
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidSale
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Username]; exists {
		return store.ErrInvalidSale
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) snapshotSalesLocked() []domain.Sale {
	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		sales = append(sales, *cloneSale(sale))
	}
	return sales
}

func cloneSale(sale *domain.Sale) *domain.Sale {
	copySale := *sale
	copySale.Items = make([]domain.SaleLine, len(sale.Items))
	copy(copySale.Items, sale.Items)
	return &copySale
}

func sortSalesDesc(sales []domain.Sale) {
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.TokenNumber, a.TokenNumber)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
}

func sortSalesAsc(sales []domain.Sale) {
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.TokenNumber, b.TokenNumber)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
}
