package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"teapos/backend/internal/domain"
	"teapos/backend/internal/store"
)

func testSale(token string) domain.Sale {
	return domain.Sale{
		TokenNumber: token,
		Items: []domain.SaleLine{
			{ProductID: "prd-chai-01", ProductName: "Masala Chai", Quantity: 1, UnitPrice: decimal.NewFromInt(15), Total: decimal.NewFromInt(15)},
		},
		TotalAmount:   decimal.NewFromInt(15),
		PaymentMethod: domain.PaymentCash,
	}
}

func TestCreateSaleRejectsDuplicateToken(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.CreateSale(ctx, testSale("TKN1"), "2026-08-31", 1); err != nil {
		t.Fatalf("first CreateSale: %v", err)
	}
	if _, err := s.CreateSale(ctx, testSale("TKN1"), "2026-08-31", 1); !errors.Is(err, store.ErrTokenConflict) {
		t.Fatalf("expected ErrTokenConflict, got %v", err)
	}

	// The rejected sale must not have bumped the counter.
	records, err := s.ListMilkHistory(ctx, 5)
	if err != nil {
		t.Fatalf("ListMilkHistory: %v", err)
	}
	if len(records) != 1 || records[0].TeaCupsSold != 1 {
		t.Fatalf("milk records = %+v, want single record with 1 cup", records)
	}
}

func TestConcurrentTeaCupIncrements(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementTeaCups(ctx, "2026-08-31", 1); err != nil {
				t.Errorf("IncrementTeaCups: %v", err)
			}
		}()
	}
	wg.Wait()

	records, err := s.ListMilkHistory(ctx, 5)
	if err != nil {
		t.Fatalf("ListMilkHistory: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].TeaCupsSold != workers {
		t.Fatalf("teaCupsSold = %d, want %d", records[0].TeaCupsSold, workers)
	}
}

func TestUpsertMilkEntryPreservesCounter(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.IncrementTeaCups(ctx, "2026-08-31", 4); err != nil {
		t.Fatalf("IncrementTeaCups: %v", err)
	}
	record, err := s.UpsertMilkEntry(ctx, "2026-08-31", decimal.NewFromFloat(2.5), decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("UpsertMilkEntry: %v", err)
	}

	if record.TeaCupsSold != 4 {
		t.Fatalf("teaCupsSold = %d, want 4", record.TeaCupsSold)
	}
	if !record.MorningMilk.Equal(decimal.NewFromFloat(2.5)) {
		t.Fatalf("morningMilk = %s, want 2.5", record.MorningMilk)
	}
}

func TestReturnedSaleIsACopy(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateSale(ctx, testSale("TKN2"), "", 0)
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	created.Items[0].ProductName = "mutated"
	created.TotalAmount = decimal.NewFromInt(999)

	stored, err := s.GetSaleByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetSaleByID: %v", err)
	}
	if stored.Items[0].ProductName != "Masala Chai" {
		t.Fatalf("stored sale mutated through returned copy: %s", stored.Items[0].ProductName)
	}
	if !stored.TotalAmount.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("stored total mutated: %s", stored.TotalAmount)
	}
}

func TestListSalesBetweenBounds(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	base := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	for i, token := range []string{"TKN-a", "TKN-b", "TKN-c"} {
		sale := testSale(token)
		sale.CreatedAt = base.Add(time.Duration(i) * 24 * time.Hour)
		if _, err := s.CreateSale(ctx, sale, "", 0); err != nil {
			t.Fatalf("CreateSale %s: %v", token, err)
		}
	}

	sales, err := s.ListSalesBetween(ctx, base, base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("ListSalesBetween: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected 2 sales in window, got %d", len(sales))
	}
	if sales[0].TokenNumber != "TKN-a" || sales[1].TokenNumber != "TKN-b" {
		t.Fatalf("unexpected order: %s, %s", sales[0].TokenNumber, sales[1].TokenNumber)
	}
}

func TestGetProductsByIDsSkipsUnknown(t *testing.T) {
	s := NewSeeded()

	products, err := s.GetProductsByIDs(context.Background(), []string{"prd-chai-01", "missing"})
	if err != nil {
		t.Fatalf("GetProductsByIDs: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
	if _, ok := products["prd-chai-01"]; !ok {
		t.Fatal("expected prd-chai-01 in result")
	}
}

func TestDeleteSaleReturnsSnapshot(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateSale(ctx, testSale("TKN3"), "", 0)
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}

	deleted, err := s.DeleteSale(ctx, created.ID)
	if err != nil {
		t.Fatalf("DeleteSale: %v", err)
	}
	if deleted.TokenNumber != "TKN3" || len(deleted.Items) != 1 {
		t.Fatalf("unexpected snapshot: %+v", deleted)
	}
	if _, err := s.GetSaleByID(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSeededCatalogAndAdmin(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	products, err := s.ListProducts(ctx)
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(products) == 0 {
		t.Fatal("expected seeded products")
	}
	var milkCount int
	for _, p := range products {
		if p.Category != domain.CategoryTea && p.Category != domain.CategorySnacks {
			t.Fatalf("unexpected category %s", p.Category)
		}
		if p.HasMilk {
			milkCount++
		}
	}
	if milkCount == 0 {
		t.Fatal("expected at least one milk-bearing product")
	}

	admin, err := s.GetUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if admin.Password == "" || admin.Password == "admin123" {
		t.Fatal("expected hashed admin password")
	}
}
