package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"teapos/backend/internal/domain"
	"teapos/backend/internal/store/memory"
)

var tokenSeq int

func seedSale(t *testing.T, repo *memory.Store, createdAt time.Time, payment string, lines ...domain.SaleLine) domain.Sale {
	t.Helper()
	tokenSeq++

	var total decimal.Decimal
	for _, line := range lines {
		total = total.Add(line.Total)
	}
	sale := domain.Sale{
		TokenNumber:   fmt.Sprintf("TKN-test-%d", tokenSeq),
		Items:         lines,
		TotalAmount:   total,
		PaymentMethod: payment,
		CreatedAt:     createdAt,
	}
	created, err := repo.CreateSale(context.Background(), sale, "", 0)
	if err != nil {
		t.Fatalf("seed sale: %v", err)
	}
	return *created
}

func line(name string, qty int, unitPrice int64) domain.SaleLine {
	price := decimal.NewFromInt(unitPrice)
	return domain.SaleLine{
		ProductID:   "prd-" + name,
		ProductName: name,
		Quantity:    qty,
		UnitPrice:   price,
		Total:       price.Mul(decimal.NewFromInt(int64(qty))),
	}
}

func TestDashboardEmptyDay(t *testing.T) {
	svc, _ := newTestService(t)

	snapshot, err := svc.DashboardSnapshot(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("DashboardSnapshot: %v", err)
	}
	if snapshot.DailyCount != 0 || snapshot.MonthlyCount != 0 {
		t.Fatalf("counts = %d/%d, want 0/0", snapshot.DailyCount, snapshot.MonthlyCount)
	}
	if !snapshot.DailyRevenue.IsZero() || !snapshot.MonthlyRevenue.IsZero() {
		t.Fatalf("revenue = %s/%s, want 0/0", snapshot.DailyRevenue, snapshot.MonthlyRevenue)
	}
	if snapshot.TopSellingItem != domain.TopSellingEmptySentinel {
		t.Fatalf("topSellingItem = %q, want %q", snapshot.TopSellingItem, domain.TopSellingEmptySentinel)
	}
	if len(snapshot.RecentSales) != 0 {
		t.Fatalf("expected no recent sales, got %d", len(snapshot.RecentSales))
	}
}

func TestDashboardAggregatesDayAndMonth(t *testing.T) {
	svc, repo := newTestService(t)
	asOf := time.Date(2026, 8, 15, 18, 0, 0, 0, time.Local)

	seedSale(t, repo, asOf.Add(-8*time.Hour), domain.PaymentCash, line("Masala Chai", 3, 10))
	second := seedSale(t, repo, asOf.Add(-7*time.Hour), domain.PaymentGPay, line("Samosa", 1, 20))
	seedSale(t, repo, asOf.AddDate(0, 0, -5), domain.PaymentCard, line("Vada Pav", 2, 25))

	snapshot, err := svc.DashboardSnapshot(context.Background(), asOf)
	if err != nil {
		t.Fatalf("DashboardSnapshot: %v", err)
	}

	if snapshot.DailyCount != 2 {
		t.Fatalf("dailySales = %d, want 2", snapshot.DailyCount)
	}
	if !snapshot.DailyRevenue.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("dailyRevenue = %s, want 50", snapshot.DailyRevenue)
	}
	if snapshot.MonthlyCount != 3 {
		t.Fatalf("monthlySales = %d, want 3", snapshot.MonthlyCount)
	}
	if !snapshot.MonthlyRevenue.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("monthlyRevenue = %s, want 100", snapshot.MonthlyRevenue)
	}
	if snapshot.TopSellingItem != "Masala Chai" {
		t.Fatalf("topSellingItem = %q, want Masala Chai", snapshot.TopSellingItem)
	}
	if len(snapshot.RecentSales) != 2 {
		t.Fatalf("recentSales = %d, want 2", len(snapshot.RecentSales))
	}
	if snapshot.RecentSales[0].ID != second.ID {
		t.Fatalf("recentSales[0] = %s, want newest sale %s", snapshot.RecentSales[0].ID, second.ID)
	}
}

func TestDashboardIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	asOf := time.Date(2026, 8, 20, 12, 0, 0, 0, time.Local)
	seedSale(t, repo, asOf.Add(-time.Hour), domain.PaymentCash, line("Masala Chai", 1, 15))

	first, err := svc.DashboardSnapshot(context.Background(), asOf)
	if err != nil {
		t.Fatalf("DashboardSnapshot: %v", err)
	}
	second, err := svc.DashboardSnapshot(context.Background(), asOf)
	if err != nil {
		t.Fatalf("DashboardSnapshot: %v", err)
	}

	if first.DailyCount != second.DailyCount ||
		!first.DailyRevenue.Equal(second.DailyRevenue) ||
		first.TopSellingItem != second.TopSellingItem {
		t.Fatalf("snapshot changed between reads: %+v vs %+v", first, second)
	}
}

func TestMonthlyAnalyticsRanking(t *testing.T) {
	svc, repo := newTestService(t)
	base := time.Date(2026, 7, 10, 9, 0, 0, 0, time.Local)

	seedSale(t, repo, base, domain.PaymentCash, line("Masala Chai", 5, 10))
	seedSale(t, repo, base.Add(30*time.Minute), domain.PaymentGPay, line("Samosa", 5, 10))
	seedSale(t, repo, base.Add(8*time.Hour), domain.PaymentGPay, line("Samosa", 3, 10))

	analytics, err := svc.MonthlyAnalytics(context.Background(), 7, 2026)
	if err != nil {
		t.Fatalf("MonthlyAnalytics: %v", err)
	}

	if len(analytics.BestSellingItems) != 2 {
		t.Fatalf("bestSellingItems = %d, want 2", len(analytics.BestSellingItems))
	}
	top := analytics.BestSellingItems[0]
	if top.Name != "Samosa" || top.Count != 8 || !top.Revenue.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("top item = %+v, want Samosa/8/80", top)
	}
	runnerUp := analytics.BestSellingItems[1]
	if runnerUp.Name != "Masala Chai" || runnerUp.Count != 5 || !runnerUp.Revenue.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("runner up = %+v, want Masala Chai/5/50", runnerUp)
	}

	if len(analytics.SalesByPayment) != 2 {
		t.Fatalf("salesByPayment = %d, want 2", len(analytics.SalesByPayment))
	}
	for _, payment := range analytics.SalesByPayment {
		switch payment.Method {
		case domain.PaymentCash:
			if payment.Count != 1 || !payment.Total.Equal(decimal.NewFromInt(50)) {
				t.Fatalf("cash breakdown = %+v", payment)
			}
		case domain.PaymentGPay:
			if payment.Count != 2 || !payment.Total.Equal(decimal.NewFromInt(80)) {
				t.Fatalf("gpay breakdown = %+v", payment)
			}
		default:
			t.Fatalf("unexpected payment method %s", payment.Method)
		}
	}
}

func TestMonthlyAnalyticsPeakHours(t *testing.T) {
	svc, repo := newTestService(t)
	day := time.Date(2026, 6, 5, 0, 0, 0, 0, time.Local)

	for i := 0; i < 3; i++ {
		seedSale(t, repo, day.Add(9*time.Hour).Add(time.Duration(i)*time.Minute), domain.PaymentCash, line("Masala Chai", 1, 15))
	}
	seedSale(t, repo, day.Add(17*time.Hour), domain.PaymentCash, line("Masala Chai", 1, 15))

	analytics, err := svc.MonthlyAnalytics(context.Background(), 6, 2026)
	if err != nil {
		t.Fatalf("MonthlyAnalytics: %v", err)
	}

	if len(analytics.PeakHours) != 2 {
		t.Fatalf("peakHours = %d, want 2", len(analytics.PeakHours))
	}
	if analytics.PeakHours[0].Hour != 9 || analytics.PeakHours[0].Count != 3 {
		t.Fatalf("peakHours[0] = %+v, want hour 9 count 3", analytics.PeakHours[0])
	}
	if analytics.PeakHours[1].Hour != 17 || analytics.PeakHours[1].Count != 1 {
		t.Fatalf("peakHours[1] = %+v, want hour 17 count 1", analytics.PeakHours[1])
	}
}

func TestMonthlyAnalyticsEmptyMonth(t *testing.T) {
	svc, _ := newTestService(t)

	analytics, err := svc.MonthlyAnalytics(context.Background(), 1, 2026)
	if err != nil {
		t.Fatalf("MonthlyAnalytics: %v", err)
	}
	if len(analytics.BestSellingItems) != 0 || len(analytics.SalesByPayment) != 0 || len(analytics.PeakHours) != 0 {
		t.Fatalf("expected empty analytics, got %+v", analytics)
	}
}

func TestMonthlyAnalyticsValidatesWindow(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.MonthlyAnalytics(context.Background(), 0, 2026); err == nil {
		t.Fatal("expected error for month 0")
	}
	if _, err := svc.MonthlyAnalytics(context.Background(), 13, 2026); err == nil {
		t.Fatal("expected error for month 13")
	}
	if _, err := svc.MonthlyAnalytics(context.Background(), 5, 1970); err == nil {
		t.Fatal("expected error for out-of-range year")
	}
}
