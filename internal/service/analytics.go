package service

import (
	"context"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"teapos/backend/internal/domain"
	"teapos/backend/internal/store"
)

// DashboardSnapshot aggregates today's and this month's figures from the
// sale log. Aggregates are always recomputed from stored sales; the cache
// only short-circuits repeated reads of an unchanged ledger.
func (s *Service) DashboardSnapshot(ctx context.Context, asOf time.Time) (*domain.DashboardSnapshot, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}

	loc := asOf.Location()
	dayStart := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	monthStart := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, loc)
	monthEnd := monthStart.AddDate(0, 1, 0)

	version, err := s.snapshots.Version(ctx)
	if err != nil {
		log.Printf("[service] WARN: snapshot version unavailable: %v", err)
		version = -1
	}
	cacheKey := fmt.Sprintf("dashboard:%s:%d", dayStart.Format(dateLayout), version)
	if version >= 0 {
		if cached, hit, err := s.snapshots.Get(ctx, cacheKey); err != nil {
			log.Printf("[service] WARN: snapshot cache read failed: %v", err)
		} else if hit {
			return cached, nil
		}
	}

	boundCtx, cancel := s.bound(ctx)
	monthSales, err := s.repo.ListSalesBetween(boundCtx, monthStart, monthEnd)
	cancel()
	if err != nil {
		return nil, s.translate(err)
	}

	snapshot := &domain.DashboardSnapshot{
		DailyRevenue:   decimal.Zero,
		MonthlyRevenue: decimal.Zero,
		TopSellingItem: domain.TopSellingEmptySentinel,
		RecentSales:    []domain.Sale{},
	}

	itemCounts := make(map[string]int64)
	var itemOrder []string
	var daySales []domain.Sale

	for _, sale := range monthSales {
		snapshot.MonthlyCount++
		snapshot.MonthlyRevenue = snapshot.MonthlyRevenue.Add(sale.TotalAmount)

		// top seller ranks over the whole month
		for _, line := range sale.Items {
			if _, seen := itemCounts[line.ProductName]; !seen {
				itemOrder = append(itemOrder, line.ProductName)
			}
			itemCounts[line.ProductName] += int64(line.Quantity)
		}

		if sale.CreatedAt.Before(dayStart) || !sale.CreatedAt.Before(dayEnd) {
			continue
		}
		snapshot.DailyCount++
		snapshot.DailyRevenue = snapshot.DailyRevenue.Add(sale.TotalAmount)
		daySales = append(daySales, sale)
	}

	var topCount int64
	for _, name := range itemOrder {
		if itemCounts[name] > topCount {
			topCount = itemCounts[name]
			snapshot.TopSellingItem = name
		}
	}

	// newest first, capped at 10
	for i := len(daySales) - 1; i >= 0 && len(snapshot.RecentSales) < 10; i-- {
		snapshot.RecentSales = append(snapshot.RecentSales, daySales[i])
	}

	if version >= 0 {
		if err := s.snapshots.Set(ctx, cacheKey, snapshot, s.snapshotTTL); err != nil {
			log.Printf("[service] WARN: snapshot cache write failed: %v", err)
		}
	}
	return snapshot, nil
}

// MonthlyAnalytics reports best sellers, payment method breakdown and peak
// hours for one calendar month. An empty month yields empty slices, not an
// error.
func (s *Service) MonthlyAnalytics(ctx context.Context, month, year int) (*domain.MonthlyAnalytics, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: month must be 1-12", store.ErrInvalidSale)
	}
	if year < 2000 || year > 2100 {
		return nil, fmt.Errorf("%w: year out of range", store.ErrInvalidSale)
	}

	loc := time.Now().Location()
	monthStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	monthEnd := monthStart.AddDate(0, 1, 0)

	boundCtx, cancel := s.bound(ctx)
	sales, err := s.repo.ListSalesBetween(boundCtx, monthStart, monthEnd)
	cancel()
	if err != nil {
		return nil, s.translate(err)
	}

	itemTotals := make(map[string]*domain.ItemSales)
	var itemOrder []string
	paymentTotals := make(map[string]*domain.PaymentBreakdown)
	var paymentOrder []string
	hourCounts := make(map[int]int64)

	for _, sale := range sales {
		for _, line := range sale.Items {
			item, seen := itemTotals[line.ProductName]
			if !seen {
				item = &domain.ItemSales{Name: line.ProductName, Revenue: decimal.Zero}
				itemTotals[line.ProductName] = item
				itemOrder = append(itemOrder, line.ProductName)
			}
			item.Count += int64(line.Quantity)
			item.Revenue = item.Revenue.Add(line.Total)
		}

		payment, seen := paymentTotals[sale.PaymentMethod]
		if !seen {
			payment = &domain.PaymentBreakdown{Method: sale.PaymentMethod, Total: decimal.Zero}
			paymentTotals[sale.PaymentMethod] = payment
			paymentOrder = append(paymentOrder, sale.PaymentMethod)
		}
		payment.Count++
		payment.Total = payment.Total.Add(sale.TotalAmount)

		hourCounts[sale.CreatedAt.In(loc).Hour()]++
	}

	result := &domain.MonthlyAnalytics{
		Month:            month,
		Year:             year,
		BestSellingItems: []domain.ItemSales{},
		SalesByPayment:   []domain.PaymentBreakdown{},
		PeakHours:        []domain.HourCount{},
	}

	for _, name := range itemOrder {
		result.BestSellingItems = append(result.BestSellingItems, *itemTotals[name])
	}
	slices.SortStableFunc(result.BestSellingItems, func(a, b domain.ItemSales) int {
		return int(b.Count - a.Count)
	})
	if len(result.BestSellingItems) > 5 {
		result.BestSellingItems = result.BestSellingItems[:5]
	}

	for _, method := range paymentOrder {
		result.SalesByPayment = append(result.SalesByPayment, *paymentTotals[method])
	}

	for hour, count := range hourCounts {
		result.PeakHours = append(result.PeakHours, domain.HourCount{Hour: hour, Count: count})
	}
	slices.SortFunc(result.PeakHours, func(a, b domain.HourCount) int {
		if a.Count != b.Count {
			return int(b.Count - a.Count)
		}
		return a.Hour - b.Hour
	})
	if len(result.PeakHours) > 6 {
		result.PeakHours = result.PeakHours[:6]
	}

	return result, nil
}
