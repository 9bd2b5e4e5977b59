package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Sales snapshot its name and selling price at
// processing time, so later catalog edits never change historical records.
type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	HasMilk      bool            `json:"hasMilk"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

const (
	CategoryTea    = "tea"
	CategorySnacks = "snacks"
)

type ProductCreateRequest struct {
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	HasMilk      bool            `json:"hasMilk"`
}

type ProductUpdateRequest struct {
	Name         *string          `json:"name,omitempty"`
	Category     *string          `json:"category,omitempty"`
	CostPrice    *decimal.Decimal `json:"costPrice,omitempty"`
	SellingPrice *decimal.Decimal `json:"sellingPrice,omitempty"`
	HasMilk      *bool            `json:"hasMilk,omitempty"`
}

// SaleLine is a priced line inside a Sale. ProductName and UnitPrice are
// snapshots taken from the catalog when the sale was processed.
type SaleLine struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Total       decimal.Decimal `json:"total"`
}

// Sale is one completed point-of-sale transaction. TokenNumber is the
// human-facing identifier handed to the customer; ID is the storage key.
type Sale struct {
	ID            string          `json:"id"`
	TokenNumber   string          `json:"tokenNumber"`
	Items         []SaleLine      `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaymentMethod string          `json:"paymentMethod"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

const (
	PaymentCash    = "cash"
	PaymentPhonePe = "phonePe"
	PaymentGPay    = "gpay"
	PaymentCard    = "card"
)

func IsSupportedPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentPhonePe, PaymentGPay, PaymentCard:
		return true
	default:
		return false
	}
}

type SaleItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type SaleCreateRequest struct {
	Items         []SaleItemRequest `json:"items"`
	PaymentMethod string            `json:"paymentMethod"`
}

type SalePaymentUpdateRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

// MilkUsageRecord is the per-day derived-state bucket. Morning/evening volumes
// come from manual entry; TeaCupsSold is incremented by milk-bearing sales.
// Exactly one record exists per calendar day.
type MilkUsageRecord struct {
	Date        string          `json:"date"`
	MorningMilk decimal.Decimal `json:"morningMilk"`
	EveningMilk decimal.Decimal `json:"eveningMilk"`
	TeaCupsSold int64           `json:"teaCupsSold"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type MilkEntryRequest struct {
	Date        string          `json:"date,omitempty"`
	MorningMilk decimal.Decimal `json:"morningMilk"`
	EveningMilk decimal.Decimal `json:"eveningMilk"`
}

// AuditEntry records a mutation or deletion applied to a historical sale.
// Entries are append-only and never edited.
type AuditEntry struct {
	ID          string          `json:"id"`
	Action      string          `json:"action"`
	Collection  string          `json:"collection"`
	TargetID    string          `json:"targetId"`
	OldValue    json.RawMessage `json:"oldValue,omitempty"`
	NewValue    json.RawMessage `json:"newValue,omitempty"`
	PerformedBy string          `json:"performedBy"`
	Timestamp   time.Time       `json:"timestamp"`
}

const (
	AuditActionUpdate = "UPDATE"
	AuditActionDelete = "DELETE"
)

// TopSellingEmptySentinel is returned as the top-selling item name when the
// aggregation window holds no sales.
const TopSellingEmptySentinel = "-"

type DashboardSnapshot struct {
	DailyCount     int64           `json:"dailySales"`
	DailyRevenue   decimal.Decimal `json:"dailyRevenue"`
	MonthlyCount   int64           `json:"monthlySales"`
	MonthlyRevenue decimal.Decimal `json:"monthlyRevenue"`
	TopSellingItem string          `json:"topSellingItem"`
	RecentSales    []Sale          `json:"recentSales"`
}

type ItemSales struct {
	Name    string          `json:"name"`
	Count   int64           `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

type PaymentBreakdown struct {
	Method string          `json:"method"`
	Count  int64           `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

type HourCount struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

type MonthlyAnalytics struct {
	Month            int                `json:"month"`
	Year             int                `json:"year"`
	BestSellingItems []ItemSales        `json:"bestSellingItems"`
	SalesByPayment   []PaymentBreakdown `json:"salesByPayment"`
	PeakHours        []HourCount        `json:"peakHours"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Username    string `json:"username"`
	AccessToken string `json:"token"`
	ExpiresAt   string `json:"expiresAt"`
}

type Actor struct {
	Username string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	CreatedAt time.Time
}
