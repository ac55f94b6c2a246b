package storage

import (
	"context"
	"time"

	"github.com/tidemetrics/adrecon/internal/models"
)

// =============================================
// SPEND STORE
// =============================================

// SpendStore holds imported ad-spend rows. Rows are append-only within a
// period; imports never rewrite existing records.
type SpendStore interface {
	SaveBatch(ctx context.Context, records []models.SpendRecord) error
	ListByRange(ctx context.Context, userScope string, from, to time.Time) ([]models.SpendRecord, error)
}

// =============================================
// DELIVERY STORE
// =============================================

// DeliveryStore holds confirmed-delivery counts, upserted by
// (user_scope, date, product, country).
type DeliveryStore interface {
	Upsert(ctx context.Context, rec models.DeliveryRecord) error
	ListByRange(ctx context.Context, userScope string, from, to time.Time) ([]models.DeliveryRecord, error)
}

// =============================================
// RATE REPOSITORY
// =============================================

// RateRepo holds explicitly recorded per-date exchange rates. ListAll
// returns the full table: the resolver's latest-prior layer may need rates
// older than any queried range.
type RateRepo interface {
	Upsert(ctx context.Context, rate models.ExchangeRate) error
	ListAll(ctx context.Context) ([]models.ExchangeRate, error)
}

// =============================================
// FINANCE STORE
// =============================================

// FinanceStore holds receipt rows from the finance feed, used for monthly
// average rate computation.
type FinanceStore interface {
	SaveBatch(ctx context.Context, records []models.FinanceRecord) error
	ListAll(ctx context.Context) ([]models.FinanceRecord, error)
}

// =============================================
// PRODUCT REPOSITORY
// =============================================

// ProductRepo holds the product catalog (margin per delivery).
type ProductRepo interface {
	Upsert(ctx context.Context, p models.Product) error
	GetByName(ctx context.Context, name string) (*models.Product, error)
	ListAll(ctx context.Context) ([]models.Product, error)
}

// =============================================
// SPEND ARCHIVE
// =============================================

// SpendArchive is an append-only analytical sink for raw imported spend
// rows (ClickHouse in production). It is best-effort: archive failures
// never block an import.
type SpendArchive interface {
	ArchiveSpend(ctx context.Context, batchID string, records []models.SpendRecord) error
}
