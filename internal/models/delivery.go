package models

import (
	"errors"
	"time"
)

// DeliveryRecord is a confirmed-delivery count keyed by
// (user_scope, date, product, country). Counts are upserted by manual edit
// or bulk import and must be non-negative by the time they reach the engine.
type DeliveryRecord struct {
	UserScope string    `json:"user_scope"`
	Date      time.Time `json:"date"`
	Product   string    `json:"product"`
	Country   string    `json:"country"`
	Count     int64     `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the attribution key of the delivery row.
func (d DeliveryRecord) Key() AttributionKey {
	return AttributionKey{Product: d.Product, Country: d.Country}
}

// Validate rejects rows the reconciliation engine must never see.
func (d DeliveryRecord) Validate() error {
	if d.Product == "" {
		return errors.New("delivery record missing product")
	}
	if d.Country == "" {
		return errors.New("delivery record missing country")
	}
	if d.Date.IsZero() {
		return errors.New("delivery record missing date")
	}
	if d.Count < 0 {
		return errors.New("delivery count must be non-negative")
	}
	return nil
}

// PerformanceTier classifies a reconciled record by profitability.
type PerformanceTier string

const (
	TierProfitable       PerformanceTier = "profitable"
	TierNeedsImprovement PerformanceTier = "needs_improvement"
	TierLoss             PerformanceTier = "loss"
)

// ReconciledRecord joins aggregated spend with delivery counts for one
// attribution key and carries the derived KPIs. It is a recomputed view,
// rebuilt on every reconciliation pass, never a source of truth.
type ReconciledRecord struct {
	Key  AttributionKey `json:"key"`
	Date *time.Time     `json:"date,omitempty"` // set on the daily detail view only

	SpendNative    float64 `json:"spend_native"`
	SpendConverted float64 `json:"spend_converted"`
	Leads          int64   `json:"leads"`
	DeliveryCount  int64   `json:"delivery_count"`

	CPL          float64 `json:"cpl"`
	CPD          float64 `json:"cpd"`
	DeliveryRate float64 `json:"delivery_rate"`
	Revenue      float64 `json:"revenue"`
	NetProfit    float64 `json:"net_profit"`
	ROI          float64 `json:"roi"`

	Tier PerformanceTier `json:"performance_tier"`
}

// ProductRollup sums all country-level rows for one product. It backs the
// two-level product -> country display hierarchy.
type ProductRollup struct {
	Product        string             `json:"product"`
	SpendNative    float64            `json:"spend_native"`
	SpendConverted float64            `json:"spend_converted"`
	Leads          int64              `json:"leads"`
	DeliveryCount  int64              `json:"delivery_count"`
	Revenue        float64            `json:"revenue"`
	NetProfit      float64            `json:"net_profit"`
	ROI            float64            `json:"roi"`
	CPD            float64            `json:"cpd"`
	Tier           PerformanceTier    `json:"performance_tier"`
	Countries      []ReconciledRecord `json:"countries"`
}
