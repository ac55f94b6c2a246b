package models

import (
	"time"
)

// FallbackProduct is the reserved product label for campaigns whose name
// cannot be attributed. Spend classified here is never dropped; it is
// surfaced in the unclassified summary instead.
const FallbackProduct = "PRODUIT_NON_IDENTIFIE"

// CountryUnknown is the country code paired with FallbackProduct.
const CountryUnknown = "UNKNOWN"

// AttributionKey is the (product, country) pair every spend and delivery
// row is bucketed under. Product is a canonical uppercase label; country is
// one of the fixed canonical codes plus UNKNOWN.
type AttributionKey struct {
	Product string `json:"product"`
	Country string `json:"country"`
}

// FallbackKey returns the reserved bucket for unclassifiable campaigns.
func FallbackKey() AttributionKey {
	return AttributionKey{Product: FallbackProduct, Country: CountryUnknown}
}

// IsFallback reports whether the key is the unclassified bucket.
func (k AttributionKey) IsFallback() bool {
	return k.Product == FallbackProduct && k.Country == CountryUnknown
}

// SpendRecord is one imported ad-spend row. Records are immutable once
// imported; amounts are in the native currency (USD).
type SpendRecord struct {
	ID            string    `json:"id"`
	UserScope     string    `json:"user_scope"`
	Date          time.Time `json:"date"`
	CampaignLabel string    `json:"campaign_label"`
	AccountLabel  string    `json:"account_label,omitempty"`
	AmountNative  float64   `json:"amount_native"`
	Leads         int64     `json:"leads"`
	Impressions   int64     `json:"impressions,omitempty"`
	Clicks        int64     `json:"clicks,omitempty"`
	ImportBatchID string    `json:"import_batch_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// AggregatedAttribution is the per (date, product, country) spend bucket.
// SpendConverted is SpendNative multiplied by the resolved rate for Date.
type AggregatedAttribution struct {
	Date           time.Time      `json:"date"`
	Key            AttributionKey `json:"key"`
	SpendNative    float64        `json:"spend_native"`
	SpendConverted float64        `json:"spend_converted"`
	Leads          int64          `json:"leads"`
	SourceRecords  []SpendRecord  `json:"source_records,omitempty"`
}

// UnclassifiedSummary reports how much spend landed in the fallback bucket.
type UnclassifiedSummary struct {
	Count      int     `json:"count"`
	TotalSpend float64 `json:"total_spend"`
}
