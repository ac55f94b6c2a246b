package models

import (
	"errors"
	"time"
)

// MarginCurrency identifies the unit a product margin is stored in. The
// unit is explicit on every margin; it is never inferred from magnitude.
type MarginCurrency string

const (
	MarginLocal MarginCurrency = "local" // DH
	MarginUSD   MarginCurrency = "usd"
)

// DefaultMarginPerDelivery is used when a product has no catalog entry,
// in local currency.
const DefaultMarginPerDelivery = 150.0

// Product is a catalog entry carrying the configured margin per confirmed
// delivery.
type Product struct {
	Name              string         `json:"name"`
	MarginPerDelivery float64        `json:"margin_per_delivery"`
	MarginCurrency    MarginCurrency `json:"margin_currency"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Validate checks a catalog entry before it is stored.
func (p Product) Validate() error {
	if p.Name == "" {
		return errors.New("product name is required")
	}
	if p.MarginPerDelivery < 0 {
		return errors.New("margin must be non-negative")
	}
	switch p.MarginCurrency {
	case MarginLocal, MarginUSD:
		return nil
	default:
		return errors.New("margin currency must be local or usd")
	}
}

// ExchangeRate is an explicitly recorded USD -> local conversion rate for
// one date.
type ExchangeRate struct {
	Date      time.Time `json:"date"`
	Rate      float64   `json:"rate"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks a recorded rate before it is stored.
func (r ExchangeRate) Validate() error {
	if r.Date.IsZero() {
		return errors.New("rate date is required")
	}
	if r.Rate <= 0 {
		return errors.New("rate must be positive")
	}
	return nil
}

// FinanceRecord is one receipt row from the finance feed. The same amount
// is recorded in both currencies, which is what makes the monthly average
// rate computable.
type FinanceRecord struct {
	Date          time.Time `json:"date"`
	AmountUSD     float64   `json:"amount_received_usd"`
	AmountLocal   float64   `json:"amount_received_local"`
	ImportBatchID string    `json:"import_batch_id,omitempty"`
}
