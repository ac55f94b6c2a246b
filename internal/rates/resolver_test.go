package rates

import (
	"testing"
	"time"

	"github.com/tidemetrics/adrecon/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolveExactRate(t *testing.T) {
	r := NewResolver([]models.ExchangeRate{
		{Date: date(2026, 3, 10), Rate: 9.8},
		{Date: date(2026, 3, 11), Rate: 10.2},
	}, nil)

	if got := r.Resolve(date(2026, 3, 10)); got != 9.8 {
		t.Errorf("Resolve = %v, want 9.8", got)
	}
	// Time-of-day must not matter.
	if got := r.Resolve(time.Date(2026, 3, 11, 15, 30, 0, 0, time.UTC)); got != 10.2 {
		t.Errorf("Resolve with time component = %v, want 10.2", got)
	}
}

func TestResolveMonthlyAverage(t *testing.T) {
	finance := []models.FinanceRecord{
		{Date: date(2026, 3, 5), AmountUSD: 100, AmountLocal: 950},
		{Date: date(2026, 3, 20), AmountUSD: 100, AmountLocal: 1050},
	}
	r := NewResolver(nil, finance)

	// (950 + 1050) / (100 + 100) = 10
	if got := r.Resolve(date(2026, 3, 15)); got != 10 {
		t.Errorf("monthly average = %v, want 10", got)
	}
}

func TestResolveExactBeatsMonthly(t *testing.T) {
	recorded := []models.ExchangeRate{{Date: date(2026, 3, 15), Rate: 12}}
	finance := []models.FinanceRecord{{Date: date(2026, 3, 1), AmountUSD: 1, AmountLocal: 9}}
	r := NewResolver(recorded, finance)

	if got := r.Resolve(date(2026, 3, 15)); got != 12 {
		t.Errorf("Resolve = %v, want recorded rate 12", got)
	}
	// Other dates in the month still use the average.
	if got := r.Resolve(date(2026, 3, 16)); got != 9 {
		t.Errorf("Resolve = %v, want monthly average 9", got)
	}
}

func TestResolveLatestPrior(t *testing.T) {
	r := NewResolver([]models.ExchangeRate{
		{Date: date(2026, 1, 10), Rate: 9.5},
		{Date: date(2026, 2, 20), Rate: 10.5},
	}, nil)

	// No exact hit, no finance data: carry the most recent prior rate.
	if got := r.Resolve(date(2026, 3, 1)); got != 10.5 {
		t.Errorf("Resolve = %v, want latest prior 10.5", got)
	}
	if got := r.Resolve(date(2026, 2, 1)); got != 9.5 {
		t.Errorf("Resolve = %v, want 9.5", got)
	}
}

func TestResolveDefaultFallback(t *testing.T) {
	r := NewResolver(nil, nil)
	if got := r.Resolve(date(2026, 3, 1)); got != DefaultRate {
		t.Errorf("Resolve = %v, want DefaultRate %v", got, DefaultRate)
	}

	// A date before every recorded rate also falls through to the default.
	r = NewResolver([]models.ExchangeRate{{Date: date(2026, 6, 1), Rate: 11}}, nil)
	if got := r.Resolve(date(2026, 1, 1)); got != DefaultRate {
		t.Errorf("Resolve before first rate = %v, want DefaultRate", got)
	}
}

func TestResolveCustomFallback(t *testing.T) {
	r := NewResolverWithDefault(nil, nil, 8.5)
	if got := r.Resolve(date(2026, 3, 1)); got != 8.5 {
		t.Errorf("Resolve = %v, want 8.5", got)
	}
}

func TestResolveZeroUSDMonthIgnored(t *testing.T) {
	// A month whose receipts carry no USD side yields no average.
	finance := []models.FinanceRecord{{Date: date(2026, 3, 5), AmountUSD: 0, AmountLocal: 500}}
	r := NewResolver(nil, finance)

	if got := r.Resolve(date(2026, 3, 15)); got != DefaultRate {
		t.Errorf("Resolve = %v, want DefaultRate", got)
	}
}

func TestResolveNeverFails(t *testing.T) {
	r := NewResolver(nil, nil)
	for _, d := range []time.Time{{}, date(1970, 1, 1), date(2100, 12, 31)} {
		if got := r.Resolve(d); got <= 0 {
			t.Errorf("Resolve(%v) = %v, want positive rate", d, got)
		}
	}
}
