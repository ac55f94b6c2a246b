package rates

import (
	"sort"
	"time"

	"github.com/tidemetrics/adrecon/internal/models"
)

// DefaultRate is the hard fallback applied when no recorded rate, monthly
// average, or prior rate exists for a date.
const DefaultRate = 10.0

// Resolver answers USD -> local conversion rates for arbitrary dates from
// an immutable snapshot of recorded rates and finance receipts. Resolution
// never fails; the layers degrade gracefully down to DefaultRate, so
// callers may use the result in arithmetic without further checks.
//
// Resolution order, first hit wins:
//  1. rate explicitly recorded for the date
//  2. monthly average over finance receipts in the date's calendar month
//  3. most recent recorded rate at or before the date
//  4. DefaultRate
type Resolver struct {
	exact       map[string]float64  // yyyy-mm-dd -> rate
	monthly     map[string]float64  // yyyy-mm -> average rate
	sortedDates []time.Time         // recorded rate dates, ascending
	fallback    float64
}

// NewResolver builds a resolver snapshot. Both inputs may be empty.
func NewResolver(recorded []models.ExchangeRate, finance []models.FinanceRecord) *Resolver {
	return NewResolverWithDefault(recorded, finance, DefaultRate)
}

// NewResolverWithDefault builds a resolver with a caller-supplied hard
// fallback rate.
func NewResolverWithDefault(recorded []models.ExchangeRate, finance []models.FinanceRecord, fallback float64) *Resolver {
	r := &Resolver{
		exact:    make(map[string]float64, len(recorded)),
		monthly:  make(map[string]float64),
		fallback: fallback,
	}

	for _, er := range recorded {
		day := dayKey(er.Date)
		if _, dup := r.exact[day]; !dup {
			r.sortedDates = append(r.sortedDates, dateOnly(er.Date))
		}
		r.exact[day] = er.Rate
	}
	sort.Slice(r.sortedDates, func(i, j int) bool {
		return r.sortedDates[i].Before(r.sortedDates[j])
	})

	// Monthly average = sum(local receipts) / sum(usd receipts), only
	// meaningful when the USD side is non-zero.
	type sums struct{ usd, local float64 }
	bymonth := make(map[string]*sums)
	for _, fr := range finance {
		m := monthKey(fr.Date)
		s, ok := bymonth[m]
		if !ok {
			s = &sums{}
			bymonth[m] = s
		}
		s.usd += fr.AmountUSD
		s.local += fr.AmountLocal
	}
	for m, s := range bymonth {
		if s.usd != 0 {
			r.monthly[m] = s.local / s.usd
		}
	}

	return r
}

// Resolve returns the conversion rate for the given date.
func (r *Resolver) Resolve(date time.Time) float64 {
	if rate, ok := r.exact[dayKey(date)]; ok {
		return rate
	}
	if rate, ok := r.monthly[monthKey(date)]; ok {
		return rate
	}
	if rate, ok := r.latestPrior(date); ok {
		return rate
	}
	return r.fallback
}

// latestPrior finds the most recent recorded rate at or before date.
func (r *Resolver) latestPrior(date time.Time) (float64, bool) {
	d := dateOnly(date)
	// First index strictly after d; the entry before it is the answer.
	i := sort.Search(len(r.sortedDates), func(i int) bool {
		return r.sortedDates[i].After(d)
	})
	if i == 0 {
		return 0, false
	}
	return r.exact[dayKey(r.sortedDates[i-1])], true
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}
