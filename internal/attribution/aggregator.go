package attribution

import (
	"math"
	"sort"
	"time"

	"github.com/tidemetrics/adrecon/internal/models"
)

// ConservationEpsilon bounds the acceptable drift between input and
// aggregated native totals.
const ConservationEpsilon = 1e-2

// RateResolver is the slice of the rates package the aggregator needs.
type RateResolver interface {
	Resolve(date time.Time) float64
}

// Aggregator groups spend records by (date, product, country), summing
// native amounts and converting at the resolved rate for each date.
type Aggregator struct {
	classifier *Classifier
}

// NewAggregator creates an aggregator over the given classifier.
func NewAggregator(classifier *Classifier) *Aggregator {
	return &Aggregator{classifier: classifier}
}

// Aggregate buckets the records. Every record maps to exactly one bucket
// (unclassifiable labels go to the fallback bucket), so no spend is lost.
// Output is sorted by date, product, country, and source records keep their
// input order, which makes re-aggregation of identical input bit-identical.
func (a *Aggregator) Aggregate(records []models.SpendRecord, resolver RateResolver) []models.AggregatedAttribution {
	type bucketKey struct {
		day     string
		product string
		country string
	}

	buckets := make(map[bucketKey]*models.AggregatedAttribution)
	var order []bucketKey

	for _, rec := range records {
		key := a.classifier.Classify(rec.CampaignLabel)
		bk := bucketKey{day: rec.Date.Format("2006-01-02"), product: key.Product, country: key.Country}

		b, ok := buckets[bk]
		if !ok {
			b = &models.AggregatedAttribution{
				Date: time.Date(rec.Date.Year(), rec.Date.Month(), rec.Date.Day(), 0, 0, 0, 0, time.UTC),
				Key:  key,
			}
			buckets[bk] = b
			order = append(order, bk)
		}
		b.SpendNative += rec.AmountNative
		b.Leads += rec.Leads
		b.SourceRecords = append(b.SourceRecords, rec)
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].day != order[j].day {
			return order[i].day < order[j].day
		}
		if order[i].product != order[j].product {
			return order[i].product < order[j].product
		}
		return order[i].country < order[j].country
	})

	out := make([]models.AggregatedAttribution, 0, len(order))
	for _, bk := range order {
		b := buckets[bk]
		b.SpendConverted = b.SpendNative * resolver.Resolve(b.Date)
		out = append(out, *b)
	}
	return out
}

// CheckConservation verifies that aggregation preserved the native total.
// A violation is a data-quality signal, not a fatal error: callers log it
// and publish the aggregation anyway.
func CheckConservation(in []models.SpendRecord, out []models.AggregatedAttribution) (diff float64, ok bool) {
	var sumIn, sumOut float64
	for _, r := range in {
		sumIn += r.AmountNative
	}
	for _, b := range out {
		sumOut += b.SpendNative
	}
	diff = sumOut - sumIn
	return diff, math.Abs(diff) <= ConservationEpsilon
}
