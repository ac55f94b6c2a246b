package recon

import (
	"sort"
	"time"

	"github.com/tidemetrics/adrecon/internal/models"
)

// Reconciler merges aggregated spend with delivery counts into the derived
// profitability view.
type Reconciler struct {
	catalog  Catalog
	resolver RateResolver
}

// NewReconciler creates a reconciler over a catalog snapshot and rate
// resolver. Both are immutable for the lifetime of one pass.
func NewReconciler(catalog Catalog, resolver RateResolver) *Reconciler {
	return &Reconciler{catalog: catalog, resolver: resolver}
}

// Reconcile outer-joins spend and deliveries on (product, country). A key
// present only in deliveries still yields a record with zero spend, and a
// key present only in spend yields a record with zero deliveries; no key is
// silently dropped. Multiple delivery rows for one key sum their counts.
// Output is sorted by product then country.
func (rc *Reconciler) Reconcile(agg []models.AggregatedAttribution, deliveries []models.DeliveryRecord) []models.ReconciledRecord {
	byKey := make(map[models.AttributionKey]*models.ReconciledRecord)
	var order []models.AttributionKey

	get := func(key models.AttributionKey) *models.ReconciledRecord {
		r, ok := byKey[key]
		if !ok {
			r = &models.ReconciledRecord{Key: key}
			byKey[key] = r
			order = append(order, key)
		}
		return r
	}

	var latest time.Time
	for _, a := range agg {
		r := get(a.Key)
		r.SpendNative += a.SpendNative
		r.SpendConverted += a.SpendConverted
		r.Leads += a.Leads
		if a.Date.After(latest) {
			latest = a.Date
		}
	}
	for _, d := range deliveries {
		r := get(d.Key())
		r.DeliveryCount += d.Count
		if d.Date.After(latest) {
			latest = d.Date
		}
	}
	if latest.IsZero() {
		latest = time.Now().UTC()
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].Product != order[j].Product {
			return order[i].Product < order[j].Product
		}
		return order[i].Country < order[j].Country
	})

	out := make([]models.ReconciledRecord, 0, len(order))
	for _, key := range order {
		r := byKey[key]
		ComputeMetrics(r, rc.catalog.Margin(key.Product, latest, rc.resolver))
		out = append(out, *r)
	}
	return out
}

// ReconcileDaily joins at (date, product, country) granularity. It backs
// the detail/edit view only; profitability aggregates use Reconcile.
func (rc *Reconciler) ReconcileDaily(agg []models.AggregatedAttribution, deliveries []models.DeliveryRecord) []models.ReconciledRecord {
	type dailyKey struct {
		day     string
		product string
		country string
	}

	byKey := make(map[dailyKey]*models.ReconciledRecord)
	var order []dailyKey

	get := func(dk dailyKey, date time.Time, key models.AttributionKey) *models.ReconciledRecord {
		r, ok := byKey[dk]
		if !ok {
			d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
			r = &models.ReconciledRecord{Key: key, Date: &d}
			byKey[dk] = r
			order = append(order, dk)
		}
		return r
	}

	for _, a := range agg {
		dk := dailyKey{day: a.Date.Format("2006-01-02"), product: a.Key.Product, country: a.Key.Country}
		r := get(dk, a.Date, a.Key)
		r.SpendNative += a.SpendNative
		r.SpendConverted += a.SpendConverted
		r.Leads += a.Leads
	}
	for _, d := range deliveries {
		dk := dailyKey{day: d.Date.Format("2006-01-02"), product: d.Product, country: d.Country}
		r := get(dk, d.Date, d.Key())
		r.DeliveryCount += d.Count
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

	out := make([]models.ReconciledRecord, 0, len(order))
	for _, dk := range order {
		r := byKey[dk]
		ComputeMetrics(r, rc.catalog.Margin(r.Key.Product, *r.Date, rc.resolver))
		out = append(out, *r)
	}
	return out
}

// RollupByProduct sums country-level rows into per-product totals. Rollup
// KPIs are recomputed from the summed figures, not averaged from the rows.
func RollupByProduct(records []models.ReconciledRecord) []models.ProductRollup {
	byProduct := make(map[string]*models.ProductRollup)
	var order []string

	for _, r := range records {
		p, ok := byProduct[r.Key.Product]
		if !ok {
			p = &models.ProductRollup{Product: r.Key.Product}
			byProduct[r.Key.Product] = p
			order = append(order, r.Key.Product)
		}
		p.SpendNative += r.SpendNative
		p.SpendConverted += r.SpendConverted
		p.Leads += r.Leads
		p.DeliveryCount += r.DeliveryCount
		p.Revenue += r.Revenue
		p.NetProfit += r.NetProfit
		p.Countries = append(p.Countries, r)
	}

	sort.Strings(order)

	out := make([]models.ProductRollup, 0, len(order))
	for _, name := range order {
		p := byProduct[name]
		if p.DeliveryCount > 0 {
			p.CPD = p.SpendConverted / float64(p.DeliveryCount)
		}
		if p.SpendConverted > 0 {
			p.ROI = p.NetProfit / p.SpendConverted * 100
		}
		p.Tier = ClassifyTier(p.ROI, p.CPD)
		out = append(out, *p)
	}
	return out
}
