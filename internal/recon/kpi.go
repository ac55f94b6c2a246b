package recon

import (
	"time"

	"github.com/tidemetrics/adrecon/internal/models"
)

// Tier thresholds. CPD bounds are in local currency.
const (
	profitableMinROI = 20.0
	profitableMaxCPD = 130.0
	improveMinROI    = 10.0
	improveMaxCPD    = 150.0
)

// Catalog is a snapshot of the product catalog, keyed by product name.
type Catalog map[string]models.Product

// Margin returns the configured margin per delivery in local currency for
// the given product and date. Missing products fall back to the default
// margin; USD margins are converted at the resolved rate for the date.
func (c Catalog) Margin(product string, date time.Time, resolver RateResolver) float64 {
	p, ok := c[product]
	if !ok {
		return models.DefaultMarginPerDelivery
	}
	if p.MarginCurrency == models.MarginUSD {
		return p.MarginPerDelivery * resolver.Resolve(date)
	}
	return p.MarginPerDelivery
}

// RateResolver is the slice of the rates package this package needs.
type RateResolver interface {
	Resolve(date time.Time) float64
}

// ComputeMetrics fills the derived KPI fields of a reconciled record in
// place. Zero denominators yield zero metrics, never NaN or Inf.
func ComputeMetrics(r *models.ReconciledRecord, marginPerDelivery float64) {
	if r.Leads > 0 {
		r.CPL = r.SpendNative / float64(r.Leads)
		r.DeliveryRate = float64(r.DeliveryCount) / float64(r.Leads) * 100
	} else {
		r.CPL = 0
		r.DeliveryRate = 0
	}

	if r.DeliveryCount > 0 {
		r.CPD = r.SpendConverted / float64(r.DeliveryCount)
	} else {
		r.CPD = 0
	}

	r.Revenue = float64(r.DeliveryCount) * marginPerDelivery
	r.NetProfit = r.Revenue - r.SpendConverted

	if r.SpendConverted > 0 {
		r.ROI = r.NetProfit / r.SpendConverted * 100
	} else {
		r.ROI = 0
	}

	r.Tier = ClassifyTier(r.ROI, r.CPD)
}

// ClassifyTier maps ROI and CPD onto a performance tier. Rules are
// evaluated in order, first match wins. The CPD bound for profitable is
// exclusive at 130; the needs_improvement bounds are inclusive.
func ClassifyTier(roi, cpd float64) models.PerformanceTier {
	if roi >= profitableMinROI && cpd < profitableMaxCPD {
		return models.TierProfitable
	}
	if (roi >= improveMinROI && roi <= profitableMinROI) ||
		(cpd >= profitableMaxCPD && cpd <= improveMaxCPD) {
		return models.TierNeedsImprovement
	}
	return models.TierLoss
}
