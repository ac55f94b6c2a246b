package recon

import (
	"testing"
	"time"

	"github.com/tidemetrics/adrecon/internal/models"
)

type fixedRate float64

func (f fixedRate) Resolve(time.Time) float64 { return float64(f) }

func TestClassifyTier(t *testing.T) {
	tests := []struct {
		name string
		roi  float64
		cpd  float64
		want models.PerformanceTier
	}{
		{"clearly profitable", 50, 100, models.TierProfitable},
		{"roi at lower bound", 20, 129.99, models.TierProfitable},
		{"cpd at exclusive bound", 20, 130, models.TierNeedsImprovement},
		{"roi in improve band", 15, 100, models.TierNeedsImprovement},
		{"roi at improve floor", 10, 200, models.TierNeedsImprovement},
		{"cpd in improve band", 5, 140, models.TierNeedsImprovement},
		{"cpd at improve ceiling", -50, 150, models.TierNeedsImprovement},
		{"high roi high cpd", 25, 135, models.TierNeedsImprovement},
		{"loss", 5, 160, models.TierLoss},
		{"negative roi cheap cpd", -20, 50, models.TierLoss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyTier(tt.roi, tt.cpd); got != tt.want {
				t.Errorf("ClassifyTier(%v, %v) = %s, want %s", tt.roi, tt.cpd, got, tt.want)
			}
		})
	}
}

func TestComputeMetrics(t *testing.T) {
	r := models.ReconciledRecord{
		SpendNative:    100,
		SpendConverted: 1000,
		Leads:          20,
		DeliveryCount:  10,
	}
	ComputeMetrics(&r, 150)

	if r.CPL != 5 {
		t.Errorf("CPL = %v, want 5", r.CPL)
	}
	if r.CPD != 100 {
		t.Errorf("CPD = %v, want 100", r.CPD)
	}
	if r.DeliveryRate != 50 {
		t.Errorf("DeliveryRate = %v, want 50", r.DeliveryRate)
	}
	if r.Revenue != 1500 {
		t.Errorf("Revenue = %v, want 1500", r.Revenue)
	}
	if r.NetProfit != 500 {
		t.Errorf("NetProfit = %v, want 500", r.NetProfit)
	}
	if r.ROI != 50 {
		t.Errorf("ROI = %v, want 50", r.ROI)
	}
	if r.Tier != models.TierProfitable {
		t.Errorf("Tier = %s, want profitable", r.Tier)
	}
}

func TestComputeMetricsZeroDenominators(t *testing.T) {
	r := models.ReconciledRecord{}
	ComputeMetrics(&r, 150)

	for name, v := range map[string]float64{
		"CPL": r.CPL, "CPD": r.CPD, "DeliveryRate": r.DeliveryRate, "ROI": r.ROI,
	} {
		if v != 0 {
			t.Errorf("%s = %v, want 0 for empty record", name, v)
		}
	}
}

func TestComputeMetricsDeliveriesWithoutSpend(t *testing.T) {
	// Delivery-only keys still produce revenue, never NaN.
	r := models.ReconciledRecord{DeliveryCount: 4}
	ComputeMetrics(&r, 150)

	if r.Revenue != 600 || r.NetProfit != 600 {
		t.Errorf("Revenue/NetProfit = %v/%v, want 600/600", r.Revenue, r.NetProfit)
	}
	if r.ROI != 0 {
		t.Errorf("ROI = %v, want 0 with zero spend", r.ROI)
	}
}

func TestCatalogMargin(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	catalog := Catalog{
		"VIRAMAX": {Name: "VIRAMAX", MarginPerDelivery: 200, MarginCurrency: models.MarginLocal},
		"GELX":    {Name: "GELX", MarginPerDelivery: 15, MarginCurrency: models.MarginUSD},
	}

	if got := catalog.Margin("VIRAMAX", now, fixedRate(10)); got != 200 {
		t.Errorf("local margin = %v, want 200", got)
	}
	if got := catalog.Margin("GELX", now, fixedRate(10)); got != 150 {
		t.Errorf("usd margin = %v, want 150 after conversion", got)
	}
	if got := catalog.Margin("UNKNOWN_PRODUCT", now, fixedRate(10)); got != models.DefaultMarginPerDelivery {
		t.Errorf("missing product margin = %v, want default", got)
	}
}
