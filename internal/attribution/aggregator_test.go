package attribution

import (
	"reflect"
	"testing"
	"time"

	"github.com/tidemetrics/adrecon/internal/models"
)

type fixedRate float64

func (f fixedRate) Resolve(time.Time) float64 { return float64(f) }

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestAggregateGroupsByDateProductCountry(t *testing.T) {
	agg := NewAggregator(NewClassifier(DefaultCountryTable()))

	records := []models.SpendRecord{
		{Date: day(1), CampaignLabel: "rdc-viramax-01", AmountNative: 100, Leads: 10},
		{Date: day(1), CampaignLabel: "rdc-viramax-02", AmountNative: 50, Leads: 5},
		{Date: day(1), CampaignLabel: "tg-viramax-01", AmountNative: 30, Leads: 3},
		{Date: day(2), CampaignLabel: "rdc-viramax-01", AmountNative: 20, Leads: 2},
	}

	out := agg.Aggregate(records, fixedRate(10))
	if len(out) != 3 {
		t.Fatalf("got %d buckets, want 3", len(out))
	}

	first := out[0]
	if first.Key.Product != "VIRAMAX" || first.Key.Country != "RDC" {
		t.Errorf("first bucket key = %+v", first.Key)
	}
	if first.SpendNative != 150 || first.Leads != 15 {
		t.Errorf("first bucket sums = %v/%d, want 150/15", first.SpendNative, first.Leads)
	}
	if first.SpendConverted != 1500 {
		t.Errorf("first bucket converted = %v, want 1500", first.SpendConverted)
	}
	if len(first.SourceRecords) != 2 {
		t.Errorf("first bucket has %d source records, want 2", len(first.SourceRecords))
	}
}

func TestAggregateNoSpendLost(t *testing.T) {
	agg := NewAggregator(NewClassifier(DefaultCountryTable()))

	records := []models.SpendRecord{
		{Date: day(1), CampaignLabel: "rdc-viramax", AmountNative: 100},
		{Date: day(1), CampaignLabel: "garbage label", AmountNative: 33.25},
		{Date: day(1), CampaignLabel: "", AmountNative: 7},
	}

	out := agg.Aggregate(records, fixedRate(1))

	diff, ok := CheckConservation(records, out)
	if !ok {
		t.Errorf("conservation violated, diff = %v", diff)
	}

	// Unclassifiable rows land in the fallback bucket, not on the floor.
	var fallback *models.AggregatedAttribution
	for i := range out {
		if out[i].Key.IsFallback() {
			fallback = &out[i]
		}
	}
	if fallback == nil {
		t.Fatal("no fallback bucket in output")
	}
	if fallback.SpendNative != 40.25 {
		t.Errorf("fallback spend = %v, want 40.25", fallback.SpendNative)
	}
}

func TestAggregateDeterministic(t *testing.T) {
	agg := NewAggregator(NewClassifier(DefaultCountryTable()))

	records := []models.SpendRecord{
		{Date: day(2), CampaignLabel: "tg-b", AmountNative: 1},
		{Date: day(1), CampaignLabel: "rdc-a", AmountNative: 2},
		{Date: day(1), CampaignLabel: "gn-c", AmountNative: 3},
		{Date: day(1), CampaignLabel: "rdc-a", AmountNative: 4},
	}

	a := agg.Aggregate(records, fixedRate(10))
	b := agg.Aggregate(records, fixedRate(10))
	if !reflect.DeepEqual(a, b) {
		t.Error("re-aggregation of identical input produced different output")
	}

	// Sorted by date, product, country.
	for i := 1; i < len(a); i++ {
		prev, cur := a[i-1], a[i]
		if cur.Date.Before(prev.Date) {
			t.Errorf("output not sorted by date at %d", i)
		}
	}
}

func TestCheckConservationDetectsDrift(t *testing.T) {
	in := []models.SpendRecord{{AmountNative: 100}}
	out := []models.AggregatedAttribution{{SpendNative: 90}}

	diff, ok := CheckConservation(in, out)
	if ok {
		t.Error("expected conservation violation")
	}
	if diff != -10 {
		t.Errorf("diff = %v, want -10", diff)
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	agg := NewAggregator(NewClassifier(DefaultCountryTable()))

	out := agg.Aggregate(nil, fixedRate(10))
	if len(out) != 0 {
		t.Errorf("got %d buckets for empty input", len(out))
	}
	if diff, ok := CheckConservation(nil, out); !ok || diff != 0 {
		t.Errorf("empty input conservation: diff=%v ok=%v", diff, ok)
	}
}
