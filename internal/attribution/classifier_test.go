package attribution

import (
	"testing"
	"time"

	"github.com/tidemetrics/adrecon/internal/models"
)

func TestClassifyStrict(t *testing.T) {
	c := NewClassifier(DefaultCountryTable())

	tests := []struct {
		label   string
		product string
		country string
	}{
		{"rdc-viramax-01", "VIRAMAX", "RDC"},
		{"RDC-Viramax-01", "VIRAMAX", "RDC"},
		{" tg - slimfit ", "SLIMFIT", "TG"},
		{"cm-vira max!!-retarget", "VIRA MAX", "CM"},
		{"bfa-gelx", "GELX", "BFA"},
	}

	for _, tt := range tests {
		key := c.Classify(tt.label)
		if key.Product != tt.product || key.Country != tt.country {
			t.Errorf("Classify(%q) = %+v, want {%s %s}", tt.label, key, tt.product, tt.country)
		}
	}
}

func TestClassifyFallback(t *testing.T) {
	c := NewClassifier(DefaultCountryTable())

	labels := []string{
		"viramax",        // no separator
		"us-viramax-01",  // unknown country
		"rdc-",           // empty product segment
		"rdc-!!!",        // product cleans to empty
		"",               // empty label
	}

	for _, label := range labels {
		key := c.Classify(label)
		if !key.IsFallback() {
			t.Errorf("Classify(%q) = %+v, want fallback bucket", label, key)
		}
	}
}

func TestClassifyNeverFails(t *testing.T) {
	c := NewClassifier(DefaultCountryTable())

	// Every label maps to some key; nothing is dropped.
	for _, label := range []string{"", "-", "x", "rdc-ok", "???-???"} {
		key := c.Classify(label)
		if key.Product == "" || key.Country == "" {
			t.Errorf("Classify(%q) returned incomplete key %+v", label, key)
		}
	}
}

func TestClassifyLoose(t *testing.T) {
	c := NewClassifier(DefaultCountryTable()).
		WithProductPatterns([]string{`viramax`, `slimfit`})

	key, ok := c.ClassifyLoose("Conversion RDC Viramax retarget")
	if !ok {
		t.Fatalf("expected loose match, got ok=false key=%+v", key)
	}
	if key.Product != "VIRAMAX" || key.Country != "RDC" {
		t.Errorf("ClassifyLoose = %+v, want {VIRAMAX RDC}", key)
	}

	// One axis missing is not a match.
	if _, ok := c.ClassifyLoose("Conversion Viramax retarget"); ok {
		t.Error("expected ok=false when country axis is missing")
	}
	if _, ok := c.ClassifyLoose("Conversion RDC retarget"); ok {
		t.Error("expected ok=false when product axis is missing")
	}
}

func TestClassifyLooseDoesNotMatchSubstrings(t *testing.T) {
	c := NewClassifier(DefaultCountryTable())

	// "rc" inside a longer word must not count as the RC market.
	if _, ok := c.ClassifyLoose("force-test"); ok {
		t.Error("country pattern matched inside an unrelated word")
	}
}

func TestSummarize(t *testing.T) {
	c := NewClassifier(DefaultCountryTable())
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	records := []models.SpendRecord{
		{Date: day, CampaignLabel: "rdc-viramax-01", AmountNative: 100},
		{Date: day, CampaignLabel: "mystery campaign", AmountNative: 40},
		{Date: day, CampaignLabel: "us-viramax", AmountNative: 10.5},
	}

	s := c.Summarize(records)
	if s.Count != 2 {
		t.Errorf("unclassified count = %d, want 2", s.Count)
	}
	if s.TotalSpend != 50.5 {
		t.Errorf("unclassified spend = %v, want 50.5", s.TotalSpend)
	}
}
