package attribution

import (
	"regexp"
	"strings"

	"github.com/tidemetrics/adrecon/internal/models"
)

// CountryTable maps lowercase campaign-name prefixes to canonical country
// codes. The classifier takes the table as explicit input so there is no
// process-wide mutable state.
type CountryTable map[string]string

// DefaultCountryTable covers the markets the dashboard operates in.
func DefaultCountryTable() CountryTable {
	return CountryTable{
		"rdc": "RDC",
		"rc":  "RC",
		"tg":  "TG",
		"gn":  "GN",
		"bn":  "BN",
		"cm":  "CM",
		"bfa": "BFA",
		"mal": "MAL",
	}
}

// Classifier maps raw campaign labels to attribution keys. Classification
// never fails: anything that cannot be attributed lands in the fallback
// bucket so no spend is lost.
type Classifier struct {
	countries CountryTable

	productPatterns []*regexp.Regexp
	countryPatterns []countryPattern
}

type countryPattern struct {
	re   *regexp.Regexp
	code string
}

var (
	nonWordRe    = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NewClassifier builds a classifier over the given country table. The loose
// patterns are derived from the same table so the two policies cannot
// disagree about which countries exist.
func NewClassifier(countries CountryTable) *Classifier {
	c := &Classifier{countries: countries}
	for prefix, code := range countries {
		c.countryPatterns = append(c.countryPatterns, countryPattern{
			re:   regexp.MustCompile(`(?i)(^|[^a-z])` + regexp.QuoteMeta(prefix) + `($|[^a-z])`),
			code: code,
		})
	}
	return c
}

// WithProductPatterns registers the ordered product regexes used by loose
// matching. First match wins.
func (c *Classifier) WithProductPatterns(patterns []string) *Classifier {
	for _, p := range patterns {
		if re, err := regexp.Compile("(?i)" + p); err == nil {
			c.productPatterns = append(c.productPatterns, re)
		}
	}
	return c
}

// Classify applies the strict policy: split the label on "-", look the
// first segment up in the country table, and clean the second segment into
// a product name. Labels that do not fit resolve to the fallback bucket.
//
// This policy is authoritative for the aggregation pipeline; ClassifyLoose
// exists only for review views over looser inputs.
func (c *Classifier) Classify(label string) models.AttributionKey {
	segments := strings.Split(label, "-")
	if len(segments) < 2 {
		return models.FallbackKey()
	}

	countryCode := strings.ToLower(strings.TrimSpace(segments[0]))
	country, ok := c.countries[countryCode]
	if !ok {
		return models.FallbackKey()
	}

	product := cleanProduct(segments[1])
	if product == "" {
		return models.FallbackKey()
	}

	return models.AttributionKey{Product: product, Country: country}
}

// ClassifyLoose tests the label independently against the ordered product
// and country patterns. An axis with no match is left empty; ok reports
// whether both axes matched. Rows with an empty axis are excluded from the
// views that use this policy, never from the pipeline.
func (c *Classifier) ClassifyLoose(label string) (key models.AttributionKey, ok bool) {
	for _, re := range c.productPatterns {
		if m := re.FindString(label); m != "" {
			key.Product = cleanProduct(m)
			break
		}
	}
	for _, cp := range c.countryPatterns {
		if cp.re.MatchString(label) {
			key.Country = cp.code
			break
		}
	}
	return key, key.Product != "" && key.Country != ""
}

// Summarize reports the count and native total of records classified into
// the fallback bucket. Classification failures are data, not errors, and
// the summary is what makes them visible.
func (c *Classifier) Summarize(records []models.SpendRecord) models.UnclassifiedSummary {
	var s models.UnclassifiedSummary
	for _, r := range records {
		if c.Classify(r.CampaignLabel).IsFallback() {
			s.Count++
			s.TotalSpend += r.AmountNative
		}
	}
	return s
}

func cleanProduct(s string) string {
	s = nonWordRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.ToUpper(strings.TrimSpace(s))
}
