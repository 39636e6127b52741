// Package sales holds the typed transaction records and the row validator
// Gate order
// 0 the source could read the row at all
// 1 CustomerID present
// 2 Country present
// 3 Country not a reserved placeholder (unspecified, nan, none, blank)
// 4 Country title-cased
// 5 Description trimmed and upper-cased
// 6 Quantity and UnitPrice coerced to numbers, NaN on failure
// 7 Quantity and UnitPrice strictly positive and finite
// 8 TotalRevenue derived and finite
package sales

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// reservedCountries are placeholder values treated as missing
var reservedCountries = map[string]struct{}{
	"unspecified": {},
	"nan":         {},
	"none":        {},
	"":            {},
}

// invoiceLayouts are the date formats seen in exported retail datasets
var invoiceLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"2006-01-02",
}

// casers are not safe for concurrent use, so each call borrows one
var (
	titlePool = sync.Pool{New: func() any { c := cases.Title(language.Und); return &c }}
	upperPool = sync.Pool{New: func() any { c := cases.Upper(language.Und); return &c }}
)

// Validate cleans one raw row. It never panics and never returns an error:
// a bad row comes back as a Rejected result with the failing gate's reason.
func Validate(raw RawRecord) (res Result) {
	defer func() {
		if recover() != nil {
			res = Rejected(ReasonMalformed)
		}
	}()

	if raw.Malformed {
		return Rejected(ReasonMalformed)
	}
	if raw.CustomerID == nil || strings.TrimSpace(*raw.CustomerID) == "" {
		return Rejected(ReasonMissingCustomerID)
	}
	if raw.Country == nil {
		return Rejected(ReasonMissingCountry)
	}

	country := strings.TrimSpace(*raw.Country)
	if IsReservedCountry(country) {
		return Rejected(ReasonReservedCountry)
	}

	rec := CleanRecord{
		Row:         raw.Row,
		CustomerID:  strings.TrimSpace(*raw.CustomerID),
		Country:     titleCase(country),
		Description: normalizeDescription(raw.Description),
		Quantity:    coerceNumber(raw.Quantity),
		UnitPrice:   coerceNumber(raw.UnitPrice),
	}

	if !isPositive(rec.Quantity) {
		return Rejected(ReasonInvalidQuantity)
	}
	if !isPositive(rec.UnitPrice) {
		return Rejected(ReasonInvalidUnitPrice)
	}

	// two finite factors can still overflow
	rec.TotalRevenue = rec.Quantity * rec.UnitPrice
	if math.IsInf(rec.TotalRevenue, 0) {
		return Rejected(ReasonInvalidRevenue)
	}
	rec.InvoiceDate = parseInvoiceDate(raw.InvoiceDate)

	return Accepted(rec)
}

// IsReservedCountry reports whether a trimmed country is a placeholder
func IsReservedCountry(country string) bool {
	_, reserved := reservedCountries[strings.ToLower(strings.TrimSpace(country))]
	return reserved
}

func titleCase(s string) string {
	c := titlePool.Get().(*cases.Caser)
	defer titlePool.Put(c)
	return c.String(s)
}

func normalizeDescription(desc *string) string {
	if desc == nil {
		return ""
	}
	c := upperPool.Get().(*cases.Caser)
	defer upperPool.Put(c)
	return c.String(strings.TrimSpace(*desc))
}

// parseFloat is swapped in tests to drive the recover path
var parseFloat = strconv.ParseFloat

// coerceNumber returns NaN for anything that is not a number
func coerceNumber(s string) float64 {
	v, err := parseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// isPositive is false for NaN and infinities as well as for v <= 0
func isPositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func parseInvoiceDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range invoiceLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
