package sales

import "time"

// RawRecord is one untrusted row from the source dataset
// Nil pointers mean the cell was missing; Malformed marks a row the
// source could not parse, kept so row numbering matches the source
type RawRecord struct {
	Row         int     `json:"row"`
	Malformed   bool    `json:"malformed,omitempty"`
	CustomerID  *string `json:"customer_id"`
	Country     *string `json:"country"`
	Description *string `json:"description"`
	Quantity    string  `json:"quantity"`
	UnitPrice   string  `json:"unit_price"`
	InvoiceDate string  `json:"invoice_date,omitempty"`
}

// CleanRecord is a validated transaction line
// ⭐ SSOT: only Validate constructs CleanRecord values
type CleanRecord struct {
	Row          int       `json:"row"`
	CustomerID   string    `json:"customer_id"`
	Country      string    `json:"country"`
	Description  string    `json:"description"`
	Quantity     float64   `json:"quantity"`
	UnitPrice    float64   `json:"unit_price"`
	TotalRevenue float64   `json:"total_revenue"`
	InvoiceDate  time.Time `json:"invoice_date,omitempty"`
}

// HasInvoiceDate reports whether the source row carried a parseable date
func (r CleanRecord) HasInvoiceDate() bool {
	return !r.InvoiceDate.IsZero()
}

// Raw converts a clean record back into raw form so it can be re-validated
func (r CleanRecord) Raw() RawRecord {
	customerID := r.CustomerID
	country := r.Country
	description := r.Description

	raw := RawRecord{
		Row:         r.Row,
		CustomerID:  &customerID,
		Country:     &country,
		Description: &description,
		Quantity:    formatNumber(r.Quantity),
		UnitPrice:   formatNumber(r.UnitPrice),
	}
	if r.HasInvoiceDate() {
		raw.InvoiceDate = r.InvoiceDate.Format(time.RFC3339)
	}
	return raw
}

// Reason explains why a raw record was rejected
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonMissingCustomerID Reason = "missing_customer_id"
	ReasonMissingCountry    Reason = "missing_country"
	ReasonReservedCountry   Reason = "reserved_country"
	ReasonInvalidQuantity   Reason = "invalid_quantity"
	ReasonInvalidUnitPrice  Reason = "invalid_unit_price"
	ReasonInvalidRevenue    Reason = "invalid_revenue"
	ReasonMalformed         Reason = "malformed"
)

// Reasons lists every rejection reason in gate order
func Reasons() []Reason {
	return []Reason{
		ReasonMissingCustomerID,
		ReasonMissingCountry,
		ReasonReservedCountry,
		ReasonInvalidQuantity,
		ReasonInvalidUnitPrice,
		ReasonInvalidRevenue,
		ReasonMalformed,
	}
}

// Result is either an accepted CleanRecord or a rejection reason
type Result struct {
	Record CleanRecord
	Reason Reason
}

// Accepted wraps a clean record
func Accepted(rec CleanRecord) Result {
	return Result{Record: rec}
}

// Rejected wraps a rejection reason
func Rejected(reason Reason) Result {
	return Result{Reason: reason}
}

// OK reports whether the record passed validation
func (r Result) OK() bool {
	return r.Reason == ReasonNone
}
