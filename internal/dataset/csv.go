package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wonny/salespulse/internal/sales"
)

// Column names of the retail dataset, matched case-insensitively
const (
	ColCustomerID  = "customerid"
	ColCountry     = "country"
	ColDescription = "description"
	ColQuantity    = "quantity"
	ColUnitPrice   = "unitprice"
	ColInvoiceDate = "invoicedate"
)

var requiredColumns = []string{ColCustomerID, ColCountry, ColDescription, ColQuantity, ColUnitPrice}

// CSVFileSource reads the dataset from a CSV file with a header row
type CSVFileSource struct {
	path string
}

// NewCSVFileSource creates a CSV file source
func NewCSVFileSource(path string) *CSVFileSource {
	return &CSVFileSource{path: path}
}

// Name implements Source
func (s *CSVFileSource) Name() string { return "csv:" + s.path }

// Load implements Source
func (s *CSVFileSource) Load(ctx context.Context) ([]sales.RawRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening csv %s: %w", s.path, err)
	}
	defer f.Close()

	return ParseCSV(ctx, f)
}

// columnIndex maps normalized header names to positions
type columnIndex map[string]int

func newColumnIndex(headers []string) (columnIndex, error) {
	idx := make(columnIndex, len(headers))
	for i, h := range headers {
		key := normalizeHeader(h)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	return idx, nil
}

// normalizeHeader folds "Customer ID", "customer_id" and "CustomerID" together
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "").Replace(h)
}

// cell returns nil for absent or empty cells, like a dataframe's NaN
func (idx columnIndex) cell(row []string, col string) *string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return nil
	}
	v := row[i]
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func (idx columnIndex) text(row []string, col string) string {
	if v := idx.cell(row, col); v != nil {
		return *v
	}
	return ""
}

// ParseCSV reads a header row followed by data rows
// Quoting follows RFC 4180. A row the reader cannot parse is kept as a
// malformed record so row numbers and the update cadence match the file.
func ParseCSV(ctx context.Context, r io.Reader) ([]sales.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv headers: %w", err)
	}

	idx, err := newColumnIndex(headers)
	if err != nil {
		return nil, err
	}

	var rows []sales.RawRecord
	for n := 0; ; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rows = append(rows, sales.RawRecord{Row: len(rows), Malformed: true})
				continue
			}
			return nil, fmt.Errorf("reading csv row %d: %w", n+1, err)
		}

		rows = append(rows, sales.RawRecord{
			Row:         len(rows),
			CustomerID:  idx.cell(record, ColCustomerID),
			Country:     idx.cell(record, ColCountry),
			Description: idx.cell(record, ColDescription),
			Quantity:    idx.text(record, ColQuantity),
			UnitPrice:   idx.text(record, ColUnitPrice),
			InvoiceDate: idx.text(record, ColInvoiceDate),
		})
	}

	return rows, nil
}
