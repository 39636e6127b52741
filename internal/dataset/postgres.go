package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/salespulse/internal/sales"
)

// Querier is the subset of pgxpool.Pool the source needs
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads the dataset from a table with the columns
// customer_id, country, description, quantity, unit_price, invoice_date
type PostgresSource struct {
	db    Querier
	table string
}

// NewPostgresSource creates a PostgreSQL table source
// table may be schema-qualified ("retail.online_retail")
func NewPostgresSource(db Querier, table string) *PostgresSource {
	return &PostgresSource{db: db, table: table}
}

// Name implements Source
func (s *PostgresSource) Name() string { return "postgres:" + s.table }

// query casts every column to text so garbage values reach the validator untouched
// ctid keeps the physical load order, which is the replay order
func (s *PostgresSource) query() string {
	ident := pgx.Identifier(strings.Split(s.table, ".")).Sanitize()
	return fmt.Sprintf(`
		SELECT
			customer_id::text,
			country::text,
			description::text,
			COALESCE(quantity::text, ''),
			COALESCE(unit_price::text, ''),
			COALESCE(invoice_date::text, '')
		FROM %s
		ORDER BY ctid
	`, ident)
}

// Load implements Source
func (s *PostgresSource) Load(ctx context.Context) ([]sales.RawRecord, error) {
	rows, err := s.db.Query(ctx, s.query())
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []sales.RawRecord
	for rows.Next() {
		rec := sales.RawRecord{Row: len(out)}
		if err := rows.Scan(
			&rec.CustomerID,
			&rec.Country,
			&rec.Description,
			&rec.Quantity,
			&rec.UnitPrice,
			&rec.InvoiceDate,
		); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(out), err)
		}
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.table, err)
	}

	return out, nil
}
