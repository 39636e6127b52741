// Package dataset loads the static sales dataset that sessions replay
package dataset

import (
	"context"
	"fmt"

	"github.com/wonny/salespulse/internal/sales"
	"github.com/wonny/salespulse/pkg/config"
	"github.com/wonny/salespulse/pkg/database"
	"github.com/wonny/salespulse/pkg/httputil"
	"github.com/wonny/salespulse/pkg/logger"
)

// Source reads every raw row of a dataset, in replay order
type Source interface {
	// Name identifies the source in logs
	Name() string

	// Load returns all rows; the dataset is read once per process
	Load(ctx context.Context) ([]sales.RawRecord, error)
}

// Dataset is a loaded, read-only sequence of raw rows shared by sessions
type Dataset struct {
	name string
	rows []sales.RawRecord
}

// New wraps rows that were already loaded
func New(name string, rows []sales.RawRecord) *Dataset {
	return &Dataset{name: name, rows: rows}
}

// Name returns the source name
func (d *Dataset) Name() string { return d.name }

// Len returns the number of rows
func (d *Dataset) Len() int { return len(d.rows) }

// Row returns the i-th row; callers must stay within Len
func (d *Dataset) Row(i int) sales.RawRecord { return d.rows[i] }

// Head returns the first n rows, sharing storage with d
func (d *Dataset) Head(n int) *Dataset {
	if n < 0 {
		n = 0
	}
	if n > len(d.rows) {
		n = len(d.rows)
	}
	return &Dataset{name: d.name, rows: d.rows[:n:n]}
}

// Load reads a Source fully into a Dataset
func Load(ctx context.Context, src Source, log *logger.Logger) (*Dataset, error) {
	rows, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset from %s: %w", src.Name(), err)
	}

	malformed := 0
	for _, raw := range rows {
		if raw.Malformed {
			malformed++
		}
	}

	entry := log.WithFields(map[string]interface{}{
		"source":    src.Name(),
		"rows":      len(rows),
		"malformed": malformed,
	})
	if malformed > 0 {
		entry.Warn("Dataset loaded with unreadable rows")
	} else {
		entry.Info("Dataset loaded")
	}

	return New(src.Name(), rows), nil
}

// Open builds the configured Source and loads it
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Dataset, error) {
	switch cfg.Dataset.Source {
	case "csv":
		return Load(ctx, NewCSVFileSource(cfg.Dataset.Path), log)

	case "http":
		client := httputil.New(log.WithComponent("dataset"))
		return Load(ctx, NewHTTPSource(client, cfg.Dataset.URL), log)

	case "postgres":
		db, err := database.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		// rows are fully read into memory, so the pool is not needed afterwards
		defer db.Close()
		return Load(ctx, NewPostgresSource(db.Pool, cfg.Dataset.Table), log)

	default:
		return nil, fmt.Errorf("unknown dataset source %q", cfg.Dataset.Source)
	}
}
