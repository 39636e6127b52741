// Package metrics derives grouped statistics from a window of clean records.
// Every function here is pure: identical input yields identical output.
package metrics

import (
	"errors"
	"sort"
	"time"

	"github.com/wonny/salespulse/internal/sales"
)

// TopN is the length of each product ranking
const TopN = 5

// ErrEmptyWindow is returned when metrics are requested for an empty window
var ErrEmptyWindow = errors.New("metrics: empty window")

// Compute builds a full Snapshot from the window records
// ComputedAt is left zero; callers stamp it
func Compute(records []sales.CleanRecord) (Snapshot, error) {
	if len(records) == 0 {
		return Snapshot{}, ErrEmptyWindow
	}

	return Snapshot{
		Summary:       Summarize(records),
		Countries:     CountryBreakdown(records),
		TopByQuantity: TopItems(records, MeasureQuantity, TopN),
		TopByRevenue:  TopItems(records, MeasureRevenue, TopN),
		TimeSeries:    CumulativeRevenue(records),
	}, nil
}

// Summarize computes the KPI row
func Summarize(records []sales.CleanRecord) Summary {
	countries := make(map[string]struct{})
	var s Summary
	for _, rec := range records {
		s.Revenue += rec.TotalRevenue
		s.UnitsSold += rec.Quantity
		countries[rec.Country] = struct{}{}
	}
	s.ActiveCountries = len(countries)
	s.Records = len(records)
	return s
}

// CountryBreakdown groups records by country, ordered by country name
func CountryBreakdown(records []sales.CleanRecord) []CountryStats {
	type group struct {
		stats     CountryStats
		customers map[string]struct{}
	}

	groups := make(map[string]*group)
	var total float64

	for _, rec := range records {
		g, ok := groups[rec.Country]
		if !ok {
			g = &group{
				stats:     CountryStats{Country: rec.Country},
				customers: make(map[string]struct{}),
			}
			groups[rec.Country] = g
		}
		g.stats.TotalRevenue += rec.TotalRevenue
		g.stats.Orders++
		g.customers[rec.CustomerID] = struct{}{}
		total += rec.TotalRevenue
	}

	out := make([]CountryStats, 0, len(groups))
	for _, g := range groups {
		g.stats.UniqueCustomers = len(g.customers)
		if total > 0 {
			g.stats.PercentageOfRevenue = g.stats.TotalRevenue / total * 100
		}
		out = append(out, g.stats)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Country < out[j].Country
	})
	return out
}

// TopItems ranks products by the summed measure, descending, keeping at most n
// Equal values keep the order in which the product first appeared
func TopItems(records []sales.CleanRecord, measure Measure, n int) []TopItem {
	if n <= 0 {
		return []TopItem{}
	}

	index := make(map[string]int)
	items := make([]TopItem, 0)

	for _, rec := range records {
		v := rec.Quantity
		if measure == MeasureRevenue {
			v = rec.TotalRevenue
		}

		i, ok := index[rec.Description]
		if !ok {
			i = len(items)
			index[rec.Description] = i
			items = append(items, TopItem{Description: rec.Description})
		}
		items[i].Value += v
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Value > items[j].Value
	})

	if len(items) > n {
		items = items[:n]
	}
	return items
}

// CumulativeRevenue orders dated records by invoice time and accumulates revenue
// Records sharing a timestamp collapse into one point; undated records are skipped
func CumulativeRevenue(records []sales.CleanRecord) []TimeSeriesPoint {
	dated := make([]sales.CleanRecord, 0, len(records))
	for _, rec := range records {
		if rec.HasInvoiceDate() {
			dated = append(dated, rec)
		}
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].InvoiceDate.Before(dated[j].InvoiceDate)
	})

	points := make([]TimeSeriesPoint, 0, len(dated))
	var running float64
	var last time.Time

	for _, rec := range dated {
		running += rec.TotalRevenue
		if len(points) > 0 && rec.InvoiceDate.Equal(last) {
			p := &points[len(points)-1]
			p.Revenue += rec.TotalRevenue
			p.CumulativeRevenue = running
			continue
		}
		points = append(points, TimeSeriesPoint{
			Timestamp:         rec.InvoiceDate,
			Revenue:           rec.TotalRevenue,
			CumulativeRevenue: running,
		})
		last = rec.InvoiceDate
	}

	return points
}
