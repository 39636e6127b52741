// Package dashboard shapes metrics snapshots into the payload every
// client sees, whether it polls the API or follows the live stream
package dashboard

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/salespulse/internal/metrics"
	"github.com/wonny/salespulse/internal/replay"
)

// Round fixes v to places decimals for display
// JSON has no NaN or infinity, so those come out as 0.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// KPIView is the headline row of the dashboard
type KPIView struct {
	Revenue         float64 `json:"revenue"`
	ActiveCountries int     `json:"active_countries"`
	UnitsSold       float64 `json:"units_sold"`
	Records         int     `json:"records"`
}

// CountryView is one row of the revenue-by-country table
type CountryView struct {
	Country         string  `json:"country"`
	Revenue         float64 `json:"revenue"`
	Orders          int     `json:"orders"`
	UniqueCustomers int     `json:"unique_customers"`
	Share           float64 `json:"share_pct"`
}

// ItemView is one bar of a top-products chart
type ItemView struct {
	Description string  `json:"description"`
	Value       float64 `json:"value"`
}

// PointView is one point of the cumulative revenue line
type PointView struct {
	Timestamp         time.Time `json:"timestamp"`
	Revenue           float64   `json:"revenue"`
	CumulativeRevenue float64   `json:"cumulative_revenue"`
}

// MetricsView is the dashboard payload for one session
// ⭐ SSOT: the only metrics shape written to clients and caches
type MetricsView struct {
	SessionID     string        `json:"session_id"`
	ComputedAt    time.Time     `json:"computed_at"`
	KPIs          KPIView       `json:"kpis"`
	Countries     []CountryView `json:"countries"`
	TopByQuantity []ItemView    `json:"top_by_quantity"`
	TopByRevenue  []ItemView    `json:"top_by_revenue"`
	TimeSeries    []PointView   `json:"time_series"`
}

// TickView is one live update: the row that triggered it, the metrics
// and the session counters at that moment
type TickView struct {
	Row     int           `json:"row"`
	Metrics MetricsView   `json:"metrics"`
	Status  replay.Status `json:"status"`
}

// Present rounds money to cents and shares to one decimal
// Countries are listed by revenue, largest first
func Present(sessionID string, snap metrics.Snapshot) MetricsView {
	view := MetricsView{
		SessionID:  sessionID,
		ComputedAt: snap.ComputedAt,
		KPIs: KPIView{
			Revenue:         Round(snap.Summary.Revenue, 2),
			ActiveCountries: snap.Summary.ActiveCountries,
			UnitsSold:       Round(snap.Summary.UnitsSold, 2),
			Records:         snap.Summary.Records,
		},
		Countries:     make([]CountryView, 0, len(snap.Countries)),
		TopByQuantity: presentItems(snap.TopByQuantity, 2),
		TopByRevenue:  presentItems(snap.TopByRevenue, 2),
		TimeSeries:    make([]PointView, 0, len(snap.TimeSeries)),
	}

	for _, c := range snap.CountriesByRevenue() {
		view.Countries = append(view.Countries, CountryView{
			Country:         c.Country,
			Revenue:         Round(c.TotalRevenue, 2),
			Orders:          c.Orders,
			UniqueCustomers: c.UniqueCustomers,
			Share:           Round(c.PercentageOfRevenue, 1),
		})
	}

	for _, p := range snap.TimeSeries {
		view.TimeSeries = append(view.TimeSeries, PointView{
			Timestamp:         p.Timestamp,
			Revenue:           Round(p.Revenue, 2),
			CumulativeRevenue: Round(p.CumulativeRevenue, 2),
		})
	}

	return view
}

// PresentTick shapes a replay tick for the stream
func PresentTick(tick replay.Tick) TickView {
	return TickView{
		Row:     tick.Row,
		Metrics: Present(tick.SessionID, tick.Snapshot),
		Status:  tick.Status,
	}
}

func presentItems(items []metrics.TopItem, places int32) []ItemView {
	out := make([]ItemView, 0, len(items))
	for _, it := range items {
		out = append(out, ItemView{Description: it.Description, Value: Round(it.Value, places)})
	}
	return out
}
