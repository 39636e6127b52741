package metrics

import (
	"sort"
	"time"
)

// CountryStats aggregates one country's slice of the window
type CountryStats struct {
	Country             string  `json:"country"`
	TotalRevenue        float64 `json:"total_revenue"`
	Orders              int     `json:"orders"`
	UniqueCustomers     int     `json:"unique_customers"`
	PercentageOfRevenue float64 `json:"percentage_of_revenue"`
}

// Measure selects the quantity a product ranking sums
type Measure string

const (
	MeasureQuantity Measure = "quantity"
	MeasureRevenue  Measure = "revenue"
)

// TopItem is one entry of a product ranking
type TopItem struct {
	Description string  `json:"description"`
	Value       float64 `json:"value"`
}

// TimeSeriesPoint is revenue at one invoice timestamp plus the running total
type TimeSeriesPoint struct {
	Timestamp         time.Time `json:"timestamp"`
	Revenue           float64   `json:"revenue"`
	CumulativeRevenue float64   `json:"cumulative_revenue"`
}

// Summary holds the headline KPIs for the window
type Summary struct {
	Revenue         float64 `json:"revenue"`
	ActiveCountries int     `json:"active_countries"`
	UnitsSold       float64 `json:"units_sold"`
	Records         int     `json:"records"`
}

// Snapshot is everything the engine derives from one window
type Snapshot struct {
	Summary       Summary           `json:"summary"`
	Countries     []CountryStats    `json:"countries"`
	TopByQuantity []TopItem         `json:"top_by_quantity"`
	TopByRevenue  []TopItem         `json:"top_by_revenue"`
	TimeSeries    []TimeSeriesPoint `json:"time_series"`
	ComputedAt    time.Time         `json:"computed_at"`
}

// CountriesByRevenue returns the country rows ordered for the revenue table
func (s *Snapshot) CountriesByRevenue() []CountryStats {
	out := make([]CountryStats, len(s.Countries))
	copy(out, s.Countries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalRevenue > out[j].TotalRevenue
	})
	return out
}
