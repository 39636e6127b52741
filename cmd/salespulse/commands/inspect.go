package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/wonny/salespulse/internal/dataset"
	"github.com/wonny/salespulse/internal/metrics"
	"github.com/wonny/salespulse/internal/sales"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Validate the whole dataset and print its metrics",
	Long: `Validates every row of the configured dataset without pacing,
reports how many rows each rule rejected and prints the dashboard
computed over all accepted rows.

Example:
  go run ./cmd/salespulse inspect
  go run ./cmd/salespulse inspect --top 10`,
	RunE: runInspect,
}

var (
	inspectTop int
)

func init() {
	rootCmd.AddCommand(inspectCmd)

	// Flags
	inspectCmd.Flags().IntVar(&inspectTop, "top", metrics.TopN, "number of top products to list")
}

// InspectReport is the outcome of validating a full dataset
type InspectReport struct {
	Rows     int
	Accepted []sales.CleanRecord
	Rejected map[string]int
}

// inspectDataset validates every row of data
func inspectDataset(data *dataset.Dataset) InspectReport {
	report := InspectReport{
		Rows:     data.Len(),
		Rejected: make(map[string]int),
	}
	for i := 0; i < data.Len(); i++ {
		res := sales.Validate(data.Row(i))
		if res.OK() {
			report.Accepted = append(report.Accepted, res.Record)
			continue
		}
		report.Rejected[string(res.Reason)]++
	}
	return report
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	data, err := dataset.Open(context.Background(), cfg, log)
	if err != nil {
		return err
	}

	report := inspectDataset(data)

	out := newConsole(cmd.OutOrStdout())
	out.header("Inspect: " + data.Name())
	out.printf("  Rows      : %d\n  Accepted  : %d\n  Rejected  : %d\n", report.Rows, len(report.Accepted), report.Rows-len(report.Accepted))
	out.rejections(report.Rejected)

	snap, err := metrics.Compute(report.Accepted)
	if errors.Is(err, metrics.ErrEmptyWindow) {
		out.printf("%s\n  No accepted rows\n", ruleLight)
		out.line()
		return nil
	}
	if err != nil {
		return err
	}

	snap.TopByQuantity = metrics.TopItems(report.Accepted, metrics.MeasureQuantity, inspectTop)
	snap.TopByRevenue = metrics.TopItems(report.Accepted, metrics.MeasureRevenue, inspectTop)

	out.header("All accepted rows")
	out.snapshot(snap)
	if n := len(snap.TimeSeries); n > 0 {
		first, last := snap.TimeSeries[0], snap.TimeSeries[n-1]
		out.printf("%s\n  Period    : %s → %s\n  Cumulative: £%.2f\n", ruleLight,
			first.Timestamp.Format("2006-01-02"), last.Timestamp.Format("2006-01-02"), last.CumulativeRevenue)
	}
	out.line()

	return nil
}
