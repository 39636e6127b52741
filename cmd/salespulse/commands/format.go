package commands

import (
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wonny/salespulse/internal/metrics"
	"github.com/wonny/salespulse/internal/replay"
	"github.com/wonny/salespulse/internal/sales"
)

// ═══════════════════════════════════════════════════════════
// Console output shared by replay and inspect
// ═══════════════════════════════════════════════════════════

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════"
	ruleLight = "───────────────────────────────────────────────────────────"
)

// console prints with grouped thousands, e.g. 1,234,567.89
type console struct {
	p *message.Printer
	w io.Writer
}

func newConsole(w io.Writer) *console {
	return &console{p: message.NewPrinter(language.English), w: w}
}

func (c *console) printf(format string, args ...interface{}) {
	c.p.Fprintf(c.w, format, args...)
}

// header prints a boxed title
func (c *console) header(title string) {
	c.printf("\n%s\n  %s\n%s\n", ruleHeavy, title, ruleLight)
}

// kpis prints the headline row of a snapshot
func (c *console) kpis(s metrics.Summary) {
	c.printf("  Revenue   : £%.2f\n", s.Revenue)
	c.printf("  Countries : %d\n", s.ActiveCountries)
	c.printf("  Units     : %.0f\n", s.UnitsSold)
	c.printf("  Records   : %d\n", s.Records)
}

// snapshot prints KPIs, the country table and both top-item lists
func (c *console) snapshot(snap metrics.Snapshot) {
	c.kpis(snap.Summary)

	c.printf("%s\n  %-24s %14s %7s %7s\n", ruleLight, "Country", "Revenue", "Orders", "Share")
	for _, row := range snap.CountriesByRevenue() {
		c.printf("  %-24s %14.2f %7d %6.1f%%\n", truncate(row.Country, 24), row.TotalRevenue, row.Orders, row.PercentageOfRevenue)
	}

	c.items("Top products by quantity", snap.TopByQuantity, "%14.0f")
	c.items("Top products by revenue", snap.TopByRevenue, "%14.2f")
}

func (c *console) items(title string, items []metrics.TopItem, valueFormat string) {
	c.printf("%s\n  %s\n", ruleLight, title)
	for i, it := range items {
		c.printf("  %d. %-36s "+valueFormat+"\n", i+1, truncate(it.Description, 36), it.Value)
	}
}

// tick prints a single-line progress entry
func (c *console) tick(t replay.Tick) {
	c.printf("[row %d] revenue=£%.2f countries=%d units=%.0f window=%d accepted=%d rejected=%d\n",
		t.Row,
		t.Snapshot.Summary.Revenue,
		t.Snapshot.Summary.ActiveCountries,
		t.Snapshot.Summary.UnitsSold,
		t.Status.BufferLen,
		t.Status.Accepted,
		t.Status.Rejected,
	)
}

// rejections prints counts per reason in gate order
func (c *console) rejections(byReason map[string]int) {
	for _, reason := range sales.Reasons() {
		if n := byReason[string(reason)]; n > 0 {
			c.printf("  %-22s %10d\n", reason, n)
		}
	}
}

func (c *console) line() {
	c.printf("%s\n", ruleHeavy)
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
