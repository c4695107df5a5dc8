package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/llxisdsh/binmap"
)

func newTable(w io.Writer, title string) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Format.Footer = text.FormatDefault
	if title != "" {
		tbl.SetTitle(title)
	}
	return tbl
}

// opsPerSecond formats a throughput like "12.3 Mop/s".
func opsPerSecond(ops int, d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return humanize.SIWithDigits(float64(ops)/d.Seconds(), 1, "op/s")
}

func count(n int) string {
	return humanize.Comma(int64(n))
}

// renderStats prints a status line followed by the statistics of one map.
func renderStats(w io.Writer, status string, s binmap.MapStats) {
	fmt.Fprintln(w, status)
	tbl := newTable(w, "")
	tbl.AppendHeader(table.Row{"Metric", "Value"})
	tbl.AppendRows([]table.Row{
		{"Size", count(s.Size)},
		{"Capacity", count(s.Capacity)},
		{"Threshold", count(s.Threshold)},
		{"Load factor", strconv.FormatFloat(s.LoadFactor, 'f', 2, 64)},
		{"Empty bins", count(s.EmptyBins)},
		{"List bins", count(s.ListBins)},
		{"Tree bins", count(s.TreeBins)},
		{"Tree entries", count(s.TreeEntries)},
		{"Longest list", count(s.MaxListLen)},
		{"Largest tree", count(s.MaxTreeLen)},
		{"Growths", count(int(s.TotalGrowths))},
		{"Treeifies", count(int(s.TotalTreeifies))},
		{"Untreeifies", count(int(s.TotalUntreeifies))},
	})
	tbl.Render()
}
