package commands

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/llxisdsh/binmap"
	"github.com/llxisdsh/binmap/internal/metrics"
	"github.com/llxisdsh/binmap/internal/workload"
)

type scenario struct {
	dist workload.Distribution
	size int
}

func (s scenario) String() string {
	return fmt.Sprintf("%s-%d", s.dist, s.size)
}

type benchResult struct {
	scenario
	insert time.Duration
	ops    int
	mixed  time.Duration
	stats  binmap.MapStats
}

func (c *cli) benchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure throughput per key distribution and size",
		Long: `Runs one scenario per distribution and size. Each scenario inserts
its key set into a fresh map, then applies the get/put/remove mix.
Scenarios run in parallel, each on its own map.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := runBench(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			renderBench(cmd, results)
			if path := c.cfg.Metrics.Textfile; path != "" {
				if err := writeBenchMetrics(path, results); err != nil {
					return err
				}
				slog.Info("metrics written", slog.String("path", path))
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntSlice("sizes", nil, "key set sizes (default 1000,100000)")
	flags.Int("ops", 1_000_000, "operations per scenario after the initial insert")
	flags.Int("get-pct", 60, "share of get operations")
	flags.Int("put-pct", 30, "share of put operations")
	flags.Int("remove-pct", 10, "share of remove operations")
	flags.Int("parallelism", 0, "scenarios run at once, 0 for GOMAXPROCS")
	flags.String("metrics-textfile", "", "write map statistics in Prometheus text format to this file")
	return cmd
}

func scenarios(cfg *Config) ([]scenario, error) {
	dists, err := cfg.distributions()
	if err != nil {
		return nil, err
	}
	out := make([]scenario, 0, len(dists)*len(cfg.Workload.Sizes))
	for _, d := range dists {
		for _, size := range cfg.Workload.Sizes {
			out = append(out, scenario{dist: d, size: size})
		}
	}
	return out, nil
}

func runBench(ctx context.Context, cfg *Config) ([]benchResult, error) {
	all, err := scenarios(cfg)
	if err != nil {
		return nil, err
	}
	limit := cfg.Workload.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	results := make([]benchResult, len(all))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, sc := range all {
		g.Go(func() error {
			r, err := runScenario(ctx, cfg, sc)
			if err != nil {
				return errors.Wrapf(err, "scenario %s", sc)
			}
			results[i] = r
			slog.Debug("scenario done",
				slog.String("scenario", sc.String()),
				slog.Duration("insert", r.insert),
				slog.Duration("mixed", r.mixed),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runScenario(ctx context.Context, cfg *Config, sc scenario) (benchResult, error) {
	r := benchResult{scenario: sc}
	keys, err := workload.Keys(sc.dist, sc.size, cfg.Workload.Seed)
	if err != nil {
		return r, err
	}
	ops, err := cfg.mix().Ops(cfg.Workload.Ops, len(keys), cfg.Workload.Seed+1)
	if err != nil {
		return r, err
	}
	m, err := binmap.NewMap[string, int64](cfg.mapOptions(sc.dist)...)
	if err != nil {
		return r, err
	}

	start := time.Now()
	for i, k := range keys {
		m.Put(k, int64(i))
	}
	r.insert = time.Since(start)
	if err := ctx.Err(); err != nil {
		return r, err
	}

	start = time.Now()
	for _, op := range ops {
		k := keys[op.Key]
		switch op.Kind {
		case workload.Get:
			m.Get(k)
		case workload.Put:
			m.Put(k, op.Value)
		case workload.Remove:
			m.Remove(k)
		}
	}
	r.mixed = time.Since(start)
	r.ops = len(ops)

	if err := m.Verify(); err != nil {
		return r, err
	}
	r.stats = m.Stats()
	return r, nil
}

func renderBench(cmd *cobra.Command, results []benchResult) {
	tbl := newTable(cmd.OutOrStdout(), "binmap bench")
	tbl.AppendHeader(table.Row{
		"Distribution", "Keys", "Insert", "Mixed", "Size", "Capacity",
		"Tree bins", "Tree entries", "Longest list", "Growths",
	})
	for _, r := range results {
		tbl.AppendRow(table.Row{
			r.dist,
			count(r.size),
			opsPerSecond(r.size, r.insert),
			opsPerSecond(r.ops, r.mixed),
			count(r.stats.Size),
			count(r.stats.Capacity),
			count(r.stats.TreeBins),
			count(r.stats.TreeEntries),
			count(r.stats.MaxListLen),
			count(int(r.stats.TotalGrowths)),
		})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("%d scenarios", len(results))})
	tbl.Render()
}

func writeBenchMetrics(path string, results []benchResult) error {
	collector := metrics.NewCollector()
	for _, r := range results {
		stats := r.stats
		if err := collector.Add(r.scenario.String(), func() binmap.MapStats { return stats }); err != nil {
			return err
		}
	}
	return metrics.WriteTextfile(path, collector)
}
