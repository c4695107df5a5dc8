package commands

import (
	"context"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/llxisdsh/pb"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/llxisdsh/binmap"
	"github.com/llxisdsh/binmap/internal/workload"
)

// checkEvery is the number of operations between two structural checks.
const checkEvery = 4096

type verifyResult struct {
	scenario
	ops    int
	checks int
	stats  binmap.MapStats
}

func (c *cli) verifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Cross-check against a reference map and the invariant checker",
		Long: `Applies the same operation stream to a binmap and to a reference
concurrent map, comparing every result. The binmap invariants are checked
periodically and once more after the stream.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := runVerify(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			tbl := newTable(cmd.OutOrStdout(), "binmap verify")
			tbl.AppendHeader(table.Row{"Distribution", "Keys", "Ops", "Checks", "Size", "Tree bins", "Untreeifies", "Result"})
			for _, r := range results {
				tbl.AppendRow(table.Row{
					r.dist, count(r.size), count(r.ops), count(r.checks),
					count(r.stats.Size), count(r.stats.TreeBins),
					count(int(r.stats.TotalUntreeifies)), "ok",
				})
			}
			tbl.Render()
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntSlice("sizes", nil, "key set sizes (default 1000,100000)")
	flags.Int("ops", 1_000_000, "operations per scenario")
	flags.Int("get-pct", 60, "share of get operations")
	flags.Int("put-pct", 30, "share of put operations")
	flags.Int("remove-pct", 10, "share of remove operations")
	flags.Int("parallelism", 0, "scenarios run at once, 0 for GOMAXPROCS")
	return cmd
}

func runVerify(ctx context.Context, cfg *Config) ([]verifyResult, error) {
	all, err := scenarios(cfg)
	if err != nil {
		return nil, err
	}
	results := make([]verifyResult, len(all))
	g, ctx := errgroup.WithContext(ctx)
	if cfg.Workload.Parallelism > 0 {
		g.SetLimit(cfg.Workload.Parallelism)
	}
	for i, sc := range all {
		g.Go(func() error {
			r, err := verifyScenario(ctx, cfg, sc)
			if err != nil {
				return errors.Wrapf(err, "scenario %s", sc)
			}
			results[i] = r
			slog.Debug("scenario verified",
				slog.String("scenario", sc.String()),
				slog.Int("checks", r.checks),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func verifyScenario(ctx context.Context, cfg *Config, sc scenario) (verifyResult, error) {
	r := verifyResult{scenario: sc}
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
	var ref pb.MapOf[string, int64]

	for i, op := range ops {
		k := keys[op.Key]
		switch op.Kind {
		case workload.Get:
			got, ok := m.Get(k)
			want, wantOK := ref.Load(k)
			if ok != wantOK || got != want {
				return r, errors.Errorf("op %d: get %q = (%d, %v), reference (%d, %v)", i, k, got, ok, want, wantOK)
			}
		case workload.Put:
			prev, ok := m.Put(k, op.Value)
			want, wantOK := ref.Load(k)
			ref.Store(k, op.Value)
			if ok != wantOK || prev != want {
				return r, errors.Errorf("op %d: put %q returned (%d, %v), reference (%d, %v)", i, k, prev, ok, want, wantOK)
			}
		case workload.Remove:
			prev, ok := m.Remove(k)
			want, wantOK := ref.LoadAndDelete(k)
			if ok != wantOK || prev != want {
				return r, errors.Errorf("op %d: remove %q returned (%d, %v), reference (%d, %v)", i, k, prev, ok, want, wantOK)
			}
		}
		if (i+1)%checkEvery == 0 {
			if err := check(m, &ref); err != nil {
				return r, errors.Wrapf(err, "after op %d", i)
			}
			r.checks++
			if err := ctx.Err(); err != nil {
				return r, err
			}
		}
	}
	if err := check(m, &ref); err != nil {
		return r, errors.Wrap(err, "final")
	}
	r.checks++

	var mismatch error
	ref.Range(func(k string, want int64) bool {
		if got, ok := m.Get(k); !ok || got != want {
			mismatch = errors.Errorf("key %q = (%d, %v), reference %d", k, got, ok, want)
			return false
		}
		return true
	})
	if mismatch != nil {
		return r, mismatch
	}
	r.ops = len(ops)
	r.stats = m.Stats()
	return r, nil
}

func check(m *binmap.Map[string, int64], ref *pb.MapOf[string, int64]) error {
	if err := m.Verify(); err != nil {
		return err
	}
	if m.Size() != ref.Size() {
		return errors.Errorf("size %d, reference %d", m.Size(), ref.Size())
	}
	return nil
}
