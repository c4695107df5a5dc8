package commands

import (
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/llxisdsh/binmap"
	"github.com/llxisdsh/binmap/internal/workload"
	"github.com/llxisdsh/binmap/snapshot"
)

func (c *cli) snapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save a populated map to a file or load one back",
	}
	cmd.AddCommand(c.snapshotSaveCommand(), c.snapshotLoadCommand())
	return cmd
}

func (c *cli) snapshotSaveCommand() *cobra.Command {
	var (
		compress bool
		size     int
	)
	cmd := &cobra.Command{
		Use:   "save <file>",
		Short: "Populate a map from the first distribution and write it to file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dist, err := c.firstDistribution()
			if err != nil {
				return err
			}
			keys, err := workload.Keys(dist, size, c.cfg.Workload.Seed)
			if err != nil {
				return err
			}
			m, err := binmap.NewMap[string, int64](c.cfg.mapOptions(dist)...)
			if err != nil {
				return err
			}
			for i, k := range keys {
				m.Put(k, int64(i))
			}

			f, err := os.Create(args[0])
			if err != nil {
				return errors.Wrap(err, "create snapshot")
			}
			var opts []snapshot.Option
			if compress {
				opts = append(opts, snapshot.WithLZ4())
			}
			if err := snapshot.Write(f, m, snapshot.String, snapshot.Int64, opts...); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return errors.Wrap(err, "close snapshot")
			}
			slog.Info("snapshot saved",
				slog.String("path", args[0]),
				slog.String("distribution", string(dist)),
				slog.Int("size", m.Size()),
				slog.Bool("lz4", compress),
			)
			renderStats(cmd.OutOrStdout(), "saved "+args[0], m.Stats())
			return nil
		},
	}
	cmd.Flags().BoolVar(&compress, "lz4", false, "compress the payload with lz4")
	cmd.Flags().IntVar(&size, "size", 10_000, "number of keys")
	return cmd
}

func (c *cli) snapshotLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load <file>",
		Short: "Read a snapshot, check its invariants and print its statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dist, err := c.firstDistribution()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "open snapshot")
			}
			defer f.Close()

			m, err := snapshot.Read(f, snapshot.String, snapshot.Int64, c.cfg.mapOptions(dist)...)
			if err != nil {
				return err
			}
			if err := m.Verify(); err != nil {
				return err
			}
			slog.Info("snapshot loaded",
				slog.String("path", args[0]),
				slog.Int("size", m.Size()),
			)
			renderStats(cmd.OutOrStdout(), "loaded "+args[0], m.Stats())
			return nil
		},
	}
}

func (c *cli) firstDistribution() (workload.Distribution, error) {
	dists, err := c.cfg.distributions()
	if err != nil {
		return "", err
	}
	return dists[0], nil
}
