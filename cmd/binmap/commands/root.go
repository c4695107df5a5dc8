// Package commands implements the binmap command tree.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/llxisdsh/binmap/internal/logging"
)

// cli carries state shared by all commands of one invocation.
type cli struct {
	configFile string
	cfg        *Config
}

// NewRootCommand creates the binmap command tree.
func NewRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "binmap",
		Short: "Exercise and inspect tree-binned hash maps",
		Long: `binmap drives the binmap hash map with synthetic workloads.

Commands:
  bench     Measure throughput per key distribution and size
  verify    Cross-check against a reference map and the invariant checker
  snapshot  Save a populated map to a file or load one back`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configFile, "config", "c", "", "config file (default .binmap.yaml in the working directory)")
	flags.String("log-level", logging.DefaultLogLevel.String(), "log level: debug, info, warn or error")
	flags.BoolP("log-json", "j", false, "print logs in JSON format")
	flags.Int("capacity", 0, "initial map capacity, 0 for the default")
	flags.Float64("load-factor", 0.75, "map load factor")
	flags.StringSlice("dist", nil, "key distributions: sequential, random, uuid, collide (default all)")
	flags.Uint64("seed", 1, "workload seed")
	flags.Int("buckets", 8, "hash values used by the collide distribution")

	root.AddCommand(c.benchCommand())
	root.AddCommand(c.verifyCommand())
	root.AddCommand(c.snapshotCommand())
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := LoadConfig(c.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	c.cfg = cfg
	level, err := logging.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logging.ConfigureLogger(level, cfg.Log.JSON)
	slog.Debug("configuration loaded",
		slog.String("command", cmd.Name()),
		slog.Any("distributions", cfg.Workload.Distributions),
		slog.Any("sizes", cfg.Workload.Sizes),
	)
	return nil
}
