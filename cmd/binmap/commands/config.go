package commands

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/llxisdsh/binmap"
	"github.com/llxisdsh/binmap/internal/logging"
	"github.com/llxisdsh/binmap/internal/workload"
)

// configName is the config file name without extension.
const configName = ".binmap"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for binmap settings.
const envPrefix = "BINMAP"

// Config holds every setting of the CLI. Values come from, in order of
// precedence: flags, BINMAP_* environment variables, the config file and
// defaults.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Map      MapConfig      `mapstructure:"map"`
	Workload WorkloadConfig `mapstructure:"workload"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type MapConfig struct {
	Capacity   int     `mapstructure:"capacity"`
	LoadFactor float64 `mapstructure:"load_factor"`
}

type WorkloadConfig struct {
	Distributions []string `mapstructure:"distributions"`
	Sizes         []int    `mapstructure:"sizes"`
	Ops           int      `mapstructure:"ops"`
	Seed          uint64   `mapstructure:"seed"`
	Buckets       int      `mapstructure:"buckets"`
	GetPct        int      `mapstructure:"get_pct"`
	PutPct        int      `mapstructure:"put_pct"`
	RemovePct     int      `mapstructure:"remove_pct"`
	Parallelism   int      `mapstructure:"parallelism"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"log-level":        "log.level",
	"log-json":         "log.json",
	"capacity":         "map.capacity",
	"load-factor":      "map.load_factor",
	"dist":             "workload.distributions",
	"sizes":            "workload.sizes",
	"ops":              "workload.ops",
	"seed":             "workload.seed",
	"buckets":          "workload.buckets",
	"get-pct":          "workload.get_pct",
	"put-pct":          "workload.put_pct",
	"remove-pct":       "workload.remove_pct",
	"parallelism":      "workload.parallelism",
	"metrics-textfile": "metrics.textfile",
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("log.level", logging.DefaultLogLevel.String())
	v.SetDefault("log.json", false)
	v.SetDefault("map.capacity", 0)
	v.SetDefault("map.load_factor", 0.75)
	v.SetDefault("workload.distributions", []string{
		string(workload.Sequential), string(workload.Random),
		string(workload.UUID), string(workload.Collide),
	})
	v.SetDefault("workload.sizes", []int{1_000, 100_000})
	v.SetDefault("workload.ops", 1_000_000)
	v.SetDefault("workload.seed", 1)
	v.SetDefault("workload.buckets", 8)
	v.SetDefault("workload.get_pct", 60)
	v.SetDefault("workload.put_pct", 30)
	v.SetDefault("workload.remove_pct", 10)
	v.SetDefault("workload.parallelism", 0)
	v.SetDefault("metrics.textfile", "")
}

// LoadConfig loads configuration from file, env vars, flags and defaults.
// If configPath is empty, .binmap.yaml is searched in the working
// directory and a missing file is not an error.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "bind flag %s", name)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := logging.ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Map.Capacity < 0 {
		return errors.Errorf("capacity must not be negative: %d", c.Map.Capacity)
	}
	if !(c.Map.LoadFactor > 0) {
		return errors.Errorf("load factor must be positive: %v", c.Map.LoadFactor)
	}
	if _, err := c.distributions(); err != nil {
		return err
	}
	if len(c.Workload.Sizes) == 0 {
		return errors.New("at least one size is required")
	}
	for _, s := range c.Workload.Sizes {
		if s <= 0 {
			return errors.Errorf("sizes must be positive: %d", s)
		}
	}
	if c.Workload.Ops < 0 {
		return errors.Errorf("ops must not be negative: %d", c.Workload.Ops)
	}
	if c.Workload.Buckets <= 0 {
		return errors.Errorf("buckets must be positive: %d", c.Workload.Buckets)
	}
	return c.mix().Validate()
}

func (c *Config) distributions() ([]workload.Distribution, error) {
	if len(c.Workload.Distributions) == 0 {
		return nil, errors.New("at least one distribution is required")
	}
	out := make([]workload.Distribution, 0, len(c.Workload.Distributions))
	for _, s := range c.Workload.Distributions {
		d, err := workload.ParseDistribution(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (c *Config) mix() workload.Mix {
	return workload.Mix{
		GetPct:    c.Workload.GetPct,
		PutPct:    c.Workload.PutPct,
		RemovePct: c.Workload.RemovePct,
	}
}

// mapOptions returns the map configuration for keys of distribution d.
func (c *Config) mapOptions(d workload.Distribution) []func(*binmap.MapConfig) {
	opts := []func(*binmap.MapConfig){binmap.WithLoadFactor(c.Map.LoadFactor)}
	if c.Map.Capacity > 0 {
		opts = append(opts, binmap.WithCapacity(c.Map.Capacity))
	}
	if d == workload.Collide {
		opts = append(opts, binmap.WithKeyHasher(workload.CollideHasher(c.Workload.Buckets)))
	}
	return opts
}
