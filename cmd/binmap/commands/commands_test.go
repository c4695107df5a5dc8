package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llxisdsh/binmap/internal/workload"
)

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("log-level", "info", "")
	fs.Int("capacity", 0, "")
	fs.StringSlice("dist", nil, "")
	fs.IntSlice("sizes", nil, "")
	fs.Int("ops", 1_000_000, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("", testFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.Equal(t, 0.75, cfg.Map.LoadFactor)
	assert.Equal(t, []int{1_000, 100_000}, cfg.Workload.Sizes)
	assert.Equal(t, 1_000_000, cfg.Workload.Ops)
	assert.Equal(t, 60, cfg.Workload.GetPct)
	assert.Len(t, cfg.Workload.Distributions, 4)
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "binmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
map:
  capacity: 128
  load_factor: 0.5
workload:
  ops: 10
  sizes: [5, 6]
  distributions: [uuid]
`), 0o600))

	cfg, err := LoadConfig(path, testFlags(t))
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Map.Capacity)
	assert.Equal(t, 0.5, cfg.Map.LoadFactor)
	assert.Equal(t, 10, cfg.Workload.Ops)
	assert.Equal(t, []int{5, 6}, cfg.Workload.Sizes)
	assert.Equal(t, []string{"uuid"}, cfg.Workload.Distributions)

	t.Setenv("BINMAP_WORKLOAD_OPS", "20")
	cfg, err = LoadConfig(path, testFlags(t))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Workload.Ops)

	cfg, err = LoadConfig(path, testFlags(t, "--ops", "30", "--capacity", "16", "--dist", "collide,random"))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Workload.Ops)
	assert.Equal(t, 16, cfg.Map.Capacity)
	assert.Equal(t, []string{"collide", "random"}, cfg.Workload.Distributions)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)

	tests := []struct {
		name string
		args []string
	}{
		{"log level", []string{"--log-level", "loud"}},
		{"capacity", []string{"--capacity", "-1"}},
		{"distribution", []string{"--dist", "zipf"}},
		{"size", []string{"--sizes", "0"}},
		{"ops", []string{"--ops", "-5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig("", testFlags(t, tt.args...))
			require.Error(t, err)
		})
	}

	path := filepath.Join(t.TempDir(), "mix.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workload:\n  get_pct: 90\n"), 0o600))
	_, err = LoadConfig(path, nil)
	require.ErrorIs(t, err, workload.ErrBadMix)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestBenchCommand(t *testing.T) {
	textfile := filepath.Join(t.TempDir(), "bench.prom")
	out, err := run(t, "bench",
		"--dist", "sequential,collide",
		"--sizes", "50,200",
		"--ops", "2000",
		"--buckets", "2",
		"--metrics-textfile", textfile,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "binmap bench")
	assert.Contains(t, out, "collide")
	assert.Contains(t, out, "4 scenarios")

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `binmap_tree_bins{map="collide-200"}`)
}

func TestVerifyCommand(t *testing.T) {
	out, err := run(t, "verify",
		"--dist", "random,uuid,collide",
		"--sizes", "300",
		"--ops", "10000",
		"--get-pct", "40", "--put-pct", "35", "--remove-pct", "25",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "binmap verify")
	assert.Contains(t, out, "uuid")
	assert.Contains(t, out, "ok")
}

func TestSnapshotCommands(t *testing.T) {
	dir := t.TempDir()
	for _, lz4 := range []bool{false, true} {
		path := filepath.Join(dir, "plain.bmap")
		args := []string{"snapshot", "save", path, "--size", "500", "--dist", "collide"}
		if lz4 {
			path = filepath.Join(dir, "lz4.bmap")
			args = []string{"snapshot", "save", path, "--size", "500", "--dist", "collide", "--lz4"}
		}
		out, err := run(t, args...)
		require.NoError(t, err)
		assert.Contains(t, out, "saved "+path+"\n")

		out, err = run(t, "snapshot", "load", path, "--dist", "collide")
		require.NoError(t, err)
		assert.Contains(t, out, "loaded "+path+"\n")
		assert.Contains(t, out, "500")
	}

	_, err := run(t, "snapshot", "load", filepath.Join(dir, "missing.bmap"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.bmap")
	require.NoError(t, os.WriteFile(bad, []byte("not a snapshot"), 0o600))
	_, err = run(t, "snapshot", "load", bad)
	require.Error(t, err)
}
