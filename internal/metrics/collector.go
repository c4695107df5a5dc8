// Package metrics exports binmap.MapStats to Prometheus.
package metrics

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/llxisdsh/binmap"
)

const namespace = "binmap"

// StatsFunc returns the current statistics of one map.
type StatsFunc func() binmap.MapStats

// Collector reports the statistics of named maps as gauges labeled with
// the map name. Stats are taken on every scrape; the caller must make
// sure a scrape does not race with writes to the map.
type Collector struct {
	mu    sync.Mutex
	maps  map[string]StatsFunc
	descs []*statDesc
}

type statDesc struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(*binmap.MapStats) float64
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	stat := func(vt prometheus.ValueType) func(string, string, func(*binmap.MapStats) float64) *statDesc {
		return func(name, help string, value func(*binmap.MapStats) float64) *statDesc {
			return &statDesc{
				desc:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, []string{"map"}, nil),
				valueType: vt,
				value:     value,
			}
		}
	}
	gauge, counter := stat(prometheus.GaugeValue), stat(prometheus.CounterValue)
	return &Collector{
		maps: make(map[string]StatsFunc),
		descs: []*statDesc{
			gauge("capacity", "Table length", func(s *binmap.MapStats) float64 { return float64(s.Capacity) }),
			gauge("size", "Number of entries", func(s *binmap.MapStats) float64 { return float64(s.Size) }),
			gauge("threshold", "Size above which the table doubles", func(s *binmap.MapStats) float64 { return float64(s.Threshold) }),
			gauge("empty_bins", "Bins holding no entries", func(s *binmap.MapStats) float64 { return float64(s.EmptyBins) }),
			gauge("list_bins", "Non-empty list bins", func(s *binmap.MapStats) float64 { return float64(s.ListBins) }),
			gauge("tree_bins", "Red-black tree bins", func(s *binmap.MapStats) float64 { return float64(s.TreeBins) }),
			gauge("tree_entries", "Entries held by tree bins", func(s *binmap.MapStats) float64 { return float64(s.TreeEntries) }),
			gauge("max_list_length", "Length of the longest list bin", func(s *binmap.MapStats) float64 { return float64(s.MaxListLen) }),
			gauge("max_tree_size", "Entries of the largest tree bin", func(s *binmap.MapStats) float64 { return float64(s.MaxTreeLen) }),
			counter("growths_total", "Table doublings", func(s *binmap.MapStats) float64 { return float64(s.TotalGrowths) }),
			counter("treeifies_total", "List bins promoted to trees", func(s *binmap.MapStats) float64 { return float64(s.TotalTreeifies) }),
			counter("untreeifies_total", "Tree halves demoted to lists", func(s *binmap.MapStats) float64 { return float64(s.TotalUntreeifies) }),
		},
	}
}

// Add registers a map under name.
func (c *Collector) Add(name string, stats StatsFunc) error {
	if stats == nil {
		return errors.Errorf("metrics: nil stats function for %q", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.maps[name]; ok {
		return errors.Errorf("metrics: map %q already registered", name)
	}
	c.maps[name] = stats
	return nil
}

// Remove unregisters a map.
func (c *Collector) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.maps, name)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	names := make([]string, 0, len(c.maps))
	for name := range c.maps {
		names = append(names, name)
	}
	sort.Strings(names)
	funcs := make([]StatsFunc, len(names))
	for i, name := range names {
		funcs[i] = c.maps[name]
	}
	c.mu.Unlock()

	for i, name := range names {
		s := funcs[i]()
		for _, d := range c.descs {
			ch <- prometheus.MustNewConstMetric(d.desc, d.valueType, d.value(&s), name)
		}
	}
}

// WriteTextfile writes the current metrics of c to filename in the text
// exposition format read by the node exporter textfile collector.
func WriteTextfile(filename string, c *Collector) error {
	registry := prometheus.NewRegistry()
	if err := registry.Register(c); err != nil {
		return errors.Wrap(err, "metrics: register")
	}
	if err := prometheus.WriteToTextfile(filename, registry); err != nil {
		return errors.Wrapf(err, "metrics: write %s", filename)
	}
	return nil
}
