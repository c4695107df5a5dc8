package binmap

import (
	"fmt"
	"strings"
)

// MapStats is Map statistics.
//
// Notes:
//   - map statistics are intended to be used for diagnostic
//     purposes, not for production code. This means that breaking changes
//     may be introduced into this struct even between minor releases.
type MapStats struct {
	// Capacity is the table length.
	Capacity int
	// Size is the exact number of entries stored in the map.
	Size int
	// Threshold is the size above which the table doubles.
	Threshold int
	// LoadFactor is the configured load factor.
	LoadFactor float64
	// EmptyBins is the number of bins that hold no entries.
	EmptyBins int
	// ListBins is the number of non-empty list bins.
	ListBins int
	// TreeBins is the number of red-black tree bins.
	TreeBins int
	// MaxListLen is the length of the longest list bin.
	MaxListLen int
	// MaxTreeLen is the number of entries of the largest tree bin.
	MaxTreeLen int
	// TreeEntries is the number of entries held by tree bins.
	TreeEntries int
	// TotalGrowths is the number of times the table doubled.
	TotalGrowths uint32
	// TotalTreeifies is the number of trees built, counting list bins
	// promoted to trees and tree halves rebuilt during splits.
	TotalTreeifies uint32
	// TotalUntreeifies is the number of tree halves demoted to lists
	// during splits.
	TotalUntreeifies uint32
}

// Stats returns statistics for the Map. Just like other map
// methods, this one is not safe for concurrent use.
// This is an O(n) operation.
func (m *Map[K, V]) Stats() MapStats {
	stats := MapStats{
		Capacity:         len(m.table),
		Size:             m.size,
		Threshold:        m.threshold,
		LoadFactor:       m.LoadFactor(),
		TotalGrowths:     m.growths,
		TotalTreeifies:   m.treeifies,
		TotalUntreeifies: m.untreeifies,
	}
	for _, first := range m.table {
		if first == nil {
			stats.EmptyBins++
			continue
		}
		n := 0
		for e := first; e != nil; e = e.next {
			n++
		}
		if first.isTree() {
			stats.TreeBins++
			stats.TreeEntries += n
			stats.MaxTreeLen = max(stats.MaxTreeLen, n)
		} else {
			stats.ListBins++
			stats.MaxListLen = max(stats.MaxListLen, n)
		}
	}
	return stats
}

// String returns string representation of map stats.
func (s MapStats) String() string {
	var sb strings.Builder
	sb.WriteString("MapStats{\n")
	sb.WriteString(fmt.Sprintf("Capacity:         %d\n", s.Capacity))
	sb.WriteString(fmt.Sprintf("Size:             %d\n", s.Size))
	sb.WriteString(fmt.Sprintf("Threshold:        %d\n", s.Threshold))
	sb.WriteString(fmt.Sprintf("LoadFactor:       %.2f\n", s.LoadFactor))
	sb.WriteString(fmt.Sprintf("EmptyBins:        %d\n", s.EmptyBins))
	sb.WriteString(fmt.Sprintf("ListBins:         %d\n", s.ListBins))
	sb.WriteString(fmt.Sprintf("TreeBins:         %d\n", s.TreeBins))
	sb.WriteString(fmt.Sprintf("MaxListLen:       %d\n", s.MaxListLen))
	sb.WriteString(fmt.Sprintf("MaxTreeLen:       %d\n", s.MaxTreeLen))
	sb.WriteString(fmt.Sprintf("TreeEntries:      %d\n", s.TreeEntries))
	sb.WriteString(fmt.Sprintf("TotalGrowths:     %d\n", s.TotalGrowths))
	sb.WriteString(fmt.Sprintf("TotalTreeifies:   %d\n", s.TotalTreeifies))
	sb.WriteString(fmt.Sprintf("TotalUntreeifies: %d\n", s.TotalUntreeifies))
	sb.WriteString("}\n")
	return sb.String()
}
