// Package view filters the reconciled table to caller-supplied date intervals
// and computes convenience aggregates for presentation.
package view

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ndfz-analytics/gridview/internal/frame"
)

// Range returns the subset of rows whose day falls inside the inclusive
// [start, end] interval, preserving all columns. An empty result is valid and
// distinct from a malformed query: reversed bounds error instead.
func Range(f *frame.Frame, start, end time.Time) (*frame.Frame, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid interval: end %s before start %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	days := f.Days()
	lo := sort.Search(len(days), func(i int) bool { return !days[i].Before(start) })
	hi := sort.Search(len(days), func(i int) bool { return days[i].After(end) })
	return f.Select(lo, hi), nil
}

// RowMean computes the row-wise mean of the named numeric columns, ignoring
// missing cells. A row where every named column is missing yields NaN, so the
// aggregate itself reads as missing rather than zero.
func RowMean(f *frame.Frame, columns []string) ([]float64, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns given")
	}
	cols := make([][]float64, len(columns))
	for i, name := range columns {
		col, ok := f.Numeric(name)
		if !ok {
			return nil, fmt.Errorf("unknown numeric column %q", name)
		}
		cols[i] = col
	}

	means := make([]float64, f.Len())
	scratch := make([]float64, 0, len(columns))
	for row := range means {
		scratch = scratch[:0]
		for _, col := range cols {
			if !math.IsNaN(col[row]) {
				scratch = append(scratch, col[row])
			}
		}
		if len(scratch) == 0 {
			means[row] = math.NaN()
			continue
		}
		means[row] = stat.Mean(scratch, nil)
	}
	return means, nil
}
