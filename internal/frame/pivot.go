package frame

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Separator joins the value-role and dimension values into a column name.
const Separator = "_"

// LongRow is one long-format observation to be pivoted. Role distinguishes
// multiple source value columns ("plan" vs "fact"); it may be empty when the
// source has a single value column, in which case the column name is built
// from the dimensions alone.
type LongRow struct {
	Day   time.Time
	Role  string
	Dims  []string
	Value float64 // NaN = missing observation
}

// ColumnName builds the deterministic wide-column name for a role/dimension
// combination: role and dimension values joined by Separator in declaration
// order, empty parts skipped. A combination with only one non-empty part uses
// that part alone.
func ColumnName(role string, dims []string) string {
	parts := make([]string, 0, 1+len(dims))
	if role != "" {
		parts = append(parts, role)
	}
	for _, d := range dims {
		if d != "" {
			parts = append(parts, d)
		}
	}
	return strings.Join(parts, Separator)
}

// Pivot reshapes long-format rows into a wide frame with one row per distinct
// day and one numeric column per distinct (role, dims) combination.
//
// Collisions aggregate by sum. The source behaviour sums rather than averages
// duplicate observations; see DESIGN.md for why that is kept. A day with no
// entries for a combination yields NaN at that cell, never zero. Empty input
// yields a frame with only the day index.
func Pivot(rows []LongRow) *Frame {
	days := make([]time.Time, 0, len(rows))
	for _, r := range rows {
		days = append(days, r.Day)
	}
	f := New(days)

	// Accumulate sums per (column, day). NaN observations do not contribute:
	// a cell that only ever saw NaN stays missing.
	type cellKey struct {
		col string
		row int
	}
	sums := make(map[cellKey]float64)
	var colOrder []string
	seen := make(map[string]struct{})

	for _, r := range rows {
		col := ColumnName(r.Role, r.Dims)
		if _, ok := seen[col]; !ok {
			seen[col] = struct{}{}
			colOrder = append(colOrder, col)
		}
		if math.IsNaN(r.Value) {
			continue
		}
		k := cellKey{col: col, row: f.DayIndex(r.Day)}
		sums[k] += r.Value
	}

	sort.Strings(colOrder)
	for _, col := range colOrder {
		values := make([]float64, f.Len())
		for i := range values {
			values[i] = math.NaN()
		}
		for k, sum := range sums {
			if k.col == col {
				values[k.row] = sum
			}
		}
		// Column names are unique here by construction.
		_ = f.AddNumeric(col, values)
	}
	return f
}
