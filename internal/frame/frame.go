package frame

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// Frame is a wide, day-indexed table. Days are sorted ascending and unique.
// Numeric cells use NaN for "missing"; categorical (text) cells carry an
// explicit presence flag so that an absent value is distinguishable from an
// empty string.
type Frame struct {
	days    []time.Time
	order   []string // column order, for deterministic output
	numeric map[string][]float64
	text    map[string][]string
	present map[string][]bool // presence flags for text columns
}

// New creates a frame over the given set of days. Duplicates are collapsed
// and the day order normalized to ascending.
func New(days []time.Time) *Frame {
	uniq := make(map[time.Time]struct{}, len(days))
	for _, d := range days {
		uniq[d] = struct{}{}
	}
	sorted := make([]time.Time, 0, len(uniq))
	for d := range uniq {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	return &Frame{
		days:    sorted,
		numeric: make(map[string][]float64),
		text:    make(map[string][]string),
		present: make(map[string][]bool),
	}
}

// Len returns the number of rows (days).
func (f *Frame) Len() int { return len(f.days) }

// Days returns the row index in ascending order. The slice is shared; callers
// must not mutate it.
func (f *Frame) Days() []time.Time { return f.days }

// Columns returns column names in insertion order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// DayIndex returns the row position of a day, or -1 when absent.
func (f *Frame) DayIndex(day time.Time) int {
	i := sort.Search(len(f.days), func(i int) bool { return !f.days[i].Before(day) })
	if i < len(f.days) && f.days[i].Equal(day) {
		return i
	}
	return -1
}

// AddNumeric adds a numeric column. Missing cells are NaN. The values slice
// must match the frame length.
func (f *Frame) AddNumeric(name string, values []float64) error {
	if len(values) != len(f.days) {
		return fmt.Errorf("column %s: %d values for %d days", name, len(values), len(f.days))
	}
	if f.hasColumn(name) {
		return fmt.Errorf("column %s already exists", name)
	}
	f.numeric[name] = values
	f.order = append(f.order, name)
	return nil
}

// AddText adds a categorical column with explicit per-cell presence.
func (f *Frame) AddText(name string, values []string, present []bool) error {
	if len(values) != len(f.days) || len(present) != len(f.days) {
		return fmt.Errorf("column %s: value/presence length mismatch with %d days", name, len(f.days))
	}
	if f.hasColumn(name) {
		return fmt.Errorf("column %s already exists", name)
	}
	f.text[name] = values
	f.present[name] = present
	f.order = append(f.order, name)
	return nil
}

func (f *Frame) hasColumn(name string) bool {
	if _, ok := f.numeric[name]; ok {
		return true
	}
	_, ok := f.text[name]
	return ok
}

// Numeric returns a numeric column by name. The slice is shared.
func (f *Frame) Numeric(name string) ([]float64, bool) {
	col, ok := f.numeric[name]
	return col, ok
}

// IsNumeric reports whether the named column exists and is numeric.
func (f *Frame) IsNumeric(name string) bool {
	_, ok := f.numeric[name]
	return ok
}

// TextCell returns a categorical cell and whether it is present.
func (f *Frame) TextCell(name string, row int) (string, bool) {
	col, ok := f.text[name]
	if !ok || row < 0 || row >= len(col) {
		return "", false
	}
	if !f.present[name][row] {
		return "", false
	}
	return col[row], true
}

// Row renders one row as a JSON-friendly map. Missing cells are omitted, so a
// consumer can tell "no value" from zero or empty string.
func (f *Frame) Row(i int) map[string]interface{} {
	out := map[string]interface{}{"day": f.days[i].Format("2006-01-02")}
	for _, name := range f.order {
		if col, ok := f.numeric[name]; ok {
			if !math.IsNaN(col[i]) {
				out[name] = col[i]
			}
			continue
		}
		if v, ok := f.TextCell(name, i); ok {
			out[name] = v
		}
	}
	return out
}

// Select returns a new frame restricted to rows [lo, hi) of this frame,
// preserving all columns. Shared with callers read-only.
func (f *Frame) Select(lo, hi int) *Frame {
	sub := &Frame{
		days:    f.days[lo:hi],
		order:   append([]string(nil), f.order...),
		numeric: make(map[string][]float64, len(f.numeric)),
		text:    make(map[string][]string, len(f.text)),
		present: make(map[string][]bool, len(f.present)),
	}
	for name, col := range f.numeric {
		sub.numeric[name] = col[lo:hi]
	}
	for name, col := range f.text {
		sub.text[name] = col[lo:hi]
		sub.present[name] = f.present[name][lo:hi]
	}
	return sub
}

// Fingerprint returns a sha256 hex digest over the frame's full content:
// days, column names in order, and every cell. Any change to the underlying
// data changes the fingerprint, which is what forecast caching keys on.
func (f *Frame) Fingerprint() string {
	h := sha256.New()
	for _, d := range f.days {
		h.Write([]byte(d.Format("2006-01-02")))
		h.Write([]byte{'\n'})
	}
	for _, name := range f.order {
		h.Write([]byte(name))
		h.Write([]byte{0})
		if col, ok := f.numeric[name]; ok {
			for _, v := range col {
				h.Write([]byte(formatCell(v)))
				h.Write([]byte{'\n'})
			}
			continue
		}
		for i, v := range f.text[name] {
			if f.present[name][i] {
				h.Write([]byte(v))
			} else {
				h.Write([]byte{0xff})
			}
			h.Write([]byte{'\n'})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
