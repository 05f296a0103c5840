// Package reconcile outer-joins the three data feeds into one day-indexed
// table: restriction events, pivoted plan/fact load readings, and pivoted
// per-city weather observations.
package reconcile

import (
	"math"
	"sort"
	"time"

	"github.com/ndfz-analytics/gridview/internal/feed"
	"github.com/ndfz-analytics/gridview/internal/frame"
)

// Event column names in the reconciled table.
const (
	ColStartTime  = "start_time"
	ColEndTime    = "end_time"
	ColType       = "type"
	ColVolumeMW   = "volume_mw"
	ColEventCount = "event_count"
)

// Result is the reconciled daily table plus the full per-day event listing.
// The folded event columns in Table describe at most one event shape per day
// (first event's times and type, summed volume); EventsByDay preserves every
// same-day event in feed order so nothing is lost to the fold.
type Result struct {
	Table       *frame.Frame
	EventsByDay map[time.Time][]feed.RestrictionEvent
}

// Reconcile outer-joins events with the pivoted plan/fact and weather frames.
// The output day-set is the union of all days appearing in any input; rows
// with unresolvable days never get here (decoders drop them). Event fields
// for days without an event stay missing, distinguishing "no restriction that
// day" from a zero-volume restriction.
func Reconcile(events []feed.RestrictionEvent, planFact, weather *frame.Frame) *Result {
	byDay := make(map[time.Time][]feed.RestrictionEvent)
	for _, ev := range events {
		byDay[ev.Day] = append(byDay[ev.Day], ev)
	}

	days := make([]time.Time, 0, len(byDay)+planFact.Len()+weather.Len())
	for d := range byDay {
		days = append(days, d)
	}
	days = append(days, planFact.Days()...)
	days = append(days, weather.Days()...)

	out := frame.New(days)
	joinNumeric(out, planFact)
	joinNumeric(out, weather)
	addEventColumns(out, byDay)

	return &Result{Table: out, EventsByDay: byDay}
}

// joinNumeric copies each numeric column of src into dst, aligning by day.
// Days absent from src stay NaN.
func joinNumeric(dst *frame.Frame, src *frame.Frame) {
	for _, name := range src.Columns() {
		srcCol, ok := src.Numeric(name)
		if !ok {
			continue
		}
		values := make([]float64, dst.Len())
		for i := range values {
			values[i] = math.NaN()
		}
		for j, day := range src.Days() {
			if i := dst.DayIndex(day); i >= 0 {
				values[i] = srcCol[j]
			}
		}
		_ = dst.AddNumeric(name, values)
	}
}

func addEventColumns(out *frame.Frame, byDay map[time.Time][]feed.RestrictionEvent) {
	n := out.Len()
	start := make([]string, n)
	end := make([]string, n)
	typ := make([]string, n)
	present := make([]bool, n)
	volume := make([]float64, n)
	count := make([]float64, n)
	for i := range volume {
		volume[i] = math.NaN()
		count[i] = math.NaN()
	}

	for day, evs := range byDay {
		i := out.DayIndex(day)
		if i < 0 || len(evs) == 0 {
			continue
		}
		sort.SliceStable(evs, func(a, b int) bool { return evs[a].ID < evs[b].ID })

		present[i] = true
		start[i] = evs[0].StartTime
		end[i] = evs[0].EndTime
		typ[i] = evs[0].Type
		count[i] = float64(len(evs))

		sum := math.NaN()
		for _, ev := range evs {
			if math.IsNaN(ev.VolumeMW) {
				continue
			}
			if math.IsNaN(sum) {
				sum = 0
			}
			sum += ev.VolumeMW
		}
		volume[i] = sum
	}

	_ = out.AddText(ColStartTime, start, present)
	_ = out.AddText(ColEndTime, end, present)
	_ = out.AddText(ColType, typ, present)
	_ = out.AddNumeric(ColVolumeMW, volume)
	_ = out.AddNumeric(ColEventCount, count)
}
