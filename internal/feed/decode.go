package feed

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// RestrictionEvent is one consumption-restriction occurrence.
type RestrictionEvent struct {
	ID        int       `json:"id"`
	Day       time.Time `json:"day"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Type      string    `json:"type"`
	VolumeMW  float64   `json:"volume_mw"` // NaN when the cell is unparseable
}

// PlanFactRow is one long-format plan/fact observation.
type PlanFactRow struct {
	Day    time.Time
	Object string
	Type   string
	Plan   float64 // NaN = missing
	Fact   float64 // NaN = missing
}

// WeatherRow is one per-city temperature observation.
type WeatherRow struct {
	Day         time.Time
	City        string
	Temperature float64 // NaN = missing
}

// DecodeRestrictions converts restriction feed rows into typed events.
// Rows whose date cell fails day-first parsing are dropped; the count of
// dropped rows is returned so callers can report the data loss. The volume
// cell is coerced to numeric with NaN on failure, never zero.
func DecodeRestrictions(rows []Row) ([]RestrictionEvent, int, error) {
	if err := ValidateSchema(FeedRestrictions, rows, RestrictionSchema()); err != nil {
		return nil, 0, err
	}

	events := make([]RestrictionEvent, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		day, err := ParseDayFirst(r[ColDate])
		if err != nil {
			dropped++
			continue
		}

		id := 0
		if raw, ok := r[ColID]; ok {
			if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
				id = n
			}
		}

		events = append(events, RestrictionEvent{
			ID:        id,
			Day:       day,
			StartTime: strings.TrimSpace(r[ColStartTime]),
			EndTime:   strings.TrimSpace(r[ColEndTime]),
			Type:      strings.TrimSpace(r[ColType]),
			VolumeMW:  ParseNumber(r[ColVolumeMW]),
		})
	}
	return events, dropped, nil
}

// DecodeSpravka converts plan/fact feed rows, dropping rows with bad ISO dates.
func DecodeSpravka(rows []Row) ([]PlanFactRow, int, error) {
	if err := ValidateSchema(FeedSpravka, rows, SpravkaSchema()); err != nil {
		return nil, 0, err
	}

	out := make([]PlanFactRow, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		day, err := ParseISO(r[ColDay])
		if err != nil {
			dropped++
			continue
		}
		out = append(out, PlanFactRow{
			Day:    day,
			Object: strings.TrimSpace(r[ColObject]),
			Type:   strings.TrimSpace(r[ColMeasureType]),
			Plan:   ParseNumber(r[ColPlan]),
			Fact:   ParseNumber(r[ColFact]),
		})
	}
	return out, dropped, nil
}

// DecodePogoda converts weather feed rows, dropping rows with bad ISO dates.
func DecodePogoda(rows []Row) ([]WeatherRow, int, error) {
	if err := ValidateSchema(FeedPogoda, rows, PogodaSchema()); err != nil {
		return nil, 0, err
	}

	out := make([]WeatherRow, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		day, err := ParseISO(r[ColDay])
		if err != nil {
			dropped++
			continue
		}
		out = append(out, WeatherRow{
			Day:         day,
			City:        strings.TrimSpace(r[ColCity]),
			Temperature: ParseNumber(r[ColTemperature]),
		})
	}
	return out, dropped, nil
}

// ParseNumber coerces cell text to a float64; unparseable text (including an
// empty cell) becomes NaN. Sparse feeds are expected, so a coercion failure is
// a data-quality signal, not an error. Comma decimal separators from the entry
// form are accepted.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
