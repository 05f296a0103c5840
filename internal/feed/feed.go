package feed

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Feed names used in errors and metrics labels.
const (
	FeedRestrictions = "restrictions"
	FeedSpravka      = "spravka"
	FeedPogoda       = "pogoda"
)

// Column names as they arrive from the shared record store. The restriction
// feed uses the Russian headers of the entry form; the other two feeds use
// lowercase export headers.
const (
	ColID        = "ID"
	ColDate      = "Дата"
	ColStartTime = "Время начала"
	ColEndTime   = "Время конца"
	ColType      = "Тип"
	ColVolumeMW  = "Объем, МВт"

	ColDay         = "day"
	ColObject      = "object"
	ColMeasureType = "type"
	ColPlan        = "plan"
	ColFact        = "fact"
	ColCity        = "city"
	ColTemperature = "temperature_2m"
)

// Row is a single string-keyed record, headers mapped to cell text.
type Row map[string]string

// SchemaMismatchError reports required columns absent from an input feed.
// A schema mismatch aborts the pipeline run: continuing without a required
// column would silently produce a wrong table.
type SchemaMismatchError struct {
	Feed    string
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("feed %s: missing required columns: %s", e.Feed, strings.Join(e.Missing, ", "))
}

// DateParseError reports an unparseable date cell. Rows with bad dates are
// dropped, not fatal; decoders count them so callers can surface the loss.
type DateParseError struct {
	Feed  string
	Value string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("feed %s: unparseable date %q", e.Feed, e.Value)
}

// ValidateSchema checks that every required column appears in the feed.
// An empty feed trivially validates: there is nothing to misread.
func ValidateSchema(feedName string, rows []Row, required []string) error {
	if len(rows) == 0 {
		return nil
	}

	var missing []string
	for _, col := range required {
		if _, ok := rows[0][col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &SchemaMismatchError{Feed: feedName, Missing: missing}
	}
	return nil
}

// RestrictionSchema lists the columns required of the restrictions feed.
// ID is optional: legacy sheets predate the ID column.
func RestrictionSchema() []string {
	return []string{ColDate, ColStartTime, ColEndTime, ColType, ColVolumeMW}
}

// SpravkaSchema lists the columns required of the plan/fact feed.
func SpravkaSchema() []string {
	return []string{ColDay, ColObject, ColMeasureType, ColPlan, ColFact}
}

// PogodaSchema lists the columns required of the weather feed.
func PogodaSchema() []string {
	return []string{ColDay, ColCity, ColTemperature}
}

const (
	dayFirstLayout = "02.01.2006"
	isoLayout      = "2006-01-02"
)

// ParseDayFirst parses day-first date text ("01.07.2024") to a UTC midnight day.
func ParseDayFirst(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dayFirstLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// ParseISO parses ISO date text ("2024-07-01") to a UTC midnight day.
func ParseISO(s string) (time.Time, error) {
	t, err := time.ParseInLocation(isoLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// FormatDayFirst renders a day back into the entry-form date format.
func FormatDayFirst(day time.Time) string {
	return day.Format(dayFirstLayout)
}

// FormatISO renders a day in the export date format.
func FormatISO(day time.Time) string {
	return day.Format(isoLayout)
}
