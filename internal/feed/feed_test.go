package feed

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestParseDayFirst(t *testing.T) {
	day, err := ParseDayFirst("01.07.2024")
	if err != nil {
		t.Fatalf("ParseDayFirst failed: %v", err)
	}
	want := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	if !day.Equal(want) {
		t.Errorf("got %v, want %v", day, want)
	}

	if _, err := ParseDayFirst("2024-07-01"); err == nil {
		t.Error("ISO text should not parse as day-first")
	}
	if _, err := ParseDayFirst("not a date"); err == nil {
		t.Error("garbage should not parse")
	}
}

func TestParseISO(t *testing.T) {
	day, err := ParseISO(" 2024-07-01 ")
	if err != nil {
		t.Fatalf("ParseISO failed: %v", err)
	}
	if !day.Equal(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected day %v", day)
	}

	if _, err := ParseISO("01.07.2024"); err == nil {
		t.Error("day-first text should not parse as ISO")
	}
}

func TestNormalizedDatesJoin(t *testing.T) {
	// The two formats must land on the same calendar day so the join key
	// comparison succeeds across feeds.
	a, _ := ParseDayFirst("01.07.2024")
	b, _ := ParseISO("2024-07-01")
	if !a.Equal(b) {
		t.Errorf("day-first %v != ISO %v", a, b)
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		nan  bool
	}{
		{"5.0", 5.0, false},
		{"5,25", 5.25, false},
		{" 12 ", 12, false},
		{"", 0, true},
		{"n/a", 0, true},
		{"-3.5", -3.5, false},
	}
	for _, tc := range tests {
		got := ParseNumber(tc.in)
		if tc.nan {
			if !math.IsNaN(got) {
				t.Errorf("ParseNumber(%q) = %v, want NaN", tc.in, got)
			}
			continue
		}
		if got != tc.want {
			t.Errorf("ParseNumber(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestValidateSchemaMissingColumns(t *testing.T) {
	rows := []Row{{ColDay: "2024-07-01", ColCity: "Омск"}}
	err := ValidateSchema(FeedPogoda, rows, PogodaSchema())
	if err == nil {
		t.Fatal("expected schema mismatch")
	}

	var schema *SchemaMismatchError
	if !errors.As(err, &schema) {
		t.Fatalf("got %T, want *SchemaMismatchError", err)
	}
	if schema.Feed != FeedPogoda {
		t.Errorf("feed = %q, want %q", schema.Feed, FeedPogoda)
	}
	if len(schema.Missing) != 1 || schema.Missing[0] != ColTemperature {
		t.Errorf("missing = %v, want [%s]", schema.Missing, ColTemperature)
	}
	if !strings.Contains(schema.Error(), ColTemperature) {
		t.Errorf("error text should name the missing column: %s", schema.Error())
	}
}

func TestValidateSchemaEmptyFeed(t *testing.T) {
	if err := ValidateSchema(FeedSpravka, nil, SpravkaSchema()); err != nil {
		t.Errorf("empty feed should validate, got %v", err)
	}
}

func TestDecodeRestrictions(t *testing.T) {
	rows := []Row{
		{ColID: "1", ColDate: "01.07.2024", ColStartTime: "12:00", ColEndTime: "12:15", ColType: "САОН", ColVolumeMW: "5.0"},
		{ColID: "2", ColDate: "bad date", ColStartTime: "13:00", ColEndTime: "13:30", ColType: "САОН", ColVolumeMW: "2.0"},
		{ColDate: "02.07.2024", ColStartTime: "09:00", ColEndTime: "10:00", ColType: "Команда СО", ColVolumeMW: "нет данных"},
	}

	events, dropped, err := DecodeRestrictions(rows)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	if events[0].ID != 1 || events[0].Type != "САОН" || events[0].VolumeMW != 5.0 {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[0].Day != time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("unexpected day: %v", events[0].Day)
	}

	// Missing ID stays zero (the store layer backfills); bad volume is
	// missing, not zero.
	if events[1].ID != 0 {
		t.Errorf("legacy row ID = %d, want 0", events[1].ID)
	}
	if !math.IsNaN(events[1].VolumeMW) {
		t.Errorf("unparseable volume = %v, want NaN", events[1].VolumeMW)
	}
}

func TestDecodeRestrictionsSchemaAbort(t *testing.T) {
	rows := []Row{{ColDate: "01.07.2024"}}
	if _, _, err := DecodeRestrictions(rows); err == nil {
		t.Fatal("expected schema mismatch for missing columns")
	}
}

func TestDecodeSpravka(t *testing.T) {
	rows := []Row{
		{ColDay: "2024-07-01", ColObject: "ГПП-1", ColMeasureType: "Нагрузка", ColPlan: "10", ColFact: "9.5"},
		{ColDay: "07/01/2024", ColObject: "ГПП-1", ColMeasureType: "Нагрузка", ColPlan: "1", ColFact: "1"},
	}
	out, dropped, err := DecodeSpravka(rows)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if dropped != 1 || len(out) != 1 {
		t.Fatalf("got %d rows, %d dropped; want 1 row, 1 dropped", len(out), dropped)
	}
	if out[0].Plan != 10 || out[0].Fact != 9.5 {
		t.Errorf("unexpected values: %+v", out[0])
	}
}

func TestDecodePogoda(t *testing.T) {
	rows := []Row{
		{ColDay: "2024-07-01", ColCity: "Омск", ColTemperature: "21.5"},
		{ColDay: "2024-07-01", ColCity: "Тюмень", ColTemperature: ""},
	}
	out, dropped, err := DecodePogoda(rows)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if dropped != 0 || len(out) != 2 {
		t.Fatalf("got %d rows, %d dropped", len(out), dropped)
	}
	if out[0].Temperature != 21.5 {
		t.Errorf("temperature = %v, want 21.5", out[0].Temperature)
	}
	if !math.IsNaN(out[1].Temperature) {
		t.Errorf("empty temperature = %v, want NaN", out[1].Temperature)
	}
}

func TestReadCSV(t *testing.T) {
	csv := "day,city,temperature_2m\n2024-07-01,Омск,21.5\n2024-07-02,Омск\n"
	rows, err := ReadCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0][ColCity] != "Омск" || rows[0][ColTemperature] != "21.5" {
		t.Errorf("unexpected row: %v", rows[0])
	}
	// Short row gets an empty cell, not a missing key.
	if v, ok := rows[1][ColTemperature]; !ok || v != "" {
		t.Errorf("short row temperature = %q (present=%v), want empty present", v, ok)
	}
}
