package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ndfz-analytics/gridview/internal/feed"
)

func testFeeds() Feeds {
	return Feeds{
		Restrictions: []feed.Row{
			{feed.ColID: "1", feed.ColDate: "01.07.2024", feed.ColStartTime: "12:00",
				feed.ColEndTime: "12:15", feed.ColType: "САОН", feed.ColVolumeMW: "5.0"},
		},
		Spravka: []feed.Row{
			{feed.ColDay: "2024-07-01", feed.ColObject: "ГПП-1", feed.ColMeasureType: "Нагрузка",
				feed.ColPlan: "10", feed.ColFact: "9.5"},
			{feed.ColDay: "2024-07-02", feed.ColObject: "ГПП-1", feed.ColMeasureType: "Нагрузка",
				feed.ColPlan: "11", feed.ColFact: "10.2"},
		},
		Pogoda: []feed.Row{
			{feed.ColDay: "2024-07-01", feed.ColCity: "Омск", feed.ColTemperature: "21.5"},
			{feed.ColDay: "2024-07-03", feed.ColCity: "Омск", feed.ColTemperature: "19.0"},
		},
	}
}

func TestRunReconcilesFeeds(t *testing.T) {
	p := New(nil)
	res, err := p.Run(context.Background(), testFeeds())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Union of days across all three feeds.
	if res.Table.Len() != 3 {
		t.Fatalf("Len = %d, want 3", res.Table.Len())
	}

	row := res.Table.Row(0)
	if row["day"] != "2024-07-01" {
		t.Errorf("first day = %v", row["day"])
	}
	if row["plan_ГПП-1_Нагрузка"] != 10.0 || row["fact_ГПП-1_Нагрузка"] != 9.5 {
		t.Errorf("plan/fact missing from row: %v", row)
	}
	if row["Омск"] != 21.5 {
		t.Errorf("weather missing from row: %v", row)
	}
	if row["type"] != "САОН" || row["volume_mw"] != 5.0 {
		t.Errorf("event fields missing from row: %v", row)
	}

	// Day 2 has plan/fact only; event and weather fields stay absent.
	row2 := res.Table.Row(1)
	if _, ok := row2["type"]; ok {
		t.Error("day without restriction should have no type")
	}
	if _, ok := row2["Омск"]; ok {
		t.Error("day without weather reading should have no temperature")
	}

	day1 := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	if len(res.EventsByDay[day1]) != 1 {
		t.Errorf("EventsByDay[%v] = %d events, want 1", day1, len(res.EventsByDay[day1]))
	}
	if res.Fingerprint == "" {
		t.Error("fingerprint should be set")
	}
}

func TestRunSchemaMismatchAborts(t *testing.T) {
	feeds := testFeeds()
	feeds.Spravka = []feed.Row{{feed.ColDay: "2024-07-01"}}

	p := New(nil)
	_, err := p.Run(context.Background(), feeds)
	var schema *feed.SchemaMismatchError
	if !errors.As(err, &schema) {
		t.Fatalf("got %v, want SchemaMismatchError", err)
	}
	if schema.Feed != feed.FeedSpravka {
		t.Errorf("feed = %q, want %q", schema.Feed, feed.FeedSpravka)
	}
}

func TestRunCountsDroppedRows(t *testing.T) {
	feeds := testFeeds()
	feeds.Restrictions = append(feeds.Restrictions, feed.Row{
		feed.ColDate: "not a date", feed.ColStartTime: "", feed.ColEndTime: "",
		feed.ColType: "САОН", feed.ColVolumeMW: "2",
	})
	feeds.Pogoda = append(feeds.Pogoda, feed.Row{
		feed.ColDay: "31.12.2024", feed.ColCity: "Омск", feed.ColTemperature: "1",
	})

	p := New(nil)
	res, err := p.Run(context.Background(), feeds)
	if err != nil {
		t.Fatal(err)
	}
	if res.Dropped.Restrictions != 1 || res.Dropped.Pogoda != 1 || res.Dropped.Spravka != 0 {
		t.Errorf("dropped = %+v, want 1/0/1", res.Dropped)
	}
}

func TestRunEmptyFeeds(t *testing.T) {
	p := New(nil)
	res, err := p.Run(context.Background(), Feeds{})
	if err != nil {
		t.Fatalf("empty feeds should reconcile to an empty table, got %v", err)
	}
	if res.Table.Len() != 0 {
		t.Errorf("Len = %d, want 0", res.Table.Len())
	}
}

func TestFingerprintTracksContent(t *testing.T) {
	p := New(nil)
	a, err := p.Run(context.Background(), testFeeds())
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Run(context.Background(), testFeeds())
	if err != nil {
		t.Fatal(err)
	}
	if a.Fingerprint != b.Fingerprint {
		t.Error("identical feeds should reconcile to the same fingerprint")
	}

	changed := testFeeds()
	changed.Spravka[0][feed.ColPlan] = "12"
	c, err := p.Run(context.Background(), changed)
	if err != nil {
		t.Fatal(err)
	}
	if c.Fingerprint == a.Fingerprint {
		t.Error("changed cell should change the fingerprint")
	}
}

func TestResultSeries(t *testing.T) {
	p := New(nil)
	res, err := p.Run(context.Background(), testFeeds())
	if err != nil {
		t.Fatal(err)
	}

	s, err := res.Series("fact_ГПП-1_Нагрузка")
	if err != nil {
		t.Fatal(err)
	}
	// Three reconciled days but only two fact observations: gaps are
	// dropped, not zero-filled.
	if len(s.Values) != 2 {
		t.Fatalf("series has %d values, want 2", len(s.Values))
	}
	if s.Values[0] != 9.5 || s.Values[1] != 10.2 {
		t.Errorf("values = %v, want [9.5 10.2]", s.Values)
	}
	for _, v := range s.Values {
		if math.IsNaN(v) {
			t.Error("series must not contain NaN")
		}
	}
	if len(s.Days) != len(s.Values) {
		t.Errorf("days/values length mismatch: %d vs %d", len(s.Days), len(s.Values))
	}

	if _, err := res.Series("нет такой"); err == nil {
		t.Error("unknown column should error")
	}
}
