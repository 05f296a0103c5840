package forecast

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seriesFrom(start time.Time, n int) Series {
	days := make([]time.Time, n)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return Series{Name: "fact_ГПП-1_Нагрузка", Days: days, Values: trendSeries(n)}
}

func testSeries(n int) Series {
	return seriesFrom(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), n)
}

func TestForecastContiguousDays(t *testing.T) {
	f, err := New()
	if err != nil {
		t.Fatal(err)
	}
	s := testSeries(60)

	res, err := f.Forecast(context.Background(), s, DefaultOrder, 7)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	if len(res.Points) != 7 {
		t.Fatalf("got %d points, want 7", len(res.Points))
	}

	lastDay := s.Days[len(s.Days)-1]
	for i, p := range res.Points {
		want := lastDay.AddDate(0, 0, i+1)
		if !p.Day.Equal(want) {
			t.Errorf("point %d day = %v, want %v", i, p.Day, want)
		}
		// Presentation values are rounded to whole units.
		if p.Value != float64(int64(p.Value)) {
			t.Errorf("point %d value %v is not rounded", i, p.Value)
		}
	}
	if res.FromCache {
		t.Error("first computation should not come from cache")
	}
}

func TestForecastCacheHit(t *testing.T) {
	f, err := New(WithCache(16, 0))
	if err != nil {
		t.Fatal(err)
	}
	s := testSeries(60)

	first, err := f.Forecast(context.Background(), s, DefaultOrder, 7)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.Forecast(context.Background(), s, DefaultOrder, 7)
	if err != nil {
		t.Fatal(err)
	}

	if !second.FromCache {
		t.Error("second identical request should be served from cache")
	}
	for i := range first.Points {
		if first.Points[i].Value != second.Points[i].Value {
			t.Errorf("cached point %d = %v, want %v", i, second.Points[i].Value, first.Points[i].Value)
		}
	}

	hits, misses, size := f.CacheStats()
	if hits != 1 || misses != 1 || size != 1 {
		t.Errorf("cache stats hits=%d misses=%d size=%d, want 1/1/1", hits, misses, size)
	}
}

func TestForecastCacheHitReanchorsDays(t *testing.T) {
	f, err := New()
	if err != nil {
		t.Fatal(err)
	}

	// Two series with identical values over different calendar spans share a
	// cache key; each caller must still get days anchored to its own span.
	a := seriesFrom(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), 60)
	b := seriesFrom(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 60)

	if _, err := f.Forecast(context.Background(), a, DefaultOrder, 7); err != nil {
		t.Fatal(err)
	}
	res, err := f.Forecast(context.Background(), b, DefaultOrder, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !res.FromCache {
		t.Fatal("identical values should hit the cache")
	}

	lastDay := b.Days[len(b.Days)-1]
	for i, p := range res.Points {
		want := lastDay.AddDate(0, 0, i+1)
		if !p.Day.Equal(want) {
			t.Errorf("point %d day = %v, want %v (anchored to the caller's span)", i, p.Day, want)
		}
	}

	// The first caller's anchoring must survive the second hit.
	again, err := f.Forecast(context.Background(), a, DefaultOrder, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Points[0].Day.Equal(a.Days[len(a.Days)-1].AddDate(0, 0, 1)) {
		t.Errorf("first point day = %v, want the day after %v", again.Points[0].Day, a.Days[len(a.Days)-1])
	}
}

func TestForecastCacheKeyedOnContent(t *testing.T) {
	f, err := New()
	if err != nil {
		t.Fatal(err)
	}
	s := testSeries(60)
	if _, err := f.Forecast(context.Background(), s, DefaultOrder, 7); err != nil {
		t.Fatal(err)
	}

	// Same name, changed data: must recompute, not serve the stale result.
	changed := testSeries(60)
	changed.Values[30] += 100
	res, err := f.Forecast(context.Background(), changed, DefaultOrder, 7)
	if err != nil {
		t.Fatal(err)
	}
	if res.FromCache {
		t.Error("changed values must not hit the cache")
	}

	// Different horizon is a different key too.
	res, err = f.Forecast(context.Background(), s, DefaultOrder, 3)
	if err != nil {
		t.Fatal(err)
	}
	if res.FromCache {
		t.Error("different horizon must not hit the cache")
	}
}

func TestForecastEmptySeries(t *testing.T) {
	f, err := New()
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.Forecast(context.Background(), Series{Name: "empty"}, DefaultOrder, 7)
	var ins *InsufficientDataError
	if !errors.As(err, &ins) {
		t.Fatalf("got %v, want InsufficientDataError", err)
	}
	if ins.Series != "empty" {
		t.Errorf("error series = %q, want the series name", ins.Series)
	}
}

func TestForecastShortSeriesNamesSeries(t *testing.T) {
	f, err := New()
	if err != nil {
		t.Fatal(err)
	}
	s := testSeries(5)
	_, err = f.Forecast(context.Background(), s, DefaultOrder, 7)
	var ins *InsufficientDataError
	if !errors.As(err, &ins) {
		t.Fatalf("got %v, want InsufficientDataError", err)
	}
	if ins.Series != s.Name {
		t.Errorf("error series = %q, want %q", ins.Series, s.Name)
	}
}

func TestForecastBadHorizon(t *testing.T) {
	f, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Forecast(context.Background(), testSeries(60), DefaultOrder, 0); err == nil {
		t.Error("zero horizon should error")
	}
}

func TestCacheKeyDistinguishesOrder(t *testing.T) {
	values := trendSeries(20)
	a := cacheKey(values, Order{P: 2, D: 1, Q: 2}, 7)
	b := cacheKey(values, Order{P: 1, D: 1, Q: 2}, 7)
	if a == b {
		t.Error("different orders must produce different keys")
	}
	if a != cacheKey(values, Order{P: 2, D: 1, Q: 2}, 7) {
		t.Error("identical inputs must produce identical keys")
	}
}
