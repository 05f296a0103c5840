// Package pipeline runs the full reconciliation pass: decode the three raw
// feeds, pivot the long-format ones, and outer-join everything on day.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ndfz-analytics/gridview/internal/feed"
	"github.com/ndfz-analytics/gridview/internal/forecast"
	"github.com/ndfz-analytics/gridview/internal/frame"
	"github.com/ndfz-analytics/gridview/internal/metrics"
	"github.com/ndfz-analytics/gridview/internal/reconcile"
)

// Feeds carries the three raw row-sets supplied by the record store and the
// export collaborators.
type Feeds struct {
	Restrictions []feed.Row
	Spravka      []feed.Row
	Pogoda       []feed.Row
}

// Dropped counts rows discarded for unparseable dates, per feed.
type Dropped struct {
	Restrictions int `json:"restrictions"`
	Spravka      int `json:"spravka"`
	Pogoda       int `json:"pogoda"`
}

// Result is one reconciliation pass over the live feeds. Fingerprint changes
// whenever any cell of the reconciled table changes, which is what downstream
// forecast caching keys on.
type Result struct {
	Table       *frame.Frame
	EventsByDay map[time.Time][]feed.RestrictionEvent
	Fingerprint string
	Dropped     Dropped
}

// Pipeline recomputes the reconciled table from raw feeds. It holds no
// cross-run mutable state; each Run is independent.
type Pipeline struct {
	metrics *metrics.Metrics
}

// New creates a Pipeline. metrics may be nil.
func New(m *metrics.Metrics) *Pipeline {
	return &Pipeline{metrics: m}
}

// Run validates, decodes, pivots and reconciles the feeds. A schema mismatch
// aborts the run; rows with unparseable dates are dropped and counted.
func (p *Pipeline) Run(ctx context.Context, feeds Feeds) (*Result, error) {
	start := time.Now()
	ctx, span := otel.Tracer("gridview/pipeline").Start(ctx, "pipeline.run")
	defer span.End()
	_ = ctx

	if p.metrics != nil {
		p.metrics.PipelineRuns.Inc()
		defer func() {
			p.metrics.PipelineDuration.Observe(time.Since(start).Seconds())
		}()
	}

	events, droppedR, err := feed.DecodeRestrictions(feeds.Restrictions)
	if err != nil {
		return nil, p.fail(err)
	}
	planFactRows, droppedS, err := feed.DecodeSpravka(feeds.Spravka)
	if err != nil {
		return nil, p.fail(err)
	}
	weatherRows, droppedP, err := feed.DecodePogoda(feeds.Pogoda)
	if err != nil {
		return nil, p.fail(err)
	}

	planFact := frame.Pivot(planFactLong(planFactRows))
	weather := frame.Pivot(weatherLong(weatherRows))
	rec := reconcile.Reconcile(events, planFact, weather)

	dropped := Dropped{Restrictions: droppedR, Spravka: droppedS, Pogoda: droppedP}
	if p.metrics != nil {
		p.metrics.RowsDropped.WithLabelValues(feed.FeedRestrictions).Add(float64(droppedR))
		p.metrics.RowsDropped.WithLabelValues(feed.FeedSpravka).Add(float64(droppedS))
		p.metrics.RowsDropped.WithLabelValues(feed.FeedPogoda).Add(float64(droppedP))
		p.metrics.ReconciledDays.Set(float64(rec.Table.Len()))
	}
	span.SetAttributes(
		attribute.Int("days", rec.Table.Len()),
		attribute.Int("dropped", droppedR+droppedS+droppedP),
	)

	return &Result{
		Table:       rec.Table,
		EventsByDay: rec.EventsByDay,
		Fingerprint: rec.Table.Fingerprint(),
		Dropped:     dropped,
	}, nil
}

func (p *Pipeline) fail(err error) error {
	if p.metrics != nil {
		p.metrics.PipelineFailures.Inc()
	}
	return err
}

// Series extracts one numeric column as a forecastable series: observed
// (non-missing) cells in day order, gaps left unfilled.
func (r *Result) Series(column string) (forecast.Series, error) {
	col, ok := r.Table.Numeric(column)
	if !ok {
		return forecast.Series{}, fmt.Errorf("unknown numeric column %q", column)
	}

	s := forecast.Series{Name: column}
	for i, day := range r.Table.Days() {
		if !math.IsNaN(col[i]) {
			s.Days = append(s.Days, day)
			s.Values = append(s.Values, col[i])
		}
	}
	return s, nil
}

// planFactLong expands each plan/fact row into two long-format observations,
// one per value role, named plan_<object>_<type> and fact_<object>_<type>.
func planFactLong(rows []feed.PlanFactRow) []frame.LongRow {
	out := make([]frame.LongRow, 0, 2*len(rows))
	for _, r := range rows {
		dims := []string{r.Object, r.Type}
		out = append(out,
			frame.LongRow{Day: r.Day, Role: "plan", Dims: dims, Value: r.Plan},
			frame.LongRow{Day: r.Day, Role: "fact", Dims: dims, Value: r.Fact},
		)
	}
	return out
}

// weatherLong maps weather rows to long format; the city alone names the
// column since there is a single value role.
func weatherLong(rows []feed.WeatherRow) []frame.LongRow {
	out := make([]frame.LongRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, frame.LongRow{Day: r.Day, Dims: []string{r.City}, Value: r.Temperature})
	}
	return out
}
