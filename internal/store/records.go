package store

import (
	"context"
	"fmt"

	"github.com/ndfz-analytics/gridview/internal/feed"
	"github.com/ndfz-analytics/gridview/internal/metrics"
)

// ErrNotFound is returned for operations on an unknown record ID.
var ErrNotFound = fmt.Errorf("record not found")

// RecordService implements the entry-form operations on top of a Store.
//
// Identity: an ID is assigned once at creation from the persisted counter and
// never recomputed from row position. IDs are never reused after deletion.
// Legacy rows without an ID get a dense backfill on first read, which is then
// persisted, so the backfill happens at most once per table.
type RecordService struct {
	store   Store
	metrics *metrics.Metrics
}

// NewRecordService wraps a Store. metrics may be nil.
func NewRecordService(s Store, m *metrics.Metrics) *RecordService {
	return &RecordService{store: s, metrics: m}
}

// List returns all records, backfilling and persisting IDs for legacy rows.
func (s *RecordService) List(ctx context.Context) ([]Record, error) {
	t, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return t.Records, nil
}

// Get returns one record by ID.
func (s *RecordService) Get(ctx context.Context, id int) (Record, error) {
	records, err := s.List(ctx)
	if err != nil {
		return Record{}, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, ErrNotFound
}

// Append adds a new record, assigning the next free ID, and returns it.
func (s *RecordService) Append(ctx context.Context, r Record) (Record, error) {
	if _, err := feed.ParseDayFirst(r.Date); err != nil {
		return Record{}, fmt.Errorf("invalid date %q: want day-first DD.MM.YYYY", r.Date)
	}
	if r.VolumeMW < 0 {
		return Record{}, fmt.Errorf("volume must be non-negative, got %g", r.VolumeMW)
	}

	t, err := s.load(ctx)
	if err != nil {
		return Record{}, err
	}

	r.ID = t.NextID
	t.NextID++
	t.Records = append(t.Records, r)
	if err := s.store.ReplaceAll(ctx, t); err != nil {
		s.countError()
		return Record{}, err
	}
	s.countWrite()
	return r, nil
}

// Update replaces the record with r.ID.
func (s *RecordService) Update(ctx context.Context, r Record) error {
	if _, err := feed.ParseDayFirst(r.Date); err != nil {
		return fmt.Errorf("invalid date %q: want day-first DD.MM.YYYY", r.Date)
	}

	t, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i := range t.Records {
		if t.Records[i].ID == r.ID {
			t.Records[i] = r
			if err := s.store.ReplaceAll(ctx, t); err != nil {
				s.countError()
				return err
			}
			s.countWrite()
			return nil
		}
	}
	return ErrNotFound
}

// Delete removes the record with the given ID. The ID is not reused: the
// persisted counter keeps advancing regardless of what remains.
func (s *RecordService) Delete(ctx context.Context, id int) error {
	t, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := t.Records[:0]
	found := false
	for _, r := range t.Records {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return ErrNotFound
	}
	t.Records = kept
	if err := s.store.ReplaceAll(ctx, t); err != nil {
		s.countError()
		return err
	}
	s.countWrite()
	return nil
}

// Rows returns the live table in the header-keyed form the pipeline reads.
func (s *RecordService) Rows(ctx context.Context) ([]feed.Row, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]feed.Row, len(records))
	for i, r := range records {
		rows[i] = r.Row()
	}
	return rows, nil
}

// load fetches the table and normalizes its identity state: legacy rows get
// dense IDs and the counter is advanced past every ID ever seen. Any change
// is persisted immediately.
func (s *RecordService) load(ctx context.Context) (Table, error) {
	t, err := s.store.FetchAll(ctx)
	if err != nil {
		s.countError()
		return Table{}, err
	}

	changed := false
	maxID := 0
	for _, r := range t.Records {
		if r.ID > maxID {
			maxID = r.ID
		}
	}
	for i := range t.Records {
		if t.Records[i].ID == 0 {
			maxID++
			t.Records[i].ID = maxID
			changed = true
		}
	}
	if t.NextID <= maxID {
		t.NextID = maxID + 1
		changed = true
	}

	if changed {
		if err := s.store.ReplaceAll(ctx, t); err != nil {
			s.countError()
			return Table{}, fmt.Errorf("persist id state: %w", err)
		}
	}
	return t, nil
}

func (s *RecordService) countWrite() {
	if s.metrics != nil {
		s.metrics.RecordWrites.Inc()
	}
}

func (s *RecordService) countError() {
	if s.metrics != nil {
		s.metrics.RecordErrors.Inc()
	}
}
