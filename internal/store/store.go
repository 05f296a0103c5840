// Package store persists restriction records in a shared fetch-all /
// replace-all table, mirroring the spreadsheet the entry form writes to.
//
// The read-modify-write cycle (FetchAll, mutate, ReplaceAll) is not atomic
// across writers: two concurrent editors can clobber each other, which is a
// documented limitation of the shared-sheet model, not something this layer
// hides. Single-writer deployments (one entry form) are the intended use.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ndfz-analytics/gridview/internal/feed"
)

// Record is one stored restriction row, field names matching the sheet
// headers. Date stays day-first text in storage; decoding to a calendar day
// happens in the feed adapter.
type Record struct {
	ID        int     `json:"id"`
	Date      string  `json:"date"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Type      string  `json:"type"`
	VolumeMW  float64 `json:"volume_mw"`
}

// Row converts a record to the header-keyed form the pipeline consumes.
func (r Record) Row() feed.Row {
	return feed.Row{
		feed.ColID:        fmt.Sprintf("%d", r.ID),
		feed.ColDate:      r.Date,
		feed.ColStartTime: r.StartTime,
		feed.ColEndTime:   r.EndTime,
		feed.ColType:      r.Type,
		feed.ColVolumeMW:  fmt.Sprintf("%g", r.VolumeMW),
	}
}

// Table is the full stored state: the records plus the next free ID. The
// counter is persisted alongside the records so identifiers assigned at
// creation stay unique forever, even after the highest-numbered record is
// deleted.
type Table struct {
	NextID  int      `json:"next_id"`
	Records []Record `json:"records"`
}

// Store is the whole-table persistence boundary.
type Store interface {
	// FetchAll returns the complete stored table.
	FetchAll(ctx context.Context) (Table, error)

	// ReplaceAll overwrites the whole table.
	ReplaceAll(ctx context.Context, t Table) error

	// Close releases resources.
	Close() error
}

// MemoryStore keeps records in memory with an optional JSON snapshot file,
// for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	table    Table
	snapshot string
}

// NewMemoryStore creates an in-memory store. If snapshotPath is non-empty,
// existing records are loaded from it and every ReplaceAll rewrites it.
func NewMemoryStore(snapshotPath string) *MemoryStore {
	ms := &MemoryStore{snapshot: snapshotPath}
	if snapshotPath != "" {
		ms.loadSnapshot()
	}
	return ms
}

func (m *MemoryStore) FetchAll(ctx context.Context) (Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := Table{NextID: m.table.NextID, Records: make([]Record, len(m.table.Records))}
	copy(out.Records, m.table.Records)
	return out, nil
}

func (m *MemoryStore) ReplaceAll(ctx context.Context, t Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.table = Table{NextID: t.NextID, Records: make([]Record, len(t.Records))}
	copy(m.table.Records, t.Records)

	if m.snapshot != "" {
		return m.saveSnapshot()
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshot)
	if err != nil {
		return // missing snapshot is a fresh store
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return
	}
	m.table = t
}

// saveSnapshot writes the snapshot atomically via rename. Caller holds mu.
func (m *MemoryStore) saveSnapshot() error {
	data, err := json.MarshalIndent(m.table, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if dir := filepath.Dir(m.snapshot); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("snapshot dir: %w", err)
		}
	}
	tmp := m.snapshot + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, m.snapshot)
}
