package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists records in a single table. ReplaceAll runs in a
// transaction, so readers never observe a half-rewritten table; the wider
// FetchAll→mutate→ReplaceAll cycle is still last-writer-wins.
//
// Schema:
//
//	CREATE TABLE restriction_records (
//	  id         INTEGER PRIMARY KEY,
//	  date       TEXT NOT NULL,
//	  start_time TEXT NOT NULL,
//	  end_time   TEXT NOT NULL,
//	  type       TEXT NOT NULL,
//	  volume_mw  DOUBLE PRECISION NOT NULL
//	);
//	CREATE TABLE restriction_meta (
//	  next_id INTEGER NOT NULL
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) FetchAll(ctx context.Context) (Table, error) {
	var t Table

	err := p.pool.QueryRow(ctx, `SELECT next_id FROM restriction_meta`).Scan(&t.NextID)
	if err != nil && err != pgx.ErrNoRows {
		return Table{}, fmt.Errorf("postgres meta query failed: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, date, start_time, end_time, type, volume_mw
		FROM restriction_records
		ORDER BY id
	`)
	if err != nil {
		return Table{}, fmt.Errorf("postgres query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Date, &r.StartTime, &r.EndTime, &r.Type, &r.VolumeMW); err != nil {
			return Table{}, fmt.Errorf("row scan failed: %w", err)
		}
		t.Records = append(t.Records, r)
	}
	if rows.Err() != nil {
		return Table{}, fmt.Errorf("rows iteration failed: %w", rows.Err())
	}
	return t, nil
}

func (p *PostgresStore) ReplaceAll(ctx context.Context, t Table) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE restriction_records`); err != nil {
		return fmt.Errorf("truncate failed: %w", err)
	}
	if _, err := tx.Exec(ctx, `TRUNCATE restriction_meta`); err != nil {
		return fmt.Errorf("truncate meta failed: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO restriction_meta (next_id) VALUES ($1)`, t.NextID); err != nil {
		return fmt.Errorf("meta insert failed: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range t.Records {
		batch.Queue(`
			INSERT INTO restriction_records (id, date, start_time, end_time, type, volume_mw)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, r.ID, r.Date, r.StartTime, r.EndTime, r.Type, r.VolumeMW)
	}
	if len(t.Records) > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("batch insert failed: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
