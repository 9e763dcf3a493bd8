package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"skinprice/internal/model"
)

const defaultBatchSize = 200

const upsertPriceSQL = `
	INSERT INTO skin_prices (name, price, updated_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (name) DO UPDATE
	SET price = EXCLUDED.price, updated_at = EXCLUDED.updated_at`

// DBTX is the part of *pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type PriceRepository struct {
	DB        DBTX
	BatchSize int
}

// FindByKey returns nil, nil when no row exists for name.
func (r *PriceRepository) FindByKey(ctx context.Context, name string) (*model.PriceRecord, error) {
	var rec model.PriceRecord
	err := r.DB.QueryRow(ctx, `
		SELECT name, price, updated_at
		FROM skin_prices
		WHERE name = $1
	`, name).Scan(&rec.Name, &rec.Price, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find price %q: %w", name, err)
	}
	return &rec, nil
}

// FindByKeys loads every existing row among names in one round trip.
func (r *PriceRepository) FindByKeys(ctx context.Context, names []string) (map[string]model.PriceRecord, error) {
	out := make(map[string]model.PriceRecord, len(names))
	if len(names) == 0 {
		return out, nil
	}

	rows, err := r.DB.Query(ctx, `
		SELECT name, price, updated_at
		FROM skin_prices
		WHERE name = ANY($1)
	`, names)
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec model.PriceRecord
		if err := rows.Scan(&rec.Name, &rec.Price, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		out[rec.Name] = rec
	}
	return out, rows.Err()
}

// BatchUpsert writes records in pipelined chunks. A chunk that fails as a
// whole is replayed one statement at a time so one bad row cannot sink the
// others; the result slice has one entry per input record.
func (r *PriceRepository) BatchUpsert(ctx context.Context, recs []model.PriceRecord) []model.UpsertResult {
	size := r.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}

	results := make([]model.UpsertResult, 0, len(recs))
	for i := 0; i < len(recs); i += size {
		j := i + size
		if j > len(recs) {
			j = len(recs)
		}
		chunk := recs[i:j]
		if err := r.sendChunk(ctx, chunk); err == nil {
			for _, rec := range chunk {
				results = append(results, model.UpsertResult{Name: rec.Name})
			}
			continue
		}
		for _, rec := range chunk {
			_, err := r.DB.Exec(ctx, upsertPriceSQL, rec.Name, rec.Price, rec.UpdatedAt)
			if err != nil {
				err = fmt.Errorf("upsert %q: %w", rec.Name, err)
			}
			results = append(results, model.UpsertResult{Name: rec.Name, Err: err})
		}
	}
	return results
}

func (r *PriceRepository) sendChunk(ctx context.Context, chunk []model.PriceRecord) error {
	b := &pgx.Batch{}
	for _, rec := range chunk {
		b.Queue(upsertPriceSQL, rec.Name, rec.Price, rec.UpdatedAt)
	}
	br := r.DB.SendBatch(ctx, b)
	for range chunk {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}
