package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// SequenceRepository serves single-row atomic counters per numbering stream.
type SequenceRepository interface {
	// Increment bumps the stream counter and returns the new value, starting at 1.
	Increment(ctx context.Context, stream domain.SequenceStream) (int64, error)
	// Seed creates the counter at value when it does not exist yet. It reports whether a row was written.
	Seed(ctx context.Context, stream domain.SequenceStream, value int64) (bool, error)
	// AdvanceTo raises the counter to at least value. It never lowers it.
	AdvanceTo(ctx context.Context, stream domain.SequenceStream, value int64) error
	Current(ctx context.Context, stream domain.SequenceStream) (int64, bool, error)
}

type sequenceRepository struct {
	db DBTX
}

func (r *sequenceRepository) Increment(ctx context.Context, stream domain.SequenceStream) (int64, error) {
	const query = `
        INSERT INTO sequences (stream, value) VALUES ($1, 1)
        ON CONFLICT (stream) DO UPDATE SET value = sequences.value + 1
        RETURNING value`
	var value int64
	if err := r.db.QueryRow(ctx, query, string(stream)).Scan(&value); err != nil {
		return 0, translate(err)
	}
	return value, nil
}

func (r *sequenceRepository) Seed(ctx context.Context, stream domain.SequenceStream, value int64) (bool, error) {
	const query = `INSERT INTO sequences (stream, value) VALUES ($1, $2) ON CONFLICT (stream) DO NOTHING`
	cmd, err := r.db.Exec(ctx, query, string(stream), value)
	if err != nil {
		return false, translate(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *sequenceRepository) AdvanceTo(ctx context.Context, stream domain.SequenceStream, value int64) error {
	const query = `
        INSERT INTO sequences (stream, value) VALUES ($1, $2)
        ON CONFLICT (stream) DO UPDATE SET value = GREATEST(sequences.value, EXCLUDED.value)`
	_, err := r.db.Exec(ctx, query, string(stream), value)
	return translate(err)
}

func (r *sequenceRepository) Current(ctx context.Context, stream domain.SequenceStream) (int64, bool, error) {
	var value int64
	err := r.db.QueryRow(ctx, `SELECT value FROM sequences WHERE stream=$1`, string(stream)).Scan(&value)
	if err != nil {
		err = translate(err)
		if errors.Is(err, ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return value, true, nil
}
