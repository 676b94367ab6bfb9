// Package history persists position samples to Postgres for after-the-fact
// queries (route playback, dispute resolution, analytics). The live path
// never waits on it: samples flow through an async sink that batches writes
// and sheds load under pressure.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
)

// Record is one persisted position sample.
type Record struct {
	DeliveryID string
	Sample     domain.PositionSample
}

// Store provides persistence for position history.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new history store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InsertBatch persists a batch of records in one round trip.
func (s *Store) InsertBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO position_history (delivery_id, sequence, lat, lng, reported_at, received_at, accuracy, speed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (delivery_id, sequence) DO NOTHING
	`
	for _, r := range records {
		batch.Queue(query,
			r.DeliveryID,
			r.Sample.Sequence,
			r.Sample.Lat,
			r.Sample.Lng,
			r.Sample.Timestamp,
			r.Sample.ReceivedAt,
			r.Sample.Accuracy,
			r.Sample.Speed,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert position history: %w", err)
		}
	}
	return nil
}

// ListRange returns persisted samples for a delivery in sequence order,
// starting after sinceSeq, up to limit rows.
func (s *Store) ListRange(ctx context.Context, deliveryID string, sinceSeq uint64, limit int) ([]domain.PositionSample, error) {
	query := `
		SELECT sequence, lat, lng, reported_at, received_at, accuracy, speed
		FROM position_history
		WHERE delivery_id = $1 AND sequence > $2
		ORDER BY sequence
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, deliveryID, sinceSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query position history: %w", err)
	}
	defer rows.Close()

	var samples []domain.PositionSample
	for rows.Next() {
		var sample domain.PositionSample
		if err := rows.Scan(
			&sample.Sequence,
			&sample.Lat,
			&sample.Lng,
			&sample.Timestamp,
			&sample.ReceivedAt,
			&sample.Accuracy,
			&sample.Speed,
		); err != nil {
			return nil, fmt.Errorf("scan position history: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// DeleteDelivery removes all history rows for a delivery.
func (s *Store) DeleteDelivery(ctx context.Context, deliveryID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM position_history WHERE delivery_id = $1`, deliveryID)
	return err
}

// PruneBefore deletes rows received before the cutoff. Intended for a
// retention job.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM position_history WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune position history: %w", err)
	}
	return tag.RowsAffected(), nil
}
