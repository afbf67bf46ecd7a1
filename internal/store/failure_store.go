package store

import (
	"context"
	"fmt"
	"time"

	"github.com/eserdar/outreach-sequencer/internal/domain"
)

// SendFailureRow is a recorded exhausted delivery, as listed for operators.
type SendFailureRow struct {
	ID         string    `json:"id"`
	DeliveryID string    `json:"delivery_id"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordSendFailure inserts a row for a delivery whose send attempts were
// exhausted. The delivery itself is left PENDING.
func (s *PostgresStore) RecordSendFailure(ctx context.Context, rec domain.SendFailure) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO send_failures (delivery_id, attempts, last_error)
		VALUES ($1, $2, $3)
	`, rec.DeliveryID, rec.Attempts, rec.LastError)
	if err != nil {
		return fmt.Errorf("inserting send failure: %w", err)
	}
	return nil
}

// ListSendFailures returns recorded failures, newest first.
func (s *PostgresStore) ListSendFailures(ctx context.Context, limit int) ([]SendFailureRow, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, delivery_id, attempts, last_error, created_at
		FROM send_failures
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying send failures: %w", err)
	}
	defer rows.Close()

	var failures []SendFailureRow
	for rows.Next() {
		var f SendFailureRow
		if err := rows.Scan(&f.ID, &f.DeliveryID, &f.Attempts, &f.LastError, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning send failure: %w", err)
		}
		failures = append(failures, f)
	}

	if failures == nil {
		failures = []SendFailureRow{}
	}
	return failures, rows.Err()
}
