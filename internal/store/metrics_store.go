package store

import (
	"context"
	"fmt"

	"github.com/eserdar/outreach-sequencer/internal/domain"
)

// DeliveryMetrics returns aggregated delivery counts for the dashboard.
func (s *PostgresStore) DeliveryMetrics(ctx context.Context) (*domain.DeliveryMetrics, error) {
	var m domain.DeliveryMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
			COUNT(*) FILTER (WHERE status = 'SENT') AS sent,
			COUNT(*) FILTER (WHERE status = 'STOPPED') AS stopped,
			COUNT(*) FILTER (WHERE replied) AS replied
		FROM deliveries
	`).Scan(&m.Total, &m.Pending, &m.Sent, &m.Stopped, &m.Replied)
	if err != nil {
		return nil, fmt.Errorf("querying delivery metrics: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM campaigns`).Scan(&m.Campaigns)
	if err != nil {
		return nil, fmt.Errorf("querying campaign count: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM recipients`).Scan(&m.Recipients)
	if err != nil {
		return nil, fmt.Errorf("querying recipient count: %w", err)
	}

	return &m, nil
}
