package store

import (
	"context"
	"fmt"
	"time"

	"github.com/eserdar/outreach-sequencer/internal/domain"
	"github.com/jackc/pgx/v5"
)

// GetDeliveryDetail loads a delivery joined with its recipient and step.
// Returns (nil, nil) when no row exists, which the executor treats as an
// orphaned job.
func (s *PostgresStore) GetDeliveryDetail(ctx context.Context, id string) (*domain.DeliveryDetail, error) {
	var d domain.DeliveryDetail
	err := s.pool.QueryRow(ctx, `
		SELECT d.id, d.campaign_id, d.recipient_id, d.sequence_step_id,
		       d.status, d.replied, d.scheduled_at, d.sent_at, d.created_at,
		       r.id, r.campaign_id, r.first_name, r.last_name, r.profile_handle, r.company, r.created_at,
		       s.id, s.campaign_id, s.step_order, s.message_template, s.delay_hours
		FROM deliveries d
		JOIN recipients r ON d.recipient_id = r.id
		JOIN sequence_steps s ON d.sequence_step_id = s.id
		WHERE d.id = $1
	`, id).Scan(
		&d.ID, &d.CampaignID, &d.RecipientID, &d.SequenceStepID,
		&d.Status, &d.Replied, &d.ScheduledAt, &d.SentAt, &d.CreatedAt,
		&d.Recipient.ID, &d.Recipient.CampaignID, &d.Recipient.FirstName,
		&d.Recipient.LastName, &d.Recipient.ProfileHandle, &d.Recipient.Company, &d.Recipient.CreatedAt,
		&d.Step.ID, &d.Step.CampaignID, &d.Step.StepOrder, &d.Step.MessageTemplate, &d.Step.DelayHours,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying delivery %s: %w", id, err)
	}
	return &d, nil
}

// MarkSent transitions a delivery to SENT only if it is still PENDING.
// Returns false when the update did not take, meaning a reply stopped the
// row first; the caller must treat that as a clean skip, not an error.
func (s *PostgresStore) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE deliveries SET status = 'SENT', sent_at = $2
		WHERE id = $1 AND status = 'PENDING'
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("marking delivery %s sent: %w", id, err)
	}
	return result.RowsAffected() == 1, nil
}

// MarkReplied sets the replied flag on a delivery and returns the context
// needed to stop the recipient's later steps. Setting the flag twice is a
// no-op, so replaying a reply is harmless. Returns (nil, nil) when the
// delivery does not exist.
func (s *PostgresStore) MarkReplied(ctx context.Context, id string) (*domain.RepliedDelivery, error) {
	var rep domain.RepliedDelivery
	err := s.pool.QueryRow(ctx, `
		UPDATE deliveries d SET replied = TRUE
		FROM sequence_steps s
		WHERE d.sequence_step_id = s.id AND d.id = $1
		RETURNING d.id, d.campaign_id, d.recipient_id, s.step_order
	`, id).Scan(&rep.DeliveryID, &rep.CampaignID, &rep.RecipientID, &rep.StepOrder)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("marking delivery %s replied: %w", id, err)
	}
	return &rep, nil
}

// StopPendingAfter stops, in one conditional bulk update, every delivery
// of the recipient in the campaign whose step order is strictly greater
// than afterOrder and whose status is still PENDING. The status guard is
// what arbitrates the race against the executor: a row the executor
// already moved to SENT is left alone. Returns the IDs of the rows that
// actually transitioned, so their queue jobs can be purged.
func (s *PostgresStore) StopPendingAfter(ctx context.Context, campaignID, recipientID string, afterOrder int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE deliveries d SET status = 'STOPPED'
		FROM sequence_steps s
		WHERE d.sequence_step_id = s.id
		  AND d.campaign_id = $1
		  AND d.recipient_id = $2
		  AND s.step_order > $3
		  AND d.status = 'PENDING'
		RETURNING d.id
	`, campaignID, recipientID, afterOrder)
	if err != nil {
		return nil, fmt.Errorf("stopping deliveries after step %d: %w", afterOrder, err)
	}
	defer rows.Close()

	var stopped []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning stopped delivery: %w", err)
		}
		stopped = append(stopped, id)
	}
	return stopped, rows.Err()
}

// ListDeliveryViews returns the joined status view for every delivery.
func (s *PostgresStore) ListDeliveryViews(ctx context.Context) ([]domain.DeliveryView, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.id, d.campaign_id, c.name, r.first_name, r.last_name, r.profile_handle,
		       s.step_order, d.status, d.replied, d.scheduled_at
		FROM deliveries d
		JOIN campaigns c ON d.campaign_id = c.id
		JOIN recipients r ON d.recipient_id = r.id
		JOIN sequence_steps s ON d.sequence_step_id = s.id
		ORDER BY c.created_at DESC, r.created_at, s.step_order
	`)
	if err != nil {
		return nil, fmt.Errorf("querying delivery view: %w", err)
	}
	defer rows.Close()

	var views []domain.DeliveryView
	for rows.Next() {
		var v domain.DeliveryView
		err := rows.Scan(
			&v.DeliveryID, &v.CampaignID, &v.CampaignName,
			&v.FirstName, &v.LastName, &v.ProfileHandle,
			&v.StepOrder, &v.Status, &v.Replied, &v.ScheduledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery view: %w", err)
		}
		views = append(views, v)
	}

	if views == nil {
		views = []domain.DeliveryView{}
	}
	return views, rows.Err()
}
