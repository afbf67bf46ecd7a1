package store

import (
	"context"
	"fmt"
	"time"

	"github.com/eserdar/outreach-sequencer/internal/domain"
)

// CreateCampaign persists a campaign with its recipients, steps and one
// PENDING delivery per (recipient, step) pair in a single transaction.
// Each delivery's scheduled_at is fixed here as createdAt plus the step's
// delay; it is never recomputed later. Queue jobs are deliberately NOT
// enqueued here — the caller does that only after this commits, so a crash
// mid-way never leaves jobs pointing at absent rows.
func (s *PostgresStore) CreateCampaign(ctx context.Context, in domain.NewCampaign, createdAt time.Time) (*domain.CreatedCampaign, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var campaign domain.Campaign
	err = tx.QueryRow(ctx, `
		INSERT INTO campaigns (name, created_at)
		VALUES ($1, $2)
		RETURNING id, name, created_at
	`, in.Name, createdAt).Scan(&campaign.ID, &campaign.Name, &campaign.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting campaign: %w", err)
	}

	recipients := make([]domain.Recipient, 0, len(in.Recipients))
	for _, nr := range in.Recipients {
		var r domain.Recipient
		err = tx.QueryRow(ctx, `
			INSERT INTO recipients (campaign_id, first_name, last_name, profile_handle, company)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, campaign_id, first_name, last_name, profile_handle, company, created_at
		`, campaign.ID, nr.FirstName, nr.LastName, nr.ProfileHandle, nr.Company).Scan(
			&r.ID, &r.CampaignID, &r.FirstName, &r.LastName, &r.ProfileHandle, &r.Company, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting recipient %s: %w", nr.ProfileHandle, err)
		}
		recipients = append(recipients, r)
	}

	steps := make([]domain.SequenceStep, 0, len(in.Steps))
	for _, ns := range in.Steps {
		var st domain.SequenceStep
		err = tx.QueryRow(ctx, `
			INSERT INTO sequence_steps (campaign_id, step_order, message_template, delay_hours)
			VALUES ($1, $2, $3, $4)
			RETURNING id, campaign_id, step_order, message_template, delay_hours
		`, campaign.ID, ns.StepOrder, ns.MessageTemplate, ns.DelayHours).Scan(
			&st.ID, &st.CampaignID, &st.StepOrder, &st.MessageTemplate, &st.DelayHours,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting step %d: %w", ns.StepOrder, err)
		}
		steps = append(steps, st)
	}

	deliveries := make([]domain.Delivery, 0, len(recipients)*len(steps))
	for _, r := range recipients {
		for _, st := range steps {
			var d domain.Delivery
			err = tx.QueryRow(ctx, `
				INSERT INTO deliveries (campaign_id, recipient_id, sequence_step_id, status, scheduled_at, created_at)
				VALUES ($1, $2, $3, 'PENDING', $4, $5)
				RETURNING id, campaign_id, recipient_id, sequence_step_id, status, replied, scheduled_at, sent_at, created_at
			`, campaign.ID, r.ID, st.ID, createdAt.Add(st.Delay()), createdAt).Scan(
				&d.ID, &d.CampaignID, &d.RecipientID, &d.SequenceStepID,
				&d.Status, &d.Replied, &d.ScheduledAt, &d.SentAt, &d.CreatedAt,
			)
			if err != nil {
				return nil, fmt.Errorf("inserting delivery for recipient %s step %d: %w", r.ID, st.StepOrder, err)
			}
			deliveries = append(deliveries, d)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing campaign: %w", err)
	}

	return &domain.CreatedCampaign{
		Campaign:   campaign,
		Recipients: recipients,
		Steps:      steps,
		Deliveries: deliveries,
	}, nil
}
