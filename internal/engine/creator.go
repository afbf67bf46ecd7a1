package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eserdar/outreach-sequencer/internal/domain"
	"github.com/eserdar/outreach-sequencer/internal/queue"
)

// CampaignStore is the slice of the persistent store the creator needs.
type CampaignStore interface {
	CreateCampaign(ctx context.Context, in domain.NewCampaign, createdAt time.Time) (*domain.CreatedCampaign, error)
}

// Creator validates campaign submissions, persists all rows in one
// transaction, and schedules one queue job per delivery.
type Creator struct {
	store  CampaignStore
	queue  *queue.DelayQueue
	logger *slog.Logger
	now    func() time.Time
}

func NewCreator(store CampaignStore, q *queue.DelayQueue, logger *slog.Logger) *Creator {
	return &Creator{
		store:  store,
		queue:  q,
		logger: logger,
		now:    time.Now,
	}
}

// Create runs the full campaign-creation flow. Jobs are enqueued only
// after the rows are durably committed: rows without jobs can be
// re-derived, jobs without rows cannot. Enqueue failures therefore never
// roll anything back — they are collected into a SchedulingError returned
// alongside the created campaign.
func (c *Creator) Create(ctx context.Context, in domain.NewCampaign) (*domain.CreatedCampaign, error) {
	if fields := validateCampaign(in); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	createdAt := c.now().UTC()
	created, err := c.store.CreateCampaign(ctx, in, createdAt)
	if err != nil {
		return nil, fmt.Errorf("persisting campaign: %w", err)
	}

	stepOrders := make(map[string]int, len(created.Steps))
	for _, st := range created.Steps {
		stepOrders[st.ID] = st.StepOrder
	}

	var unscheduled []UnscheduledDelivery
	for _, d := range created.Deliveries {
		if _, err := c.queue.Enqueue(ctx, d.ID, d.ScheduledAt); err != nil {
			c.logger.Error("failed to schedule delivery",
				"delivery_id", d.ID,
				"campaign_id", created.Campaign.ID,
				"error", err,
			)
			unscheduled = append(unscheduled, UnscheduledDelivery{
				DeliveryID:  d.ID,
				RecipientID: d.RecipientID,
				StepOrder:   stepOrders[d.SequenceStepID],
			})
		}
	}

	c.logger.Info("campaign created",
		"campaign_id", created.Campaign.ID,
		"recipients", len(created.Recipients),
		"steps", len(created.Steps),
		"deliveries_scheduled", len(created.Deliveries)-len(unscheduled),
	)

	if len(unscheduled) > 0 {
		return created, &SchedulingError{Unscheduled: unscheduled}
	}
	return created, nil
}

func validateCampaign(in domain.NewCampaign) []FieldError {
	var fields []FieldError

	if strings.TrimSpace(in.Name) == "" {
		fields = append(fields, FieldError{Field: "name", Message: "campaign name is required"})
	}

	if len(in.Recipients) == 0 {
		fields = append(fields, FieldError{Field: "recipients", Message: "at least one recipient is required"})
	}
	for i, r := range in.Recipients {
		if strings.TrimSpace(r.FirstName) == "" {
			fields = append(fields, FieldError{
				Field:   fmt.Sprintf("recipients[%d].first_name", i),
				Message: "first name is required",
			})
		}
		if strings.TrimSpace(r.ProfileHandle) == "" {
			fields = append(fields, FieldError{
				Field:   fmt.Sprintf("recipients[%d].profile_handle", i),
				Message: "profile handle is required",
			})
		}
	}

	if len(in.Steps) == 0 {
		fields = append(fields, FieldError{Field: "steps", Message: "at least one sequence step is required"})
	}
	seenOrders := make(map[int]bool, len(in.Steps))
	for i, st := range in.Steps {
		if st.StepOrder < 1 {
			fields = append(fields, FieldError{
				Field:   fmt.Sprintf("steps[%d].step_order", i),
				Message: "step order must be at least 1",
			})
		} else if seenOrders[st.StepOrder] {
			fields = append(fields, FieldError{
				Field:   fmt.Sprintf("steps[%d].step_order", i),
				Message: fmt.Sprintf("step order %d appears more than once", st.StepOrder),
			})
		}
		seenOrders[st.StepOrder] = true

		if strings.TrimSpace(st.MessageTemplate) == "" {
			fields = append(fields, FieldError{
				Field:   fmt.Sprintf("steps[%d].message_template", i),
				Message: "message template is required",
			})
		}
		if st.DelayHours < 0 {
			fields = append(fields, FieldError{
				Field:   fmt.Sprintf("steps[%d].delay_hours", i),
				Message: "delay must not be negative",
			})
		}
	}

	return fields
}
