package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eserdar/outreach-sequencer/internal/domain"
	"github.com/eserdar/outreach-sequencer/internal/queue"
	ws "github.com/eserdar/outreach-sequencer/internal/websocket"
)

// ReplyStore is the slice of the persistent store the reply handler needs.
type ReplyStore interface {
	MarkReplied(ctx context.Context, id string) (*domain.RepliedDelivery, error)
	StopPendingAfter(ctx context.Context, campaignID, recipientID string, afterOrder int) ([]string, error)
}

// ReplyResult reports what a recorded reply changed.
type ReplyResult struct {
	Stopped int `json:"stopped"`
	Purged  int `json:"purged"`
}

// Replies records recipient replies and cancels their remaining steps.
type Replies struct {
	store  ReplyStore
	queue  *queue.DelayQueue
	hub    *ws.Hub
	logger *slog.Logger
}

func NewReplies(store ReplyStore, q *queue.DelayQueue, hub *ws.Hub, logger *slog.Logger) *Replies {
	return &Replies{store: store, queue: q, hub: hub, logger: logger}
}

// RecordReply marks the delivery as replied-to and stops every later
// still-PENDING step of the same recipient in the same campaign. The stop
// is a single conditional bulk update — that row-level guard, not the
// queue purge, is what arbitrates the race against the executor. The purge
// only avoids wasted future work: a job that is already gone means the
// executor won that row, and the row's SENT status already says so.
// Replaying a reply is a no-op that reports zero additional stops.
func (r *Replies) RecordReply(ctx context.Context, deliveryID string) (*ReplyResult, error) {
	rep, err := r.store.MarkReplied(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		return nil, ErrDeliveryNotFound
	}

	stopped, err := r.store.StopPendingAfter(ctx, rep.CampaignID, rep.RecipientID, rep.StepOrder)
	if err != nil {
		return nil, err
	}

	purged := r.purgeJobs(ctx, stopped)

	r.logger.Info("reply recorded",
		"delivery_id", deliveryID,
		"recipient_id", rep.RecipientID,
		"step_order", rep.StepOrder,
		"stopped", len(stopped),
		"purged", purged,
	)

	if r.hub != nil {
		for _, id := range stopped {
			r.hub.Broadcast(ws.DeliveryEvent{
				Type:       ws.EventDeliveryStopped,
				DeliveryID: id,
				CampaignID: rep.CampaignID,
				Timestamp:  time.Now().UTC(),
			})
		}
	}

	return &ReplyResult{Stopped: len(stopped), Purged: purged}, nil
}

// purgeJobs removes the queue jobs of just-stopped deliveries, best
// effort. A scan or cancel failure is logged and swallowed: the rows are
// already STOPPED, so a leftover job fires into a skip.
func (r *Replies) purgeJobs(ctx context.Context, deliveryIDs []string) int {
	if len(deliveryIDs) == 0 {
		return 0
	}

	stopped := make(map[string]bool, len(deliveryIDs))
	for _, id := range deliveryIDs {
		stopped[id] = true
	}

	var candidates []queue.Job
	err := r.queue.ScanPending(ctx, func(j queue.Job) error {
		if stopped[j.DeliveryID] {
			candidates = append(candidates, j)
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("could not scan schedule for purge", "error", err)
		return 0
	}

	purged := 0
	for _, job := range candidates {
		switch err := r.queue.Cancel(ctx, job); {
		case err == nil:
			purged++
		case errors.Is(err, queue.ErrAlreadyFired):
			// Executor claimed it between scan and cancel; the row decides.
		default:
			r.logger.Warn("could not purge job", "job_id", job.ID, "error", err)
		}
	}
	return purged
}
