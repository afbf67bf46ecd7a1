// Package worker fires due deliveries: it claims jobs from the delay
// queue, renders each step's message for its recipient, sends it, and
// records the transition on the delivery row.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/eserdar/outreach-sequencer/internal/domain"
	"github.com/eserdar/outreach-sequencer/internal/engine"
	"github.com/eserdar/outreach-sequencer/internal/queue"
	ws "github.com/eserdar/outreach-sequencer/internal/websocket"
)

// Store is the slice of the persistent store the executor needs.
type Store interface {
	GetDeliveryDetail(ctx context.Context, id string) (*domain.DeliveryDetail, error)
	MarkSent(ctx context.Context, id string, at time.Time) (bool, error)
	RecordSendFailure(ctx context.Context, f domain.SendFailure) error
}

// Options tune the executor's polling and retry behavior. Zero values fall
// back to defaults.
type Options struct {
	PollInterval time.Duration // default 250ms
	ClaimBatch   int           // default 50
	MaxAttempts  int           // default 3
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.ClaimBatch <= 0 {
		o.ClaimBatch = 50
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	return o
}

// Executor continuously polls the delay queue and processes fired jobs
// through a worker pool. The delivery row, not the queue, decides what a
// fired job does: a row that is no longer PENDING turns the job into a
// no-op.
type Executor struct {
	store   Store
	queue   *queue.DelayQueue
	sender  Sender
	limiter *RateLimiter
	hub     *ws.Hub
	pool    *Pool
	logger  *slog.Logger
	opts    Options
	backoff func(attempt int) time.Duration
}

// NewExecutor wires an executor. limiter and hub may be nil.
func NewExecutor(store Store, q *queue.DelayQueue, sender Sender, limiter *RateLimiter, hub *ws.Hub, numWorkers int, opts Options, logger *slog.Logger) *Executor {
	e := &Executor{
		store:   store,
		queue:   q,
		sender:  sender,
		limiter: limiter,
		hub:     hub,
		logger:  logger,
		opts:    opts.withDefaults(),
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * 500 * time.Millisecond
		},
	}
	e.pool = NewPool(numWorkers, e.process, logger)
	return e
}

// Start runs the polling loop until the context is cancelled, then drains
// the pool.
func (e *Executor) Start(ctx context.Context) {
	e.pool.Start(ctx)
	e.logger.Info("executor started",
		"poll_interval", e.opts.PollInterval,
		"claim_batch", e.opts.ClaimBatch,
	)

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("executor stopping")
			e.pool.Stop()
			return
		case <-ticker.C:
			e.poll(ctx)
		}
	}
}

// poll claims a batch of due jobs and hands them to the pool. Claiming
// removes each job from the queue, so every job reaches exactly one worker.
func (e *Executor) poll(ctx context.Context) {
	jobs, err := e.queue.ClaimDue(ctx, time.Now(), int64(e.opts.ClaimBatch))
	if err != nil {
		e.logger.Error("failed to claim due jobs", "error", err)
		return
	}

	for _, job := range jobs {
		e.pool.Submit(job)
	}
}

// process runs one fired job end to end.
func (e *Executor) process(ctx context.Context, job queue.Job) {
	detail, err := e.loadDetail(ctx, job)
	if err != nil {
		// The job is already claimed; dropping it here loses the send. The
		// row stays PENDING, so reconciliation can rebuild the job later.
		e.logger.Error("failed to load delivery, dropping job",
			"job_id", job.ID,
			"delivery_id", job.DeliveryID,
			"error", err,
		)
		return
	}
	if detail == nil {
		err := &engine.OrphanJobError{JobID: job.ID, DeliveryID: job.DeliveryID}
		e.logger.Error("orphan job dropped", "error", err)
		return
	}

	if detail.Status != domain.StatusPending {
		// A reply stopped this delivery (or another worker already sent
		// it) after the job was scheduled.
		e.logger.Debug("skipping fired job for settled delivery",
			"delivery_id", detail.ID,
			"status", detail.Status,
		)
		return
	}

	msg := OutboundMessage{
		DeliveryID:    detail.ID,
		ProfileHandle: detail.Recipient.ProfileHandle,
		Body:          domain.RenderMessage(detail.Step.MessageTemplate, detail.Recipient),
	}

	if !e.waitForSlot(ctx) {
		return
	}

	if err := e.sendWithRetry(ctx, msg); err != nil {
		e.recordFailure(ctx, detail, err)
		return
	}

	sentAt := time.Now().UTC()
	updated, err := e.store.MarkSent(ctx, detail.ID, sentAt)
	if err != nil {
		e.logger.Error("failed to mark delivery sent",
			"delivery_id", detail.ID,
			"error", err,
		)
		return
	}
	if !updated {
		// A reply stopped the row between our status check and the send.
		// The message went out, but no further steps will.
		e.logger.Warn("delivery settled during send, not marking sent",
			"delivery_id", detail.ID,
		)
		return
	}

	e.logger.Info("delivery sent",
		"delivery_id", detail.ID,
		"campaign_id", detail.CampaignID,
		"profile_handle", detail.Recipient.ProfileHandle,
		"step_order", detail.Step.StepOrder,
	)

	if e.hub != nil {
		e.hub.Broadcast(ws.DeliveryEvent{
			Type:          ws.EventDeliverySent,
			DeliveryID:    detail.ID,
			CampaignID:    detail.CampaignID,
			Recipient:     detail.Recipient.FullName(),
			ProfileHandle: detail.Recipient.ProfileHandle,
			StepOrder:     detail.Step.StepOrder,
			Timestamp:     sentAt,
		})
	}
}

// loadDetail fetches the delivery with bounded retries so a blip in the
// database does not drop an already-claimed job.
func (e *Executor) loadDetail(ctx context.Context, job queue.Job) (*domain.DeliveryDetail, error) {
	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		detail, err := e.store.GetDeliveryDetail(ctx, job.DeliveryID)
		if err == nil {
			return detail, nil
		}
		lastErr = err

		select {
		case <-time.After(e.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// waitForSlot blocks until the global send throttle admits another send,
// or the context is cancelled.
func (e *Executor) waitForSlot(ctx context.Context) bool {
	if e.limiter == nil {
		return true
	}
	for !e.limiter.Allow(ctx) {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (e *Executor) sendWithRetry(ctx context.Context, msg OutboundMessage) error {
	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		err := e.sender.Send(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err
		e.logger.Warn("send attempt failed",
			"delivery_id", msg.DeliveryID,
			"attempt", attempt,
			"error", err,
		)

		if attempt < e.opts.MaxAttempts {
			select {
			case <-time.After(e.backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// recordFailure writes a send_failures row and announces the failure. The
// delivery row stays PENDING: the terminal states belong to sends that
// happened and replies that stopped them.
func (e *Executor) recordFailure(ctx context.Context, detail *domain.DeliveryDetail, sendErr error) {
	e.logger.Error("send attempts exhausted",
		"delivery_id", detail.ID,
		"attempts", e.opts.MaxAttempts,
		"error", sendErr,
	)

	if err := e.store.RecordSendFailure(ctx, domain.SendFailure{
		DeliveryID: detail.ID,
		Attempts:   e.opts.MaxAttempts,
		LastError:  sendErr.Error(),
	}); err != nil {
		e.logger.Error("failed to record send failure",
			"delivery_id", detail.ID,
			"error", err,
		)
	}

	if e.hub != nil {
		e.hub.Broadcast(ws.DeliveryEvent{
			Type:          ws.EventDeliveryFailed,
			DeliveryID:    detail.ID,
			CampaignID:    detail.CampaignID,
			Recipient:     detail.Recipient.FullName(),
			ProfileHandle: detail.Recipient.ProfileHandle,
			StepOrder:     detail.Step.StepOrder,
			Attempt:       e.opts.MaxAttempts,
			Error:         sendErr.Error(),
			Timestamp:     time.Now().UTC(),
		})
	}
}
