// Package queue implements the delay queue on a Redis sorted set. Each
// scheduled delivery is one member whose score is its due time; claiming a
// job is a ZREM, which makes firing at-most-once even with several
// executors polling the same set.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const ScheduleKey = "outreach:schedule"

const scanBatch = 100

// ErrAlreadyFired is returned by Cancel when the job is no longer in the
// schedule, meaning the executor already claimed it.
var ErrAlreadyFired = errors.New("job already fired")

// Job is one scheduled delivery in the queue. The JSON encoding is the
// sorted-set member, so it must round-trip byte-for-byte: ScheduledAt is
// kept as unix milliseconds, matching the member's score.
type Job struct {
	ID          string `json:"id"`
	DeliveryID  string `json:"delivery_id"`
	ScheduledAt int64  `json:"scheduled_at"`
}

// Due returns the instant at or after which the job may fire.
func (j Job) Due() time.Time {
	return time.UnixMilli(j.ScheduledAt)
}

// DelayQueue holds scheduled delivery jobs until they are due.
type DelayQueue struct {
	client *redis.Client
	logger *slog.Logger
	key    string
}

func New(client *redis.Client, logger *slog.Logger) *DelayQueue {
	return &DelayQueue{
		client: client,
		logger: logger,
		key:    ScheduleKey,
	}
}

// Enqueue schedules a delivery for execution at or after the given time
// and returns the job, which doubles as the cancellation handle.
func (q *DelayQueue) Enqueue(ctx context.Context, deliveryID string, at time.Time) (Job, error) {
	job := Job{
		ID:          uuid.NewString(),
		DeliveryID:  deliveryID,
		ScheduledAt: at.UnixMilli(),
	}

	member, err := json.Marshal(job)
	if err != nil {
		return Job{}, fmt.Errorf("marshaling job: %w", err)
	}

	err = q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(job.ScheduledAt),
		Member: string(member),
	}).Err()
	if err != nil {
		return Job{}, fmt.Errorf("scheduling job for delivery %s: %w", deliveryID, err)
	}

	return job, nil
}

// Cancel removes a job before it fires. Returns ErrAlreadyFired when the
// member is gone, which means an executor claimed it first; the delivery
// row's conditional update decides the real outcome in that case.
func (q *DelayQueue) Cancel(ctx context.Context, job Job) error {
	member, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}

	removed, err := q.client.ZRem(ctx, q.key, string(member)).Result()
	if err != nil {
		return fmt.Errorf("removing job %s: %w", job.ID, err)
	}
	if removed == 0 {
		return ErrAlreadyFired
	}
	return nil
}

// ScanPending walks every job still in the schedule, in batches, calling
// fn for each. A job claimed mid-scan simply stops appearing: execution is
// the atomic boundary, so no job is ever observed both pending and fired.
// fn returning an error aborts the scan.
func (q *DelayQueue) ScanPending(ctx context.Context, fn func(Job) error) error {
	var cursor uint64
	for {
		pairs, next, err := q.client.ZScan(ctx, q.key, cursor, "", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("scanning schedule: %w", err)
		}

		// ZScan yields member, score, member, score, ...
		for i := 0; i+1 < len(pairs); i += 2 {
			var job Job
			if err := json.Unmarshal([]byte(pairs[i]), &job); err != nil {
				q.logger.Error("unparseable member in schedule", "member", pairs[i], "error", err)
				continue
			}
			if err := fn(job); err != nil {
				return err
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// ListPending returns all not-yet-fired jobs.
func (q *DelayQueue) ListPending(ctx context.Context) ([]Job, error) {
	var jobs []Job
	err := q.ScanPending(ctx, func(j Job) error {
		jobs = append(jobs, j)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClaimDue atomically claims up to limit jobs whose due time has passed.
// Each returned job was removed from the schedule by this call, so it will
// never be claimed again.
func (q *DelayQueue) ClaimDue(ctx context.Context, now time.Time, limit int64) ([]Job, error) {
	results, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("querying due jobs: %w", err)
	}

	var claimed []Job
	for _, member := range results {
		// ZRem returning 0 means another executor already took this one.
		removed, err := q.client.ZRem(ctx, q.key, member).Result()
		if err != nil {
			return claimed, fmt.Errorf("claiming job: %w", err)
		}
		if removed == 0 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			q.logger.Error("dropping unparseable member in schedule", "member", member, "error", err)
			continue
		}
		claimed = append(claimed, job)
	}

	return claimed, nil
}

// Depth returns the number of jobs waiting in the schedule.
func (q *DelayQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}
