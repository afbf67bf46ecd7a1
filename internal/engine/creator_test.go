package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/eserdar/outreach-sequencer/internal/domain"
	"github.com/eserdar/outreach-sequencer/internal/queue"
	"github.com/eserdar/outreach-sequencer/internal/storetest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupCreator(t *testing.T) (*Creator, *storetest.MemStore, *miniredis.Miniredis, *queue.DelayQueue) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.New(client, testLogger())
	mem := storetest.NewMemStore()
	return NewCreator(mem, q, testLogger()), mem, mr, q
}

func validCampaign() domain.NewCampaign {
	return domain.NewCampaign{
		Name: "Launch",
		Recipients: []domain.NewRecipient{
			{FirstName: "Alice", LastName: "Chen", ProfileHandle: "alice-chen", Company: "Acme"},
			{FirstName: "Bob", ProfileHandle: "bob-r"},
		},
		Steps: []domain.NewStep{
			{StepOrder: 1, MessageTemplate: "Hi {{firstName}}!", DelayHours: 0},
			{StepOrder: 2, MessageTemplate: "Following up, {{firstName}}.", DelayHours: 24},
			{StepOrder: 3, MessageTemplate: "Last try.", DelayHours: 72},
		},
	}
}

func TestCreate_OneDeliveryPerRecipientStepPair(t *testing.T) {
	creator, mem, _, q := setupCreator(t)

	created, err := creator.Create(context.Background(), validCampaign())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if got := len(created.Deliveries); got != 6 {
		t.Errorf("expected 2 recipients x 3 steps = 6 deliveries, got %d", got)
	}
	if len(mem.Deliveries) != 6 {
		t.Errorf("expected 6 persisted deliveries, got %d", len(mem.Deliveries))
	}

	// Every delivery got a queue job.
	jobs, err := q.ListPending(context.Background())
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(jobs) != 6 {
		t.Errorf("expected 6 queued jobs, got %d", len(jobs))
	}

	scheduled := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		scheduled[j.DeliveryID] = true
	}
	for _, d := range created.Deliveries {
		if !scheduled[d.ID] {
			t.Errorf("delivery %s has no queue job", d.ID)
		}
	}
}

func TestCreate_ScheduledAtFollowsStepDelay(t *testing.T) {
	creator, mem, _, _ := setupCreator(t)

	createdAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	creator.now = func() time.Time { return createdAt }

	created, err := creator.Create(context.Background(), validCampaign())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	delays := make(map[string]time.Duration, len(created.Steps))
	for _, st := range created.Steps {
		delays[st.ID] = st.Delay()
	}

	for _, d := range created.Deliveries {
		want := createdAt.Add(delays[d.SequenceStepID])
		if !d.ScheduledAt.Equal(want) {
			t.Errorf("delivery %s scheduled at %v, want %v", d.ID, d.ScheduledAt, want)
		}
		row := mem.Delivery(d.ID)
		if row == nil || !row.ScheduledAt.Equal(want) {
			t.Errorf("persisted delivery %s has wrong scheduled_at", d.ID)
		}
	}
}

func TestCreate_ValidationRejectsWholeCampaign(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.NewCampaign)
		field  string
	}{
		{
			name:   "missing name",
			mutate: func(c *domain.NewCampaign) { c.Name = "  " },
			field:  "name",
		},
		{
			name:   "no recipients",
			mutate: func(c *domain.NewCampaign) { c.Recipients = nil },
			field:  "recipients",
		},
		{
			name:   "no steps",
			mutate: func(c *domain.NewCampaign) { c.Steps = nil },
			field:  "steps",
		},
		{
			name:   "recipient missing first name",
			mutate: func(c *domain.NewCampaign) { c.Recipients[1].FirstName = "" },
			field:  "recipients[1].first_name",
		},
		{
			name:   "recipient missing profile handle",
			mutate: func(c *domain.NewCampaign) { c.Recipients[0].ProfileHandle = "" },
			field:  "recipients[0].profile_handle",
		},
		{
			name:   "negative delay",
			mutate: func(c *domain.NewCampaign) { c.Steps[2].DelayHours = -1 },
			field:  "steps[2].delay_hours",
		},
		{
			name:   "duplicate step order",
			mutate: func(c *domain.NewCampaign) { c.Steps[1].StepOrder = 1 },
			field:  "steps[1].step_order",
		},
		{
			name:   "step order below one",
			mutate: func(c *domain.NewCampaign) { c.Steps[0].StepOrder = 0 },
			field:  "steps[0].step_order",
		},
		{
			name:   "empty template",
			mutate: func(c *domain.NewCampaign) { c.Steps[0].MessageTemplate = "" },
			field:  "steps[0].message_template",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator, mem, _, q := setupCreator(t)

			in := validCampaign()
			tt.mutate(&in)

			_, err := creator.Create(context.Background(), in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}

			found := false
			for _, f := range vErr.Fields {
				if f.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected a problem on field %q, got %+v", tt.field, vErr.Fields)
			}

			// All-or-nothing: nothing persisted, nothing queued.
			if len(mem.Deliveries) != 0 || len(mem.Campaigns) != 0 {
				t.Error("validation failure must not persist any rows")
			}
			if depth, _ := q.Depth(context.Background()); depth != 0 {
				t.Errorf("validation failure must not enqueue jobs, found %d", depth)
			}
		})
	}
}

func TestCreate_EnqueueFailureReportsUnscheduled(t *testing.T) {
	creator, mem, mr, _ := setupCreator(t)

	// Rows commit, then every enqueue fails.
	mr.Close()

	created, err := creator.Create(context.Background(), validCampaign())

	var sErr *SchedulingError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected SchedulingError, got %v", err)
	}
	if created == nil {
		t.Fatal("expected the committed campaign alongside the SchedulingError")
	}
	if len(sErr.Unscheduled) != 6 {
		t.Errorf("expected 6 unscheduled deliveries, got %d", len(sErr.Unscheduled))
	}
	if len(mem.Deliveries) != 6 {
		t.Errorf("rows must survive enqueue failures, got %d", len(mem.Deliveries))
	}
}

func TestCreate_StoreFailureCreatesNothing(t *testing.T) {
	creator, mem, _, q := setupCreator(t)
	mem.ErrCreate = errors.New("connection refused")

	_, err := creator.Create(context.Background(), validCampaign())
	if err == nil {
		t.Fatal("expected an error")
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		t.Fatal("a store failure is not a validation failure")
	}

	if depth, _ := q.Depth(context.Background()); depth != 0 {
		t.Errorf("no jobs may exist without committed rows, found %d", depth)
	}
}
