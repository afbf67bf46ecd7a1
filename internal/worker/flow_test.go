package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/eserdar/outreach-sequencer/internal/domain"
	"github.com/eserdar/outreach-sequencer/internal/engine"
	"github.com/eserdar/outreach-sequencer/internal/queue"
	"github.com/eserdar/outreach-sequencer/internal/storetest"
)

// TestCampaignFlow walks the whole pipeline: a campaign is created, the
// executor fires the due first steps, one recipient replies, and their
// remaining steps stop while the other recipient's keep waiting.
func TestCampaignFlow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := testLogger()

	q := queue.New(client, logger)
	mem := storetest.NewMemStore()

	creator := engine.NewCreator(mem, q, logger)
	replies := engine.NewReplies(mem, q, nil, logger)

	created, err := creator.Create(context.Background(), domain.NewCampaign{
		Name: "Launch",
		Recipients: []domain.NewRecipient{
			{FirstName: "Alice", LastName: "Chen", ProfileHandle: "alice-chen"},
			{FirstName: "Bob", LastName: "Reyes", ProfileHandle: "bob-reyes"},
		},
		Steps: []domain.NewStep{
			{StepOrder: 1, MessageTemplate: "Hi {{firstName}}!", DelayHours: 0},
			{StepOrder: 2, MessageTemplate: "Following up, {{firstName}}.", DelayHours: 24},
			{StepOrder: 3, MessageTemplate: "Last try.", DelayHours: 72},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(created.Deliveries) != 6 {
		t.Fatalf("expected 6 deliveries, got %d", len(created.Deliveries))
	}

	sender := &stubSender{}
	exec := NewExecutor(mem, q, sender, nil, nil, 2, Options{
		PollInterval: 10 * time.Millisecond,
		ClaimBatch:   10,
	}, logger)
	exec.backoff = func(int) time.Duration { return time.Millisecond }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		exec.Start(ctx)
	}()

	// Both step-1 deliveries are due immediately and should go out.
	alice := created.Recipients[0]
	bob := created.Recipients[1]
	waitFor(t, 2*time.Second, func() bool {
		return status(mem, alice.ID, 1) == domain.StatusSent &&
			status(mem, bob.ID, 1) == domain.StatusSent
	})

	// The later steps are not due; their jobs stay queued.
	if depth, _ := q.Depth(context.Background()); depth != 4 {
		t.Errorf("expected 4 waiting jobs, got %d", depth)
	}

	// Alice replies to the first message.
	result, err := replies.RecordReply(context.Background(), mem.DeliveryFor(alice.ID, 1).ID)
	if err != nil {
		t.Fatalf("RecordReply failed: %v", err)
	}
	if result.Stopped != 2 {
		t.Errorf("expected alice's steps 2 and 3 stopped, got %d", result.Stopped)
	}
	if result.Purged != 2 {
		t.Errorf("expected 2 purged jobs, got %d", result.Purged)
	}

	for _, order := range []int{2, 3} {
		if s := status(mem, alice.ID, order); s != domain.StatusStopped {
			t.Errorf("alice step %d = %s, want STOPPED", order, s)
		}
		if s := status(mem, bob.ID, order); s != domain.StatusPending {
			t.Errorf("bob step %d = %s, want PENDING", order, s)
		}
	}

	// Only Bob's future steps remain scheduled.
	jobs, err := q.ListPending(context.Background())
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("expected 2 remaining jobs, got %d", len(jobs))
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop")
	}

	// Exactly the two first-step messages went out.
	if got := len(sender.sentMessages()); got != 2 {
		t.Errorf("expected 2 sends, got %d", got)
	}
}

func status(mem *storetest.MemStore, recipientID string, stepOrder int) domain.DeliveryStatus {
	d := mem.DeliveryFor(recipientID, stepOrder)
	if d == nil {
		return ""
	}
	return d.Status
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
