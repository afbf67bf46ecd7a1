package worker

import (
	"context"
	"log/slog"
	"os"
	"sync"
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

type executorFixture struct {
	executor *Executor
	mem      *storetest.MemStore
	queue    *queue.DelayQueue
	created  *domain.CreatedCampaign
}

// stubSender records sends and fails the first failFirst calls. Safe for
// use from concurrent pool workers.
type stubSender struct {
	mu        sync.Mutex
	sent      []OutboundMessage
	failFirst int
}

func (s *stubSender) Send(ctx context.Context, msg OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFirst > 0 {
		s.failFirst--
		return ErrSendRejected
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubSender) sentMessages() []OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OutboundMessage(nil), s.sent...)
}

func setupExecutor(t *testing.T, sender Sender) *executorFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.New(client, testLogger())
	mem := storetest.NewMemStore()

	exec := NewExecutor(mem, q, sender, nil, nil, 2, Options{MaxAttempts: 3}, testLogger())
	exec.backoff = func(int) time.Duration { return time.Millisecond }

	created, err := mem.CreateCampaign(context.Background(), domain.NewCampaign{
		Name: "Launch",
		Recipients: []domain.NewRecipient{
			{FirstName: "Alice", LastName: "Chen", ProfileHandle: "alice-chen", Company: "Acme"},
		},
		Steps: []domain.NewStep{
			{StepOrder: 1, MessageTemplate: "Hi {{firstName}} at {{company}}!", DelayHours: 0},
		},
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}

	return &executorFixture{executor: exec, mem: mem, queue: q, created: created}
}

func (f *executorFixture) job(t *testing.T) queue.Job {
	t.Helper()
	d := f.created.Deliveries[0]
	job, err := f.queue.Enqueue(context.Background(), d.ID, d.ScheduledAt)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return job
}

func TestProcess_SendsAndMarksSent(t *testing.T) {
	sender := &stubSender{}
	f := setupExecutor(t, sender)

	f.executor.process(context.Background(), f.job(t))

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.Body != "Hi Alice at Acme!" {
		t.Errorf("rendered body = %q", msg.Body)
	}
	if msg.ProfileHandle != "alice-chen" {
		t.Errorf("profile handle = %q", msg.ProfileHandle)
	}

	row := f.mem.Delivery(f.created.Deliveries[0].ID)
	if row.Status != domain.StatusSent {
		t.Errorf("status = %s, want SENT", row.Status)
	}
	if row.SentAt == nil {
		t.Error("sent_at not recorded")
	}
}

func TestProcess_SkipsStoppedDelivery(t *testing.T) {
	sender := &stubSender{}
	f := setupExecutor(t, sender)
	job := f.job(t)

	id := f.created.Deliveries[0].ID
	f.mem.Deliveries[id].Status = domain.StatusStopped

	f.executor.process(context.Background(), job)

	if len(sender.sent) != 0 {
		t.Errorf("stopped delivery must not be sent, got %d sends", len(sender.sent))
	}
	if row := f.mem.Delivery(id); row.Status != domain.StatusStopped {
		t.Errorf("status = %s, want STOPPED", row.Status)
	}
	if len(f.mem.Failures) != 0 {
		t.Errorf("a skip is not a failure, got %d failure rows", len(f.mem.Failures))
	}
}

func TestProcess_SkipsSentDelivery(t *testing.T) {
	sender := &stubSender{}
	f := setupExecutor(t, sender)
	job := f.job(t)

	id := f.created.Deliveries[0].ID
	f.mem.Deliveries[id].Status = domain.StatusSent

	f.executor.process(context.Background(), job)

	if len(sender.sent) != 0 {
		t.Errorf("already-sent delivery must not be re-sent, got %d sends", len(sender.sent))
	}
}

func TestProcess_DropsOrphanJob(t *testing.T) {
	sender := &stubSender{}
	f := setupExecutor(t, sender)

	f.executor.process(context.Background(), queue.Job{
		ID:         "job-1",
		DeliveryID: "no-such-delivery",
	})

	if len(sender.sent) != 0 {
		t.Errorf("orphan job must not send, got %d sends", len(sender.sent))
	}
	if len(f.mem.Failures) != 0 {
		t.Errorf("orphan job must not record a send failure, got %d", len(f.mem.Failures))
	}
}

func TestProcess_RetriesTransientLoadFailure(t *testing.T) {
	sender := &stubSender{}
	f := setupExecutor(t, sender)
	job := f.job(t)

	f.mem.FailDetails = 2 // first two loads fail, third succeeds

	f.executor.process(context.Background(), job)

	if len(sender.sent) != 1 {
		t.Fatalf("expected the send after load retries, got %d", len(sender.sent))
	}
	if row := f.mem.Delivery(f.created.Deliveries[0].ID); row.Status != domain.StatusSent {
		t.Errorf("status = %s, want SENT", row.Status)
	}
}

func TestProcess_RetriesTransientSendFailure(t *testing.T) {
	sender := &stubSender{failFirst: 2}
	f := setupExecutor(t, sender)

	f.executor.process(context.Background(), f.job(t))

	if len(sender.sent) != 1 {
		t.Fatalf("expected the third attempt to succeed, got %d sends", len(sender.sent))
	}
	if len(f.mem.Failures) != 0 {
		t.Errorf("a recovered send is not a failure, got %d rows", len(f.mem.Failures))
	}
}

func TestProcess_ExhaustedSendRecordsFailureAndLeavesPending(t *testing.T) {
	sender := &stubSender{failFirst: 10}
	f := setupExecutor(t, sender)

	f.executor.process(context.Background(), f.job(t))

	if len(f.mem.Failures) != 1 {
		t.Fatalf("expected 1 failure row, got %d", len(f.mem.Failures))
	}
	failure := f.mem.Failures[0]
	if failure.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", failure.Attempts)
	}
	if failure.DeliveryID != f.created.Deliveries[0].ID {
		t.Errorf("failure recorded against wrong delivery")
	}

	// The row never reaches a terminal state on failure.
	if row := f.mem.Delivery(f.created.Deliveries[0].ID); row.Status != domain.StatusPending {
		t.Errorf("status = %s, want PENDING", row.Status)
	}
}
