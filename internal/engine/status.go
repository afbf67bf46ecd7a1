package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eserdar/outreach-sequencer/internal/domain"
)

// StatusStore is the slice of the persistent store the reporter needs.
type StatusStore interface {
	ListDeliveryViews(ctx context.Context) ([]domain.DeliveryView, error)
}

// StatusRow is one delivery as shown on the dashboard, with the remaining
// time already rendered against the wall clock.
type StatusRow struct {
	domain.DeliveryView
	Remaining string `json:"remaining"`
}

// StatusReporter derives the human-facing delivery view. Read-only.
type StatusReporter struct {
	store StatusStore
	now   func() time.Time
}

func NewStatusReporter(store StatusStore) *StatusReporter {
	return &StatusReporter{store: store, now: time.Now}
}

// Deliveries returns every delivery joined with recipient and step info,
// each with remaining = max(0, scheduled_at - now).
func (r *StatusReporter) Deliveries(ctx context.Context) ([]StatusRow, error) {
	views, err := r.store.ListDeliveryViews(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	rows := make([]StatusRow, 0, len(views))
	for _, v := range views {
		rows = append(rows, StatusRow{
			DeliveryView: v,
			Remaining:    FormatRemaining(v.ScheduledAt.Sub(now)),
		})
	}
	return rows, nil
}

// FormatRemaining renders a duration as a days/hours/minutes breakdown
// with zero-valued components omitted: "3h 5m", "2d 4h", "1h". Anything
// below a minute, including the past, renders as "Now".
func FormatRemaining(d time.Duration) string {
	if d < time.Minute {
		return "Now"
	}

	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}
