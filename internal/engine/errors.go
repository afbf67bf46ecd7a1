package engine

import (
	"errors"
	"fmt"
)

// ErrDeliveryNotFound is returned when a reply references a delivery that
// has no backing row.
var ErrDeliveryNotFound = errors.New("delivery not found")

// FieldError is one entry in a validation failure, surfaced verbatim to
// the caller.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every problem found in a campaign submission.
// Validation failures are never retried and create no rows.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return fmt.Sprintf("validation failed: %s: %s", e.Fields[0].Field, e.Fields[0].Message)
	}
	return fmt.Sprintf("validation failed: %d problems", len(e.Fields))
}

// UnscheduledDelivery is a committed delivery row whose queue job could
// not be enqueued.
type UnscheduledDelivery struct {
	DeliveryID  string `json:"delivery_id"`
	RecipientID string `json:"recipient_id"`
	StepOrder   int    `json:"step_order"`
}

// SchedulingError reports a partial success at campaign creation: all rows
// committed, but some queue jobs failed to enqueue. The un-enqueued pairs
// are listed explicitly so they are never silently dropped.
type SchedulingError struct {
	Unscheduled []UnscheduledDelivery
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("campaign committed but %d of its jobs could not be scheduled", len(e.Unscheduled))
}

// OrphanJobError means a fired job has no backing delivery row. This
// indicates a prior bug, not a transient condition: the job is logged and
// dropped, never retried.
type OrphanJobError struct {
	JobID      string
	DeliveryID string
}

func (e *OrphanJobError) Error() string {
	return fmt.Sprintf("job %s fired for missing delivery %s", e.JobID, e.DeliveryID)
}
