package domain

import "time"

// DeliveryStatus is the lifecycle state of a scheduled delivery.
// PENDING is the only non-terminal state: a row moves to SENT when the
// executor fires it, or to STOPPED when a reply cancels it. It never
// moves back, and no delivery is ever re-queued.
type DeliveryStatus string

const (
	StatusPending DeliveryStatus = "PENDING"
	StatusSent    DeliveryStatus = "SENT"
	StatusStopped DeliveryStatus = "STOPPED"
)

// Delivery is the unit of scheduled work: send one step's message to one
// recipient. Exactly one exists per (recipient, step) pair, created when
// the campaign is created. ScheduledAt is fixed at creation (campaign
// creation time plus the step's delay) and never changes.
type Delivery struct {
	ID             string         `json:"id"`
	CampaignID     string         `json:"campaign_id"`
	RecipientID    string         `json:"recipient_id"`
	SequenceStepID string         `json:"sequence_step_id"`
	Status         DeliveryStatus `json:"status"`
	Replied        bool           `json:"replied"`
	ScheduledAt    time.Time      `json:"scheduled_at"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DeliveryDetail is a delivery joined with its recipient and step, as the
// executor needs it at send time.
type DeliveryDetail struct {
	Delivery
	Recipient Recipient    `json:"recipient"`
	Step      SequenceStep `json:"step"`
}

// RepliedDelivery identifies the delivery a reply landed on, with enough
// context to stop the recipient's later steps.
type RepliedDelivery struct {
	DeliveryID  string `json:"delivery_id"`
	CampaignID  string `json:"campaign_id"`
	RecipientID string `json:"recipient_id"`
	StepOrder   int    `json:"step_order"`
}

// DeliveryView is one row of the human-facing status view.
type DeliveryView struct {
	DeliveryID    string         `json:"delivery_id"`
	CampaignID    string         `json:"campaign_id"`
	CampaignName  string         `json:"campaign_name"`
	FirstName     string         `json:"first_name"`
	LastName      string         `json:"last_name"`
	ProfileHandle string         `json:"profile_handle"`
	StepOrder     int            `json:"step_order"`
	Status        DeliveryStatus `json:"status"`
	Replied       bool           `json:"replied"`
	ScheduledAt   time.Time      `json:"scheduled_at"`
}

// SendFailure records a delivery whose send attempts were exhausted. The
// row itself stays PENDING; rebuilding its queue job is a reconciliation
// concern, not a retry path.
type SendFailure struct {
	DeliveryID string `json:"delivery_id"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error"`
}

// DeliveryMetrics holds aggregated counts for the dashboard.
type DeliveryMetrics struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Sent       int `json:"sent"`
	Stopped    int `json:"stopped"`
	Replied    int `json:"replied"`
	Campaigns  int `json:"campaigns"`
	Recipients int `json:"recipients"`
}
