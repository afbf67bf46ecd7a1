package domain

import (
	"time"
)

type Campaign struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Recipient struct {
	ID            string    `json:"id"`
	CampaignID    string    `json:"campaign_id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	ProfileHandle string    `json:"profile_handle"`
	Company       string    `json:"company,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// FullName returns the recipient's display name.
func (r Recipient) FullName() string {
	if r.LastName == "" {
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}

// SequenceStep is one message template plus its delay offset within a
// campaign's outreach sequence. Steps are ordered by StepOrder; that
// ordering is the cancellation boundary when a recipient replies.
type SequenceStep struct {
	ID              string `json:"id"`
	CampaignID      string `json:"campaign_id"`
	StepOrder       int    `json:"step_order"`
	MessageTemplate string `json:"message_template"`
	DelayHours      int    `json:"delay_hours"`
}

// Delay returns the elapsed time from campaign creation at which the step
// becomes due.
func (s SequenceStep) Delay() time.Duration {
	return time.Duration(s.DelayHours) * time.Hour
}

// NewRecipient is one validated row from the CSV front door.
type NewRecipient struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	ProfileHandle string `json:"profile_handle"`
	Company       string `json:"company,omitempty"`
}

type NewStep struct {
	StepOrder       int    `json:"step_order"`
	MessageTemplate string `json:"message_template"`
	DelayHours      int    `json:"delay_hours"`
}

// NewCampaign is the full campaign-creation input.
type NewCampaign struct {
	Name       string         `json:"name"`
	Recipients []NewRecipient `json:"recipients"`
	Steps      []NewStep      `json:"steps"`
}

// CreatedCampaign is everything the store persisted for one campaign,
// returned so the creator can enqueue the matching queue jobs.
type CreatedCampaign struct {
	Campaign   Campaign       `json:"campaign"`
	Recipients []Recipient    `json:"recipients"`
	Steps      []SequenceStep `json:"steps"`
	Deliveries []Delivery     `json:"deliveries"`
}
