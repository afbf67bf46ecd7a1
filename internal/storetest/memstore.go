// Package storetest provides an in-memory stand-in for the Postgres store,
// for tests that exercise the engine and worker without a database.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eserdar/outreach-sequencer/internal/domain"
)

// MemStore implements the store interfaces of the engine and worker
// packages against maps. All methods are safe for concurrent use.
//
// The Err* and Fail* fields inject failures: set them before the call you
// want to fail.
type MemStore struct {
	mu         sync.Mutex
	Campaigns  map[string]domain.Campaign
	Recipients map[string]domain.Recipient
	Steps      map[string]domain.SequenceStep
	Deliveries map[string]*domain.Delivery
	Failures   []domain.SendFailure

	ErrCreate   error // returned by CreateCampaign
	ErrMarkSent error // returned by MarkSent
	FailDetails int   // GetDeliveryDetail fails this many times, then succeeds

	detailErr error
}

func NewMemStore() *MemStore {
	return &MemStore{
		Campaigns:  make(map[string]domain.Campaign),
		Recipients: make(map[string]domain.Recipient),
		Steps:      make(map[string]domain.SequenceStep),
		Deliveries: make(map[string]*domain.Delivery),
		detailErr:  errDetailUnavailable,
	}
}

type memErr string

func (e memErr) Error() string { return string(e) }

const errDetailUnavailable = memErr("store unavailable")

func (m *MemStore) CreateCampaign(ctx context.Context, in domain.NewCampaign, createdAt time.Time) (*domain.CreatedCampaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ErrCreate != nil {
		return nil, m.ErrCreate
	}

	campaign := domain.Campaign{
		ID:        uuid.NewString(),
		Name:      in.Name,
		CreatedAt: createdAt,
	}
	m.Campaigns[campaign.ID] = campaign

	created := &domain.CreatedCampaign{Campaign: campaign}
	for _, nr := range in.Recipients {
		r := domain.Recipient{
			ID:            uuid.NewString(),
			CampaignID:    campaign.ID,
			FirstName:     nr.FirstName,
			LastName:      nr.LastName,
			ProfileHandle: nr.ProfileHandle,
			Company:       nr.Company,
			CreatedAt:     createdAt,
		}
		m.Recipients[r.ID] = r
		created.Recipients = append(created.Recipients, r)
	}
	for _, ns := range in.Steps {
		s := domain.SequenceStep{
			ID:              uuid.NewString(),
			CampaignID:      campaign.ID,
			StepOrder:       ns.StepOrder,
			MessageTemplate: ns.MessageTemplate,
			DelayHours:      ns.DelayHours,
		}
		m.Steps[s.ID] = s
		created.Steps = append(created.Steps, s)
	}

	for _, r := range created.Recipients {
		for _, s := range created.Steps {
			d := &domain.Delivery{
				ID:             uuid.NewString(),
				CampaignID:     campaign.ID,
				RecipientID:    r.ID,
				SequenceStepID: s.ID,
				Status:         domain.StatusPending,
				ScheduledAt:    createdAt.Add(s.Delay()),
				CreatedAt:      createdAt,
			}
			m.Deliveries[d.ID] = d
			created.Deliveries = append(created.Deliveries, *d)
		}
	}

	return created, nil
}

func (m *MemStore) GetDeliveryDetail(ctx context.Context, id string) (*domain.DeliveryDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailDetails > 0 {
		m.FailDetails--
		return nil, m.detailErr
	}

	d, ok := m.Deliveries[id]
	if !ok {
		return nil, nil
	}
	return &domain.DeliveryDetail{
		Delivery:  *d,
		Recipient: m.Recipients[d.RecipientID],
		Step:      m.Steps[d.SequenceStepID],
	}, nil
}

func (m *MemStore) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ErrMarkSent != nil {
		return false, m.ErrMarkSent
	}

	d, ok := m.Deliveries[id]
	if !ok || d.Status != domain.StatusPending {
		return false, nil
	}
	d.Status = domain.StatusSent
	d.SentAt = &at
	return true, nil
}

func (m *MemStore) MarkReplied(ctx context.Context, id string) (*domain.RepliedDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.Deliveries[id]
	if !ok {
		return nil, nil
	}
	d.Replied = true
	return &domain.RepliedDelivery{
		DeliveryID:  d.ID,
		CampaignID:  d.CampaignID,
		RecipientID: d.RecipientID,
		StepOrder:   m.Steps[d.SequenceStepID].StepOrder,
	}, nil
}

func (m *MemStore) StopPendingAfter(ctx context.Context, campaignID, recipientID string, afterOrder int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stopped []string
	for _, d := range m.Deliveries {
		if d.CampaignID != campaignID || d.RecipientID != recipientID {
			continue
		}
		if d.Status != domain.StatusPending {
			continue
		}
		if m.Steps[d.SequenceStepID].StepOrder <= afterOrder {
			continue
		}
		d.Status = domain.StatusStopped
		stopped = append(stopped, d.ID)
	}
	sort.Strings(stopped)
	return stopped, nil
}

func (m *MemStore) ListDeliveryViews(ctx context.Context) ([]domain.DeliveryView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]domain.DeliveryView, 0, len(m.Deliveries))
	for _, d := range m.Deliveries {
		r := m.Recipients[d.RecipientID]
		s := m.Steps[d.SequenceStepID]
		views = append(views, domain.DeliveryView{
			DeliveryID:    d.ID,
			CampaignID:    d.CampaignID,
			CampaignName:  m.Campaigns[d.CampaignID].Name,
			FirstName:     r.FirstName,
			LastName:      r.LastName,
			ProfileHandle: r.ProfileHandle,
			StepOrder:     s.StepOrder,
			Status:        d.Status,
			Replied:       d.Replied,
			ScheduledAt:   d.ScheduledAt,
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].ProfileHandle != views[j].ProfileHandle {
			return views[i].ProfileHandle < views[j].ProfileHandle
		}
		return views[i].StepOrder < views[j].StepOrder
	})
	return views, nil
}

func (m *MemStore) RecordSendFailure(ctx context.Context, f domain.SendFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures = append(m.Failures, f)
	return nil
}

// Delivery returns a copy of the delivery row, or nil.
func (m *MemStore) Delivery(id string) *domain.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Deliveries[id]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

// DeliveryFor finds the delivery of one (recipient, step order) pair.
func (m *MemStore) DeliveryFor(recipientID string, stepOrder int) *domain.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.Deliveries {
		if d.RecipientID == recipientID && m.Steps[d.SequenceStepID].StepOrder == stepOrder {
			cp := *d
			return &cp
		}
	}
	return nil
}
