package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eserdar/outreach-sequencer/internal/domain"
	"github.com/eserdar/outreach-sequencer/internal/engine"
)

type CampaignHandler struct {
	creator *engine.Creator
}

func NewCampaignHandler(creator *engine.Creator) *CampaignHandler {
	return &CampaignHandler{creator: creator}
}

type createCampaignResponse struct {
	CampaignID          string                       `json:"campaign_id"`
	Recipients          int                          `json:"recipients"`
	Steps               int                          `json:"steps"`
	DeliveriesScheduled int                          `json:"deliveries_scheduled"`
	Unscheduled         []engine.UnscheduledDelivery `json:"unscheduled,omitempty"`
}

func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.NewCampaign
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.creator.Create(r.Context(), req)

	var vErr *engine.ValidationError
	if errors.As(err, &vErr) {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": vErr.Fields,
		})
		return
	}

	var sErr *engine.SchedulingError
	if errors.As(err, &sErr) {
		// The campaign is committed; report what could not be scheduled.
		respondJSON(w, http.StatusCreated, createCampaignResponse{
			CampaignID:          created.Campaign.ID,
			Recipients:          len(created.Recipients),
			Steps:               len(created.Steps),
			DeliveriesScheduled: len(created.Deliveries) - len(sErr.Unscheduled),
			Unscheduled:         sErr.Unscheduled,
		})
		return
	}

	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create campaign")
		return
	}

	respondJSON(w, http.StatusCreated, createCampaignResponse{
		CampaignID:          created.Campaign.ID,
		Recipients:          len(created.Recipients),
		Steps:               len(created.Steps),
		DeliveriesScheduled: len(created.Deliveries),
	})
}
