package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/errors"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/service"
)

// CampaignHandler exposes the campaign endpoints consumed by the dashboard.
type CampaignHandler struct {
	Service *service.CampaignService
}

type sendMessageRequest struct {
	Content       string   `json:"content"`
	Kind          string   `json:"kind"`
	MediaURL      string   `json:"media_url"`
	MediaFilename string   `json:"media_filename"`
	Recipients    []string `json:"recipients"`
	ScheduledFor  *string  `json:"scheduled_for"`
}

// SendMessage creates a campaign and triggers or schedules its dispatch.
func (h *CampaignHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := service.CreateCampaignInput{
		Content:       body.Content,
		Kind:          body.Kind,
		MediaURL:      body.MediaURL,
		MediaFilename: body.MediaFilename,
		ContactIDs:    body.Recipients,
	}
	if body.ScheduledFor != nil && *body.ScheduledFor != "" {
		t, err := time.Parse(time.RFC3339, *body.ScheduledFor)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid scheduled_for, expected RFC3339")
			return
		}
		in.ScheduledFor = &t
	}

	campaign, err := h.Service.CreateCampaign(in)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNoValidRecipients):
			writeError(w, http.StatusBadRequest, "no valid recipients found")
		case errors.Is(err, apperrors.ErrNotConnected):
			writeError(w, http.StatusBadRequest, "whatsapp not connected")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	msg := "message sending initiated"
	if campaign.IsScheduled {
		msg = "message scheduled successfully"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": msg,
		"data":    map[string]string{"message_id": campaign.ID},
	})
}

// ListMessages returns a page of campaigns.
func (h *CampaignHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	campaigns, pagination, err := h.Service.ListCampaigns(page, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"messages":   campaigns,
			"pagination": pagination,
		},
	})
}

// GetMessage returns one campaign with its per-recipient statuses.
func (h *CampaignHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := h.Service.GetCampaign(id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    campaign,
	})
}

// StatsOverview returns delivery totals across all campaigns.
func (h *CampaignHandler) StatsOverview(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.StatsOverview()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    stats,
	})
}

// Redispatch re-enqueues a campaign that still has pending recipients.
func (h *CampaignHandler) Redispatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Service.Redispatch(id); err != nil {
		if apperrors.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "message dispatch re-triggered",
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": msg,
	})
}
