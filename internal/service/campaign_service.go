package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/errors"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/model"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/queue"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/repository"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/transport"
)

// CampaignService owns campaign creation and the read projections the
// dashboard consumes.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	Queue        queue.Enqueuer
	Transport    transport.Sender
	Log          zerolog.Logger
}

// CreateCampaignInput is everything needed to build one bulk-send job.
type CreateCampaignInput struct {
	Content       string
	Kind          string
	MediaURL      string
	MediaFilename string
	ContactIDs    []string
	ScheduledFor  *time.Time
}

// CreateCampaign resolves the requested contacts, snapshots their phone and
// name into all-pending recipient states, persists the campaign and, when no
// schedule is set, enqueues it for immediate dispatch.
func (s *CampaignService) CreateCampaign(in CreateCampaignInput) (*model.Campaign, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("content cannot be empty")
	}
	if len(in.ContactIDs) == 0 {
		return nil, apperrors.ErrNoValidRecipients
	}
	if !s.Transport.IsReady() {
		return nil, apperrors.ErrNotConnected
	}

	contacts, err := s.ContactRepo.ListSendableByIDs(in.ContactIDs)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, apperrors.ErrNoValidRecipients
	}

	kind := in.Kind
	if kind == "" {
		kind = model.KindText
	}

	// Send order is the order the caller supplied, not whatever order the
	// directory query returned.
	byID := make(map[string]model.Contact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}
	recipients := make([]model.RecipientState, 0, len(contacts))
	for _, id := range in.ContactIDs {
		c, ok := byID[id]
		if !ok {
			continue
		}
		recipients = append(recipients, model.RecipientState{
			ContactID: c.ID,
			Phone:     c.Phone,
			Name:      c.Name,
			Status:    model.StatusPending,
		})
	}

	campaign := &model.Campaign{
		ID:            uuid.NewString(),
		Content:       in.Content,
		Kind:          kind,
		MediaURL:      in.MediaURL,
		MediaFilename: in.MediaFilename,
		Recipients:    recipients,
		ScheduledFor:  in.ScheduledFor,
		IsScheduled:   in.ScheduledFor != nil,
	}

	if err := s.CampaignRepo.Save(campaign); err != nil {
		return nil, err
	}

	if !campaign.IsScheduled {
		if err := s.Queue.PublishDispatch(campaign.ID); err != nil {
			// The campaign exists with all recipients pending; the operator
			// can re-trigger it, so creation still succeeds.
			s.Log.Error().Err(err).Str("campaign", campaign.ID).Msg("failed to enqueue dispatch")
		}
	}

	s.Log.Info().Str("campaign", campaign.ID).Int("recipients", len(recipients)).
		Bool("scheduled", campaign.IsScheduled).Msg("campaign created")
	return campaign, nil
}

// GetCampaign returns the campaign's current state: counters, completion and
// per-recipient statuses. Pure projection, no side effects.
func (s *CampaignService) GetCampaign(id string) (*model.Campaign, error) {
	return s.CampaignRepo.GetByID(id)
}

// ListCampaigns fetches a page of campaigns newest first.
func (s *CampaignService) ListCampaigns(page, pageSize int) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.List(offset, pageSize)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

// StatsOverview aggregates delivery totals across all campaigns.
func (s *CampaignService) StatsOverview() (*repository.OverviewStats, error) {
	return s.CampaignRepo.StatsOverview()
}

// Redispatch enqueues an existing campaign again. Only pending recipients
// are touched by the worker, so this is always safe.
func (s *CampaignService) Redispatch(id string) error {
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return err
	}
	if c.IsCompleted {
		return nil
	}
	return s.Queue.PublishDispatch(c.ID)
}
