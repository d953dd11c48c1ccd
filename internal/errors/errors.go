package apperrors

import (
	"errors"
	"fmt"
)

// ErrNoValidRecipients is returned by campaign creation when every requested
// contact is inactive, blocked or unknown. The campaign is not persisted.
var ErrNoValidRecipients = errors.New("no valid recipients found")

// ErrNotConnected is returned when the WhatsApp gateway is not ready to send.
var ErrNotConnected = errors.New("whatsapp not connected")

// CampaignNotFoundError identifies a missing campaign by ID.
type CampaignNotFoundError struct {
	CampaignID string
}

func (e *CampaignNotFoundError) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

// NewCampaignNotFound builds a CampaignNotFoundError.
func NewCampaignNotFound(id string) error {
	return &CampaignNotFoundError{CampaignID: id}
}

// IsNotFound reports whether err is a CampaignNotFoundError.
func IsNotFound(err error) bool {
	var nf *CampaignNotFoundError
	return errors.As(err, &nf)
}
