package model

import "time"

// Contact is one entry of the recipient directory.
type Contact struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Phone             string     `json:"phone"`
	Email             string     `json:"email,omitempty"`
	Tags              []string   `json:"tags"`
	Groups            []string   `json:"groups"`
	IsActive          bool       `json:"is_active"`
	IsBlocked         bool       `json:"is_blocked"`
	LastMessageSent   *time.Time `json:"last_message_sent,omitempty"`
	TotalMessagesSent int        `json:"total_messages_sent"`
	Notes             string     `json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Sendable reports whether the contact may receive campaign messages.
func (c *Contact) Sendable() bool {
	return c.IsActive && !c.IsBlocked
}
