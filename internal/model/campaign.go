package model

import "time"

// Status is the delivery state of a single recipient within a campaign.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// Message kinds supported by the gateway.
const (
	KindText     = "text"
	KindImage    = "image"
	KindVideo    = "video"
	KindDocument = "document"
	KindAudio    = "audio"
)

// statusRank orders the happy-path states so transitions only ever move
// forward. failed and read are terminal.
func statusRank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return -1
	}
}

// RecipientState is the mutable delivery record for one recipient of one
// campaign. Phone and Name are snapshots taken at campaign creation; later
// contact edits never alter them.
type RecipientState struct {
	ContactID    string     `json:"contact_id,omitempty"`
	Phone        string     `json:"phone"`
	Name         string     `json:"name"`
	Status       Status     `json:"status"`
	MessageID    string     `json:"message_id,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
}

// Advance moves the recipient to next if that is a forward transition on the
// pending -> sent -> delivered -> read chain, stamping the matching
// timestamp. It reports whether anything changed. A recipient already at or
// past next, or terminally failed, is left untouched.
func (r *RecipientState) Advance(next Status, at time.Time) bool {
	if r.Status == StatusFailed {
		return false
	}
	cur, tgt := statusRank(r.Status), statusRank(next)
	if tgt < 0 || tgt <= cur {
		return false
	}
	r.Status = next
	switch next {
	case StatusSent:
		r.SentAt = &at
	case StatusDelivered:
		r.DeliveredAt = &at
	case StatusRead:
		r.ReadAt = &at
	}
	return true
}

// Fail marks the recipient terminally failed. Only a pending recipient can
// fail; a send that already went out keeps its state.
func (r *RecipientState) Fail(reason string) bool {
	if r.Status != StatusPending {
		return false
	}
	r.Status = StatusFailed
	r.ErrorMessage = reason
	return true
}

// Campaign is one bulk-send job: a message body plus the ordered recipient
// list and its per-recipient delivery state. Recipients are sent in slice
// order; the list length is fixed at creation.
type Campaign struct {
	ID            string           `json:"id"`
	Content       string           `json:"content"`
	Kind          string           `json:"kind"`
	MediaURL      string           `json:"media_url,omitempty"`
	MediaFilename string           `json:"media_filename,omitempty"`
	Recipients    []RecipientState `json:"recipients"`

	// Derived from Recipients on every save; never authoritative on their own.
	TotalRecipients int  `json:"total_recipients"`
	SentCount       int  `json:"sent_count"`
	DeliveredCount  int  `json:"delivered_count"`
	ReadCount       int  `json:"read_count"`
	FailedCount     int  `json:"failed_count"`
	IsCompleted     bool `json:"is_completed"`

	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	IsScheduled  bool       `json:"is_scheduled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Counters is the recomputed aggregate view of a recipient list.
type Counters struct {
	Total     int
	Sent      int
	Delivered int
	Read      int
	Failed    int
	Completed bool
}

// RecomputeCounters derives the aggregate counters from a recipient list.
// Sent counts everything at or past sent; delivered everything at or past
// delivered. Completed means no recipient is still pending.
func RecomputeCounters(recipients []RecipientState) Counters {
	c := Counters{Total: len(recipients), Completed: true}
	for _, r := range recipients {
		switch r.Status {
		case StatusSent:
			c.Sent++
		case StatusDelivered:
			c.Sent++
			c.Delivered++
		case StatusRead:
			c.Sent++
			c.Delivered++
			c.Read++
		case StatusFailed:
			c.Failed++
		case StatusPending:
			c.Completed = false
		}
	}
	return c
}

// Recompute refreshes the campaign's derived fields from its recipient list.
// The repository calls this immediately before every write so the stored
// counters can never drift from the recipients.
func (c *Campaign) Recompute() {
	agg := RecomputeCounters(c.Recipients)
	c.TotalRecipients = agg.Total
	c.SentCount = agg.Sent
	c.DeliveredCount = agg.Delivered
	c.ReadCount = agg.Read
	c.FailedCount = agg.Failed
	c.IsCompleted = agg.Completed
}
