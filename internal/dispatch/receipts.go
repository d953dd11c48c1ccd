package dispatch

import (
	"github.com/rs/zerolog"

	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/model"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/transport"
)

// ReceiptStore is the slice of the campaign repository the receipt path
// needs: resolving a gateway message ID back to its campaign, and saving.
type ReceiptStore interface {
	FindByMessageID(messageID string) (*model.Campaign, error)
	Save(c *model.Campaign) error
}

// Receipts folds asynchronous delivery receipts from the gateway into
// campaign state. It is the only writer of recipient statuses besides the
// dispatch loop.
type Receipts struct {
	store ReceiptStore
	log   zerolog.Logger
}

// NewReceipts builds a receipt applier over the campaign store.
func NewReceipts(store ReceiptStore, log zerolog.Logger) *Receipts {
	return &Receipts{
		store: store,
		log:   log.With().Str("component", "receipts").Logger(),
	}
}

// Apply locates the recipient whose send produced rcpt.MessageID and
// advances it. Receipts only ever move a recipient forward
// (sent -> delivered -> read); a stale or duplicate receipt is ignored, as
// is one for a recipient the worker already failed or for a message ID no
// campaign knows. The campaign is saved only when something changed.
func (p *Receipts) Apply(rcpt transport.Receipt) error {
	var target model.Status
	switch rcpt.Ack {
	case "delivered":
		target = model.StatusDelivered
	case "read":
		target = model.StatusRead
	default:
		return nil
	}
	if rcpt.MessageID == "" {
		return nil
	}

	c, err := p.store.FindByMessageID(rcpt.MessageID)
	if err != nil {
		return err
	}
	if c == nil {
		p.log.Debug().Str("message_id", rcpt.MessageID).Msg("receipt for unknown message, ignored")
		return nil
	}

	changed := false
	for i := range c.Recipients {
		r := &c.Recipients[i]
		if r.MessageID != rcpt.MessageID {
			continue
		}
		// A read receipt implies delivery happened too.
		if target == model.StatusRead && r.DeliveredAt == nil {
			r.Advance(model.StatusDelivered, rcpt.Timestamp)
		}
		if r.Advance(target, rcpt.Timestamp) {
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return p.store.Save(c)
}
