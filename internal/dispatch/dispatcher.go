package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/errors"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/model"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/transport"
)

// Store is the slice of the campaign repository the dispatcher writes
// through.
type Store interface {
	GetByID(id string) (*model.Campaign, error)
	Save(c *model.Campaign) error
}

// ContactLog records per-contact delivery bookkeeping after successful
// sends. Failures here never affect the dispatch outcome.
type ContactLog interface {
	RecordMessageSent(id string, at time.Time) error
}

// Config is the dispatch policy: the pause between consecutive sends and
// how many attempts each recipient gets before failing terminally.
type Config struct {
	MessageDelay time.Duration
	MaxRetries   int
}

// DefaultConfig returns the stock dispatch policy.
func DefaultConfig() Config {
	return Config{MessageDelay: 5 * time.Second, MaxRetries: 3}
}

// Dispatcher drives one campaign from all-pending to fully resolved. It is
// the only writer of recipient statuses besides the receipt path.
//
// Recipients are processed strictly in stored order, one at a time, with a
// mandatory pause between sends; the sequential loop is what keeps the
// outbound rate under the channel's abuse threshold. Progress is persisted
// after every recipient, so a crashed run resumes safely: Dispatch on a
// partially processed campaign skips everything already resolved. A send
// whose acknowledgement was lost before the save may be repeated once on
// resume; the channel has no idempotency keys, so that risk is accepted.
type Dispatcher struct {
	store    Store
	contacts ContactLog
	sender   transport.Sender
	cfg      Config
	log      zerolog.Logger
}

// New builds a Dispatcher. contacts may be nil when bookkeeping is not
// wanted (tests, ad-hoc sends).
func New(store Store, contacts ContactLog, sender transport.Sender, cfg Config, log zerolog.Logger) *Dispatcher {
	if cfg.MessageDelay <= 0 {
		cfg.MessageDelay = DefaultConfig().MessageDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	return &Dispatcher{
		store:    store,
		contacts: contacts,
		sender:   sender,
		cfg:      cfg,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch runs the campaign to completion or to a recoverable stopping
// point. Per-recipient transport failures are contained inside the loop;
// only a dead connection, a persistence failure or context cancellation
// aborts the run, leaving untouched recipients pending for the next call.
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID string) error {
	c, err := d.store.GetByID(campaignID)
	if err != nil {
		return err
	}
	if c.IsCompleted {
		d.log.Debug().Str("campaign", campaignID).Msg("campaign already completed")
		return nil
	}

	if !d.sender.IsReady() {
		return fmt.Errorf("dispatch campaign %s: %w", campaignID, apperrors.ErrNotConnected)
	}

	log := d.log.With().Str("campaign", campaignID).Logger()
	log.Info().Int("recipients", len(c.Recipients)).Msg("dispatch started")

	// Burst 1: the first send goes out immediately, every later one waits
	// out the full pacing interval first.
	limiter := rate.NewLimiter(rate.Every(d.cfg.MessageDelay), 1)

	opts := sendOptions(c)
	var sent, failed int

	for i := range c.Recipients {
		r := &c.Recipients[i]
		if r.Status != model.StatusPending {
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		delivery, sendErr := d.sender.Send(ctx, r.Phone, c.Content, opts)
		if sendErr != nil && errors.Is(sendErr, apperrors.ErrNotConnected) {
			// Connection is gone; stop here without charging the recipient
			// an attempt. Everything still pending resumes later.
			log.Warn().Int("position", i).Msg("gateway disconnected, dispatch suspended")
			return fmt.Errorf("dispatch campaign %s: %w", campaignID, apperrors.ErrNotConnected)
		}

		now := time.Now()
		ApplyAttemptResult(r, sendErr, now, d.cfg.MaxRetries)

		switch {
		case sendErr == nil:
			sent++
			if delivery != nil {
				// Receipts arrive keyed by this ID; it has to be persisted
				// with the recipient or delivered/read can never be tracked.
				r.MessageID = delivery.MessageID
			}
			log.Info().Str("phone", r.Phone).Int("position", i).Msg("message sent")
			if d.contacts != nil && r.ContactID != "" {
				if err := d.contacts.RecordMessageSent(r.ContactID, now); err != nil {
					log.Warn().Err(err).Str("contact", r.ContactID).Msg("contact bookkeeping failed")
				}
			}
		case r.Status == model.StatusFailed:
			failed++
			log.Error().Err(sendErr).Str("phone", r.Phone).Int("retries", r.RetryCount).Msg("recipient failed permanently")
		default:
			log.Warn().Err(sendErr).Str("phone", r.Phone).Int("retries", r.RetryCount).Msg("send failed, will retry on next dispatch")
		}

		// Persist after every recipient so a crash never loses a resolved
		// send and never repeats one.
		if err := d.store.Save(c); err != nil {
			return fmt.Errorf("dispatch campaign %s: save progress: %w", campaignID, err)
		}
	}

	log.Info().Int("sent", sent).Int("failed", failed).Bool("completed", c.IsCompleted).Msg("dispatch finished")
	return nil
}

func sendOptions(c *model.Campaign) *transport.SendOptions {
	if c.Kind == "" || c.Kind == model.KindText || c.MediaURL == "" {
		return nil
	}
	return &transport.SendOptions{
		Kind:          c.Kind,
		MediaURL:      c.MediaURL,
		MediaFilename: c.MediaFilename,
	}
}
