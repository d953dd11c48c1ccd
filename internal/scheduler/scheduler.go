// Package scheduler hands due scheduled campaigns to the dispatch queue.
// It is deliberately thin: all resume/idempotency logic lives in the
// dispatcher, so enqueueing the same campaign twice is harmless.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/model"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/queue"
)

// PendingLister is the slice of the campaign repository the poller reads.
type PendingLister interface {
	ListPending(now time.Time) ([]*model.Campaign, error)
}

// Poller periodically lists due campaigns and enqueues them.
type Poller struct {
	store    PendingLister
	enqueuer queue.Enqueuer
	interval time.Duration
	log      zerolog.Logger

	cron *cron.Cron
}

// New builds a Poller ticking every interval.
func New(store PendingLister, enqueuer queue.Enqueuer, interval time.Duration, log zerolog.Logger) *Poller {
	return &Poller{
		store:    store,
		enqueuer: enqueuer,
		interval: interval,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins polling in the background.
func (p *Poller) Start() error {
	p.cron = cron.New()
	spec := fmt.Sprintf("@every %s", p.interval)
	if _, err := p.cron.AddFunc(spec, func() { p.Tick(time.Now()) }); err != nil {
		return err
	}
	p.cron.Start()
	p.log.Info().Dur("interval", p.interval).Msg("scheduler started")
	return nil
}

// Stop halts polling and waits for a running tick to finish.
func (p *Poller) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

// Tick runs one poll round: every campaign scheduled at or before now that
// is not yet complete gets enqueued for dispatch.
func (p *Poller) Tick(now time.Time) {
	due, err := p.store.ListPending(now)
	if err != nil {
		p.log.Error().Err(err).Msg("listing due campaigns failed")
		return
	}
	for _, c := range due {
		if err := p.enqueuer.PublishDispatch(c.ID); err != nil {
			p.log.Error().Err(err).Str("campaign", c.ID).Msg("enqueue failed")
			continue
		}
		p.log.Info().Str("campaign", c.ID).Time("scheduled_for", derefTime(c.ScheduledFor)).Msg("scheduled campaign enqueued")
	}
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
