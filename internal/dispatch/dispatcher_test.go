package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/errors"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/model"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/transport"
)

// memStore keeps campaigns in memory with the same contract as the real
// repository: loads return copies, saves recompute the derived counters.
type memStore struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	saves     int
	failSaves bool
}

func newMemStore(cs ...*model.Campaign) *memStore {
	s := &memStore{campaigns: map[string]*model.Campaign{}}
	for _, c := range cs {
		c.Recompute()
		s.campaigns[c.ID] = cloneCampaign(c)
	}
	return s
}

func (s *memStore) GetByID(id string) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, apperrors.NewCampaignNotFound(id)
	}
	return cloneCampaign(c), nil
}

func (s *memStore) Save(c *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves {
		return errors.New("db unavailable")
	}
	c.Recompute()
	c.UpdatedAt = time.Now()
	s.campaigns[c.ID] = cloneCampaign(c)
	s.saves++
	return nil
}

func (s *memStore) FindByMessageID(messageID string) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.campaigns {
		for _, r := range c.Recipients {
			if r.MessageID == messageID {
				return cloneCampaign(c), nil
			}
		}
	}
	return nil, nil
}

func cloneCampaign(c *model.Campaign) *model.Campaign {
	cp := *c
	cp.Recipients = make([]model.RecipientState, len(c.Recipients))
	copy(cp.Recipients, c.Recipients)
	return &cp
}

type sendCall struct {
	phone string
	at    time.Time
}

// fakeSender scripts per-phone outcomes and records call order and timing.
type fakeSender struct {
	mu      sync.Mutex
	calls   []sendCall
	failFor map[string]error
	ready   bool

	// afterSend, when set, runs after each successful call. Used to
	// simulate crashes mid-run.
	afterSend func(callCount int)
}

func newFakeSender() *fakeSender {
	return &fakeSender{failFor: map[string]error{}, ready: true}
}

func (f *fakeSender) Send(ctx context.Context, phone, body string, opts *transport.SendOptions) (*transport.Delivery, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sendCall{phone: phone, at: time.Now()})
	n := len(f.calls)
	err := f.failFor[phone]
	after := f.afterSend
	f.mu.Unlock()

	if after != nil {
		after(n)
	}
	if err != nil {
		return nil, err
	}
	return &transport.Delivery{MessageID: fmt.Sprintf("msg-%d", n), Timestamp: time.Now()}, nil
}

func (f *fakeSender) IsReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeSender) callPhones() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	phones := make([]string, len(f.calls))
	for i, c := range f.calls {
		phones[i] = c.phone
	}
	return phones
}

type contactLogEntry struct {
	id string
	at time.Time
}

type fakeContactLog struct {
	mu      sync.Mutex
	entries []contactLogEntry
}

func (f *fakeContactLog) RecordMessageSent(id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, contactLogEntry{id: id, at: at})
	return nil
}

func testCampaign(id string, phones ...string) *model.Campaign {
	recipients := make([]model.RecipientState, len(phones))
	for i, p := range phones {
		recipients[i] = model.RecipientState{
			ContactID: "contact-" + p,
			Phone:     p,
			Name:      "Recipient " + p,
			Status:    model.StatusPending,
		}
	}
	return &model.Campaign{
		ID:         id,
		Content:    "hello",
		Kind:       model.KindText,
		Recipients: recipients,
		CreatedAt:  time.Now(),
	}
}

func testDispatcher(store Store, contacts ContactLog, sender transport.Sender, delay time.Duration, maxRetries int) *Dispatcher {
	return New(store, contacts, sender, Config{MessageDelay: delay, MaxRetries: maxRetries}, zerolog.Nop())
}

func TestDispatchAllSucceed(t *testing.T) {
	store := newMemStore(testCampaign("c1", "111", "222", "333"))
	sender := newFakeSender()
	contacts := &fakeContactLog{}
	d := testDispatcher(store, contacts, sender, time.Millisecond, 3)

	require.NoError(t, d.Dispatch(context.Background(), "c1"))

	c, err := store.GetByID("c1")
	require.NoError(t, err)
	require.Equal(t, 3, c.SentCount)
	require.Equal(t, 0, c.FailedCount)
	require.True(t, c.IsCompleted)
	for _, r := range c.Recipients {
		require.Equal(t, model.StatusSent, r.Status)
		require.NotNil(t, r.SentAt)
		require.NotEmpty(t, r.MessageID, "gateway message ID persisted for receipt correlation")
	}
	require.Len(t, contacts.entries, 3)
	require.Equal(t, 3, store.saves, "progress persisted after every recipient")
}

func TestDispatchOrderPreserved(t *testing.T) {
	store := newMemStore(testCampaign("c1", "555", "111", "999", "222"))
	sender := newFakeSender()
	d := testDispatcher(store, nil, sender, time.Millisecond, 3)

	require.NoError(t, d.Dispatch(context.Background(), "c1"))
	require.Equal(t, []string{"555", "111", "999", "222"}, sender.callPhones())
}

func TestDispatchPacing(t *testing.T) {
	const delay = 40 * time.Millisecond
	store := newMemStore(testCampaign("c1", "111", "222", "333"))
	sender := newFakeSender()
	d := testDispatcher(store, nil, sender, delay, 3)

	start := time.Now()
	require.NoError(t, d.Dispatch(context.Background(), "c1"))

	require.Len(t, sender.calls, 3)
	require.Less(t, sender.calls[0].at.Sub(start), delay, "first send is not delayed")
	for i := 1; i < len(sender.calls); i++ {
		gap := sender.calls[i].at.Sub(sender.calls[i-1].at)
		require.GreaterOrEqual(t, gap, delay, "gap %d shorter than pacing interval", i)
	}
}

func TestDispatchPartialFailure(t *testing.T) {
	// Recipient 222 fails every attempt; with maxRetries=3 it takes three
	// dispatch rounds (the queue requeues incomplete campaigns) to become
	// terminally failed. Recipient 111 is sent exactly once.
	store := newMemStore(testCampaign("c1", "111", "222"))
	sender := newFakeSender()
	sender.failFor["222"] = errors.New("recipient unreachable")
	d := testDispatcher(store, nil, sender, time.Millisecond, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Dispatch(context.Background(), "c1"))
	}

	c, err := store.GetByID("c1")
	require.NoError(t, err)
	require.Equal(t, model.StatusSent, c.Recipients[0].Status)
	require.Equal(t, model.StatusFailed, c.Recipients[1].Status)
	require.Equal(t, 3, c.Recipients[1].RetryCount)
	require.Equal(t, "recipient unreachable", c.Recipients[1].ErrorMessage)
	require.Equal(t, 1, c.SentCount)
	require.Equal(t, 1, c.FailedCount)
	require.True(t, c.IsCompleted)

	phones := sender.callPhones()
	require.Equal(t, []string{"111", "222", "222", "222"}, phones, "111 sent once, 222 attempted three times")
}

func TestDispatchIdempotentWhenCompleted(t *testing.T) {
	store := newMemStore(testCampaign("c1", "111", "222"))
	sender := newFakeSender()
	d := testDispatcher(store, nil, sender, time.Millisecond, 3)

	require.NoError(t, d.Dispatch(context.Background(), "c1"))
	require.Len(t, sender.calls, 2)

	require.NoError(t, d.Dispatch(context.Background(), "c1"))
	require.Len(t, sender.calls, 2, "second dispatch performs zero sends")
}

func TestDispatchResumesAfterCrash(t *testing.T) {
	// Cancel the context right after the first successful send: recipient
	// 111 is persisted as sent, the run dies before 222 starts.
	store := newMemStore(testCampaign("c1", "111", "222", "333"))
	sender := newFakeSender()
	ctx, cancel := context.WithCancel(context.Background())
	sender.afterSend = func(n int) {
		if n == 1 {
			// let the save of recipient 111 happen, then kill the run
			go func() {
				time.Sleep(10 * time.Millisecond)
				cancel()
			}()
		}
	}
	d := testDispatcher(store, nil, sender, time.Hour, 3)

	err := d.Dispatch(ctx, "c1")
	require.ErrorIs(t, err, context.Canceled)

	c, _ := store.GetByID("c1")
	require.Equal(t, model.StatusSent, c.Recipients[0].Status)
	require.Equal(t, model.StatusPending, c.Recipients[1].Status)
	require.Equal(t, model.StatusPending, c.Recipients[2].Status)

	// Resume: only the pending tail is sent, 111 is not re-sent.
	sender.afterSend = nil
	d2 := testDispatcher(store, nil, sender, time.Millisecond, 3)
	require.NoError(t, d2.Dispatch(context.Background(), "c1"))

	require.Equal(t, []string{"111", "222", "333"}, sender.callPhones())
	c, _ = store.GetByID("c1")
	require.True(t, c.IsCompleted)
	require.Equal(t, 3, c.SentCount)
}

func TestDispatchNotFound(t *testing.T) {
	store := newMemStore()
	d := testDispatcher(store, nil, newFakeSender(), time.Millisecond, 3)
	err := d.Dispatch(context.Background(), "missing")
	require.True(t, apperrors.IsNotFound(err))
}

func TestDispatchRefusesWhenNotReady(t *testing.T) {
	store := newMemStore(testCampaign("c1", "111"))
	sender := newFakeSender()
	sender.ready = false
	d := testDispatcher(store, nil, sender, time.Millisecond, 3)

	err := d.Dispatch(context.Background(), "c1")
	require.ErrorIs(t, err, apperrors.ErrNotConnected)
	require.Empty(t, sender.calls)

	c, _ := store.GetByID("c1")
	require.Equal(t, model.StatusPending, c.Recipients[0].Status)
}

func TestDispatchAbortsWhenConnectionDrops(t *testing.T) {
	store := newMemStore(testCampaign("c1", "111", "222", "333"))
	sender := newFakeSender()
	sender.failFor["222"] = apperrors.ErrNotConnected
	d := testDispatcher(store, nil, sender, time.Millisecond, 3)

	err := d.Dispatch(context.Background(), "c1")
	require.ErrorIs(t, err, apperrors.ErrNotConnected)

	c, _ := store.GetByID("c1")
	require.Equal(t, model.StatusSent, c.Recipients[0].Status)
	// The disconnect is not charged to the recipient as an attempt.
	require.Equal(t, model.StatusPending, c.Recipients[1].Status)
	require.Equal(t, 0, c.Recipients[1].RetryCount)
	require.Equal(t, model.StatusPending, c.Recipients[2].Status)
	require.Equal(t, []string{"111", "222"}, sender.callPhones(), "remaining recipients untouched")
}

func TestDispatchPersistenceFailureAborts(t *testing.T) {
	store := newMemStore(testCampaign("c1", "111", "222"))
	store.failSaves = true
	sender := newFakeSender()
	d := testDispatcher(store, nil, sender, time.Millisecond, 3)

	err := d.Dispatch(context.Background(), "c1")
	require.Error(t, err)
	require.Len(t, sender.calls, 1, "loop stops at the first failed save")

	// Stored state untouched; next dispatch starts from pending.
	c, _ := store.GetByID("c1")
	require.Equal(t, model.StatusPending, c.Recipients[0].Status)
}

