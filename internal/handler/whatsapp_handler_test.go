package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/handler"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/transport"
)

type fakeApplier struct {
	applied []transport.Receipt
	err     error
}

func (f *fakeApplier) Apply(rcpt transport.Receipt) error {
	f.applied = append(f.applied, rcpt)
	return f.err
}

func postReceipt(t *testing.T, h *handler.WhatsAppHandler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/whatsapp/receipts", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.Receipt(w, req)
	return w
}

func TestReceiptHandler(t *testing.T) {
	applier := &fakeApplier{}
	h := &handler.WhatsAppHandler{Receipts: applier}

	ts := time.Now().UTC().Truncate(time.Second)
	body, _ := json.Marshal(transport.Receipt{
		MessageID: "wa-1",
		Phone:     "5567999990001",
		Ack:       "delivered",
		Timestamp: ts,
	})
	w := postReceipt(t, h, body)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, applier.applied, 1)
	require.Equal(t, "wa-1", applier.applied[0].MessageID)
	require.Equal(t, "delivered", applier.applied[0].Ack)
	require.True(t, ts.Equal(applier.applied[0].Timestamp))
}

func TestReceiptHandlerDefaultsTimestamp(t *testing.T) {
	applier := &fakeApplier{}
	h := &handler.WhatsAppHandler{Receipts: applier}

	w := postReceipt(t, h, []byte(`{"message_id":"wa-1","ack":"read"}`))

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, applier.applied, 1)
	require.False(t, applier.applied[0].Timestamp.IsZero())
}

func TestReceiptHandlerRejectsBadPayload(t *testing.T) {
	applier := &fakeApplier{}
	h := &handler.WhatsAppHandler{Receipts: applier}

	w := postReceipt(t, h, []byte("not json"))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = postReceipt(t, h, []byte(`{"ack":"read"}`))
	require.Equal(t, http.StatusBadRequest, w.Code, "message_id is mandatory")

	require.Empty(t, applier.applied)
}

func TestReceiptHandlerApplyFailure(t *testing.T) {
	h := &handler.WhatsAppHandler{Receipts: &fakeApplier{err: errors.New("db down")}}
	w := postReceipt(t, h, []byte(`{"message_id":"wa-1","ack":"read"}`))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}
