package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/transport"
)

// ReceiptApplier folds a gateway delivery receipt into campaign state.
type ReceiptApplier interface {
	Apply(rcpt transport.Receipt) error
}

// WhatsAppHandler proxies the gateway session state to the dashboard and
// receives the gateway's asynchronous delivery events.
type WhatsAppHandler struct {
	Gateway  *transport.Gateway
	Receipts ReceiptApplier
}

// Status returns the current gateway connection state.
func (h *WhatsAppHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	st, err := h.Gateway.Status(ctx)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to get connection status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    st,
	})
}

// QR returns the pairing QR code when the gateway is waiting for one.
func (h *WhatsAppHandler) QR(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	st, err := h.Gateway.Status(ctx)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to get connection status")
		return
	}
	if st.IsConnected {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "already connected",
			"data":    map[string]bool{"connected": true},
		})
		return
	}
	if st.QRCode == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": "QR code not available, connection may be in progress",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    map[string]string{"qr_code": st.QRCode},
	})
}

// Receipt ingests one message_ack event pushed by the gateway bridge. Acks
// other than delivered/read and message IDs no campaign knows are accepted
// and ignored, so the bridge never has to care about campaign state.
func (h *WhatsAppHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	var rcpt transport.Receipt
	if err := json.NewDecoder(r.Body).Decode(&rcpt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid receipt payload")
		return
	}
	if rcpt.MessageID == "" {
		writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}
	if rcpt.Timestamp.IsZero() {
		rcpt.Timestamp = time.Now()
	}

	if err := h.Receipts.Apply(rcpt); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to apply receipt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}
