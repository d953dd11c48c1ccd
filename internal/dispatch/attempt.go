package dispatch

import (
	"time"

	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/model"
)

// ApplyAttemptResult folds the outcome of one send attempt into the
// recipient's delivery state. It is a pure transition on the recipient and
// carries the whole retry policy, so it can be tested without a transport.
//
// On success the recipient advances to sent (never backwards over a
// delivered/read receipt that already arrived). On failure the retry counter
// is incremented; once it reaches maxRetries the recipient fails terminally
// with the error recorded, otherwise it stays pending for a later attempt.
func ApplyAttemptResult(r *model.RecipientState, sendErr error, now time.Time, maxRetries int) {
	if sendErr == nil {
		r.Advance(model.StatusSent, now)
		return
	}
	r.RetryCount++
	if r.RetryCount >= maxRetries {
		r.Fail(sendErr.Error())
	}
}
