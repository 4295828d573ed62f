package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Webhook verifies and applies a payment provider notification. Failures to
// apply answer 500 so the provider retries delivery.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeServiceError(ctx, w, &RequestError{Msg: "request body too large or unreadable"})
		return
	}

	ev, err := h.webhooks.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		zctx.From(ctx).Warn("Rejected webhook", zap.Error(err))
		writeServiceError(ctx, w, err)
		return
	}

	if err := h.orders.HandleEvent(ctx, ev); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("received")
		e.Bool(true)
		e.ObjEnd()
	})
}
