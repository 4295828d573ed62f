package handler

import (
	"io"
	"net/http"
	"net/mail"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/printshop/internal/domain/order"
)

func readCart(w http.ResponseWriter, r *http.Request) (cartRequest, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCartBytes))
	if err != nil {
		return cartRequest{}, &RequestError{Msg: "request body too large or unreadable"}
	}
	return decodeCartRequest(data)
}

// Quote prices a cart without persisting anything.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := readCart(w, r)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	priced, err := h.orders.Quote(ctx, req.Items)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodePricedOrder(e, priced)
	})
}

// Checkout places an order and returns the hosted payment page to redirect
// the customer to.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := readCart(w, r)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	// Without an email the hosted checkout page collects one.
	if req.CustomerEmail != "" {
		if _, err := mail.ParseAddress(req.CustomerEmail); err != nil {
			writeServiceError(ctx, w, &RequestError{Msg: "invalid customerEmail"})
			return
		}
	}

	res, err := h.orders.PlaceOrder(ctx, order.PlaceOrderRequest{
		Items:         req.Items,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("orderId")
		e.Str(res.Order.ID)
		e.FieldStart("status")
		e.Str(string(res.Order.Status))
		e.FieldStart("checkoutUrl")
		e.Str(res.SessionURL)
		e.FieldStart("pricing")
		encodePricedOrder(e, &res.Order.Pricing)
		e.ObjEnd()
	})
}

// GetOrder returns a persisted order, e.g. for the confirmation page.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeServiceError(ctx, w, order.ErrNotFound)
		return
	}

	o, err := h.orders.Get(ctx, id)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}
