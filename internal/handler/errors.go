package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/printshop/internal/domain/cart"
	"github.com/xenking/printshop/internal/domain/order"
	"github.com/xenking/printshop/internal/domain/payment"
	"github.com/xenking/printshop/internal/domain/pricing"
	"github.com/xenking/printshop/pkg/httpmiddleware"
)

// RequestError is a malformed request body or parameter.
type RequestError struct {
	Msg string
}

func (e *RequestError) Error() string {
	return e.Msg
}

// mapError converts domain errors to an HTTP status and a client-facing
// message. Server-side faults get a generic message.
func mapError(err error) (int, string) {
	var (
		reqErr      *RequestError
		qtyErr      *cart.InvalidQuantityError
		optErr      *cart.InvalidOptionError
		noPricing   *pricing.NoPricingFoundError
		incomplete  *pricing.IncompleteGridError
		invalidGrid *pricing.InvalidGridError
		repoErr     *order.RepositoryUnavailableError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, reqErr.Msg
	case errors.Is(err, cart.ErrEmptyCart):
		return http.StatusBadRequest, cart.ErrEmptyCart.Error()
	case errors.As(err, &qtyErr):
		return http.StatusUnprocessableEntity, qtyErr.Error()
	case errors.As(err, &optErr):
		return http.StatusUnprocessableEntity, optErr.Error()
	case errors.As(err, &noPricing):
		return http.StatusUnprocessableEntity, "selection not available"
	case errors.As(err, &incomplete), errors.As(err, &invalidGrid):
		return http.StatusInternalServerError, "pricing unavailable"
	case errors.As(err, &repoErr):
		return http.StatusServiceUnavailable, "pricing temporarily unavailable"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid signature"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		zctx.From(ctx).Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	httpmiddleware.WriteError(w, status, msg)
}
