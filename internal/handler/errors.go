package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/order"
)

// mapError translates domain errors to an HTTP status and a client-facing
// message. Unknown errors are internal and their text is not exposed.
func mapError(err error) (int, string) {
	var (
		badReq     *badRequestError
		validation *order.ValidationError
		transition *order.TransitionError
		payment    *order.InsufficientPaymentError
		refund     *order.RefundError
	)
	switch {
	case errors.As(err, &badReq):
		return http.StatusBadRequest, badReq.msg
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrLineNotFound),
		errors.Is(err, order.ErrDiscountNotFound),
		errors.Is(err, order.ErrLineDiscountNotFound),
		errors.Is(err, catalog.ErrSellableNotFound),
		errors.Is(err, catalog.ErrCustomerNotFound),
		errors.Is(err, catalog.ErrTaxCodeNotFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &transition):
		return http.StatusConflict, transition.Error()
	case errors.Is(err, order.ErrFinalized):
		return http.StatusConflict, err.Error()
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, validation.Error()
	case errors.As(err, &payment):
		return http.StatusUnprocessableEntity, payment.Error()
	case errors.As(err, &refund):
		return http.StatusUnprocessableEntity, refund.Error()
	case errors.Is(err, order.ErrNoLines):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := mapError(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, msg)
}
