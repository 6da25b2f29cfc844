// Package handler exposes the order lifecycle over a JSON HTTP API mounted
// under /api.
package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/xenking/pos-pricing/internal/domain/auth"
	"github.com/xenking/pos-pricing/internal/domain/sales"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// APIKeyPepper is the HMAC key API keys are hashed with.
	APIKeyPepper string
}

// Handler serves the order API, delegating business logic to the sales
// service.
type Handler struct {
	sales    *sales.Service
	apikeys  auth.Repository
	pepper   string
	validate *validator.Validate
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg Config, svc *sales.Service, apikeys auth.Repository) *Handler {
	return &Handler{
		sales:    svc,
		apikeys:  apikeys,
		pepper:   cfg.APIKeyPepper,
		validate: newValidator(),
	}
}

// Register adds the API routes to mux. Every route requires an API key;
// reads need the orders:read scope and mutations orders:write.
func (h *Handler) Register(mux *http.ServeMux) {
	read := func(fn http.HandlerFunc) http.Handler { return h.authorize(auth.ScopeOrdersRead, fn) }
	write := func(fn http.HandlerFunc) http.Handler { return h.authorize(auth.ScopeOrdersWrite, fn) }

	mux.Handle("POST /api/orders", write(h.createOrder))
	mux.Handle("GET /api/orders/{id}", read(h.getOrder))

	mux.Handle("POST /api/orders/{id}/lines", write(h.addLine))
	mux.Handle("PATCH /api/orders/{id}/lines/{lineID}", write(h.updateLine))
	mux.Handle("DELETE /api/orders/{id}/lines/{lineID}", write(h.removeLine))
	mux.Handle("POST /api/orders/{id}/lines/{lineID}/discounts", write(h.applyLineDiscount))
	mux.Handle("PUT /api/orders/{id}/customer", write(h.assignCustomer))

	mux.Handle("POST /api/orders/{id}/discounts", write(h.applyDiscount))
	mux.Handle("PATCH /api/orders/{id}/discounts/{discountID}", write(h.overrideDiscount))
	mux.Handle("DELETE /api/orders/{id}/discounts/{discountID}", write(h.removeDiscount))
	mux.Handle("DELETE /api/orders/{id}/overrides/{discountID}", write(h.restoreDiscount))

	mux.Handle("POST /api/orders/{id}/recalculate", write(h.recalculate))
	mux.Handle("POST /api/orders/{id}/hold", write(h.hold))
	mux.Handle("POST /api/orders/{id}/resume", write(h.resume))
	mux.Handle("POST /api/orders/{id}/cancel", write(h.cancel))
	mux.Handle("POST /api/orders/{id}/complete", write(h.complete))
	mux.Handle("POST /api/orders/{id}/refunds", write(h.refund))
}
