package handler

import (
	"net/http"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/order"
	"github.com/xenking/pos-pricing/internal/domain/sales"
)

// respond writes the snapshot returned by a service call, or the mapped
// error.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, snap *sales.Snapshot, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSnapshot(w, status, snap)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.sales.Create(r.Context(), req.CustomerID)
	h.respond(w, r, http.StatusCreated, snap, err)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sales.Get(r.Context(), r.PathValue("id"))
	h.respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	var req addLineRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ref := catalog.SellableRef{Kind: catalog.Kind(req.Kind), ID: req.SellableID}
	snap, err := h.sales.AddLine(r.Context(), r.PathValue("id"), ref, req.Quantity)
	h.respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	var req updateLineRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.sales.UpdateLineQuantity(r.Context(), r.PathValue("id"), r.PathValue("lineID"), req.Quantity)
	h.respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sales.RemoveLine(r.Context(), r.PathValue("id"), r.PathValue("lineID"))
	h.respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) applyLineDiscount(w http.ResponseWriter, r *http.Request) {
	in, err := h.manualDiscount(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.sales.ApplyLineDiscount(r.Context(), r.PathValue("id"), r.PathValue("lineID"), in)
	h.respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) assignCustomer(w http.ResponseWriter, r *http.Request) {
	var req assignCustomerRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.sales.AssignCustomer(r.Context(), r.PathValue("id"), req.CustomerID)
	h.respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) applyDiscount(w http.ResponseWriter, r *http.Request) {
	in, err := h.manualDiscount(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.sales.ApplyDiscount(r.Context(), r.PathValue("id"), in)
	h.respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) manualDiscount(w http.ResponseWriter, r *http.Request) (sales.ManualDiscount, error) {
	var req discountRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		return sales.ManualDiscount{}, err
	}
	value, err := parseDecimal("value", req.Value)
	if err != nil {
		return sales.ManualDiscount{}, err
	}
	return sales.ManualDiscount{
		Name:    req.Name,
		Type:    order.DiscountType(req.Type),
		Value:   value,
		LineIDs: req.LineIDs,
	}, nil
}

func (h *Handler) overrideDiscount(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	value, err := parseDecimal("value", req.Value)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.sales.OverrideDiscount(r.Context(), r.PathValue("id"), r.PathValue("discountID"), value)
	h.respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) removeDiscount(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sales.RemoveDiscount(r.Context(), r.PathValue("id"), r.PathValue("discountID"))
	h.respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) restoreDiscount(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sales.RestoreDiscount(r.Context(), r.PathValue("id"), r.PathValue("discountID"))
	h.respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sales.Recalculate(r.Context(), r.PathValue("id"))
	h.respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) hold(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sales.Hold(r.Context(), r.PathValue("id"))
	h.respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sales.Resume(r.Context(), r.PathValue("id"))
	h.respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sales.Cancel(r.Context(), r.PathValue("id"))
	h.respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	tenders := make([]sales.Tender, 0, len(req.Payments))
	for _, p := range req.Payments {
		amount, err := parseDecimal("amount", p.Amount)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		tenders = append(tenders, sales.Tender{Method: order.PaymentMethod(p.Method), Amount: amount})
	}
	snap, err := h.sales.Complete(r.Context(), r.PathValue("id"), tenders)
	h.respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	items := make([]sales.RefundItem, 0, len(req.Lines))
	for _, l := range req.Lines {
		items = append(items, sales.RefundItem{LineID: l.LineID, Quantity: l.Quantity, Restock: l.Restock})
	}
	snap, err := h.sales.Refund(r.Context(), r.PathValue("id"), req.Reason, items)
	h.respond(w, r, http.StatusCreated, snap, err)
}
