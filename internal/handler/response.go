package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/order"
	"github.com/xenking/pos-pricing/internal/domain/sales"
)

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

func writeSnapshot(w http.ResponseWriter, status int, snap *sales.Snapshot) {
	var e jx.Encoder
	encodeSnapshot(&e, snap)
	writeJSON(w, status, &e)
}

func money(e *jx.Encoder, name string, v decimal.Decimal) {
	e.FieldStart(name)
	e.Str(v.StringFixed(2))
}

func str(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func timestamp(e *jx.Encoder, name string, t time.Time) {
	e.FieldStart(name)
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func strs(e *jx.Encoder, name string, vs []string) {
	e.FieldStart(name)
	e.ArrStart()
	for _, v := range vs {
		e.Str(v)
	}
	e.ArrEnd()
}

// encodeSnapshot writes the order with its children. Money is rendered with
// two decimals, discount values and tax rates as exact decimals.
func encodeSnapshot(e *jx.Encoder, snap *sales.Snapshot) {
	o := snap.Order
	e.ObjStart()
	str(e, "id", o.ID)
	str(e, "status", string(o.Status))
	str(e, "customer_id", o.CustomerID)
	money(e, "subtotal", o.Subtotal)
	money(e, "discount_total", o.DiscountTotal)
	money(e, "tax_total", o.TaxTotal)
	money(e, "total", o.Total)
	strs(e, "overridden_discount_ids", o.Overrides.IDs())
	timestamp(e, "created_at", o.CreatedAt)
	timestamp(e, "updated_at", o.UpdatedAt)
	if o.CompletedAt != nil {
		timestamp(e, "completed_at", *o.CompletedAt)
	}

	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range snap.Lines {
		encodeLine(e, l)
	}
	e.ArrEnd()

	e.FieldStart("discounts")
	e.ArrStart()
	for _, d := range snap.Discounts {
		encodeDiscount(e, d)
	}
	e.ArrEnd()

	e.FieldStart("line_discounts")
	e.ArrStart()
	for _, d := range snap.LineDiscounts {
		e.ObjStart()
		str(e, "id", d.ID)
		str(e, "line_id", d.LineID)
		str(e, "order_discount_id", d.OrderDiscountID)
		str(e, "name", d.Name)
		str(e, "type", string(d.Type))
		str(e, "value", d.Value.String())
		money(e, "amount", d.Amount)
		str(e, "applied_by", d.AppliedBy)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("payments")
	e.ArrStart()
	for _, p := range snap.Payments {
		e.ObjStart()
		str(e, "id", p.ID)
		str(e, "method", string(p.Method))
		money(e, "amount", p.Amount)
		timestamp(e, "created_at", p.CreatedAt)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("refunds")
	e.ArrStart()
	for _, r := range snap.Refunds {
		encodeRefund(e, r)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeLine(e *jx.Encoder, l *order.Line) {
	e.ObjStart()
	str(e, "id", l.ID)
	str(e, "kind", string(l.Sellable.Kind))
	str(e, "sellable_id", l.Sellable.ID)
	str(e, "name", l.Name)
	str(e, "code", l.Code)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	money(e, "unit_price", l.UnitPrice)
	str(e, "tax_code_id", l.TaxCodeID)
	str(e, "product_tax_code_id", l.ProductTaxCodeID)
	str(e, "tax_rate", l.TaxRate.String())
	money(e, "subtotal", l.Subtotal())
	money(e, "tax_amount", l.TaxAmount)
	money(e, "discount_amount", l.DiscountAmount)
	money(e, "line_total", l.LineTotal)
	e.FieldStart("position")
	e.Int(l.Position)
	e.ObjEnd()
}

func encodeDiscount(e *jx.Encoder, d *order.Discount) {
	e.ObjStart()
	str(e, "id", d.ID)
	str(e, "name", d.Name)
	str(e, "type", string(d.Type))
	str(e, "value", d.Value.String())
	str(e, "scope", string(d.Scope))
	money(e, "calculated_amount", d.CalculatedAmount)
	str(e, "discount_id", d.DiscountID)
	e.FieldStart("auto_applied")
	e.Bool(d.AutoApplied())
	str(e, "applied_by", d.AppliedBy)
	strs(e, "line_ids", d.LineIDs)
	e.ObjEnd()
}

func encodeRefund(e *jx.Encoder, r order.Refund) {
	e.ObjStart()
	str(e, "id", r.ID)
	money(e, "amount", r.Amount)
	str(e, "reason", r.Reason)
	str(e, "processed_by", r.ProcessedBy)
	timestamp(e, "created_at", r.CreatedAt)
	e.FieldStart("lines")
	e.ArrStart()
	for _, rl := range r.Lines {
		e.ObjStart()
		str(e, "line_id", rl.LineID)
		e.FieldStart("quantity")
		e.Int(rl.Quantity)
		money(e, "amount", rl.Amount)
		e.FieldStart("restock")
		e.Bool(rl.Restock)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
