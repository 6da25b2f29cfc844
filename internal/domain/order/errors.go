package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for order operations.
var (
	ErrNotFound             = errors.New("order not found")
	ErrLineNotFound         = errors.New("order line not found")
	ErrDiscountNotFound     = errors.New("order discount not found")
	ErrLineDiscountNotFound = errors.New("line discount not found")
	ErrFinalized            = errors.New("order is finalized")
	ErrNoLines              = errors.New("order has no lines")
)

// TransitionError indicates a lifecycle operation was called on an order in
// the wrong status. It is returned before anything is changed.
type TransitionError struct {
	Op      string
	From    Status
	Allowed []Status
}

func (e *TransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("cannot %s order in status %s (allowed: %s)", e.Op, e.From, strings.Join(allowed, ", "))
}

// ValidationError indicates a record failed validation on write.
type ValidationError struct {
	Entity  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Entity, e.Field, e.Message)
}

// InsufficientPaymentError indicates the tendered payments do not cover the
// order total.
type InsufficientPaymentError struct {
	Paid decimal.Decimal
	Due  decimal.Decimal
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("payment total %s is less than order total %s", e.Paid.StringFixed(2), e.Due.StringFixed(2))
}

// RefundError indicates a refund request cannot be satisfied.
type RefundError struct {
	LineID string
	Reason string
}

func (e *RefundError) Error() string {
	if e.LineID == "" {
		return "refund rejected: " + e.Reason
	}
	return fmt.Sprintf("refund rejected for line %s: %s", e.LineID, e.Reason)
}
