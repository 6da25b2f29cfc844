package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/order"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// typeTranslation maps catalog discount types onto the order vocabulary.
var typeTranslation = map[discount.Type]order.DiscountType{
	discount.TypePercentage:   order.DiscountPercentage,
	discount.TypeFixedTotal:   order.DiscountFixedAmount,
	discount.TypeFixedPerItem: order.DiscountFixedPerItem,
}

// DiscountAmount calculates the amount of one order discount against the
// subtotal of the lines it applies to. Fixed discounts never exceed that
// subtotal. The result is rounded to cents.
func DiscountAmount(typ order.DiscountType, value, subtotal decimal.Decimal) decimal.Decimal {
	switch typ {
	case order.DiscountPercentage:
		return floorAtZero(subtotal.Mul(value.Div(hundred))).Round(2)
	default:
		return floorAtZero(decimal.Min(value, subtotal)).Round(2)
	}
}

// Distribute splits total across lines in proportion to their subtotals.
// Every share but the last is rounded to cents; the last takes the remainder
// so that the shares sum to total exactly. A zero total or zero combined
// subtotal yields all-zero shares.
func Distribute(total decimal.Decimal, subtotals []decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(subtotals))
	for i := range shares {
		shares[i] = zero
	}
	if len(subtotals) == 0 || total.IsZero() {
		return shares
	}

	grand := sum(subtotals)
	if grand.IsZero() {
		return shares
	}

	distributed := zero
	last := len(subtotals) - 1
	for i, sub := range subtotals[:last] {
		share := sub.Div(grand).Mul(total).Round(2)
		shares[i] = share
		distributed = distributed.Add(share)
	}
	shares[last] = total.Sub(distributed).Round(2)
	return shares
}

func sum(values []decimal.Decimal) decimal.Decimal {
	total := zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
