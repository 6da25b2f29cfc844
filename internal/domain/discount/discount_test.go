package discount

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
)

func TestDiscount_ActiveAt(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name string
		d    Discount
		want bool
	}{
		{name: "active without window", d: Discount{Active: true}, want: true},
		{name: "inactive flag", d: Discount{Active: false}, want: false},
		{name: "ended", d: Discount{Active: true, EndsAt: &pastTime}, want: false},
		{name: "not started", d: Discount{Active: true, StartsAt: &futureTime}, want: false},
		{name: "inside window", d: Discount{Active: true, StartsAt: &pastTime, EndsAt: &futureTime}, want: true},
		{name: "open start", d: Discount{Active: true, EndsAt: &futureTime}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.ActiveAt(fixedNow))
		})
	}
}

func TestDiscount_Targets(t *testing.T) {
	d := Discount{Items: []catalog.SellableRef{catalog.ProductRef("a"), catalog.ServiceRef("b")}}

	assert.True(t, d.Targets(catalog.ProductRef("a")))
	assert.True(t, d.Targets(catalog.ServiceRef("b")))
	assert.False(t, d.Targets(catalog.ServiceRef("a")), "kind is part of identity")
	assert.False(t, d.Targets(catalog.ProductRef("c")))
}

func TestDiscount_Validate(t *testing.T) {
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	tests := []struct {
		name    string
		d       Discount
		wantErr string
	}{
		{
			name: "valid percentage",
			d:    Discount{Name: "Spring", Type: TypePercentage, Value: decimal.NewFromInt(10)},
		},
		{
			name:    "missing name",
			d:       Discount{Type: TypeFixedTotal, Value: decimal.NewFromInt(5)},
			wantErr: "name is required",
		},
		{
			name:    "unknown type",
			d:       Discount{Name: "x", Type: Type("bogus")},
			wantErr: "unsupported discount type",
		},
		{
			name:    "negative value",
			d:       Discount{Name: "x", Type: TypeFixedPerItem, Value: decimal.NewFromInt(-1)},
			wantErr: "must not be negative",
		},
		{
			name:    "percentage above 100",
			d:       Discount{Name: "x", Type: TypePercentage, Value: decimal.NewFromInt(101)},
			wantErr: "must not exceed 100",
		},
		{
			name:    "sub-cent value",
			d:       Discount{Name: "x", Type: TypeFixedTotal, Value: decimal.RequireFromString("2.005")},
			wantErr: "at most 2 decimal places",
		},
		{
			name:    "inverted window",
			d:       Discount{Name: "x", Type: TypeFixedTotal, StartsAt: &start, EndsAt: &end},
			wantErr: "ends before it starts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
