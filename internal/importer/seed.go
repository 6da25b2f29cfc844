package importer

import (
	"context"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/discount"
)

// Seed is a complete catalog document:
//
//	{
//	  "tax_codes": [{"id": "std", "name": "Standard", "rate": "0.13"}],
//	  "customers": [{"id": "c-1", "name": "Acme", "tax_code_id": "exempt"}],
//	  "sellables": [{"kind": "product", "id": "p-1", ...}],
//	  "discounts": [{"id": "d-1", "type": "percentage", "value": "10", "items": ["product:p-1"], ...}]
//	}
type Seed struct {
	TaxCodes  []catalog.TaxCode
	Customers []catalog.Customer
	Sellables []catalog.Sellable
	Discounts []discount.Discount
}

// ReadSeed decodes and validates a seed document.
func ReadSeed(r io.Reader) (*Seed, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read seed")
	}

	v := NewValidator()
	var s Seed
	if err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "tax_codes":
			return d.Arr(func(d *jx.Decoder) error {
				tc, err := decodeTaxCode(d)
				if err != nil {
					return errors.Wrapf(err, "tax code %d", len(s.TaxCodes))
				}
				s.TaxCodes = append(s.TaxCodes, tc)
				return nil
			})
		case "customers":
			return d.Arr(func(d *jx.Decoder) error {
				c, err := decodeCustomer(d)
				if err != nil {
					return errors.Wrapf(err, "customer %d", len(s.Customers))
				}
				s.Customers = append(s.Customers, c)
				return nil
			})
		case "sellables":
			return d.Arr(func(d *jx.Decoder) error {
				var rec Record
				if err := rec.Decode(d); err != nil {
					return errors.Wrapf(err, "sellable %d", len(s.Sellables))
				}
				sellable, err := rec.Sellable(v)
				if err != nil {
					return errors.Wrapf(err, "sellable %q", rec.ID)
				}
				s.Sellables = append(s.Sellables, sellable)
				return nil
			})
		case "discounts":
			return d.Arr(func(d *jx.Decoder) error {
				dc, err := decodeDiscount(d)
				if err != nil {
					return errors.Wrapf(err, "discount %d", len(s.Discounts))
				}
				if err := dc.Validate(); err != nil {
					return err
				}
				s.Discounts = append(s.Discounts, dc)
				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode seed")
	}
	return &s, nil
}

// Apply writes the document in dependency order: tax codes, customers,
// sellables, then discount rules.
func (s *Seed) Apply(ctx context.Context, w Writer) error {
	lg := zctx.From(ctx)

	for _, tc := range s.TaxCodes {
		if err := w.UpsertTaxCode(ctx, tc); err != nil {
			return errors.Wrapf(err, "upsert tax code %s", tc.ID)
		}
	}
	for _, c := range s.Customers {
		if err := w.UpsertCustomer(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.ID)
		}
	}
	for _, sellable := range s.Sellables {
		if err := write(ctx, w, sellable); err != nil {
			return errors.Wrapf(err, "upsert %s", sellable.Ref())
		}
	}
	for _, d := range s.Discounts {
		if err := w.UpsertDiscount(ctx, d); err != nil {
			return errors.Wrapf(err, "upsert discount %s", d.ID)
		}
	}

	lg.Info("Catalog seeded",
		zap.Int("tax_codes", len(s.TaxCodes)),
		zap.Int("customers", len(s.Customers)),
		zap.Int("sellables", len(s.Sellables)),
		zap.Int("discounts", len(s.Discounts)),
	)
	return nil
}

func decodeTaxCode(d *jx.Decoder) (catalog.TaxCode, error) {
	var (
		tc   catalog.TaxCode
		rate string
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			tc.ID, err = d.Str()
		case "name":
			tc.Name, err = d.Str()
		case "rate":
			rate, err = decimalString(d)
		default:
			return d.Skip()
		}
		return err
	}); err != nil {
		return tc, err
	}

	if tc.ID == "" {
		return tc, errors.New("id is required")
	}
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return tc, errors.Wrapf(err, "tax code %s: rate", tc.ID)
	}
	if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
		return tc, errors.Errorf("tax code %s: rate %s is not a fraction between 0 and 1", tc.ID, rate)
	}
	if !r.Equal(r.Round(4)) {
		return tc, errors.Errorf("tax code %s: rate %s has more than 4 decimal places", tc.ID, rate)
	}
	tc.Rate = r
	return tc, nil
}

func decodeCustomer(d *jx.Decoder) (catalog.Customer, error) {
	var c catalog.Customer
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			c.ID, err = d.Str()
		case "name":
			c.Name, err = d.Str()
		case "tax_code_id":
			c.TaxCodeID, err = d.Str()
		default:
			return d.Skip()
		}
		return err
	}); err != nil {
		return c, err
	}
	if c.ID == "" {
		return c, errors.New("id is required")
	}
	return c, nil
}

func decodeDiscount(d *jx.Decoder) (discount.Discount, error) {
	var dc discount.Discount
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			dc.ID = v
			return err
		case "name":
			v, err := d.Str()
			dc.Name = v
			return err
		case "type":
			v, err := d.Str()
			dc.Type = discount.Type(v)
			return err
		case "value":
			v, err := decimalString(d)
			if err != nil {
				return err
			}
			dc.Value, err = decimal.NewFromString(v)
			return errors.Wrap(err, "value")
		case "active":
			v, err := d.Bool()
			dc.Active = v
			return err
		case "applies_to_all":
			v, err := d.Bool()
			dc.AppliesToAll = v
			return err
		case "starts_at":
			t, err := decodeTime(d)
			dc.StartsAt = t
			return err
		case "ends_at":
			t, err := decodeTime(d)
			dc.EndsAt = t
			return err
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				ref, err := catalog.ParseSellableRef(v)
				if err != nil {
					return err
				}
				dc.Items = append(dc.Items, ref)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return dc, err
	}
	if dc.ID == "" {
		return dc, errors.New("id is required")
	}
	return dc, nil
}

// decodeTime reads an RFC 3339 timestamp; null leaves the bound open.
func decodeTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
