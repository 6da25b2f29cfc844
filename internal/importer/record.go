// Package importer loads catalog data into a store: the JSON seed document
// that bootstraps tax codes, customers, sellables and discount rules, and
// bulk sellable imports from gzip-compressed JSON Lines files.
package importer

import (
	"context"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/discount"
)

// Writer stores catalog entries. Both the PostgreSQL repository and the
// in-memory catalog implement it.
type Writer interface {
	UpsertTaxCode(ctx context.Context, tc catalog.TaxCode) error
	UpsertProduct(ctx context.Context, p catalog.Product) error
	UpsertService(ctx context.Context, s catalog.Service) error
	UpsertCustomer(ctx context.Context, c catalog.Customer) error
	UpsertDiscount(ctx context.Context, d discount.Discount) error
}

// Record is one sellable as it appears in seed documents and import files.
type Record struct {
	Kind    string `json:"kind" validate:"required,oneof=product service"`
	ID      string `json:"id" validate:"required,max=64"`
	Name    string `json:"name" validate:"required,max=200"`
	Code    string `json:"code" validate:"required,max=64"`
	Price   string `json:"price" validate:"required,numeric"`
	TaxCode string `json:"tax_code" validate:"required,max=64"`
	Stock   int    `json:"stock" validate:"gte=0"`
}

// Decode reads a record object. Unknown fields are skipped.
func (r *Record) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "kind":
			r.Kind, err = d.Str()
		case "id":
			r.ID, err = d.Str()
		case "name":
			r.Name, err = d.Str()
		case "code":
			r.Code, err = d.Str()
		case "price":
			r.Price, err = decimalString(d)
		case "tax_code":
			r.TaxCode, err = d.Str()
		case "stock":
			r.Stock, err = d.Int()
		default:
			return d.Skip()
		}
		return errors.Wrapf(err, "field %q", key)
	})
}

// Sellable validates r and converts it to a product or service.
func (r Record) Sellable(v *validator.Validate) (catalog.Sellable, error) {
	if err := v.Struct(r); err != nil {
		return nil, validationError(err)
	}
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return nil, errors.Wrap(err, "price")
	}
	if price.IsNegative() {
		return nil, errors.Errorf("price %s is negative", r.Price)
	}
	if !price.Equal(price.Round(2)) {
		return nil, errors.Errorf("price %s has more than 2 decimal places", r.Price)
	}

	if catalog.Kind(r.Kind) == catalog.KindService {
		return catalog.Service{ID: r.ID, Name: r.Name, Code: r.Code, Price: price, TaxCode: r.TaxCode}, nil
	}
	return catalog.Product{
		ID:      r.ID,
		Name:    r.Name,
		Code:    r.Code,
		Price:   price,
		TaxCode: r.TaxCode,
		Stock:   r.Stock,
	}, nil
}

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	fe := errs[0]
	if fe.Param() != "" {
		return errors.Errorf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return errors.Errorf("%s failed %s", fe.Field(), fe.Tag())
}

func write(ctx context.Context, w Writer, s catalog.Sellable) error {
	switch s := s.(type) {
	case catalog.Product:
		return w.UpsertProduct(ctx, s)
	case catalog.Service:
		return w.UpsertService(ctx, s)
	default:
		return errors.Errorf("unexpected sellable %T", s)
	}
}

// decimalString accepts money written either as a JSON string or a number.
func decimalString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", errors.New("expected decimal string or number")
	}
}
