package handler

import (
	"bytes"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// decoder is implemented by request bodies.
type decoder interface {
	Decode(d *jx.Decoder) error
}

// badRequestError is a malformed or invalid request body.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// decodeBody reads and validates the JSON request body into dst. An empty
// body decodes as an empty object.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst decoder) error {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return &badRequestError{msg: "read body: " + err.Error()}
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := dst.Decode(jx.DecodeBytes(raw)); err != nil {
			return &badRequestError{msg: "invalid json: " + err.Error()}
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationFailure(err)
	}
	return nil
}

func validationFailure(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &badRequestError{msg: err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Namespace()+" "+validationMessage(fe))
	}
	return &badRequestError{msg: "validation failed: " + strings.Join(msgs, "; ")}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " items"
	case "max":
		return "must be at most " + fe.Param() + " long"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "numeric":
		return "must be a decimal number"
	case "unique":
		return "must not contain duplicates"
	}
	return "is invalid"
}

// decimalString reads a JSON string or number and returns its literal text.
// Money travels as strings; bare numbers are accepted for convenience.
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

// parseDecimal converts a validated numeric string. Money and discount
// values are stored with cent precision.
func parseDecimal(field, v string) (decimal.Decimal, error) {
	dec, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, &badRequestError{msg: field + " must be a decimal number"}
	}
	if !dec.Equal(dec.Round(2)) {
		return decimal.Zero, &badRequestError{msg: field + " must have at most 2 decimal places"}
	}
	return dec, nil
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	out := []string{}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

type createOrderRequest struct {
	CustomerID string `json:"customer_id" validate:"max=64"`
}

func (r *createOrderRequest) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "customer_id":
			r.CustomerID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

type addLineRequest struct {
	Kind       string `json:"kind" validate:"required,oneof=product service"`
	SellableID string `json:"sellable_id" validate:"required,max=64"`
	Quantity   int    `json:"quantity" validate:"gt=0"`
}

func (r *addLineRequest) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "kind":
			r.Kind, err = d.Str()
		case "sellable_id":
			r.SellableID, err = d.Str()
		case "quantity":
			r.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
}

type updateLineRequest struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

func (r *updateLineRequest) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "quantity":
			r.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
}

// assignCustomerRequest clears the customer when CustomerID is empty.
type assignCustomerRequest struct {
	CustomerID string `json:"customer_id" validate:"max=64"`
}

func (r *assignCustomerRequest) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "customer_id":
			if d.Next() == jx.Null {
				return d.Null()
			}
			r.CustomerID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

type discountRequest struct {
	Name    string   `json:"name" validate:"required,max=120"`
	Type    string   `json:"type" validate:"required,oneof=percentage fixed_amount fixed_per_item"`
	Value   string   `json:"value" validate:"required,numeric"`
	LineIDs []string `json:"line_ids" validate:"unique,dive,required"`
}

func (r *discountRequest) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			r.Name, err = d.Str()
		case "type":
			r.Type, err = d.Str()
		case "value":
			r.Value, err = decimalString(d)
		case "line_ids":
			r.LineIDs, err = decodeStrings(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

type overrideRequest struct {
	Value string `json:"value" validate:"required,numeric"`
}

func (r *overrideRequest) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "value":
			r.Value, err = decimalString(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

type tenderRequest struct {
	Method string `json:"method" validate:"required,oneof=cash card other"`
	Amount string `json:"amount" validate:"required,numeric"`
}

type completeRequest struct {
	Payments []tenderRequest `json:"payments" validate:"required,min=1,dive"`
}

func (r *completeRequest) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if key != "payments" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			var t tenderRequest
			if err := d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "method":
					t.Method, err = d.Str()
				case "amount":
					t.Amount, err = decimalString(d)
				default:
					err = d.Skip()
				}
				return err
			}); err != nil {
				return err
			}
			r.Payments = append(r.Payments, t)
			return nil
		})
	})
}

type refundLineRequest struct {
	LineID   string `json:"line_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
	Restock  bool   `json:"restock"`
}

type refundRequest struct {
	Reason string              `json:"reason" validate:"required,max=500"`
	Lines  []refundLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (r *refundRequest) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "reason":
			var err error
			r.Reason, err = d.Str()
			return err
		case "lines":
			return d.Arr(func(d *jx.Decoder) error {
				var l refundLineRequest
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "line_id":
						l.LineID, err = d.Str()
					case "quantity":
						l.Quantity, err = d.Int()
					case "restock":
						l.Restock, err = d.Bool()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				r.Lines = append(r.Lines, l)
				return nil
			})
		default:
			return d.Skip()
		}
	})
}
