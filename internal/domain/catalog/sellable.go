package catalog

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind tags the variant of a Sellable.
type Kind string

const (
	KindProduct Kind = "product"
	KindService Kind = "service"
)

// Valid reports whether k is a known sellable kind.
func (k Kind) Valid() bool {
	return k == KindProduct || k == KindService
}

// SellableRef identifies a sellable by kind and ID. Two refs with the same ID
// but different kinds are different sellables.
type SellableRef struct {
	Kind Kind
	ID   string
}

// ProductRef returns a reference to the product with the given ID.
func ProductRef(id string) SellableRef { return SellableRef{Kind: KindProduct, ID: id} }

// ServiceRef returns a reference to the service with the given ID.
func ServiceRef(id string) SellableRef { return SellableRef{Kind: KindService, ID: id} }

func (r SellableRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// ParseSellableRef parses the "kind:id" form produced by String.
func ParseSellableRef(s string) (SellableRef, error) {
	kind, id, ok := strings.Cut(s, ":")
	ref := SellableRef{Kind: Kind(kind), ID: id}
	if !ok || id == "" || !ref.Kind.Valid() {
		return SellableRef{}, errors.Errorf("invalid sellable reference %q", s)
	}
	return ref, nil
}

// Sellable is the capability shared by products and services.
type Sellable interface {
	Ref() SellableRef
	Label() string
	SKU() string
	UnitPrice() decimal.Decimal
	TaxCodeID() string
}

var (
	_ Sellable = Product{}
	_ Sellable = Service{}
)

// Product is a stocked sellable.
type Product struct {
	ID      string
	Name    string
	Code    string
	Price   decimal.Decimal
	TaxCode string
	Stock   int
}

func (p Product) Ref() SellableRef           { return ProductRef(p.ID) }
func (p Product) Label() string              { return p.Name }
func (p Product) SKU() string                { return p.Code }
func (p Product) UnitPrice() decimal.Decimal { return p.Price }
func (p Product) TaxCodeID() string          { return p.TaxCode }

// Service is a non-stocked sellable such as labour or a repair fee.
type Service struct {
	ID      string
	Name    string
	Code    string
	Price   decimal.Decimal
	TaxCode string
}

func (s Service) Ref() SellableRef           { return ServiceRef(s.ID) }
func (s Service) Label() string              { return s.Name }
func (s Service) SKU() string                { return s.Code }
func (s Service) UnitPrice() decimal.Decimal { return s.Price }
func (s Service) TaxCodeID() string          { return s.TaxCode }

// Snapshot is the denormalized copy of a sellable stored on an order line so
// that later catalog edits do not change historical orders.
type Snapshot struct {
	Ref       SellableRef
	Name      string
	Code      string
	UnitPrice decimal.Decimal
	TaxCodeID string
}

// TakeSnapshot copies the line-relevant fields of s.
func TakeSnapshot(s Sellable) Snapshot {
	return Snapshot{
		Ref:       s.Ref(),
		Name:      s.Label(),
		Code:      s.SKU(),
		UnitPrice: s.UnitPrice(),
		TaxCodeID: s.TaxCodeID(),
	}
}
