package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item as seen by the sale engine. Sales only read it.
type Product struct {
	ID        string
	Code      string
	Name      string
	Price     decimal.Decimal
	Unit      string
	IsDeleted bool
}

// Available reports whether the product may be sold.
func (p *Product) Available() bool {
	return p != nil && !p.IsDeleted
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
}
