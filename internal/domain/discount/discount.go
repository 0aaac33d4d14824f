// Package discount models per-product percentage discounts bounded by a
// validity window.
package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a product has no discount record.
var ErrNotFound = errors.New("discount not found")

var hundred = decimal.NewFromInt(100)

// Discount is a percentage rule attached to exactly one product.
type Discount struct {
	ID         string
	Code       string
	ProductID  string
	Percentage decimal.Decimal
	ValidFrom  time.Time
	ValidTo    *time.Time
	IsActive   bool
}

// AppliesAt reports whether the discount is eligible for a sale dated at.
// Both window bounds are inclusive and an absent ValidTo leaves the window
// open-ended.
func (d *Discount) AppliesAt(at time.Time) bool {
	if d == nil || !d.IsActive {
		return false
	}
	if at.Before(d.ValidFrom) {
		return false
	}
	if d.ValidTo != nil && at.After(*d.ValidTo) {
		return false
	}
	return true
}

// Amount returns the discount for a line subtotal, rounded to cents. The
// percentage is clamped to [0, 100] so the result never exceeds the subtotal.
func (d *Discount) Amount(subtotal decimal.Decimal) decimal.Decimal {
	pct := decimal.Min(decimal.Max(d.Percentage, decimal.Zero), hundred)
	amount := subtotal.Mul(pct).Div(hundred).Round(2)
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// Repository provides lookup of the discount attached to a product.
type Repository interface {
	FindByProductID(ctx context.Context, productID string) (*Discount, error)
}
