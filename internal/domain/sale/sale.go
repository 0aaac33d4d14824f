package sale

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Storage limits: quantity is an INTEGER column and amounts are NUMERIC(12,2).
const MaxQuantity = math.MaxInt32

// MaxAmount is the largest line or sale amount that can be stored.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// PaymentMethod is the closed set of settlement methods a sale may use.
type PaymentMethod string

// PaymentCash is the only supported method today.
const PaymentCash PaymentMethod = "cash"

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash:
		return true
	default:
		return false
	}
}

// Sale is a committed sale header together with its ordered lines.
type Sale struct {
	ID            string
	ClientID      *string
	Date          time.Time
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	Total         decimal.Decimal
	PaymentMethod PaymentMethod
	IsCanceled    bool
	CreatedBy     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Items         []Item
}

// Item is a single sale line. UnitPrice is the catalog price at sale time.
type Item struct {
	ID              string
	SaleID          string
	ProductID       string
	Quantity        int
	UnitPrice       decimal.Decimal
	DiscountApplied decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LineSubtotal returns UnitPrice times Quantity.
func (it Item) LineSubtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Page bounds a List call.
type Page struct {
	Skip int
	Take int
}

// Repository persists sales. Create writes the header and every line in one
// transaction and fills in the system timestamps.
type Repository interface {
	Create(ctx context.Context, s *Sale) error
	Get(ctx context.Context, id string) (*Sale, error)
	List(ctx context.Context, page Page) ([]Sale, error)
	Cancel(ctx context.Context, id string) error
}
