package sale

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/sales-engine/internal/domain/client"
)

// ClientRef identifies the buyer either by tax id or by internal id. TaxID
// takes precedence when both are set. Both empty, or TaxID equal to
// client.AnonymousTaxID, means an anonymous sale.
type ClientRef struct {
	ID    string
	TaxID string
}

// Anonymous reports whether the reference denotes no client.
func (r ClientRef) Anonymous() bool {
	if r.TaxID != "" {
		return strings.EqualFold(r.TaxID, client.AnonymousTaxID)
	}
	return r.ID == ""
}

func (r ClientRef) String() string {
	if r.TaxID != "" {
		return r.TaxID
	}
	return r.ID
}

// LineRequest is one requested sale line.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// CreateRequest is the input of Service.Create. Prices and totals are never
// taken from the caller.
type CreateRequest struct {
	Client        ClientRef
	Date          time.Time
	PaymentMethod PaymentMethod
	Lines         []LineRequest
	CreatedBy     string
}

// Validate checks the request shape before any lookup is made.
func (r *CreateRequest) Validate() error {
	if r.Client.TaxID == "" && r.Client.ID != "" {
		if !isUUID(r.Client.ID) {
			return &ValidationError{Field: "clientId", Reason: "must be a UUID"}
		}
	}
	if r.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "required"}
	}
	if !r.PaymentMethod.Valid() {
		return &ValidationError{Field: "paymentMethod", Reason: "unsupported value " + strings.TrimSpace(string(r.PaymentMethod))}
	}
	if len(r.Lines) == 0 {
		return ErrEmptySale
	}
	for i, l := range r.Lines {
		if !isUUID(l.ProductID) {
			return &ValidationError{Field: lineField(i, "productId"), Reason: "must be a UUID"}
		}
		if l.Quantity <= 0 {
			return &ValidationError{Field: lineField(i, "quantity"), Reason: "must be greater than 0"}
		}
		if l.Quantity > MaxQuantity {
			return &ValidationError{Field: lineField(i, "quantity"), Reason: fmt.Sprintf("must not exceed %d", MaxQuantity)}
		}
	}
	return nil
}

func lineField(i int, name string) string {
	return fmt.Sprintf("items[%d].%s", i, name)
}

// isUUID accepts only the canonical 36 character form.
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
