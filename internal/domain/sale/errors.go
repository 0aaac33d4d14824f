package sale

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for sale operations.
var (
	ErrEmptySale = errors.New("sale has no items")
	ErrNotFound  = errors.New("sale not found")
)

// ValidationError reports a malformed create request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProductUnavailableError indicates a line references a product that is
// missing or soft-deleted. Line is zero-based.
type ProductUnavailableError struct {
	Line      int
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("line %d: product %s is not available", e.Line, e.ProductID)
}

// ClientNotFoundError indicates the client reference did not resolve.
type ClientNotFoundError struct {
	Ref string
}

func (e *ClientNotFoundError) Error() string {
	return fmt.Sprintf("client %q not found", e.Ref)
}

// PersistenceError wraps a failure of the sale write transaction. Referential
// is set when a foreign key rejected the write.
type PersistenceError struct {
	Op          string
	Referential bool
	Err         error
}

func (e *PersistenceError) Error() string {
	if e.Referential {
		return fmt.Sprintf("%s: referential integrity: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
