package client

import (
	"context"

	"github.com/go-faster/errors"
)

// AnonymousTaxID is the tax id that denotes a walk-in buyer with no client
// record.
const AnonymousTaxID = "CF"

// ErrNotFound is returned when no client matches a lookup.
var ErrNotFound = errors.New("client not found")

// Client is a buyer registered in the back office.
type Client struct {
	ID        string
	Code      string
	Name      string
	TaxID     string
	IsDeleted bool
}

// Repository resolves clients by internal id or by tax id.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Client, error)
	FindByTaxID(ctx context.Context, taxID string) (*Client, error)
}
