package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sales-engine/internal/domain/client"
)

const (
	findClientByIDSQL = `SELECT id, code, name, tax_id, is_deleted
		FROM clients WHERE id = $1`

	findClientByTaxIDSQL = `SELECT id, code, name, tax_id, is_deleted
		FROM clients WHERE tax_id = $1`
)

var _ client.Repository = (*ClientRepository)(nil)

// ClientRepository implements client.Repository backed by PostgreSQL.
type ClientRepository struct {
	pool *pgxpool.Pool
}

// NewClientRepository returns a ClientRepository that uses the given pool.
func NewClientRepository(pool *pgxpool.Pool) *ClientRepository {
	return &ClientRepository{pool: pool}
}

// FindByID returns the client with the given id.
func (r *ClientRepository) FindByID(ctx context.Context, id string) (*client.Client, error) {
	return r.findOne(ctx, findClientByIDSQL, id)
}

// FindByTaxID returns the client registered under taxID.
func (r *ClientRepository) FindByTaxID(ctx context.Context, taxID string) (*client.Client, error) {
	return r.findOne(ctx, findClientByTaxIDSQL, taxID)
}

func (r *ClientRepository) findOne(ctx context.Context, query, arg string) (*client.Client, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "find client %q", arg)
	}

	c, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (client.Client, error) {
		var c client.Client
		err := row.Scan(&c.ID, &c.Code, &c.Name, &c.TaxID, &c.IsDeleted)
		return c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, client.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find client %q", arg)
	}
	return &c, nil
}
