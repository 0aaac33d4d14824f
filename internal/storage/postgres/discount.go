package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sales-engine/internal/domain/discount"
)

const findDiscountByProductSQL = `SELECT id, code, product_id, percentage, valid_from, valid_to, is_active
	FROM discounts WHERE product_id = $1`

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// FindByProductID returns the discount attached to a product whether or not
// it is active; eligibility is decided by the caller.
func (r *DiscountRepository) FindByProductID(ctx context.Context, productID string) (*discount.Discount, error) {
	rows, err := r.pool.Query(ctx, findDiscountByProductSQL, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "find discount for product %q", productID)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find discount for product %q", productID)
	}
	return &d, nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var d discount.Discount
	err := row.Scan(&d.ID, &d.Code, &d.ProductID, &d.Percentage, &d.ValidFrom, &d.ValidTo, &d.IsActive)
	if d.ValidTo != nil {
		to := d.ValidTo.UTC()
		d.ValidTo = &to
	}
	d.ValidFrom = d.ValidFrom.UTC()
	return d, err
}
