package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sales-engine/internal/domain/sale"
)

const (
	insertSaleSQL = `INSERT INTO sales
		(id, client_id, date, subtotal, discount_total, total, payment_method, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	insertSaleItemSQL = `INSERT INTO sale_items
		(id, sale_id, line_no, product_id, quantity, unit_price, discount_applied)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	saleColumns = `id, client_id, date, subtotal, discount_total, total, payment_method,
		is_canceled, created_by, created_at, updated_at`

	getSaleSQL = `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`

	listSalesSQL = `SELECT ` + saleColumns + ` FROM sales
		ORDER BY date DESC, id
		OFFSET $1 LIMIT $2`

	itemColumns = `id, sale_id, product_id, quantity, unit_price, discount_applied, created_at, updated_at`

	itemsBySaleSQL = `SELECT ` + itemColumns + ` FROM sale_items
		WHERE sale_id = $1 ORDER BY line_no`

	itemsBySalesSQL = `SELECT ` + itemColumns + ` FROM sale_items
		WHERE sale_id = ANY($1::text[]::uuid[]) ORDER BY sale_id, line_no`

	// Re-canceling leaves updated_at untouched.
	cancelSaleSQL = `UPDATE sales
		SET is_canceled = TRUE,
		    updated_at = CASE WHEN is_canceled THEN updated_at ELSE now() END
		WHERE id = $1`
)

var _ sale.Repository = (*SaleRepository)(nil)

// SaleRepository implements sale.Repository backed by PostgreSQL. It is the
// only writer of the sales and sale_items tables.
type SaleRepository struct {
	pool *pgxpool.Pool
}

// NewSaleRepository returns a SaleRepository that uses the given pool.
func NewSaleRepository(pool *pgxpool.Pool) *SaleRepository {
	return &SaleRepository{pool: pool}
}

// Create inserts the sale header and all its lines in one transaction. Any
// failure rolls back every row. On success the system timestamps are copied
// back into s.
func (r *SaleRepository) Create(ctx context.Context, s *sale.Sale) error {
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, insertSaleSQL,
			s.ID, s.ClientID, s.Date, s.Subtotal, s.DiscountTotal, s.Total,
			string(s.PaymentMethod), s.CreatedBy,
		).Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
			return wrapWriteError("insert sale", err)
		}

		batch := &pgx.Batch{}
		for i, it := range s.Items {
			batch.Queue(insertSaleItemSQL,
				it.ID, s.ID, i, it.ProductID, it.Quantity, it.UnitPrice, it.DiscountApplied,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return wrapWriteError("insert sale items", err)
		}
		return nil
	})
	if err != nil {
		var pe *sale.PersistenceError
		if errors.As(err, &pe) {
			return err
		}
		return &sale.PersistenceError{Op: "create sale", Err: err}
	}

	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	// now() is fixed for the transaction, so every line shares the header's
	// timestamps.
	for i := range s.Items {
		s.Items[i].SaleID = s.ID
		s.Items[i].CreatedAt = s.CreatedAt
		s.Items[i].UpdatedAt = s.UpdatedAt
	}
	return nil
}

// Get returns a sale with its lines in line order.
func (r *SaleRepository) Get(ctx context.Context, id string) (*sale.Sale, error) {
	rows, err := r.pool.Query(ctx, getSaleSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get sale %q", id)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sale.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get sale %q", id)
	}

	rows, err = r.pool.Query(ctx, itemsBySaleSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get items of sale %q", id)
	}
	s.Items, err = pgx.CollectRows(rows, scanSaleItem)
	if err != nil {
		return nil, errors.Wrapf(err, "get items of sale %q", id)
	}
	return &s, nil
}

// List returns a page of sales, newest first, each with its lines.
func (r *SaleRepository) List(ctx context.Context, page sale.Page) ([]sale.Sale, error) {
	rows, err := r.pool.Query(ctx, listSalesSQL, page.Skip, page.Take)
	if err != nil {
		return nil, errors.Wrap(err, "list sales")
	}
	sales, err := pgx.CollectRows(rows, scanSale)
	if err != nil {
		return nil, errors.Wrap(err, "list sales")
	}
	if len(sales) == 0 {
		return sales, nil
	}

	ids := make([]string, len(sales))
	index := make(map[string]int, len(sales))
	for i, s := range sales {
		ids[i] = s.ID
		index[s.ID] = i
		sales[i].Items = []sale.Item{}
	}

	rows, err = r.pool.Query(ctx, itemsBySalesSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "list sale items")
	}
	items, err := pgx.CollectRows(rows, scanSaleItem)
	if err != nil {
		return nil, errors.Wrap(err, "list sale items")
	}
	for _, it := range items {
		i := index[it.SaleID]
		sales[i].Items = append(sales[i].Items, it)
	}
	return sales, nil
}

// Cancel sets the cancellation flag. It returns sale.ErrNotFound when no
// sale has the given id.
func (r *SaleRepository) Cancel(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, cancelSaleSQL, id)
	if err != nil {
		return errors.Wrapf(err, "cancel sale %q", id)
	}
	if tag.RowsAffected() == 0 {
		return sale.ErrNotFound
	}
	return nil
}

func scanSale(row pgx.CollectableRow) (sale.Sale, error) {
	var (
		s  sale.Sale
		pm string
	)
	err := row.Scan(
		&s.ID, &s.ClientID, &s.Date, &s.Subtotal, &s.DiscountTotal, &s.Total, &pm,
		&s.IsCanceled, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
	)
	s.PaymentMethod = sale.PaymentMethod(pm)
	s.Date = s.Date.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, err
}

func scanSaleItem(row pgx.CollectableRow) (sale.Item, error) {
	var it sale.Item
	err := row.Scan(
		&it.ID, &it.SaleID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.DiscountApplied,
		&it.CreatedAt, &it.UpdatedAt,
	)
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = it.UpdatedAt.UTC()
	return it, err
}

func wrapWriteError(op string, err error) error {
	return &sale.PersistenceError{
		Op:          op,
		Referential: pgErrorCode(err) == codeForeignKeyViolation,
		Err:         err,
	}
}
