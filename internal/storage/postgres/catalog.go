package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	upsertProductSQL = `INSERT INTO products (id, code, name, description, price, unit, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description, price = EXCLUDED.price,
		    unit = EXCLUDED.unit, is_deleted = EXCLUDED.is_deleted, updated_at = now()
		RETURNING id`

	upsertClientSQL = `INSERT INTO clients (id, code, name, tax_id, email, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name, tax_id = EXCLUDED.tax_id, email = EXCLUDED.email,
		    phone = EXCLUDED.phone, is_deleted = FALSE, updated_at = now()
		RETURNING id`

	upsertDiscountSQL = `INSERT INTO discounts (id, code, product_id, percentage, valid_from, valid_to, is_active)
		SELECT $1::uuid, $2::text, p.id, $4::numeric, $5::timestamptz, $6::timestamptz, $7::boolean
		FROM products p WHERE p.code = $3
		ON CONFLICT (product_id) DO UPDATE
		SET code = EXCLUDED.code, percentage = EXCLUDED.percentage, valid_from = EXCLUDED.valid_from,
		    valid_to = EXCLUDED.valid_to, is_active = EXCLUDED.is_active, updated_at = now()`

	productCodesSQL = `SELECT code FROM products`
)

// ErrUnknownProductCode is returned by UpsertDiscount when no product has
// the referenced code.
var ErrUnknownProductCode = errors.New("unknown product code")

// ProductRecord is a catalog product as loaded by seeding and feed import.
type ProductRecord struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Unit        string          `json:"unit"`
	IsDeleted   bool            `json:"isDeleted"`
}

// ClientRecord is a client as loaded by seeding.
type ClientRecord struct {
	ID    string
	Code  string
	Name  string
	TaxID string
	Email string
	Phone string
}

// DiscountRecord attaches a percentage discount to the product with
// ProductCode.
type DiscountRecord struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	ProductCode string          `json:"productCode"`
	Percentage  decimal.Decimal `json:"percentage"`
	ValidFrom   time.Time       `json:"validFrom"`
	ValidTo     *time.Time      `json:"validTo"`
	IsActive    bool            `json:"isActive"`
}

// CatalogRepository writes reference data consumed by the sale engine. The
// engine itself never calls it.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// UpsertProducts inserts or updates products keyed by code in a single
// batch and returns the stored ids in input order.
func (r *CatalogRepository) UpsertProducts(ctx context.Context, products []ProductRecord) ([]string, error) {
	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(upsertProductSQL, p.ID, p.Code, p.Name, nullable(p.Description), p.Price, p.Unit, p.IsDeleted)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	ids := make([]string, len(products))
	for i, p := range products {
		if err := br.QueryRow().Scan(&ids[i]); err != nil {
			return nil, errors.Wrapf(err, "upsert product %s", p.Code)
		}
	}
	return ids, nil
}

// UpsertClient inserts or updates a client keyed by code and returns its id.
func (r *CatalogRepository) UpsertClient(ctx context.Context, c ClientRecord) (string, error) {
	var id string
	if err := r.pool.QueryRow(ctx, upsertClientSQL,
		c.ID, c.Code, c.Name, c.TaxID, nullable(c.Email), nullable(c.Phone),
	).Scan(&id); err != nil {
		return "", errors.Wrapf(err, "upsert client %s", c.Code)
	}
	return id, nil
}

// UpsertDiscount inserts or replaces the discount of the product with
// d.ProductCode.
func (r *CatalogRepository) UpsertDiscount(ctx context.Context, d DiscountRecord) error {
	tag, err := r.pool.Exec(ctx, upsertDiscountSQL,
		d.ID, d.Code, d.ProductCode, d.Percentage, d.ValidFrom, d.ValidTo, d.IsActive,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert discount %s", d.Code)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrUnknownProductCode, "upsert discount %s for %s", d.Code, d.ProductCode)
	}
	return nil
}

// EachProductCode calls fn for every product code already stored.
func (r *CatalogRepository) EachProductCode(ctx context.Context, fn func(code string)) error {
	rows, err := r.pool.Query(ctx, productCodesSQL)
	if err != nil {
		return errors.Wrap(err, "query product codes")
	}
	var code string
	_, err = pgx.ForEachRow(rows, []any{&code}, func() error {
		fn(code)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "scan product codes")
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
