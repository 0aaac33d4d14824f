package sale

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/sales-engine/internal/domain/discount"
	"github.com/xenking/sales-engine/internal/domain/product"
)

// Evaluator prices requested lines against the catalog and the discount
// table. It never writes.
type Evaluator struct {
	products  product.Repository
	discounts discount.Repository
}

// NewEvaluator creates an Evaluator backed by the given lookups.
func NewEvaluator(products product.Repository, discounts discount.Repository) *Evaluator {
	return &Evaluator{products: products, discounts: discounts}
}

// Evaluate prices line idx of a sale dated at date.
func (e *Evaluator) Evaluate(ctx context.Context, idx int, line LineRequest, date time.Time) (Item, error) {
	p, err := e.products.GetByID(ctx, line.ProductID)
	switch {
	case errors.Is(err, product.ErrNotFound):
		return Item{}, &ProductUnavailableError{Line: idx, ProductID: line.ProductID}
	case err != nil:
		return Item{}, errors.Wrapf(err, "get product %s", line.ProductID)
	case !p.Available():
		return Item{}, &ProductUnavailableError{Line: idx, ProductID: line.ProductID}
	}

	item := Item{
		ProductID:       line.ProductID,
		Quantity:        line.Quantity,
		UnitPrice:       p.Price.Round(2),
		DiscountApplied: decimal.Zero,
	}

	d, err := e.discounts.FindByProductID(ctx, line.ProductID)
	switch {
	case errors.Is(err, discount.ErrNotFound):
		return item, nil
	case err != nil:
		return Item{}, errors.Wrapf(err, "get discount for product %s", line.ProductID)
	}

	if d.AppliesAt(date) {
		item.DiscountApplied = d.Amount(item.LineSubtotal())
	}
	return item, nil
}

// EvaluateAll prices every line with at most limit lookups in flight. The
// result keeps request order. When several lines fail, the error of the
// lowest line index is returned.
func (e *Evaluator) EvaluateAll(ctx context.Context, lines []LineRequest, date time.Time, limit int) ([]Item, error) {
	items := make([]Item, len(lines))
	errs := make([]error, len(lines))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, l := range lines {
		g.Go(func() error {
			items[i], errs[i] = e.Evaluate(ctx, i, l, date)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}
