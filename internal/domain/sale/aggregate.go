package sale

import "github.com/shopspring/decimal"

// Totals are the header amounts derived from a sale's lines.
type Totals struct {
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	Total         decimal.Decimal
}

// Aggregate folds priced lines into sale totals. Line discounts are already
// rounded, so the sums are exact.
func Aggregate(items []Item) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, ErrEmptySale
	}

	t := Totals{Subtotal: decimal.Zero, DiscountTotal: decimal.Zero}
	for i, it := range items {
		line := it.LineSubtotal()
		if line.GreaterThan(MaxAmount) {
			return Totals{}, &ValidationError{Field: lineField(i, "quantity"), Reason: "line amount exceeds " + MaxAmount.StringFixed(2)}
		}
		t.Subtotal = t.Subtotal.Add(line)
		t.DiscountTotal = t.DiscountTotal.Add(it.DiscountApplied)
	}
	if t.Subtotal.GreaterThan(MaxAmount) {
		return Totals{}, &ValidationError{Field: "items", Reason: "sale subtotal exceeds " + MaxAmount.StringFixed(2)}
	}
	t.Subtotal = t.Subtotal.Round(2)
	t.DiscountTotal = t.DiscountTotal.Round(2)
	t.Total = t.Subtotal.Sub(t.DiscountTotal)
	return t, nil
}
