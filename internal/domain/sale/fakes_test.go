package sale

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/sales-engine/internal/domain/client"
	"github.com/xenking/sales-engine/internal/domain/discount"
	"github.com/xenking/sales-engine/internal/domain/product"
)

// --- In-memory fakes ---

type fakeProducts struct {
	byID  map[string]*product.Product
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type fakeDiscounts struct {
	byProduct map[string]*discount.Discount
	err       error
}

func (f *fakeDiscounts) FindByProductID(_ context.Context, productID string) (*discount.Discount, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.byProduct[productID]
	if !ok {
		return nil, discount.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

type fakeClients struct {
	byID map[string]*client.Client
}

func (f *fakeClients) FindByID(_ context.Context, id string) (*client.Client, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, client.ErrNotFound
	}
	return c, nil
}

func (f *fakeClients) FindByTaxID(_ context.Context, taxID string) (*client.Client, error) {
	for _, c := range f.byID {
		if c.TaxID == taxID {
			return c, nil
		}
	}
	return nil, client.ErrNotFound
}

type fakeSales struct {
	mu        sync.Mutex
	rows      map[string]Sale
	createErr error
	getErr    error
	creates   int
	now       func() time.Time
}

func newFakeSales() *fakeSales {
	return &fakeSales{
		rows: make(map[string]Sale),
		now:  func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func (f *fakeSales) Create(_ context.Context, s *Sale) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	now := f.now()
	s.CreatedAt, s.UpdatedAt = now, now
	for i := range s.Items {
		s.Items[i].CreatedAt, s.Items[i].UpdatedAt = now, now
	}
	cp := *s
	cp.Items = append([]Item(nil), s.Items...)
	f.rows[s.ID] = cp
	return nil
}

func (f *fakeSales) Get(_ context.Context, id string) (*Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.Items = append([]Item(nil), s.Items...)
	return &s, nil
}

func (f *fakeSales) List(_ context.Context, page Page) ([]Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]Sale, 0, len(f.rows))
	for _, s := range f.rows {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Date.Equal(all[j].Date) {
			return all[i].ID < all[j].ID
		}
		return all[i].Date.After(all[j].Date)
	})
	if page.Skip >= len(all) {
		return []Sale{}, nil
	}
	all = all[page.Skip:]
	if page.Take < len(all) {
		all = all[:page.Take]
	}
	return all, nil
}

func (f *fakeSales) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return ErrNotFound
	}
	if !s.IsCanceled {
		s.IsCanceled = true
		s.UpdatedAt = s.UpdatedAt.Add(time.Minute)
		f.rows[id] = s
	}
	return nil
}

// --- Helpers ---

const (
	notebookID = "4f1c2a7e-6b0d-4b55-9a57-1f0c9e7d2a01"
	penID      = "4f1c2a7e-6b0d-4b55-9a57-1f0c9e7d2a02"
	staplerID  = "4f1c2a7e-6b0d-4b55-9a57-1f0c9e7d2a03"
	acmeID     = "9b2e7d10-3c4f-4e8a-8d21-5a6b7c8d9e01"
	missingID  = "00000000-0000-4000-8000-000000000000"
)

var today = time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newCatalog() *fakeProducts {
	return &fakeProducts{byID: map[string]*product.Product{
		notebookID: {ID: notebookID, Code: "PRD001", Name: "Basic Notebook", Price: money("5.00"), Unit: "piece"},
		penID:      {ID: penID, Code: "PRD002", Name: "Ballpoint Pen", Price: money("1.00"), Unit: "piece"},
		staplerID:  {ID: staplerID, Code: "PRD003", Name: "Stapler", Price: money("5.99"), Unit: "piece", IsDeleted: true},
	}}
}

func tenPercentOn(productID string, from time.Time, to *time.Time) *fakeDiscounts {
	return &fakeDiscounts{byProduct: map[string]*discount.Discount{
		productID: {
			ID:         "d1",
			Code:       "DISC10",
			ProductID:  productID,
			Percentage: money("10"),
			ValidFrom:  from,
			ValidTo:    to,
			IsActive:   true,
		},
	}}
}

func newClients() *fakeClients {
	return &fakeClients{byID: map[string]*client.Client{
		acmeID: {ID: acmeID, Code: "CLI001", Name: "Acme Corporation", TaxID: "900123456"},
	}}
}

func ptr[T any](v T) *T { return &v }
