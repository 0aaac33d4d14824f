package sale

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/sales-engine/internal/domain/client"
	"github.com/xenking/sales-engine/internal/domain/discount"
	"github.com/xenking/sales-engine/internal/domain/product"
)

const instrumentationName = "github.com/xenking/sales-engine/internal/domain/sale"

// Defaults for Service options.
const (
	DefaultEvalConcurrency = 4
	DefaultPageSize        = 100
	MaxPageSize            = 500
)

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider sets the tracer provider used for service spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider used for sale counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithEvalConcurrency bounds concurrent line lookups within one Create.
func WithEvalConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.evalConcurrency = n
		}
	}
}

// WithPageLimits sets the default and maximum List page sizes.
func WithPageLimits(def, maxTake int) Option {
	return func(s *Service) {
		if def > 0 {
			s.defaultPage = def
		}
		if maxTake > 0 {
			s.maxPage = maxTake
		}
	}
}

// Service is the sale lifecycle controller: it creates, cancels and reads
// sales.
type Service struct {
	clients   client.Repository
	evaluator *Evaluator
	sales     Repository

	evalConcurrency int
	defaultPage     int
	maxPage         int

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	created        metric.Int64Counter
	canceled       metric.Int64Counter
	rejected       metric.Int64Counter
}

// NewService creates a sale Service with the required domain dependencies.
func NewService(
	products product.Repository,
	discounts discount.Repository,
	clients client.Repository,
	sales Repository,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		clients:         clients,
		evaluator:       NewEvaluator(products, discounts),
		sales:           sales,
		evalConcurrency: DefaultEvalConcurrency,
		defaultPage:     DefaultPageSize,
		maxPage:         MaxPageSize,
		tracerProvider:  otel.GetTracerProvider(),
		meterProvider:   otel.GetMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.defaultPage > s.maxPage {
		s.defaultPage = s.maxPage
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	meter := s.meterProvider.Meter(instrumentationName)

	var err error
	if s.created, err = meter.Int64Counter("sales.created",
		metric.WithDescription("Number of committed sales"),
	); err != nil {
		return nil, errors.Wrap(err, "create sales.created counter")
	}
	if s.canceled, err = meter.Int64Counter("sales.canceled",
		metric.WithDescription("Number of cancel requests that succeeded"),
	); err != nil {
		return nil, errors.Wrap(err, "create sales.canceled counter")
	}
	if s.rejected, err = meter.Int64Counter("sales.rejected",
		metric.WithDescription("Number of create requests that failed"),
	); err != nil {
		return nil, errors.Wrap(err, "create sales.rejected counter")
	}

	return s, nil
}

// Create validates the request, resolves the client, prices every line,
// writes the sale atomically and returns the committed record as read back
// from storage. When only the read back fails, the written record is
// returned instead.
func (s *Service) Create(ctx context.Context, req CreateRequest) (_ *Sale, rerr error) {
	ctx, span := s.tracer.Start(ctx, "sale.Create",
		trace.WithAttributes(attribute.Int("sale.lines", len(req.Lines))),
	)
	written := false
	defer func() {
		if rerr != nil {
			if !written {
				s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectReason(rerr))))
			}
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	clientID, err := s.resolveClient(ctx, req.Client)
	if err != nil {
		return nil, err
	}

	items, err := s.evaluator.EvaluateAll(ctx, req.Lines, req.Date, s.evalConcurrency)
	if err != nil {
		return nil, err
	}

	totals, err := Aggregate(items)
	if err != nil {
		return nil, err
	}

	sl := &Sale{
		ID:            uuid.NewString(),
		ClientID:      clientID,
		Date:          req.Date.UTC(),
		Subtotal:      totals.Subtotal,
		DiscountTotal: totals.DiscountTotal,
		Total:         totals.Total,
		PaymentMethod: req.PaymentMethod,
		Items:         items,
	}
	if req.CreatedBy != "" {
		createdBy := req.CreatedBy
		sl.CreatedBy = &createdBy
	}
	for i := range sl.Items {
		sl.Items[i].ID = uuid.NewString()
		sl.Items[i].SaleID = sl.ID
	}

	if err := s.sales.Create(ctx, sl); err != nil {
		var pe *PersistenceError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "create sale", Err: err}
	}
	written = true
	span.SetAttributes(attribute.String("sale.id", sl.ID))
	s.created.Add(ctx, 1)

	committed, err := s.sales.Get(ctx, sl.ID)
	if err != nil {
		// The sale is committed; a failed read back is not a failed create.
		span.AddEvent("read back failed", trace.WithAttributes(attribute.String("error", err.Error())))
		return sl, nil
	}
	return committed, nil
}

func (s *Service) resolveClient(ctx context.Context, ref ClientRef) (*string, error) {
	if ref.Anonymous() {
		return nil, nil
	}

	var (
		c   *client.Client
		err error
	)
	if ref.TaxID != "" {
		c, err = s.clients.FindByTaxID(ctx, ref.TaxID)
	} else {
		c, err = s.clients.FindByID(ctx, ref.ID)
	}
	switch {
	case errors.Is(err, client.ErrNotFound):
		return nil, &ClientNotFoundError{Ref: ref.String()}
	case err != nil:
		return nil, errors.Wrapf(err, "resolve client %s", ref)
	case c.IsDeleted:
		return nil, &ClientNotFoundError{Ref: ref.String()}
	}

	id := c.ID
	return &id, nil
}

// Cancel marks a sale canceled. Canceling an already canceled sale succeeds
// without changes.
func (s *Service) Cancel(ctx context.Context, id string) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "sale.Cancel", trace.WithAttributes(attribute.String("sale.id", id)))
	defer func() {
		if rerr != nil && !errors.Is(rerr, ErrNotFound) {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if !isUUID(id) {
		return ErrNotFound
	}
	if err := s.sales.Cancel(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrapf(err, "cancel sale %s", id)
	}
	s.canceled.Add(ctx, 1)
	return nil
}

// Get returns a sale with its lines.
func (s *Service) Get(ctx context.Context, id string) (*Sale, error) {
	ctx, span := s.tracer.Start(ctx, "sale.Get", trace.WithAttributes(attribute.String("sale.id", id)))
	defer span.End()

	if !isUUID(id) {
		return nil, ErrNotFound
	}
	sl, err := s.sales.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, errors.Wrapf(err, "get sale %s", id)
	}
	return sl, nil
}

// Items returns the lines of a sale in their original order.
func (s *Service) Items(ctx context.Context, id string) ([]Item, error) {
	sl, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sl.Items, nil
}

// List returns sales ordered by date descending, newest first.
func (s *Service) List(ctx context.Context, page Page) ([]Sale, error) {
	page = s.normalizePage(page)

	ctx, span := s.tracer.Start(ctx, "sale.List", trace.WithAttributes(
		attribute.Int("page.skip", page.Skip),
		attribute.Int("page.take", page.Take),
	))
	defer span.End()

	sales, err := s.sales.List(ctx, page)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "list sales")
	}
	return sales, nil
}

func (s *Service) normalizePage(p Page) Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	switch {
	case p.Take <= 0:
		p.Take = s.defaultPage
	case p.Take > s.maxPage:
		p.Take = s.maxPage
	}
	return p
}

func rejectReason(err error) string {
	var (
		ve  *ValidationError
		pue *ProductUnavailableError
		cne *ClientNotFoundError
		pe  *PersistenceError
	)
	switch {
	case errors.Is(err, ErrEmptySale):
		return "empty"
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &pue):
		return "product_unavailable"
	case errors.As(err, &cne):
		return "client_not_found"
	case errors.As(err, &pe):
		return "persistence"
	default:
		return "internal"
	}
}
