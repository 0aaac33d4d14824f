// Command catalog-import loads product and discount feeds into the sales
// database.
//
// Product feeds are gzip-compressed JSON lines, one file per supplier. A
// product code listed by more than one feed is ambiguous and is skipped, so
// the import runs in three passes: build a bloom filter of codes per feed,
// re-scan each feed against the other filters to find the exact duplicates,
// then upsert the remaining products in batches. An optional discount feed is
// applied last; discounts whose product code is certainly unknown are
// counted without a database round trip.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/sales-engine/internal/storage/postgres"
)

// catalog is the write side of the reference data store.
type catalog interface {
	UpsertProducts(ctx context.Context, products []postgres.ProductRecord) ([]string, error)
	UpsertDiscount(ctx context.Context, d postgres.DiscountRecord) error
	EachProductCode(ctx context.Context, fn func(code string)) error
}

var _ catalog = (*postgres.CatalogRepository)(nil)

type options struct {
	feeds     []string
	discounts string
	batchSize int
	filter    filterParams
}

// report summarizes an import.
type report struct {
	Products         int
	Conflicts        []string
	Discounts        int
	UnknownDiscounts int
}

func main() {
	var (
		databaseURL string
		opts        options
		capacity    uint
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.discounts, "discounts", "", "optional gzip JSON-lines discount feed")
	flag.IntVar(&opts.batchSize, "batch-size", 500, "products per upsert batch")
	flag.UintVar(&capacity, "expected-products", 1_000_000, "expected products per feed, sizes the bloom filters")
	flag.Float64Var(&opts.filter.fpr, "bloom-fpr", 0.001, "bloom filter false positive rate")
	flag.Parse()
	opts.feeds = flag.Args()
	opts.filter.capacity = capacity

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		slog.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		slog.Error("run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rep, err := run(ctx, postgres.NewCatalogRepository(pool), opts)
	if err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed",
		slog.Int("products", rep.Products),
		slog.Int("conflicts", len(rep.Conflicts)),
		slog.Int("discounts", rep.Discounts),
		slog.Int("unknown_discounts", rep.UnknownDiscounts),
	)
}

func run(ctx context.Context, store catalog, opts options) (*report, error) {
	switch {
	case len(opts.feeds) == 0 && opts.discounts == "":
		return nil, errors.New("nothing to import: pass product feeds as arguments or --discounts")
	case len(opts.feeds) > maxFeeds:
		return nil, errors.Errorf("at most %d product feeds, got %d", maxFeeds, len(opts.feeds))
	}
	if opts.batchSize <= 0 {
		opts.batchSize = 500
	}
	rep := &report{}

	var known *bloom.BloomFilter
	if len(opts.feeds) > 0 {
		slog.Info("pass 1: building bloom filters", slog.Int("feeds", len(opts.feeds)))
		filters, err := buildFilters(ctx, opts.feeds, opts.filter)
		if err != nil {
			return nil, errors.Wrap(err, "build bloom filters")
		}

		slog.Info("pass 2: finding duplicate codes")
		conflicts, err := findConflicts(ctx, opts.feeds, filters)
		if err != nil {
			return nil, errors.Wrap(err, "find duplicate codes")
		}
		rep.Conflicts = sortedKeys(conflicts)
		for _, code := range rep.Conflicts {
			slog.Warn("skipping product listed by several feeds", slog.String("code", code))
		}

		slog.Info("pass 3: writing products")
		if rep.Products, err = writeProducts(ctx, store, opts, conflicts); err != nil {
			return nil, errors.Wrap(err, "write products")
		}

		known = filters[0].Copy()
		for _, f := range filters[1:] {
			if err := known.Merge(f); err != nil {
				return nil, errors.Wrap(err, "merge filters")
			}
		}
	}

	if opts.discounts != "" {
		if known == nil {
			known = bloom.NewWithEstimates(opts.filter.capacity, opts.filter.fpr)
		}
		if err := store.EachProductCode(ctx, func(code string) { known.AddString(code) }); err != nil {
			return nil, errors.Wrap(err, "load stored product codes")
		}
		if err := writeDiscounts(ctx, store, opts.discounts, known, rep); err != nil {
			return nil, errors.Wrap(err, "write discounts")
		}
	}
	return rep, nil
}

func writeProducts(ctx context.Context, store catalog, opts options, skip map[string]struct{}) (int, error) {
	var (
		written int
		batch   = make([]postgres.ProductRecord, 0, opts.batchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := store.UpsertProducts(ctx, batch); err != nil {
			return err
		}
		written += len(batch)
		batch = batch[:0]
		slog.Info("write progress", slog.Int("written", written))
		return nil
	}

	for _, path := range opts.feeds {
		if err := streamLines(ctx, path, func(line []byte) error {
			p, err := decodeProduct(line)
			if err != nil {
				return err
			}
			if _, dup := skip[p.Code]; dup {
				return nil
			}
			if p.ID == "" {
				p.ID = uuid.NewString()
			}
			batch = append(batch, p)
			if len(batch) == opts.batchSize {
				return flush()
			}
			return nil
		}); err != nil {
			return written, err
		}
	}
	return written, flush()
}

func writeDiscounts(ctx context.Context, store catalog, path string, known *bloom.BloomFilter, rep *report) error {
	return streamLines(ctx, path, func(line []byte) error {
		d, err := decodeDiscount(line)
		if err != nil {
			return err
		}
		if !known.TestString(d.ProductCode) {
			rep.UnknownDiscounts++
			return nil
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		switch err := store.UpsertDiscount(ctx, d); {
		case errors.Is(err, postgres.ErrUnknownProductCode):
			rep.UnknownDiscounts++
		case err != nil:
			return err
		default:
			rep.Discounts++
		}
		return nil
	})
}
