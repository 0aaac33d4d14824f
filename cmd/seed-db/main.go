// Command seed-db loads demo reference data and an API key into the sales
// database.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/sales-engine/internal/domain/auth"
	"github.com/xenking/sales-engine/internal/storage/postgres"
)

var defaultProducts = []postgres.ProductRecord{
	{Code: "PRD001", Name: "Basic Notebook", Description: "A4 notebook, 100 sheets", Price: decimal.RequireFromString("2.50"), Unit: "piece"},
	{Code: "PRD002", Name: "Ballpoint Pen", Description: "Blue ink", Price: decimal.RequireFromString("1.00"), Unit: "piece"},
	{Code: "PRD003", Name: "Stapler", Description: "Desktop stapler", Price: decimal.RequireFromString("5.99"), Unit: "piece"},
}

var defaultClients = []postgres.ClientRecord{
	{Code: "CLI001", Name: "Acme Corporation", TaxID: "900123456", Email: "billing@acme.example"},
	{Code: "CLI002", Name: "Global Enterprises", TaxID: "900654321", Email: "accounts@global.example"},
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
		discountDays int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "optional JSON array of products replacing the built-in catalog")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or SALES_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SALES_API_KEY_PEPPER env)")
	flag.IntVar(&discountDays, "discount-days", 7, "validity of the seeded DISC10 discount, in days from now")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SALES_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SALES_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SALES_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper, discountDays); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string, discountDays int) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	catalog := postgres.NewCatalogRepository(pool)

	products, err := loadProducts(productsFile)
	if err != nil {
		return errors.Wrap(err, "load products")
	}
	if err := seedProducts(ctx, catalog, products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedClients(ctx, catalog); err != nil {
		return errors.Wrap(err, "seed clients")
	}
	if err := seedDiscount(ctx, catalog, time.Now().UTC(), discountDays); err != nil {
		return errors.Wrap(err, "seed discount")
	}
	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

func loadProducts(path string) ([]postgres.ProductRecord, error) {
	if path == "" {
		return defaultProducts, nil
	}
	slog.Info("reading products file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}
	var products []postgres.ProductRecord
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}
	return products, nil
}

func seedProducts(ctx context.Context, catalog *postgres.CatalogRepository, products []postgres.ProductRecord) error {
	for i := range products {
		if products[i].ID == "" {
			products[i].ID = uuid.NewString()
		}
	}
	slog.Info("upserting products", slog.Int("count", len(products)))

	ids, err := catalog.UpsertProducts(ctx, products)
	if err != nil {
		return err
	}
	for i, p := range products {
		slog.Info("upserted product", slog.String("id", ids[i]), slog.String("code", p.Code), slog.String("name", p.Name))
	}
	return nil
}

func seedClients(ctx context.Context, catalog *postgres.CatalogRepository) error {
	for _, c := range defaultClients {
		c.ID = uuid.NewString()
		id, err := catalog.UpsertClient(ctx, c)
		if err != nil {
			return err
		}
		slog.Info("upserted client", slog.String("id", id), slog.String("code", c.Code), slog.String("tax_id", c.TaxID))
	}
	return nil
}

func seedDiscount(ctx context.Context, catalog *postgres.CatalogRepository, now time.Time, days int) error {
	validTo := now.AddDate(0, 0, days)
	d := postgres.DiscountRecord{
		ID:          uuid.NewString(),
		Code:        "DISC10",
		ProductCode: "PRD001",
		Percentage:  decimal.NewFromInt(10),
		ValidFrom:   now,
		ValidTo:     &validTo,
		IsActive:    true,
	}
	if err := catalog.UpsertDiscount(ctx, d); err != nil {
		if errors.Is(err, postgres.ErrUnknownProductCode) {
			slog.Warn("skipping discount, product not seeded", slog.String("product_code", d.ProductCode))
			return nil
		}
		return err
	}
	slog.Info("upserted discount",
		slog.String("code", d.Code),
		slog.String("product_code", d.ProductCode),
		slog.Time("valid_to", validTo),
	)
	return nil
}

func seedAPIKey(ctx context.Context, keys *postgres.APIKeyRepository, apiKey, pepper string) error {
	info := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: hex.EncodeToString(auth.HashKey([]byte(pepper), apiKey)),
		Name:    "Default POS key",
		Scopes:  []string{"sales:write", "sales:read"},
	}
	if err := keys.Upsert(ctx, info); err != nil {
		return err
	}
	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))
	return nil
}
