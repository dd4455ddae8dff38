package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/ecomify/internal/domain/auth"
	"github.com/xenking/ecomify/internal/domain/discount"
	"github.com/xenking/ecomify/internal/domain/money"
	"github.com/xenking/ecomify/internal/domain/product"
	"github.com/xenking/ecomify/internal/storage/postgres"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Image    struct {
		Thumbnail string `json:"thumbnail"`
		Mobile    string `json:"mobile"`
		Tablet    string `json:"tablet"`
		Desktop   string `json:"desktop"`
	} `json:"image"`
}

var defaultProducts = []product.Product{
	{ID: "waffle", Name: "Waffle with Berries", Price: decimal.RequireFromString("6.50"), Category: "Waffle"},
	{ID: "creme-brulee", Name: "Vanilla Bean Crème Brûlée", Price: decimal.RequireFromString("7.00"), Category: "Crème Brûlée"},
	{ID: "macaron", Name: "Macaron Mix of Five", Price: decimal.RequireFromString("8.00"), Category: "Macaron"},
	{ID: "tiramisu", Name: "Classic Tiramisu", Price: decimal.RequireFromString("5.50"), Category: "Tiramisu"},
	{ID: "baklava", Name: "Pistachio Baklava", Price: decimal.RequireFromString("4.00"), Category: "Baklava"},
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		adminKey     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (built-in catalog if empty)")
	flag.StringVar(&apiKey, "api-key", "", "customer API key to seed (or ECOMIFY_SEED_API_KEY env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or ECOMIFY_SEED_ADMIN_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or ECOMIFY_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("ECOMIFY_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or ECOMIFY_SEED_API_KEY")
		os.Exit(1)
	}
	if adminKey == "" {
		adminKey = os.Getenv("ECOMIFY_SEED_ADMIN_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("ECOMIFY_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	keys := []apiKeySeed{{id: "default", name: "Default customer key", raw: apiKey}}
	if adminKey != "" {
		keys = append(keys, apiKeySeed{id: "admin", name: "Default admin key", raw: adminKey, scopes: []string{auth.ScopeAdmin}})
	}

	if err := run(ctx, databaseURL, productsFile, []byte(apiKeyPepper), keys); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

type apiKeySeed struct {
	id     string
	name   string
	raw    string
	scopes []string
}

func run(ctx context.Context, databaseURL, productsFile string, pepper []byte, keys []apiKeySeed) error {
	slog.Info("running migrations")

	if err := postgres.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()
	db := postgres.NewDB(pool, zap.NewNop())

	products, err := loadProducts(productsFile)
	if err != nil {
		return errors.Wrap(err, "load products")
	}
	if err := seedProducts(ctx, postgres.NewProductRepository(db), products); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedDiscounts(ctx, postgres.NewDiscountRepository(db), time.Now()); err != nil {
		return errors.Wrap(err, "seed discounts")
	}

	if err := seedAPIKeys(ctx, postgres.NewAPIKeyRepository(db), pepper, keys); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	return nil
}

func loadProducts(path string) ([]product.Product, error) {
	if path == "" {
		return defaultProducts, nil
	}

	slog.Info("reading products file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}

	var rows []productJSON
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	products := make([]product.Product, 0, len(rows))
	for _, p := range rows {
		products = append(products, product.Product{
			ID:       p.ID,
			Name:     p.Name,
			Price:    p.Price,
			Category: p.Category,
			Image:    product.Image(p.Image),
		})
	}
	return products, nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, products []product.Product) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if p.Currency == "" {
			p.Currency = money.USD
		}
		if err := repo.Upsert(ctx, p); err != nil {
			return err
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedDiscounts(ctx context.Context, repo *postgres.DiscountRepository, now time.Time) error {
	slog.Info("seeding coupons")

	params := []discount.Params{
		{
			Code:           "WELCOME10",
			Kind:           discount.KindCoupon,
			Percentage:     decimal.NewNullDecimal(discount.PercentToFraction(decimal.NewFromInt(10))),
			MaxUses:        1000,
			MaxUsesPerUser: 1,
			ValidFrom:      now,
			ValidTo:        now.Add(90 * 24 * time.Hour),
		},
		{
			Code:           "FIVEOFF",
			Kind:           discount.KindCoupon,
			FixedAmount:    decimal.NewNullDecimal(decimal.NewFromInt(5)),
			MaxUses:        500,
			MinOrderAmount: decimal.NewFromInt(20),
			MaxUsesPerUser: 2,
			ValidFrom:      now,
			ValidTo:        now.Add(30 * 24 * time.Hour),
		},
	}

	for _, p := range params {
		d, err := discount.Create(p, now)
		if err != nil {
			return errors.Wrapf(err, "build coupon %s", p.Code)
		}
		switch err := repo.Create(ctx, d.Snapshot()); {
		case errors.Is(err, discount.ErrDuplicateCode):
			slog.Info("coupon exists", slog.String("code", d.Code()))
			continue
		case err != nil:
			return err
		}

		slog.Info("created coupon", slog.String("code", d.Code()), slog.String("id", d.ID()))
	}

	return nil
}

func seedAPIKeys(ctx context.Context, repo *postgres.APIKeyRepository, pepper []byte, keys []apiKeySeed) error {
	slog.Info("seeding API keys", slog.Int("count", len(keys)))

	for _, k := range keys {
		if err := repo.Create(ctx, &auth.APIKeyInfo{
			ID:      k.id,
			KeyHash: auth.HashKey(pepper, k.raw),
			Name:    k.name,
			Scopes:  k.scopes,
		}); err != nil {
			return err
		}

		slog.Info("upserted API key", slog.String("id", k.id), slog.String("name", k.name))
	}

	return nil
}
