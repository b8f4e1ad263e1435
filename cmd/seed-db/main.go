package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/foodrun/internal/domain/catalog"
	"github.com/xenking/foodrun/internal/repository"
)

type sellerJSON struct {
	Kind        catalog.SellerKind `json:"kind"`
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	DeliveryFee decimal.Decimal    `json:"deliveryFee"`
	Items       []struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Price     decimal.Decimal `json:"price"`
		Available bool            `json:"available"`
	} `json:"items"`
}

func main() {
	var (
		databaseURL string
		catalogFile string
		parallel    int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to the sellers and items JSON file")
	flag.IntVar(&parallel, "parallel", 4, "sellers seeded concurrently")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, parallel); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile string, parallel int) error {
	sellers, err := readCatalog(catalogFile)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := repository.NewCatalogRepository(pool)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, parallel))
	for _, s := range sellers {
		g.Go(func() error {
			return seedSeller(ctx, repo, s)
		})
	}
	return g.Wait()
}

func readCatalog(path string) ([]sellerJSON, error) {
	slog.Info("reading catalog file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file")
	}

	var sellers []sellerJSON
	if err := json.Unmarshal(data, &sellers); err != nil {
		return nil, errors.Wrap(err, "parse catalog JSON")
	}
	for _, s := range sellers {
		if !s.Kind.Valid() || s.ID == "" {
			return nil, errors.Errorf("seller %q: invalid kind %q", s.ID, s.Kind)
		}
	}
	return sellers, nil
}

func seedSeller(ctx context.Context, repo *repository.CatalogRepository, s sellerJSON) error {
	ref := catalog.SellerRef{Kind: s.Kind, ID: s.ID}
	if err := repo.UpsertSeller(ctx, catalog.Seller{Ref: ref, Name: s.Name, DeliveryFee: s.DeliveryFee}); err != nil {
		return errors.Wrapf(err, "seed seller %s", ref)
	}

	for _, it := range s.Items {
		err := repo.UpsertItem(ctx, catalog.Item{
			ID:          it.ID,
			Seller:      ref,
			Name:        it.Name,
			Price:       it.Price,
			IsAvailable: it.Available,
		})
		if err != nil {
			return errors.Wrapf(err, "seed item %s", it.ID)
		}
	}

	slog.Info("upserted seller",
		slog.String("seller", ref.String()),
		slog.String("name", s.Name),
		slog.Int("items", len(s.Items)),
	)
	return nil
}
