// Command promo-issue mints one promotional coupon per distinct customer id
// found in gzip'd id lists, one id per line.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/foodrun/internal/domain/coupon"
	"github.com/xenking/foodrun/internal/repository"
)

const (
	bloomFPR      = 0.0001
	progressEvery = 100_000
)

type options struct {
	label    string
	pct      int
	ttl      time.Duration
	workers  int
	capacity uint
	timeout  time.Duration
}

// issuer is satisfied by *coupon.Service.
type issuer interface {
	IssuePromotion(ctx context.Context, customerID, label string, pct int, ttl time.Duration) (*coupon.Coupon, error)
}

func main() {
	var (
		databaseURL string
		opts        options
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.label, "label", "Welcome offer", "coupon label shown to customers")
	flag.IntVar(&opts.pct, "pct", 10, "discount percentage")
	flag.DurationVar(&opts.ttl, "ttl", 30*24*time.Hour, "coupon validity")
	flag.IntVar(&opts.workers, "workers", 8, "concurrent coupon writers")
	flag.UintVar(&opts.capacity, "expected-ids", 1_000_000, "expected number of ids, sizes the bloom filter")
	flag.DurationVar(&opts.timeout, "store-timeout", 3*time.Second, "deadline for each coupon write")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		slog.Error("usage: promo-issue [flags] customers1.gz [customers2.gz ...]")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args(), opts); err != nil {
		slog.Error("promotion issue failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promotion issue completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, opts options) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("pass 1: detecting repeated ids", slog.Int("files", len(files)))

	repeated, err := findRepeated(ctx, files, opts.capacity)
	if err != nil {
		return errors.Wrap(err, "find repeated ids")
	}

	slog.Info("pass 1 complete", slog.Int("possibly_repeated", len(repeated)))
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	svc := coupon.NewService(repository.NewCouponRepository(pool), coupon.NewLedger(coupon.DefaultCodes), coupon.Config{
		StoreTimeout: opts.timeout,
	})
	issued, err := issue(ctx, svc, files, repeated, opts)
	if err != nil {
		return errors.Wrap(err, "issue coupons")
	}

	slog.Info("pass 2 complete", slog.Int64("issued", issued))
	return nil
}

// findRepeated returns every id the bloom filter reported as already seen.
// It holds real duplicates plus false positives; ids outside it occur once.
func findRepeated(ctx context.Context, files []string, capacity uint) (map[string]bool, error) {
	filter := bloom.NewWithEstimates(max(capacity, 1), bloomFPR)
	repeated := make(map[string]bool)

	for _, path := range files {
		if err := streamIDs(ctx, path, func(id string) error {
			if filter.TestAndAddString(id) {
				repeated[id] = false
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return repeated, nil
}

// issue streams the files again and mints a coupon for the first occurrence
// of every id. repeated is updated to mark ids already handled.
func issue(ctx context.Context, svc issuer, files []string, repeated map[string]bool, opts options) (int64, error) {
	ids := make(chan string, opts.workers*4)
	var issued atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(ids)
		for _, path := range files {
			err := streamIDs(ctx, path, func(id string) error {
				if done, ok := repeated[id]; ok {
					if done {
						return nil
					}
					repeated[id] = true
				}
				select {
				case ids <- id:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	for range max(opts.workers, 1) {
		g.Go(func() error {
			for id := range ids {
				c, err := svc.IssuePromotion(ctx, id, opts.label, opts.pct, opts.ttl)
				if err != nil {
					return errors.Wrapf(err, "issue for %s", id)
				}
				if n := issued.Add(1); n%progressEvery == 0 {
					slog.Info("pass 2 progress", slog.Int64("issued", n), slog.String("last_code", c.Code))
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return issued.Load(), err
	}
	return issued.Load(), nil
}

// streamIDs calls fn for each non-empty trimmed line of a gzip file.
func streamIDs(ctx context.Context, path string, fn func(id string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
