// Command coupon-ingest finds promo codes listed in at least two of the
// gzipped coupon base files and stores them as coupon discounts.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/ecomify/internal/domain/discount"
	"github.com/xenking/ecomify/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
	writeWorkers  = 8
)

// codeRule is the value a known promo code grants.
type codeRule struct {
	percent        int64
	fixed          int64
	minOrderAmount int64
}

func (r codeRule) params(code string, cfg ingestConfig, now time.Time) discount.Params {
	p := discount.Params{
		Code:           code,
		Kind:           discount.KindCoupon,
		MaxUses:        cfg.maxUses,
		MaxUsesPerUser: 1,
		MinOrderAmount: decimal.NewFromInt(r.minOrderAmount),
		ValidFrom:      now,
		ValidTo:        now.Add(cfg.validFor),
	}
	if r.fixed > 0 {
		p.FixedAmount = decimal.NewNullDecimal(decimal.NewFromInt(r.fixed))
	} else {
		p.Percentage = decimal.NewNullDecimal(discount.PercentToFraction(decimal.NewFromInt(r.percent)))
	}
	return p
}

var codeRules = map[string]codeRule{
	"BIRTHDAY": {percent: 25},
	"BUYGETON": {percent: 50, minOrderAmount: 20},
	"FIFTYOFF": {percent: 50},
	"SIXTYOFF": {percent: 60},
	"FREEZAAA": {percent: 100},
	"GNULINUX": {percent: 15},
	"OVER9000": {fixed: 9, minOrderAmount: 10},
	"HAPPYHRS": {percent: 18},
}

var defaultRule = codeRule{percent: 10}

type ingestConfig struct {
	dataDir     string
	numFiles    int
	minFiles    int
	capacity    uint
	maxUses     int
	validFor    time.Duration
	databaseURL string
}

func main() {
	var cfg ingestConfig

	flag.StringVar(&cfg.dataDir, "data-dir", "data", "directory containing couponbaseN.gz files")
	flag.IntVar(&cfg.numFiles, "files", 3, "number of couponbaseN.gz files")
	flag.IntVar(&cfg.minFiles, "min-files", 2, "files a code must appear in to be valid")
	flag.UintVar(&cfg.capacity, "bloom-capacity", 120_000_000, "expected codes per file")
	flag.IntVar(&cfg.maxUses, "max-uses", 1000, "global redemption cap of each coupon")
	flag.DurationVar(&cfg.validFor, "valid-for", 90*24*time.Hour, "coupon lifetime from now")
	flag.StringVar(&cfg.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if cfg.databaseURL == "" {
		cfg.databaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if cfg.minFiles < 1 || cfg.minFiles > cfg.numFiles {
		slog.Error("min-files must be between 1 and files", slog.Int("min_files", cfg.minFiles))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func couponFiles(dir string, n int) ([]string, error) {
	files := make([]string, n)
	for i := range n {
		files[i] = filepath.Join(dir, fmt.Sprintf("couponbase%d.gz", i+1))
		if _, err := os.Stat(files[i]); err != nil {
			return nil, errors.Wrapf(err, "check file %s", files[i])
		}
	}
	return files, nil
}

func run(ctx context.Context, cfg ingestConfig) error {
	files, err := couponFiles(cfg.dataDir, cfg.numFiles)
	if err != nil {
		return err
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files, cfg.capacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding candidate codes")

	validCodes, err := findValidCodes(ctx, files, filters, cfg.minFiles)
	if err != nil {
		return errors.Wrap(err, "find valid codes")
	}

	slog.Info("valid codes found", slog.Int("count", len(validCodes)))

	if len(validCodes) == 0 {
		slog.Info("no valid codes to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, cfg.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewDiscountRepository(postgres.NewDB(pool, zap.NewNop()))
	if err := writeCoupons(ctx, repo, validCodes, cfg, time.Now()); err != nil {
		return errors.Wrap(err, "write coupons to database")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count uint64

			if err := streamGzFile(ctx, f, func(code string) {
				if !validLength(code) {
					return
				}
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}

			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func validLength(code string) bool {
	return len(code) >= minCodeLen && len(code) <= maxCodeLen
}

// findValidCodes re-streams each file and keeps the codes that the filters
// place in at least minFiles files. A code is valid when at least minFiles
// scans kept it, which drops codes that only passed on a false positive.
func findValidCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter, minFiles int) ([]string, error) {
	results := make([]map[string]struct{}, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			candidates := make(map[string]struct{})
			var count uint64

			if err := streamGzFile(ctx, f, func(code string) {
				if !validLength(code) {
					return
				}
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 2 progress", slog.Int("file", i+1), slog.Uint64("codes", count))
				}
				var mask uint
				for j, filter := range filters {
					if j == i || filter.TestString(code) {
						mask |= 1 << uint(j)
					}
				}
				if bits.OnesCount(mask) >= minFiles {
					candidates[code] = struct{}{}
				}
			}); err != nil {
				return errors.Wrapf(err, "scan file %d for candidates", i+1)
			}

			slog.Info("pass 2 complete",
				slog.Int("file", i+1),
				slog.Uint64("total_codes", count),
				slog.Int("candidates", len(candidates)),
			)
			results[i] = candidates
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]int)
	for _, r := range results {
		for code := range r {
			seen[code]++
		}
	}

	var valid []string
	for code, n := range seen {
		if n >= minFiles {
			valid = append(valid, code)
		}
	}
	return valid, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
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
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// couponWriter is the part of the discount repository the ingest needs.
type couponWriter interface {
	Create(ctx context.Context, s discount.Snapshot) error
}

// writeCoupons creates a coupon discount per code. Codes that already exist
// are skipped so the ingest can be re-run.
func writeCoupons(ctx context.Context, repo couponWriter, codes []string, cfg ingestConfig, now time.Time) error {
	slog.Info("writing coupons to database", slog.Int("count", len(codes)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(writeWorkers)

	for _, code := range codes {
		rule, ok := codeRules[code]
		if !ok {
			rule = defaultRule
		}
		d, err := discount.Create(rule.params(code, cfg, now), now)
		if err != nil {
			return errors.Wrapf(err, "build coupon %s", code)
		}
		g.Go(func() error {
			err := repo.Create(ctx, d.Snapshot())
			if errors.Is(err, discount.ErrDuplicateCode) {
				slog.Debug("coupon exists", slog.String("code", d.Code()))
				return nil
			}
			return err
		})
	}

	return g.Wait()
}
