// Command catalog-import bulk-loads products from gzipped JSONL files into
// PostgreSQL. Files are parsed concurrently; a single writer goroutine
// upserts records and uses a bloom filter to flag barcodes already seen in
// the batch (later occurrences overwrite earlier ones, keyed by barcode).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/quitanda/pdv/internal/domain/product"
	"github.com/quitanda/pdv/internal/storage/postgres"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000
)

type productLine struct {
	Barcode    string          `json:"barcode"`
	Name       string          `json:"name"`
	PriceMinor int64           `json:"priceMinor"`
	Stock      decimal.Decimal `json:"stock"`
	Unit       string          `json:"unit"`
}

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		slog.Error("usage: catalog-import [flags] <products.jsonl.gz> ...")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args()); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewProductRepository(pool)
	records := make(chan productLine, 1024)

	g, ctx := errgroup.WithContext(ctx)

	parsers, ctx := errgroup.WithContext(ctx)
	for _, f := range files {
		parsers.Go(parseFile(ctx, f, records))
	}
	g.Go(func() error {
		defer close(records)
		return parsers.Wait()
	})
	g.Go(writeProducts(ctx, repo, records))

	return g.Wait()
}

// parseFile streams one gzipped JSONL file into the records channel.
func parseFile(ctx context.Context, path string, records chan<- productLine) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer f.Close()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "gzip reader for %s", path)
		}
		defer gz.Close()

		var count uint64
		sc := bufio.NewScanner(gz)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}

			var rec productLine
			if err := json.Unmarshal(line, &rec); err != nil {
				return errors.Wrapf(err, "parse %s line %d", path, count+1)
			}
			if rec.Barcode == "" || rec.Name == "" || rec.PriceMinor < 0 {
				slog.Warn("skipping invalid record",
					slog.String("file", path),
					slog.Uint64("line", count+1),
				)
				continue
			}

			select {
			case records <- rec:
			case <-ctx.Done():
				return ctx.Err()
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("parse progress", slog.String("file", path), slog.Uint64("records", count))
			}
		}
		if err := sc.Err(); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("file parsed", slog.String("file", path), slog.Uint64("records", count))
		return nil
	}
}

// writeProducts upserts records sequentially. The bloom filter answers
// "probably seen before" cheaply; a positive only downgrades the record to
// an update of the earlier row, so false positives are harmless.
func writeProducts(ctx context.Context, repo *postgres.ProductRepository, records <-chan productLine) func() error {
	return func() error {
		seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var total, dupes uint64

		for rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}

			if seen.TestString(rec.Barcode) {
				dupes++
			}
			seen.AddString(rec.Barcode)

			if err := repo.Upsert(ctx, product.Product{
				ID:         uuid.NewString(),
				Barcode:    rec.Barcode,
				Name:       rec.Name,
				PriceMinor: rec.PriceMinor,
				Stock:      rec.Stock,
				Unit:       rec.Unit,
			}); err != nil {
				return errors.Wrapf(err, "upsert product %s", rec.Barcode)
			}

			total++
			if total%progressEvery == 0 {
				slog.Info("write progress", slog.Uint64("records", total))
			}
		}

		slog.Info("write complete", slog.Uint64("records", total), slog.Uint64("duplicate_barcodes", dupes))
		return nil
	}
}
