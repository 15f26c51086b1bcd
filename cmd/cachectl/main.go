// Command cachectl manages observation cache files.
//
// Usage:
//
//	cachectl create -path weather.db [-sample timeseries.json]
//	cachectl stats  -path weather.db
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/couchcryptid/gust-correlation-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/gust-correlation-etl/internal/adapter/synoptic"
	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
	"github.com/lmittmann/tint"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, nil))
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	var err error
	switch os.Args[1] {
	case "create":
		err = create(ctx, os.Args[2:], logger)
	case "stats":
		err = stats(ctx, os.Args[2:], logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("cachectl "+os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cachectl create -path FILE [-sample FILE] | cachectl stats -path FILE")
}

func create(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	path := fs.String("path", "weather.db", "cache file to create")
	samplePath := fs.String("sample", "", "saved timeseries response to infer the observation schema from")
	_ = fs.Parse(args)

	schema := domain.DefaultSchema()
	if *samplePath != "" {
		var err error
		if schema, err = schemaFromSample(*samplePath); err != nil {
			return err
		}
	}

	cache, err := sqlite.Create(ctx, *path, schema, sqlite.Options{StrictSchema: true, Logger: logger})
	if err != nil {
		return err
	}
	defer cache.Close()

	for _, f := range schema.Fields() {
		logger.Debug("observation field", "name", f.Name, "kind", f.Kind)
	}
	return nil
}

func schemaFromSample(path string) (domain.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Schema{}, fmt.Errorf("open sample: %w", err)
	}
	defer f.Close()

	d, err := synoptic.DecodeResponse(f)
	if err != nil {
		return domain.Schema{}, err
	}
	return domain.InferSchema(d)
}

func stats(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	path := fs.String("path", "weather.db", "cache file to inspect")
	_ = fs.Parse(args)

	cache, err := sqlite.Open(ctx, *path, sqlite.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer cache.Close()

	counts, err := cache.Counts(ctx)
	if err != nil {
		return err
	}
	units, err := cache.Units(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("path:         %s\n", cache.Path())
	fmt.Printf("fields:       %d\n", cache.Schema().Len())
	fmt.Printf("stations:     %d\n", counts.Stations)
	fmt.Printf("observations: %d\n", counts.Observations)

	names := make([]string, 0, len(units))
	for name := range units {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("units:        %s = %s\n", name, units[name])
	}
	return nil
}
