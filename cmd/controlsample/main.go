// Command controlsample draws a control sample from an events CSV: N events
// picked at random, each moved to a random instant in [start, end). The output
// is the source rows plus a control_time column, ready for gustetl with
// CSV_TIME_COLUMN=control_time.
//
// Usage:
//
//	go run ./cmd/controlsample \
//	  -input data/ignitions.csv -output data/control.csv \
//	  -n 500 -start 2015-01-01 -end 2021-01-01 -seed 42
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/couchcryptid/gust-correlation-etl/internal/adapter/csvio"
	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
	"github.com/couchcryptid/gust-correlation-etl/internal/sample"
	"github.com/lmittmann/tint"
)

func main() {
	input := flag.String("input", "", "events CSV to sample from")
	output := flag.String("output", "", "control sample CSV to write")
	n := flag.Int("n", 100, "number of events to draw")
	startFlag := flag.String("start", "", "earliest control time (inclusive)")
	endFlag := flag.String("end", "", "latest control time (exclusive)")
	seed := flag.Uint64("seed", 0, "random seed; 0 draws one from the clock")
	tz := flag.String("tz", "UTC", "time zone for zone-less times in the input and -start/-end")
	idCol := flag.String("id-column", "", "event id column (optional)")
	latCol := flag.String("lat-column", "latitude", "latitude column")
	lonCol := flag.String("lon-column", "longitude", "longitude column")
	timeCol := flag.String("time-column", "time", "time column")
	dateCol := flag.String("date-column", "", "date column, when dates and times are split")
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, nil))

	if *input == "" || *output == "" || *startFlag == "" || *endFlag == "" {
		flag.Usage()
		os.Exit(2)
	}

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		fatal(logger, fmt.Errorf("invalid -tz: %w", err))
	}
	start, err := domain.ParseInstantIn(*startFlag, loc)
	if err != nil {
		fatal(logger, fmt.Errorf("invalid -start: %w", err))
	}
	end, err := domain.ParseInstantIn(*endFlag, loc)
	if err != nil {
		fatal(logger, fmt.Errorf("invalid -end: %w", err))
	}

	opts := csvio.ReaderOptions{
		IDColumn:   *idCol,
		LatColumn:  *latCol,
		LonColumn:  *lonCol,
		TimeColumn: *timeCol,
		DateColumn: *dateCol,
		Location:   loc,
	}
	header, events, err := readAll(*input, opts, logger)
	if err != nil {
		fatal(logger, err)
	}

	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}
	drawn, err := sample.Draw(rand.New(rand.NewPCG(*seed, *seed)), events, *n, start, end)
	if err != nil {
		fatal(logger, err)
	}

	f, err := os.Create(*output)
	if err != nil {
		fatal(logger, err)
	}
	if err := sample.WriteCSV(f, header, drawn); err != nil {
		_ = f.Close()
		fatal(logger, err)
	}
	if err := f.Close(); err != nil {
		fatal(logger, err)
	}

	logger.Info("control sample written",
		"output", *output,
		"source_events", len(events),
		"drawn", len(drawn),
		"seed", *seed,
	)
}

func readAll(path string, opts csvio.ReaderOptions, logger *slog.Logger) ([]string, []domain.Event, error) {
	r, err := csvio.Open(path, opts, logger)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	var events []domain.Event
	for {
		batch, err := r.ExtractBatch(context.Background(), 500)
		events = append(events, batch...)
		if errors.Is(err, io.EOF) {
			return r.Header(), events, nil
		}
		if err != nil {
			return nil, nil, err
		}
	}
}

func fatal(logger *slog.Logger, err error) {
	logger.Error("control sample failed", "error", err)
	os.Exit(1)
}
