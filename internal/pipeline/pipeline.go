// Package pipeline streams rows from the input file through a bounded pool
// of row workers and accumulates their statements into size-bounded output
// chunks. The coordinator is the only goroutine that touches the
// accumulator; workers share nothing but the frozen specification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"rdfconv/internal/config"
	"rdfconv/internal/graph"
	"rdfconv/internal/mapper"
	"rdfconv/internal/metrics"
	"rdfconv/internal/source"
	"rdfconv/internal/synth"
)

// Options are the per-run knobs layered over the specification.
type Options struct {
	// Workers overrides the specification's pool size when positive.
	Workers int

	// Limit, when positive, stops the run after that many rows have been
	// accumulated by the writer. Workers already in flight beyond the
	// limit complete and are discarded.
	Limit int

	// Job names the run in logs and metrics. Defaults to the input stem.
	Job string
}

// Stats summarizes a finished run.
type Stats struct {
	Processed   int64 // rows handed to workers
	Accumulated int64 // row results merged by the writer
	Discarded   int64 // results dropped past the limit
	ParseErrors int64 // malformed input lines
	ValueErrors int64 // non-fatal per-value conversion failures
	EmptyIDs    int64 // rows skipped for a blank identifier cell
	Statements  int64 // statements written across all chunks
	Chunks      []string
	Elapsed     time.Duration
}

// rowResult carries one worker's output back to the coordinator.
type rowResult struct {
	set *graph.Set
}

// Test seams; production values point at the real implementations.
var (
	openSourceFn = source.Open
	newSynthFn   = synth.New
)

// Run executes a full conversion. A fatal condition in any worker (IRI
// minting, template rendering) tears the whole run down; per-value failures
// are counted and logged.
func Run(ctx context.Context, res *config.Resolved, opt Options) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}
	job := opt.Job
	if job == "" {
		job = "rdfconv"
	}

	workers := poolSize(res, opt)
	log.Printf("pipeline: workers=%d limit=%d infile=%s", workers, opt.Limit, res.Infile)

	src, err := openSourceFn(res.Infile, res.Spec.Encoding)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	reader := source.NewReader(src, res.Spec.Delimiter)
	header, err := reader.Header()
	if err != nil {
		return nil, err
	}

	rules, err := mapper.Compile(res, header)
	if err != nil {
		return nil, err
	}
	if unmapped := rules.UnmappedColumns(); len(unmapped) > 0 {
		log.Printf("pipeline: unmapped columns: %v", unmapped)
	}
	synthesizer, err := newSynthFn(res, header)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var processed, parseErrors, valueErrors, emptyIDs atomic.Int64

	onValueErr := func(line int, err error) {
		valueErrors.Add(1)
		log.Printf("row %d: %v", line, err)
	}

	rows := make(chan source.Row, workers*2)
	results := make(chan rowResult, workers*2)

	g, gctx := errgroup.WithContext(ctx)

	// Reader: strictly sequential, the only pre-fan-out serialization
	// point.
	g.Go(func() error {
		defer close(rows)
		readStart := time.Now()
		err := reader.Stream(gctx, rows, func(line int, err error) {
			parseErrors.Add(1)
			log.Printf("line %d: %v", line, err)
		})
		metrics.RecordStage(job, "reader", err, time.Since(readStart))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Workers: map + synthesize, union, hand the set to the coordinator.
	wg, wgctx := errgroup.WithContext(gctx)
	for i := 0; i < workers; i++ {
		wg.Go(func() error {
			for row := range rows {
				processed.Add(1)
				if rules.EmptyIdentifier(row) {
					// No subject to mint: the row contributes
					// nothing, template included.
					emptyIDs.Add(1)
					continue
				}
				set, err := rules.MapRow(row, onValueErr)
				if err != nil {
					return err
				}
				if synthesizer != nil {
					rendered, err := synthesizer.Synthesize(row)
					if err != nil {
						return err
					}
					set.Union(rendered)
				}
				select {
				case results <- rowResult{set: set}:
				case <-wgctx.Done():
					return wgctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(results)
		return wg.Wait()
	})

	// Coordinator: merge results in arrival order, draw chunk boundaries,
	// enforce the limit.
	writer := newChunkWriter(res)
	var coordErr error
	g.Go(func() error {
		const progressEach = 50_000
		for result := range results {
			if opt.Limit > 0 && stats.Accumulated >= int64(opt.Limit) {
				// Past the limit: in-flight results are discarded,
				// not merged.
				stats.Discarded++
				continue
			}
			if coordErr != nil {
				continue
			}
			if err := writer.absorb(result.set); err != nil {
				coordErr = err
				cancel()
				continue
			}
			stats.Accumulated++
			if stats.Accumulated%progressEach == 0 {
				log.Printf("pipeline: accumulated=%d statements=%d", stats.Accumulated, writer.acc.Len())
			}
			if opt.Limit > 0 && stats.Accumulated >= int64(opt.Limit) {
				log.Printf("pipeline: limit %d reached", opt.Limit)
				cancel()
			}
		}
		return coordErr
	})

	runErr := g.Wait()
	if coordErr != nil {
		// The writer's own failure wins over the cancellation it caused.
		runErr = coordErr
	} else if errors.Is(runErr, context.Canceled) && opt.Limit > 0 {
		runErr = nil
	}
	if runErr == nil {
		runErr = writer.finish()
	}
	metrics.RecordStage(job, "run", runErr, time.Since(start))
	metrics.RecordRows(job, "processed", processed.Load())
	metrics.RecordRows(job, "parse_errors", parseErrors.Load())
	metrics.RecordRows(job, "value_errors", valueErrors.Load())
	metrics.RecordRows(job, "empty_identifier", emptyIDs.Load())
	metrics.RecordRows(job, "accumulated", stats.Accumulated)
	if err := metrics.Flush(); err != nil {
		log.Printf("metrics flush: %v", err)
	}
	if runErr != nil {
		return nil, runErr
	}

	stats.Processed = processed.Load()
	stats.ParseErrors = parseErrors.Load()
	stats.ValueErrors = valueErrors.Load()
	stats.EmptyIDs = emptyIDs.Load()
	stats.Statements = writer.statements
	stats.Chunks = writer.chunks
	stats.Elapsed = time.Since(start)

	log.Printf("pipeline: done rows=%d accumulated=%d discarded=%d statements=%d chunks=%d value_errors=%d in %s",
		stats.Processed, stats.Accumulated, stats.Discarded, stats.Statements,
		len(stats.Chunks), stats.ValueErrors, stats.Elapsed.Round(time.Millisecond))
	return stats, nil
}

// poolSize resolves the worker count: CLI override, then RDFCONV_WORKERS,
// then the specification, then available parallelism minus one.
func poolSize(res *config.Resolved, opt Options) int {
	if opt.Workers > 0 {
		return opt.Workers
	}
	if env := os.Getenv("RDFCONV_WORKERS"); env != "" {
		if n, err := strconv.Atoi(env); err == nil && n > 0 {
			return n
		}
		log.Printf("pipeline: ignoring invalid RDFCONV_WORKERS=%q", env)
	}
	if res.Spec.Workers > 0 {
		return res.Spec.Workers
	}
	if n := runtime.NumCPU() - 1; n > 1 {
		return n
	}
	return 1
}

// CountInput reports the number of data rows for progress estimation.
func CountInput(res *config.Resolved) (int, error) {
	n, err := source.CountRows(res.Infile, res.Spec.Encoding, res.Spec.Delimiter)
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}
