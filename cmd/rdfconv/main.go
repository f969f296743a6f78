// Command rdfconv converts a delimited tabular file into RDF under the
// control of a declarative mapping specification. It resolves the
// specification, optionally initializes a metrics backend, and executes the
// parallel conversion run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rdfconv/internal/config"
	"rdfconv/internal/metrics"
	"rdfconv/internal/metrics/datadog"
	"rdfconv/internal/metrics/prompush"
	"rdfconv/internal/pipeline"
)

func main() {
	var (
		specPath          string
		limit             int
		workers           int
		validate          bool
		dumpSpec          bool
		metricsBackendFlg string
		pushGatewayURLFlg string
		datadogAddrFlg    string
	)

	flag.StringVar(&specPath, "spec", "spec.yml", "mapping specification YAML path")
	flag.IntVar(&limit, "limit", 0, "stop after this many rows have been accumulated (0 = all)")
	flag.IntVar(&workers, "workers", 0, "worker pool size (0 = spec / RDFCONV_WORKERS / CPUs-1)")
	flag.BoolVar(&validate, "validate", false, "resolve and validate the specification, then exit")
	flag.BoolVar(&dumpSpec, "dump-spec", false, "print the effective merged specification and exit")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (pushgateway, datadog, none); falls back to METRICS_BACKEND")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&datadogAddrFlg, "datadog-addr", "", "DogStatsD address (overrides env DOGSTATSD_ADDR)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	res, err := config.Resolve(specPath)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, iss := range verr.Issues {
				fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
			}
			fatalf("specification is invalid: %v", specPath)
		}
		fatalf("%v", err)
	}

	if validate {
		log.Printf("specification is valid: %v", specPath)
		os.Exit(0)
	}
	if dumpSpec {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(res.Spec); err != nil {
			fatalf("dump spec: %v", err)
		}
		enc.Close()
		os.Exit(0)
	}

	job := inputStem(res.Infile)

	// The run log mirrors stderr into <stem>.log next to the output
	// chunks, so every conversion leaves its own record behind.
	logPath := filepath.Join(res.Outdir, job+".log")
	if f, err := os.Create(logPath); err != nil {
		log.Printf("run log: %v", err)
	} else {
		defer f.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	setupMetrics(metricsBackendFlg, pushGatewayURLFlg, datadogAddrFlg, job, *verbose)

	if *verbose {
		if n, err := pipeline.CountInput(res); err == nil {
			log.Printf("input: %s (%d data rows)", res.Infile, n)
		}
		if effective, err := yaml.Marshal(res.Spec); err == nil {
			log.Printf("effective specification:\n%s", effective)
		}
	}

	ctx := context.Background()
	start := time.Now()

	stats, err := pipeline.Run(ctx, res, pipeline.Options{
		Workers: workers,
		Limit:   limit,
		Job:     job,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("wrote %d statements to %d file(s) in %s",
		stats.Statements, len(stats.Chunks), time.Since(start).Truncate(time.Millisecond))
	if stats.ParseErrors > 0 || stats.ValueErrors > 0 {
		log.Printf("skipped: %d unparsable line(s), %d value error(s); see %s",
			stats.ParseErrors, stats.ValueErrors, logPath)
	}
}

// metricsBackendName resolves the backend selection: flag, then the
// METRICS_BACKEND environment variable.
func metricsBackendName(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	return os.Getenv("METRICS_BACKEND")
}

// setupMetrics installs the selected metrics backend: flag → env → nop.
func setupMetrics(name, gatewayURL, dogstatsdAddr, job string, verbose bool) {
	name = metricsBackendName(name)
	switch name {
	case "pushgateway":
		gwURL := gatewayURL
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init pushgateway backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=pushgateway url=%v job=%v", gwURL, job)
		metrics.SetBackend(b)

	case "datadog":
		addr := dogstatsdAddr
		if addr == "" {
			addr = os.Getenv("DOGSTATSD_ADDR")
		}
		if addr == "" {
			addr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{Addr: addr, Namespace: "rdfconv."})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=datadog addr=%v job=%v", addr, job)
		metrics.SetBackend(b)

	case "", "none":
		// metrics disabled; nop backend remains
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", name)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", name)
	}
}

func inputStem(infile string) string {
	base := filepath.Base(infile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
