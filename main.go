/*
Copyright 2022 The l7mp/stunner team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/l7mp/difflow/internal/buildinfo"
	"github.com/l7mp/difflow/internal/config"
	"github.com/l7mp/difflow/internal/driver"
	"github.com/l7mp/difflow/internal/sink"
	"github.com/l7mp/difflow/pkg/visualize"
)

var (
	version    = buildinfo.DefaultVersion
	commitHash = buildinfo.DefaultCommitHash
	buildDate  = buildinfo.DefaultBuildDate
)

func main() {
	var configFile, metricsAddr, planFormat string
	var showVersion bool
	flags := config.Config{}

	// controller-runtime registers -kubeconfig on flag.CommandLine, keep it out of -h
	fs := flag.NewFlagSet("difflow", flag.ExitOnError)
	fs.StringVar(&configFile, "config", "", "Configuration file. Flags override the values of the file, "+
		"which is reloaded when it changes.")
	fs.StringVar(&flags.Algorithm, "algorithm", "", fmt.Sprintf("Algorithm to run, one of %s.",
		strings.Join(config.Algorithms, ", ")))
	fs.StringVar(&flags.Edges, "edges", "", "Edge file.")
	fs.IntVar(&flags.Batch, "batch", 0, "Number of edges fed per round, 0 feeds the whole file at once.")
	fs.BoolVar(&flags.RoundTimes, "round-times", false, "Give every batch its own time.")
	fs.BoolVar(&flags.Preload, "preload", false, "Index the edges before building the query.")
	fs.BoolVar(&flags.Inspect, "inspect", false, "Print every output update.")
	fs.BoolVar(&flags.Follow, "follow", false, "Keep applying the changes of the edge file.")
	fs.StringVar(&flags.Puzzle, "puzzle", "", "Sudoku puzzle.")
	fs.StringVar(&planFormat, "plan", "", "Print the dataflow plan after the run, as dot or mermaid.")
	fs.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metric and update "+
		"endpoints bind to, 0 disables them.")
	fs.BoolVar(&showVersion, "version", false, "Print the version and exit.")

	opts := zap.Options{
		Development:     true,
		DestWriter:      os.Stderr,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
	}
	opts.BindFlags(fs)
	_ = fs.Parse(os.Args[1:])

	buildInfo := buildinfo.New(version, commitHash, buildDate)
	if showVersion {
		fmt.Println(buildInfo.String())
		return
	}

	logger := zap.New(zap.UseFlagOptions(&opts))
	ctrl.SetLogger(logger.WithName("difflow"))
	setupLog := logger.WithName("setup")
	setupLog.Info(fmt.Sprintf("starting difflow %s", buildInfo.String()))

	var gen visualize.Generator
	if planFormat != "" {
		var err error
		if gen, err = visualize.NewGenerator(planFormat); err != nil {
			setupLog.Error(err, "invalid plan format")
			os.Exit(1)
		}
	}

	// flags set on the command line win over the configuration file
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	override := func(cfg *config.Config) (*config.Config, error) {
		c := *cfg
		for name, apply := range map[string]func(){
			"algorithm":   func() { c.Algorithm = flags.Algorithm },
			"edges":       func() { c.Edges = flags.Edges },
			"batch":       func() { c.Batch = flags.Batch },
			"round-times": func() { c.RoundTimes = flags.RoundTimes },
			"preload":     func() { c.Preload = flags.Preload },
			"inspect":     func() { c.Inspect = flags.Inspect },
			"follow":      func() { c.Follow = flags.Follow },
			"puzzle":      func() { c.Puzzle = flags.Puzzle },
		} {
			if set[name] {
				apply()
			}
		}
		c.Default()
		return &c, c.Validate()
	}

	ctx := ctrl.SetupSignalHandler()

	changes := make(chan *config.Config, 1)
	cfg := &flags
	if configFile != "" {
		loader, err := config.NewLoader(configFile, logger)
		if err != nil {
			setupLog.Error(err, "unable to load configuration")
			os.Exit(1)
		}
		cfg = loader.Config()
		loader.OnChange(func(c *config.Config) {
			// keep only the latest configuration
			select {
			case <-changes:
			default:
			}
			changes <- c
		})
		if err := loader.Watch(ctx); err != nil {
			setupLog.Error(err, "unable to watch configuration")
			os.Exit(1)
		}
	}
	cfg, err := override(cfg)
	if err != nil {
		setupLog.Error(err, "invalid configuration")
		os.Exit(1)
	}

	hub := sink.NewHub(logger)
	defer hub.Close()
	if metricsAddr != "0" {
		startServer(ctx, metricsAddr, hub, setupLog)
	}

	for {
		next, err := run(ctx, cfg, driver.Options{Logger: logger, Hub: hub}, changes, gen)
		if err != nil {
			setupLog.Error(err, "run failed")
			os.Exit(1)
		}
		if next == nil {
			return
		}
		if cfg, err = override(next); err != nil {
			setupLog.Error(err, "invalid configuration, stopping")
			os.Exit(1)
		}
		setupLog.Info("restarting with the new configuration", "algorithm", cfg.Algorithm)
	}
}

// run executes one configuration. It returns the next configuration if the current run was
// interrupted by a configuration change.
func run(ctx context.Context, cfg *config.Config, opts driver.Options, changes <-chan *config.Config,
	gen visualize.Generator) (*config.Config, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := driver.New(cfg, opts)
	type result struct {
		summary *driver.Summary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		summary, err := d.Run(runCtx)
		done <- result{summary, err}
	}()

	var next *config.Config
	var res result
	select {
	case res = <-done:
	case next = <-changes:
		cancel()
		res = <-done
	}
	if errors.Is(res.err, context.Canceled) {
		res.err = nil
	}
	if res.err != nil {
		return nil, res.err
	}

	if gen != nil && res.summary != nil {
		fmt.Print(gen.Generate(visualize.BuildGraph(cfg.Algorithm, res.summary.Plan)))
	}
	return next, nil
}

func startServer(ctx context.Context, addr string, hub *sink.Hub, log logr.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/updates", hub)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics and updates", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
}
