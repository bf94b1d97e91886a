// Worker runs the job executor: item searches, user approvals and resumption
// of deferred authorizations, all pulled from the shared Redis queue.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/viant/asyncauth/backchannel"
	"github.com/viant/asyncauth/config"
	"github.com/viant/asyncauth/deferred"
	"github.com/viant/asyncauth/dispatcher"
	"github.com/viant/asyncauth/internal/app"
	"github.com/viant/asyncauth/resume"
	"github.com/viant/asyncauth/tasks"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	workers     int
	recoverJobs bool
}

func parseFlags(args []string) (*options, error) {
	ret := &options{}
	flagSet := pflag.NewFlagSet("worker", pflag.ContinueOnError)
	flagSet.StringVar(&ret.configPath, "config", os.Getenv("ASYNCAUTH_CONFIG"), "path to YAML config file")
	flagSet.IntVar(&ret.workers, "workers", 0, "number of executor slots (overrides config)")
	flagSet.BoolVar(&ret.recoverJobs, "recover", false, "requeue jobs left in processing by a crashed run; enable on one instance only, since jobs of other live workers are requeued too")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	return ret, nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := app.New(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer components.Close()

	if opts.recoverJobs {
		recovered, err := components.Queue.Recover(ctx)
		if err != nil {
			return err
		}
		if recovered > 0 {
			logger.Info("recovered unfinished jobs", "count", recovered)
		}
	}

	var verifier resume.IDTokenVerifier
	if cfg.ProviderDiscovery {
		verifier = components.Provider
	}
	sink := resume.NewLogSink(logger, verifier)
	options := []tasks.Option{tasks.WithLogger(logger), tasks.WithSink(sink)}
	if cfg.Backchannel {
		options = append(options, tasks.WithAuthorizer(backchannel.New(components.Provider, backchannel.WithLogger(logger))))
	}
	service := tasks.New(
		components.Queue,
		deferred.New(components.Codec, components.Store, deferred.NewLogNotifier(logger), cfg.AppHost, deferred.WithLogger(logger)),
		resume.New(components.Store, components.Provider, resume.WithLogger(logger), resume.WithSink(sink)),
		tasks.Approval{
			Scope:           cfg.Scope,
			Audience:        cfg.Audience,
			BindingMessage:  cfg.BindingMessage,
			RequestedExpiry: cfg.RequestedExpiry,
			Host:            cfg.AppHost,
		},
		options...,
	)
	executor := dispatcher.NewExecutor(components.Queue, dispatcher.NewRegistryFor(service),
		dispatcher.WithSlots(cfg.Workers),
		dispatcher.WithDrainTimeout(cfg.DrainTimeout),
		dispatcher.WithLogger(logger),
	)
	logger.Info("worker started", "queue", components.Queue.String(), "workers", cfg.Workers)
	return executor.Run(ctx)
}
