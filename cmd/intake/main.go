// Intake serves /async-auth/start and /async-auth/callback for deferred authorizations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/viant/asyncauth/config"
	"github.com/viant/asyncauth/intake"
	"github.com/viant/asyncauth/internal/app"
	"github.com/viant/asyncauth/ticket"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath string
	var listen string
	flagSet := pflag.NewFlagSet("intake", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", os.Getenv("ASYNCAUTH_CONFIG"), "path to YAML config file")
	flagSet.StringVar(&listen, "listen", "", "listen address (overrides config)")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.ListenAddr = listen
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

	handler := intake.NewHandler(
		components.Codec,
		ticket.NewReplayGuard(components.Store, nil),
		components.Provider,
		components.Queue,
		intake.WithLogger(logger),
	)
	server := intake.NewServer(cfg.ListenAddr, handler)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(server.Start)
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.DrainTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	logger.Info("intake listening", "addr", cfg.ListenAddr)
	return group.Wait()
}
