package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zulandar/vigil/internal/analyzer"
	"github.com/zulandar/vigil/internal/api"
	"github.com/zulandar/vigil/internal/db"
	"github.com/zulandar/vigil/internal/janitor"
	"github.com/zulandar/vigil/internal/queue"
	"github.com/zulandar/vigil/internal/registry"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		noJanitor  bool
		noAnalyzer bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Vigil instance daemon",
		Long: `Runs the full per-instance daemon: the HTTP API, the registry heartbeat,
the analysis worker and the housekeeping sweep. Every fleet instance runs one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, noJanitor, noAnalyzer)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "vigil.yaml", "path to Vigil config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "API port (overrides config)")
	cmd.Flags().BoolVar(&noJanitor, "no-janitor", false, "disable the housekeeping sweep")
	cmd.Flags().BoolVar(&noAnalyzer, "no-analyzer", false, "disable the analysis worker")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, noJanitor, noAnalyzer bool) error {
	cfg, l, err := lifecycleFromConfig(configPath)
	if err != nil {
		return err
	}
	if port <= 0 {
		port = cfg.API.Port
	}

	gormDB, err := connectFromConfig(cfg)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if err := wireCollaborators(l, gormDB, cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	reg := registry.New(gormDB)
	if err := reg.Register(cfg.Instance, cfg.DefaultHostName); err != nil {
		return err
	}
	defer func() {
		if err := reg.Deregister(cfg.Instance); err != nil {
			log.Printf("serve: deregister %s: %v", cfg.Instance, err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return api.Start(gctx, api.StartOpts{
			Lifecycle: l,
			Port:      port,
			Out:       cmd.OutOrStdout(),
		})
	})

	g.Go(func() error {
		errCh := reg.StartHeartbeat(gctx, cfg.Instance, registry.DefaultHeartbeatInterval)
		select {
		case <-gctx.Done():
			return nil
		case err := <-errCh:
			return err
		}
	})

	if !noAnalyzer {
		worker := &analyzer.Worker{
			Queue:     queue.New(gormDB),
			Lifecycle: l,
			WorkerID:  cfg.Instance,
		}
		g.Go(func() error { return worker.Run(gctx) })
	}

	if !noJanitor {
		j := &janitor.Janitor{
			Lifecycle: l,
			Registry:  reg,
			Queue:     queue.New(gormDB),
			Schedule:  cfg.Janitor.Schedule,
		}
		g.Go(func() error { return j.Start(gctx) })
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Instance %s serving\n", cfg.Instance)
	return g.Wait()
}
