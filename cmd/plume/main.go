package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plumeapp/plume/internal/config"
	"github.com/plumeapp/plume/internal/gateway"
	"github.com/plumeapp/plume/internal/ops"
	"github.com/plumeapp/plume/internal/push"
	"github.com/plumeapp/plume/internal/reconcile"
	"github.com/plumeapp/plume/internal/scheduler"
	"github.com/plumeapp/plume/internal/session"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
	builtBy = "manual"
)

func main() {
	// Define subcommands
	if len(os.Args) > 1 && os.Args[1] == "init" {
		handleInit()
		return
	}

	var (
		showVersion = flag.Bool("version", false, "Show version information")
		configPath  = flag.String("config", "", "Path to configuration file")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("plume %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		fmt.Printf("  by:     %s\n", builtBy)
		os.Exit(0)
	}

	if *configPath == "" {
		fmt.Println("plume - headless social feed client")
		fmt.Println()
		fmt.Println("No configuration file specified. Use --config <path> to specify config.")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  plume init              Generate example configuration")
		fmt.Println("  plume --version         Show version information")
		fmt.Println("  plume --config <path>   Start with configuration file")
		os.Exit(1)
	}

	// Load and validate configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Starting plume %s\n", version)
	fmt.Printf("  Gateway: %s\n", cfg.Gateway.BaseURL)
	fmt.Printf("  Refresh: every %s\n", cfg.Refresh.Interval())
	fmt.Println()

	// Run the application
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := ops.NewLogger(&cfg.Logging)
	metrics := ops.NewMetrics()
	logger.LogStartup(version, commit, map[string]interface{}{
		"gateway": cfg.Gateway.BaseURL,
		"push":    cfg.Push.Enabled,
		"refresh": cfg.Refresh.Interval().String(),
	})

	// Initialize session persistence
	fmt.Println("Opening session store...")
	store, err := session.Open(cfg.Session.SQLitePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()
	fmt.Printf("  Session store: %s\n", cfg.Session.SQLitePath)

	// Initialize gateway client and the reconciliation engine
	gw := gateway.New(&cfg.Gateway, logger)
	engine := reconcile.New(cfg, gw, store, nil, logger, metrics)

	if err := engine.StartSession(ctx); err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	// First reconciliation before anything else starts, so the push
	// stream and scheduler begin from a populated view.
	if gw.HasSession() {
		fmt.Println("Running initial reconciliation...")
		if err := engine.Reconcile(ctx); err != nil {
			fmt.Printf("  ⚠ Initial reconciliation incomplete: %v\n", err)
		} else {
			fmt.Println("  Initial reconciliation complete")
		}
	} else {
		fmt.Println("No session token set (PLUME_TOKEN); running signed out")
	}

	// Connect the push stream if enabled
	var bus *push.Bus
	if cfg.Push.Enabled && gw.HasSession() {
		fmt.Printf("Connecting push stream %s...\n", cfg.Push.URL)
		bus = push.New(&cfg.Push, logger)
		if err := bus.Connect(ctx, cfg.Gateway.Token); err != nil {
			// Push is an optimization; polling still converges
			fmt.Printf("  ⚠ Push connection failed, continuing with polling: %v\n", err)
			bus = nil
		} else {
			engine.ConsumePush(bus.Events())
			if user := engine.User(); user != nil {
				if err := bus.Join("user:" + user.ID); err != nil {
					fmt.Printf("  ⚠ Failed to join user room: %v\n", err)
				}
			}
			fmt.Println("  Push stream connected")
		}
	}

	// Start the auto-refresh scheduler
	var sched *scheduler.Scheduler
	if cfg.Refresh.Enabled {
		fmt.Printf("Starting refresh scheduler (every %s)...\n", cfg.Refresh.Interval())
		sched = scheduler.New(&cfg.Refresh, func() {
			// Cycle errors are already logged per domain inside the engine
			_ = engine.Reconcile(ctx)
		}, logger)
		sched.Start()
		defer sched.Stop()
		fmt.Println("  Scheduler running")
	}

	// Start the diagnostics endpoint if enabled
	if cfg.Diagnostics.Enabled {
		fmt.Printf("Starting diagnostics server on %s...\n", cfg.Diagnostics.Bind)
		diag := ops.NewDiagnostics(&cfg.Diagnostics, metrics, logger, version, commit)
		diag.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			diag.Stop(shutdownCtx)
		}()
	}

	fmt.Println()
	fmt.Println("✓ All services started successfully!")
	fmt.Println()
	fmt.Println("Press Ctrl+C to shutdown gracefully...")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println()
	fmt.Println("Shutting down gracefully...")

	cancel()
	if bus != nil {
		bus.LeaveAll()
		bus.Close()
	}
	engine.Wait()
	logger.LogShutdown("signal")

	fmt.Println("✓ Shutdown complete")
	return nil
}

func handleInit() {
	exampleConfig, err := config.GetExampleConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading example config: %v\n", err)
		os.Exit(1)
	}

	// Write to stdout
	fmt.Print(string(exampleConfig))
}
