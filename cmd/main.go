package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"orderexec/internal/api"
	"orderexec/internal/config"
	"orderexec/internal/execution"
	"orderexec/internal/journal"
	"orderexec/internal/logging"
	"orderexec/pkg/trading"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Application constants
	AppName           = "Order Execution Engine"
	AppVersion        = "1.0.0"
	DefaultConfigPath = "./config.yaml"
)

var (
	// Command line flags
	configPath = flag.String("config", DefaultConfigPath, "Path to configuration file (.json or .yaml)")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
	version    = flag.Bool("version", false, "Show version information")
	help       = flag.Bool("help", false, "Show help information")

	logger *logging.Logger
)

// Application owns the long-lived components of the service
type Application struct {
	cfg *config.Config

	ctx    context.Context
	cancel context.CancelFunc

	exchange *trading.SimulationExecutor
	journal  *journal.Journal
	manager  *execution.Manager
	server   *api.Server
}

func init() {
	flag.Usage = printUsage
}

func main() {
	flag.Parse()

	if *version {
		printVersion()
		os.Exit(0)
	}

	if *help {
		printUsage()
		os.Exit(0)
	}

	app, err := initializeApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.run(); err != nil {
		logger.Fatalf("Application failed: %v", err)
	}

	logger.Info("Application shutdown completed")
}

// initializeApplication loads configuration and wires every component
func initializeApplication() (*Application, error) {
	path := config.GetEnv(config.EnvPrefix+"CONFIG_PATH", *configPath)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if *debugMode {
		cfg.App.Debug = true
		cfg.Logging.Level = "debug"
	}

	logger = logging.InitGlobalLogger(cfg.Logging).Component("main")

	logger.WithFields(map[string]interface{}{
		"version":     AppVersion,
		"environment": cfg.App.Environment,
		"config_path": path,
		"debug_mode":  cfg.App.Debug,
	}).Info("Starting order execution engine")

	ctx, cancel := context.WithCancel(context.Background())
	app := &Application{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		app.closeResources()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	app.setupSignalHandling()

	return app, nil
}

// initializeComponents builds exchange, journal, manager and API
func (app *Application) initializeComponents() error {
	cfg := app.cfg
	logger.Info("Initializing application components")

	client, err := trading.NewExchangeClientFactory().CreateExchangeClient(cfg.Exchange.Simulation)
	if err != nil {
		return fmt.Errorf("failed to create exchange client: %w", err)
	}
	sim, ok := client.(*trading.SimulationExecutor)
	if !ok {
		return fmt.Errorf("unexpected exchange client %T", client)
	}
	if err := sim.Connect(app.ctx); err != nil {
		return fmt.Errorf("failed to connect exchange: %w", err)
	}
	app.exchange = sim

	guarded := trading.NewGuardedClient(sim, cfg.Exchange.Guard)

	var sink execution.ResultSink
	var history api.HistoryStore
	if cfg.Database.Enabled {
		openCtx, cancel := context.WithTimeout(app.ctx, 10*time.Second)
		j, err := journal.Open(openCtx, cfg.Database)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		app.journal = j
		sink = j
		history = j
	} else {
		logger.Warn("Execution journal disabled, results are kept in memory only")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	defaults, err := execution.PolicyDefaultsFromConfig(cfg.Execution)
	if err != nil {
		return fmt.Errorf("invalid execution defaults: %w", err)
	}

	app.manager, err = execution.NewManager(execution.ManagerConfig{
		Client:   guarded,
		Defaults: &defaults,
		Metrics:  execution.NewMetrics(registry),
		Sink:     sink,
		Logger:   logging.NewComponentLogger("execution"),
	})
	if err != nil {
		return fmt.Errorf("failed to create order manager: %w", err)
	}

	if cfg.API.Enabled {
		app.server = api.NewServer(cfg.API, app.manager, history, registry)
	}

	logger.WithFields(map[string]interface{}{
		"limit_orders": guarded.SupportsLimitOrders(),
		"journal":      cfg.Database.Enabled,
		"api":          cfg.API.Enabled,
	}).Info("Components initialized successfully")
	return nil
}

// run serves until a shutdown signal arrives
func (app *Application) run() error {
	if app.server != nil {
		if err := app.server.Start(); err != nil {
			return fmt.Errorf("failed to start api server: %w", err)
		}
	}

	logger.Info("Order execution engine started")

	<-app.ctx.Done()
	logger.Info("Shutdown signal received")

	return app.shutdown()
}

// setupSignalHandling cancels the application context on SIGINT/SIGTERM
func (app *Application) setupSignalHandling() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("Signal received, initiating shutdown")
		app.cancel()
	}()
}

// shutdown stops the API first so no new orders arrive, then drains the
// manager and releases resources.
func (app *Application) shutdown() error {
	logger.Info("Starting graceful shutdown")

	timeout := app.cfg.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if app.server != nil {
		logger.Info("Stopping API server")
		keep(app.server.Shutdown(ctx))
	}

	if app.manager != nil {
		logger.WithField("active_orders", app.manager.ActiveCount()).Info("Stopping order manager")
		keep(app.manager.Shutdown(ctx))
	}

	app.closeResources()

	if firstErr != nil {
		return fmt.Errorf("shutdown: %w", firstErr)
	}
	logger.Info("Shutdown completed successfully")
	return nil
}

func (app *Application) closeResources() {
	if app.journal != nil {
		if err := app.journal.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close journal")
		}
	}
	if app.exchange != nil && app.exchange.IsConnected() {
		if err := app.exchange.Disconnect(); err != nil {
			logger.WithError(err).Warn("Failed to disconnect exchange")
		}
	}
}

// printUsage prints command line usage information
func printUsage() {
	fmt.Printf(`%s - %s

Usage: %s [options]

Options:
`, AppName, AppVersion, os.Args[0])
	flag.PrintDefaults()
	fmt.Printf(`
Examples:
  %s                                    # Run with default config
  %s -config ./orderexec.json           # Run with custom config
  %s -debug                             # Run in debug mode

Environment Variables:
  ORDEREXEC_CONFIG_PATH      Path to configuration file (overrides -config flag)
  ORDEREXEC_LOG_LEVEL        Override log level (debug, info, warn, error)
  ORDEREXEC_DB_DRIVER        Journal driver (sqlite, postgres)
  ORDEREXEC_DB_DSN           Postgres connection string
  ORDEREXEC_API_ADDR         HTTP listen address

Configuration:
  A configuration file will be created with default values if it doesn't exist.
  The default configuration file location is: %s
`, os.Args[0], os.Args[0], os.Args[0], DefaultConfigPath)
}

// printVersion prints version information
func printVersion() {
	fmt.Printf(`%s %s

Go Version: %s
GOOS: %s
GOARCH: %s
`, AppName, AppVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
