package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tokenproof/ticket-gate/internal/auth"
	"github.com/tokenproof/ticket-gate/internal/clock"
	"github.com/tokenproof/ticket-gate/internal/config"
	"github.com/tokenproof/ticket-gate/internal/connection"
	"github.com/tokenproof/ticket-gate/internal/metrics"
	"github.com/tokenproof/ticket-gate/internal/oracle"
	"github.com/tokenproof/ticket-gate/internal/server"
	"github.com/tokenproof/ticket-gate/internal/storage"
	"github.com/tokenproof/ticket-gate/internal/ticket"
	"github.com/tokenproof/ticket-gate/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires the ticket gate components together
type Application struct {
	config         *config.Config
	connections    *connection.Registry
	storage        storage.Storage
	oracle         oracle.Oracle
	tickets        *ticket.Service
	auth           *auth.Service
	server         *server.HTTPServer
	metricsManager *metrics.Manager
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	app := &Application{config: cfg}

	logCfg := cfg.Logging
	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if cfg.Server.EnableMetrics {
		app.metricsManager = metrics.NewManager()
	}

	if err := app.initializeStorage(); err != nil {
		return nil, err
	}
	app.initializeOracle()
	app.initializeServices()
	app.initializeServer()

	return app, nil
}

func (app *Application) initializeStorage() error {
	store, err := storage.NewStorage(&storage.Config{
		Type:             app.config.Storage.Type,
		ConnectionString: app.config.Storage.ConnectionString,
		MaxConnections:   app.config.Storage.MaxConnections,
		MaxIdleTime:      app.config.Storage.MaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	if app.metricsManager != nil {
		if s, ok := store.(interface{ SetMetricsManager(*metrics.Manager) }); ok {
			s.SetMetricsManager(app.metricsManager)
		}
	}

	app.storage = store
	return nil
}

func (app *Application) initializeOracle() {
	app.connections = connection.NewRegistry(app.config.Chains)

	chainOracle := oracle.NewChainOracle(app.connections, app.config)
	if app.metricsManager != nil {
		chainOracle.SetMetricsManager(app.metricsManager)
	}

	cached := oracle.NewCachedOracle(chainOracle, app.config.Oracle)
	if c, ok := cached.(*oracle.CachedOracle); ok && app.metricsManager != nil {
		c.SetMetricsManager(app.metricsManager)
	}
	app.oracle = cached
}

func (app *Application) initializeServices() {
	clk := clock.New()

	app.tickets = ticket.NewService(app.storage, app.oracle, clk)
	if app.metricsManager != nil {
		app.tickets.SetMetricsManager(app.metricsManager)
	}

	app.auth = auth.NewService(app.storage, clk,
		app.config.Auth.JWTSecret, app.config.Auth.SessionTTL)
}

func (app *Application) initializeServer() {
	app.server = server.NewHTTPServer(
		&app.config.Server,
		app.storage,
		app.tickets,
		app.auth,
		app.metricsManager,
	)
}

// Start starts the application
func (app *Application) Start() error {
	logger := utils.GetLogger()
	logger.WithField("version", AppVersion).Info("Starting ticket gate")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	logger.WithField("address",
		fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
	).Info("Ticket gate started")
	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	logger := utils.GetLogger()
	logger.Info("Stopping ticket gate")

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			logger.WithField("error", err).Error("Failed to stop HTTP server")
		}
	}
	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			logger.WithField("error", err).Error("Failed to close storage")
		}
	}
	if app.connections != nil {
		if err := app.connections.Close(); err != nil {
			logger.WithField("error", err).Error("Failed to close chain connections")
		}
	}

	logger.Info("Ticket gate stopped")
	return nil
}

// rootCmd runs the gate service
var rootCmd = &cobra.Command{
	Use:     "gate",
	Short:   "Token-gated event ticketing service",
	Long:    `Issues and verifies proof-of-eligibility tickets backed by NFT and ENS ownership.`,
	Version: AppVersion,
	RunE:    runGate,
}

func runGate(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping...")

	return app.Stop()
}

// versionCmd prints the version number
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ticket-gate %s\n", AppVersion)
	},
}

// validateConfigCmd validates the configuration file
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Println("Configuration is valid!")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Storage: %s\n", cfg.Storage.Type)
		fmt.Printf("Chains: %d\n", len(cfg.Chains))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
