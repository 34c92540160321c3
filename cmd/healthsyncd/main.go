// Package main is the CLI entry point for healthsyncd.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lumohealth/healthsyncd/internal/catalog"
	"github.com/lumohealth/healthsyncd/internal/config"
	"github.com/lumohealth/healthsyncd/internal/daemon"
	"github.com/lumohealth/healthsyncd/internal/domain"
	"github.com/lumohealth/healthsyncd/internal/infra"
	"github.com/lumohealth/healthsyncd/internal/platform"
	"github.com/lumohealth/healthsyncd/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.3.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "healthsyncd",
	Short: "Health data permission and sync engine",
	Long: `healthsyncd reconciles health-data permissions against the device's
native platform (HealthKit or Health Connect) and keeps a local metric
snapshot synchronized for downstream coaching features.`,
	Version: Version,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the sync daemon in the foreground",
	Long: `Initializes the engine, runs an immediate sync, then keeps syncing
on the configured interval until interrupted.`,
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show readiness, granted permissions, and last sync",
	RunE:  runStatus,
}

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Inspect and request health permissions",
}

var permissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog permissions and their grant state",
	RunE:  runPermissionsList,
}

var permissionsRequestCmd = &cobra.Command{
	Use:   "request [id ...]",
	Short: "Request permissions (defaults to the required set)",
	Long: `Requests the given permission ids from the native platform. With no
arguments the catalog's required set is requested. Denied ids can be
remediated via 'healthsyncd settings'.`,
	RunE: runPermissionsRequest,
}

var permissionsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear persisted grants and setup state",
	RunE:  runPermissionsReset,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one forced sync immediately",
	RunE:  runSync,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Open the platform's health settings surface",
	RunE:  runSettings,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	configPath string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: $"+config.EnvConfigPath+")")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	permissionsCmd.AddCommand(permissionsListCmd)
	permissionsCmd.AddCommand(permissionsRequestCmd)
	permissionsCmd.AddCommand(permissionsResetCmd)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(permissionsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(versionCmd)
}

// buildEngine wires the engine from configuration. The caller owns the
// returned engine and must Close it.
func buildEngine(cfg config.Config, logger *zap.Logger) (*usecase.Engine, error) {
	keyProvider := infra.NewFileKeyProvider(cfg.DataDir)
	key, err := infra.EnsureKey(keyProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to provision state key: %w", err)
	}

	store, err := infra.NewEncryptedStateStore(cfg.DataDir, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	adapter := platform.Detect(platform.DetectOptions{
		Override:            domain.Platform(cfg.Platform),
		HealthKitBridge:     cfg.HealthKitBridge,
		HealthConnectBridge: cfg.HealthConnectBridge,
		SettleDelay:         cfg.SettleDelay(),
	}, &platform.RealBinaryLocator{}, logger)

	return usecase.NewEngine(usecase.EngineConfig{
		Adapter:  adapter,
		Catalog:  catalog.New(),
		Store:    store,
		Settings: platform.NewSettingsLauncher(adapter.Platform(), logger),
		Cooldown: cfg.Cooldown(),
		Logger:   logger,
	}), nil
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := createLogger(cfg)
	defer func() { _ = logger.Sync() }()

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	if err := engine.Initialize(ctx); err != nil {
		return fmt.Errorf("engine initialization failed: %w", err)
	}

	fmt.Printf("healthsyncd started (platform: %s, readiness: %s)\n",
		engine.Platform(), engine.ReadinessState())

	scheduler := daemon.NewScheduler(
		daemon.SchedulerConfig{SyncInterval: cfg.SyncInterval()},
		engine,
		logger,
	)
	if err := scheduler.Run(ctx); err != context.Canceled {
		return err
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := cliEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	if err := engine.Initialize(ctx); err != nil {
		return err
	}

	granted := engine.GrantedPermissions()
	lastSync := engine.LastSync()
	capability := engine.Capability()
	readiness := engine.ReadinessState()

	if jsonOutput {
		out, err := json.Marshal(map[string]interface{}{
			"platform":  engine.Platform(),
			"available": capability.Available,
			"readiness": readiness,
			"granted":   granted,
			"last_sync": lastSync,
		})
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println("\n=== healthsyncd Status ===")
	fmt.Printf("Platform:   %s (available: %v)\n", engine.Platform(), capability.Available)
	fmt.Printf("Readiness:  %s\n", readiness)
	if len(granted) == 0 {
		fmt.Println("Granted:    none")
	} else {
		fmt.Printf("Granted:    %s\n", strings.Join(granted, ", "))
	}
	if lastSync.IsZero() {
		fmt.Println("Last sync:  never")
	} else {
		fmt.Printf("Last sync:  %s\n", lastSync.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Println("==========================")
	return nil
}

func runPermissionsList(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := cliEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := engine.Initialize(context.Background()); err != nil {
		return err
	}

	fmt.Println("\n=== Health Permissions ===")
	for _, d := range catalog.New().All() {
		state := "not granted"
		if engine.IsPermissionGranted(d.ID) {
			state = "granted"
		}
		required := ""
		if d.Required {
			required = " (required)"
		}
		fmt.Printf("  [%-12s] %s%s - %s\n", d.Category, d.Label, required, state)
	}
	fmt.Println("==========================")
	return nil
}

func runPermissionsRequest(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := cliEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	if err := engine.Initialize(ctx); err != nil {
		return err
	}

	ids := args
	if len(ids) == 0 {
		ids = catalog.New().Required()
	}

	result, err := engine.RequestPermissions(ctx, ids)
	if err != nil {
		return err
	}

	if len(result.Granted) > 0 {
		fmt.Printf("Granted: %s\n", strings.Join(result.Granted, ", "))
	}
	if len(result.Denied) > 0 {
		fmt.Printf("Denied:  %s\n", strings.Join(result.Denied, ", "))
		fmt.Println("\nRun 'healthsyncd settings' to grant the remaining permissions manually.")
	}
	return nil
}

func runPermissionsReset(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := cliEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	if err := engine.Initialize(ctx); err != nil {
		return err
	}
	if err := engine.Reset(ctx); err != nil {
		return err
	}
	fmt.Println("Permission state cleared.")
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := cliEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	if err := engine.Initialize(ctx); err != nil {
		return err
	}

	result := engine.Sync(ctx, true)
	if result.Err != nil {
		return fmt.Errorf("sync failed: %w", result.Err)
	}

	fmt.Printf("Sync completed (run %s", result.RunID)
	if result.Fallback {
		fmt.Print(", served baseline")
	}
	fmt.Println(")")
	for id, value := range result.Data.Metrics {
		fmt.Printf("  %-24s %.1f\n", id, value)
	}
	return nil
}

func runSettings(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := cliEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := engine.OpenPlatformSettings(context.Background()); err != nil {
		return fmt.Errorf("could not open platform settings: %w", err)
	}
	fmt.Println("Opened platform health settings.")
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("healthsyncd %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

// cliEngine builds an engine with a development logger for one-shot
// commands.
func cliEngine() (*usecase.Engine, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, _ := zap.NewDevelopment()
	engine, err := buildEngine(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	cleanup := func() {
		_ = engine.Close()
		_ = logger.Sync()
	}
	return engine, cleanup, nil
}

// createLogger builds the daemon logger writing to the configured file.
func createLogger(cfg config.Config) *zap.Logger {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		logger, _ := zap.NewProduction()
		return logger
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.OutputPaths = []string{cfg.ResolvedLogFile()}
	zapConfig.ErrorOutputPaths = []string{cfg.ResolvedLogFile()}
	zapConfig.EncoderConfig.TimeKey = "time"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapConfig.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}
