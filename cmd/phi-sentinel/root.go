package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/raaihank/phi-sentinel/internal/config"
	"github.com/raaihank/phi-sentinel/internal/engine"
	"github.com/raaihank/phi-sentinel/internal/logger"
	"github.com/raaihank/phi-sentinel/internal/monitor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	cfgFile     string
	projectID   string
	userID      string
	resourceID  string
	sensitivity string
	pretty      bool
)

var rootCmd = &cobra.Command{
	Use:   "phi-sentinel",
	Short: "PHI-Sentinel - detect and redact protected health information",
	Long: `PHI-Sentinel detects protected health information in free text using
pattern matching with optional statistical entity recognition.

It provides:
  - Detection with tunable sensitivity and allowlists
  - Batch scans over CSV, JSON-lines and Parquet files
  - Windowed scans of arbitrarily large inputs
  - Redaction with ordinal tokens and salted fingerprints
  - A per-project append-only audit trail`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&projectID, "project", "default", "project the audit events belong to")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "user recorded on audit events (defaults to $USER)")
	rootCmd.PersistentFlags().StringVar(&resourceID, "resource", "", "resource id recorded on audit events")
	rootCmd.PersistentFlags().StringVarP(&sensitivity, "sensitivity", "s", "", "low, medium, high or paranoid (uses config if not specified)")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "indent JSON output")
}

// app is what every engine-backed command runs against
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	runtime *engine.Runtime
	monitor *monitor.Server
	stop    context.CancelFunc
	done    chan error
}

// setup loads configuration, builds the engine and, when the monitor is
// enabled, serves it for the lifetime of the command
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}
	log, err := logger.New(loggerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	rt, err := engine.Build(cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, runtime: rt}
	if cfg.Monitor.Enabled {
		a.startMonitor(cmd.Context())
	}
	return a, nil
}

func (a *app) startMonitor(ctx context.Context) {
	a.monitor = monitor.New(a.cfg.Monitor, a.cfg.Detection.Sensitivity, a.runtime.Engine.Detector(), a.runtime.Metrics, a.log)
	a.runtime.Engine.SetObserver(a.monitor)

	ctx, a.stop = context.WithCancel(ctx)
	a.done = make(chan error, 1)
	go func() { a.done <- a.monitor.Run(ctx) }()
}

func (a *app) close() {
	if a.stop != nil {
		a.stop()
		if err := <-a.done; err != nil {
			a.log.Error("Monitor server failed", zap.Error(err))
		}
	}
	if err := a.runtime.Close(); err != nil {
		a.log.Warn("Failed to close engine", zap.Error(err))
	}
	a.log.Sync()
}

// actor identifies the caller; source names the input when --resource is unset
func (a *app) actor(source string) engine.Actor {
	resource := resourceID
	if resource == "" {
		resource = source
	}
	user := userID
	if user == "" {
		user = os.Getenv("USER")
	}
	return engine.Actor{
		ProjectID:  projectID,
		UserID:     user,
		ResourceID: resource,
		UserContext: map[string]string{
			"client": "phi-sentinel-cli",
			"host":   hostname(),
		},
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// readInput returns --text when set, otherwise the named file, otherwise
// stdin, along with a name for where it came from
func readInput(cmd *cobra.Command, text string, args []string) (string, string, error) {
	if text != "" {
		return text, "", nil
	}
	if len(args) > 0 && args[0] != "-" {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to read input: %w", err)
		}
		return string(b), args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(b), "stdin", nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
