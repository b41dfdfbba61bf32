package main

import (
	"github.com/raaihank/phi-sentinel/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Serve health, metrics and the live event feed",
	Long: `Serve the operational HTTP surface until interrupted:

  /health   liveness
  /info     detector configuration
  /metrics  Prometheus metrics
  /ws       WebSocket feed of progress and audit events

Other commands serve the same surface while they run when monitor.enabled
is set in the configuration.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if a.monitor == nil {
		a.startMonitor(cmd.Context())
	}

	err = config.Watch(func(next *config.Config) {
		a.log.Info("Configuration changed; restart to apply",
			zap.String("sensitivity", next.Detection.Sensitivity),
			zap.Int("pattern_files", len(next.Detection.PatternFiles)),
		)
	}, func(err error) {
		a.log.Warn("Ignoring invalid configuration change", zap.Error(err))
	})
	if err != nil {
		a.log.Debug("Configuration watch disabled", zap.Error(err))
	}

	select {
	case <-cmd.Context().Done():
		return nil
	case err := <-a.done:
		a.stop = nil
		return err
	}
}
