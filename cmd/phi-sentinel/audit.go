package main

import (
	"fmt"
	"strings"

	"github.com/raaihank/phi-sentinel/internal/audit"
	"github.com/spf13/cobra"
)

var auditFlags struct {
	limit    int
	action   string
	metadata []string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read and append audit events",
	Long: `Read and append events of a project's audit trail.

Every detect, scan, redact and validate command appends one event to the
trail of --project. Events record kinds, counts and outcomes only.`,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the most recent events of a project",
	Long: `Print the most recent events of a project, oldest first, one JSON
object per line.

Examples:
  phi-sentinel audit tail --project study-42
  phi-sentinel audit tail --project study-42 --limit 0   # every event`,
	Args: cobra.NoArgs,
	RunE: runAuditTail,
}

var auditLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Append a custom event",
	Long: `Append a custom event to a project's trail, for actions taken outside
the engine such as exports or reviews.

Examples:
  phi-sentinel audit log --project study-42 --action export --resource batch-7 --meta rows=1200`,
	Args: cobra.NoArgs,
	RunE: runAuditLog,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditLogCmd)

	auditTailCmd.Flags().IntVarP(&auditFlags.limit, "limit", "n", 50, "number of events, 0 for all")

	auditLogCmd.Flags().StringVar(&auditFlags.action, "action", "", "action name (required)")
	auditLogCmd.Flags().StringSliceVar(&auditFlags.metadata, "meta", nil, "metadata as key=value")
	auditLogCmd.MarkFlagRequired("action")
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	events, err := a.runtime.Engine.GetEvents(cmd.Context(), projectID, auditFlags.limit)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := writeJSON(cmd, ev); err != nil {
			return err
		}
	}
	return nil
}

func runAuditLog(cmd *cobra.Command, args []string) error {
	metadata := make(map[string]any, len(auditFlags.metadata))
	for _, kv := range auditFlags.metadata {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid metadata %q (expected key=value)", kv)
		}
		metadata[key] = value
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	actor := a.actor("")
	event, err := a.runtime.Engine.LogEvent(cmd.Context(), audit.Event{
		ProjectID:   actor.ProjectID,
		UserID:      actor.UserID,
		Action:      audit.Action(auditFlags.action),
		ResourceID:  actor.ResourceID,
		Metadata:    metadata,
		UserContext: actor.UserContext,
	})
	if err != nil {
		return err
	}
	return writeJSON(cmd, event)
}
