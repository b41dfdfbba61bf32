package main

import (
	"github.com/raaihank/phi-sentinel/internal/privacy"
	"github.com/spf13/cobra"
)

var detectFlags struct {
	text      string
	allowlist []string
	reduced   bool
}

var detectCmd = &cobra.Command{
	Use:   "detect [file]",
	Short: "Detect identifiers in text",
	Long: `Detect identifiers in a file, in --text, or on stdin.

The result lists every accepted span with its kind, byte offsets, source and
confidence. Use --reduced to omit the matched text from the output.

Examples:
  phi-sentinel detect notes.txt
  phi-sentinel detect --text "call 555-123-4567" --sensitivity low
  cat notes.txt | phi-sentinel detect --allowlist '^555-0100$' --reduced`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringVar(&detectFlags.text, "text", "", "text to scan instead of a file")
	detectCmd.Flags().StringArrayVar(&detectFlags.allowlist, "allowlist", nil, "regular expression for values never reported, repeatable (uses config if not specified)")
	detectCmd.Flags().BoolVar(&detectFlags.reduced, "reduced", false, "omit matched text from the output")
}

func runDetect(cmd *cobra.Command, args []string) error {
	text, source, err := readInput(cmd, detectFlags.text, args)
	if err != nil {
		return err
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.runtime.Engine.Detect(cmd.Context(), a.actor(source), text, privacy.Sensitivity(sensitivity), detectFlags.allowlist)
	if err != nil {
		return err
	}

	if detectFlags.reduced {
		for i, d := range result.Detections {
			result.Detections[i] = d.Reduced()
		}
	}
	return writeJSON(cmd, result)
}
