package main

import (
	"fmt"

	"github.com/raaihank/phi-sentinel/internal/privacy"
	"github.com/raaihank/phi-sentinel/internal/redact"
	"github.com/spf13/cobra"
)

var redactFlags struct {
	text        string
	tokenPrefix string
	allowlist   []string
	textOnly    bool
}

var redactCmd = &cobra.Command{
	Use:   "redact [file]",
	Short: "Replace identifiers with ordinal tokens",
	Long: `Replace every detected identifier with a token such as [PHI:SSN:1].

Tokens are numbered per kind in order of appearance. The mapping in the
output holds salted fingerprints of the replaced values, never the values.

Examples:
  phi-sentinel redact notes.txt --text-only > notes.redacted.txt
  echo "SSN 123-45-6789" | phi-sentinel redact --token-prefix PII`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRedact,
}

func init() {
	rootCmd.AddCommand(redactCmd)

	redactCmd.Flags().StringVar(&redactFlags.text, "text", "", "text to redact instead of a file")
	redactCmd.Flags().StringVar(&redactFlags.tokenPrefix, "token-prefix", "", "token prefix (uses config if not specified)")
	redactCmd.Flags().StringArrayVar(&redactFlags.allowlist, "allowlist", nil, "regular expression for values never redacted, repeatable")
	redactCmd.Flags().BoolVar(&redactFlags.textOnly, "text-only", false, "print only the redacted text")
}

func runRedact(cmd *cobra.Command, args []string) error {
	text, source, err := readInput(cmd, redactFlags.text, args)
	if err != nil {
		return err
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.runtime.Engine.Redact(cmd.Context(), a.actor(source), text, redact.Config{
		Sensitivity: privacy.Sensitivity(sensitivity),
		TokenPrefix: redactFlags.tokenPrefix,
		Allowlist:   redactFlags.allowlist,
	})
	if err != nil {
		return err
	}

	if redactFlags.textOnly {
		_, err := fmt.Fprint(cmd.OutOrStdout(), result.RedactedText)
		return err
	}
	return writeJSON(cmd, result)
}
