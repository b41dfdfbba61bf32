package main

import (
	"github.com/raaihank/phi-sentinel/internal/deid"
	"github.com/raaihank/phi-sentinel/internal/privacy"
	"github.com/spf13/cobra"
)

var validateFlags struct {
	text  string
	k     int
	quasi []string
}

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check text for remaining direct identifiers",
	Long: `Check whether de-identified text still contains direct identifiers.

The report names the kinds found and echoes the k-anonymity target and
quasi-identifiers for the record. k-anonymity itself is not computed over
free text.

Examples:
  phi-sentinel validate notes.redacted.txt --k 5 --quasi zip,birth_year`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.text, "text", "", "text to validate instead of a file")
	validateCmd.Flags().IntVar(&validateFlags.k, "k", 5, "k-anonymity target (at least 2)")
	validateCmd.Flags().StringSliceVar(&validateFlags.quasi, "quasi", nil, "quasi-identifier names")
}

func runValidate(cmd *cobra.Command, args []string) error {
	text, source, err := readInput(cmd, validateFlags.text, args)
	if err != nil {
		return err
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.runtime.Engine.Validate(cmd.Context(), a.actor(source), text, deid.KAnonymityConfig{
		K:                validateFlags.k,
		QuasiIdentifiers: splitList(validateFlags.quasi),
	}, privacy.Sensitivity(sensitivity))
	if err != nil {
		return err
	}
	return writeJSON(cmd, report)
}
