package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/raaihank/phi-sentinel/internal/config"
	"github.com/raaihank/phi-sentinel/internal/privacy"
	"github.com/spf13/cobra"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the identifier kinds and their patterns",
	Long: `List every identifier kind the detector recognizes, including kinds
added by the configured pattern packs, with the patterns matching each.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		rules, err := privacy.LoadPatternPacks(cfg.Detection.PatternFiles...)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tPATTERNS")
		for _, rule := range privacy.NewRegistry(rules...).Rules() {
			for i, re := range rule.Matchers {
				kind := string(rule.Kind)
				if i > 0 {
					kind = ""
				}
				fmt.Fprintf(w, "%s\t%s\n", kind, re.String())
			}
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(kindsCmd)
}
