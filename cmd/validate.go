package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/schc/internal/config"
	"firestige.xyz/schc/internal/rules"
	"firestige.xyz/schc/internal/sink"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load a configuration file, its rules file and sink options without starting
anything.

Examples:
  schc validate -c config.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(configFile, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	n := 0
	if cfg.RulesFile != "" {
		t, err := rules.Load(cfg.RulesFile, cfg.ProfileSpec())
		if err != nil {
			return err
		}
		n = t.Len()
	}

	sinks, err := sink.FromConfig(cfg.Sinks)
	if err != nil {
		return err
	}
	defer sinks.Close()

	fmt.Fprintf(out, "VALID: profile %s, %d rule(s), %d sink(s), listen %s\n",
		cfg.Profile, n, len(sinks), cfg.Transport.Listen)
	return nil
}
