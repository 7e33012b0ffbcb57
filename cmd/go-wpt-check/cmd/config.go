package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrz1836/go-wpt-check/internal/config"
	"github.com/mrz1836/go-wpt-check/internal/publish"
)

// BuildConfigCmd creates the config command
func (cb *CommandBuilder) BuildConfigCmd() *cobra.Command {
	var validate, showTemplate bool
	var envFiles []string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration help",
		Long:  "Show the environment variables and settings file keys go-wpt-check reads, or the built-in comment template.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showTemplate {
				_, err := fmt.Fprint(cmd.OutOrStdout(), publish.DefaultTemplate())
				return err
			}
			if !validate {
				_, err := fmt.Fprint(cmd.OutOrStdout(), config.GetConfigHelp())
				return err
			}

			cfg, err := config.Load(envFiles...)
			if err != nil {
				return err
			}
			if _, err := cfg.TestOptions(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (%d url(s))\n", len(cfg.URLList()))
			return err
		},
	}

	cmd.Flags().BoolVar(&validate, "validate", false, "Load and validate the configuration instead of printing help")
	cmd.Flags().BoolVar(&showTemplate, "template", false, "Print the built-in comment template")
	cmd.Flags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "Environment files to load when present")

	return cmd
}
