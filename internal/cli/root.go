package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/chainshadow/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	// ConfigPath is an optional YAML or TOML options file.
	ConfigPath string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for shadowctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "shadowctl",
		Short: "Shadow-mode rollout control for the option-chain collector",
		Long: `shadowctl runs the collector's phase pipeline in shadow mode, compares its
output against the reference path and decides per (index, rule) key whether
the new path may serve.

Options resolve from defaults, then --config (YAML or TOML), then
CHAINSHADOW_<OPTION> environment variables.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "options file (.yaml, .yml or .toml)")

	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// loadOptions resolves options for a command. Failures are command errors.
func loadOptions(opts *RootOptions) (config.Options, error) {
	o, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Options{}, WrapExitError(ExitCommandError, "failed to load options", err)
	}
	return o, nil
}
