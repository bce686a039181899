package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/chainshadow/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or validate resolved options",
	}

	show := &cobra.Command{
		Use:           "show",
		Short:         "Print the resolved options",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := loadOptions(rootOpts)
			if err != nil {
				return err
			}
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Render(o, func(w io.Writer) error {
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(o); err != nil {
					return err
				}
				return enc.Close()
			})
		},
	}

	validate := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate an options file and the environment",
		Long: `Validate resolves options exactly like every other command and reports the
first problem. The file argument overrides --config.

Exit codes:
  0 - Options are valid
  2 - Options are invalid or the file cannot be read`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.ConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}

			if _, err := config.Load(path); err != nil {
				code := "E_CONFIG_IO"
				if config.IsConfigError(err) {
					code = "E_CONFIG_INVALID"
				}
				if outErr := out.Error(code, err.Error(), map[string]string{"path": path}); outErr != nil {
					return outErr
				}
				return WrapExitError(ExitCommandError, "invalid options", err)
			}
			return out.Render(map[string]any{"valid": true, "path": path}, func(w io.Writer) error {
				if path == "" {
					fmt.Fprintln(w, "✓ defaults and environment are valid")
					return nil
				}
				fmt.Fprintf(w, "✓ %s is valid\n", path)
				return nil
			})
		},
	}

	cmd.AddCommand(show, validate)
	return cmd
}
