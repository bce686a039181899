package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chainshadow/internal/journal"
	"github.com/roach88/chainshadow/internal/pipeline"
)

// JournalOptions holds flags shared by the journal subcommands.
type JournalOptions struct {
	*RootOptions
	DB    string
	Index string
	Rule  string
	Limit int
}

// NewJournalCommand creates the journal command group.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the decision journal",
		Long: `Read gating decisions and structured error exports from the SQLite journal.

The journal is an audit trail. It is never replayed into the window store.`,
	}

	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "journal path (defaults to journal_path)")
	cmd.PersistentFlags().StringVar(&opts.Index, "index", "", "filter by index")
	cmd.PersistentFlags().StringVar(&opts.Rule, "rule", "", "filter by rule")

	decisions := &cobra.Command{
		Use:           "decisions",
		Short:         "List gating decisions, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalDecisions(opts, cmd)
		},
	}
	decisions.Flags().IntVar(&opts.Limit, "limit", 20, "maximum rows (0 for all)")

	exports := &cobra.Command{
		Use:           "exports",
		Short:         "List distinct error exports for one key",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalExports(opts, cmd)
		},
	}

	cmd.AddCommand(decisions, exports)
	return cmd
}

// openJournal opens an existing journal read side. It refuses to create one.
func openJournal(opts *JournalOptions) (*journal.Store, error) {
	path := opts.DB
	if path == "" {
		o, err := loadOptions(opts.RootOptions)
		if err != nil {
			return nil, err
		}
		path = o.JournalPath
	}
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no journal: pass --db or set journal_path")
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", path))
	}
	st, err := journal.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return st, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runJournalDecisions(opts *JournalOptions, cmd *cobra.Command) error {
	st, err := openJournal(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.ListDecisions(commandContext(cmd), journal.Filter{
		Index: opts.Index, Rule: opts.Rule, Limit: opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read decisions", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return out.Render(entries, func(w io.Writer) error {
		if len(entries) == 0 {
			fmt.Fprintln(w, "No decisions found.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SEQ\tCYCLE\tKEY\tMODE\tREASON\tPROMOTE\tCANARY\tDIFFS\tHASH\tRECORDED")
		for _, e := range entries {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%v\t%v\t%s\t%s\t%s\n",
				e.Seq, e.CycleID, e.Key, e.Decision.Mode, e.Decision.Reason,
				e.Decision.Promote, e.Decision.Canary, diffList(e.DiffFields),
				e.ParityHash, e.RecordedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	})
}

func runJournalExports(opts *JournalOptions, cmd *cobra.Command) error {
	if opts.Index == "" || opts.Rule == "" {
		return NewExitError(ExitCommandError, "exports requires --index and --rule")
	}
	st, err := openJournal(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	key := pipeline.Key{Index: opts.Index, Rule: opts.Rule}
	entries, err := st.ListErrorExports(commandContext(cmd), key)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read error exports", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return out.Render(entries, func(w io.Writer) error {
		if len(entries) == 0 {
			fmt.Fprintf(w, "No error exports for %s.\n", key)
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(w, "%s  records=%d seen=%d first=%s last=%s\n",
				e.Export.Hash, e.Export.Count, e.SeenCount, e.FirstCycle, e.LastCycle)
			for _, r := range e.Export.Records {
				fmt.Fprintf(w, "  %s (attempt %d)\n", r.Token, r.Attempt)
			}
		}
		return nil
	})
}

func diffList(fields []string) string {
	if len(fields) == 0 {
		return "-"
	}
	return strings.Join(fields, ",")
}
