package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"finqueue/internal/database"
	"finqueue/internal/export"
	"finqueue/internal/models"

	"github.com/spf13/cobra"
)

// rootOptions holds the global flags shared by all subcommands.
type rootOptions struct {
	dbPath string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "queuectl",
		Short:         "Inspect and repair the offline delivery queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "data/queue.db", "path to the queue database")

	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newShowCommand(opts))
	cmd.AddCommand(newDeadCommand(opts))
	cmd.AddCommand(newRequeueCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newExportCommand(opts))

	return cmd
}

func openDB(opts *rootOptions) (*database.DB, error) {
	if _, err := os.Stat(opts.dbPath); err != nil {
		return nil, fmt.Errorf("queue database %s: %w", opts.dbPath, err)
	}
	return database.NewDB(opts.dbPath)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid entry id %q", arg)
	}
	return id, nil
}

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all queued entries in delivery order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := db.GetAllEntries(cmd.Context())
			if err != nil {
				return err
			}
			printEntries(cmd, entries)
			return nil
		},
	}
}

func newShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one entry including its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			db, err := openDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			entry, err := db.GetEntry(cmd.Context(), id)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(entry, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newDeadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dead",
		Short: "List entries that exhausted their retries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := db.GetDeadEntries(cmd.Context())
			if err != nil {
				return err
			}
			printEntries(cmd, entries)
			return nil
		},
	}
}

func newRequeueCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <id>",
		Short: "Reset a dead entry for another round of delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			db, err := openDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.RequeueEntry(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entry %d requeued\n", id)
			return nil
		},
	}
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove an entry permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			db, err := openDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.DeleteEntry(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entry %d deleted\n", id)
			return nil
		},
	}
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the queue to an xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := db.GetAllEntries(cmd.Context())
			if err != nil {
				return err
			}

			if output == "" {
				output = fmt.Sprintf("queue_%s.xlsx", time.Now().Format("20060102_150405"))
			}
			if err := export.WriteFile(output, entries); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", len(entries), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path")
	return cmd
}

func printEntries(cmd *cobra.Command, entries []models.QueueEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
		return
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tRETRIES\tCREATED\tLAST ERROR")
	for i := range entries {
		e := &entries[i]
		lastError := ""
		if e.LastError != nil {
			lastError = *e.LastError
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.Type, e.Status, e.Retries,
			e.CreatedAt.Format(time.RFC3339), lastError)
	}
	w.Flush()
}
