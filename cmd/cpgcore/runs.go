package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cpgcore/internal/runlog"
)

func (a *app) runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run ledger",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			store, err := runlog.Open(cmd.Context(), a.cfg.Runs)
			if err != nil {
				return fmt.Errorf("open run store: %w", err)
			}
			defer func() { err = errors.Join(err, store.Close()) }()
			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tROWS\tARTIFACTS")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
					rec.ID, rec.Status, rec.StartedAt.UTC().Format(time.RFC3339),
					rec.Duration(), rec.Counts["expanded_rows"], len(rec.Artifacts))
			}
			return w.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Print one run record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			store, err := runlog.Open(cmd.Context(), a.cfg.Runs)
			if err != nil {
				return fmt.Errorf("open run store: %w", err)
			}
			defer func() { err = errors.Join(err, store.Close()) }()
			rec, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	})
	return cmd
}
