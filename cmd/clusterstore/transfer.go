package main

import (
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/store"
)

func (a *app) exportCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "export <dir>",
		Short: "Write every table to one CSV file per table",
		Example: `  clusterstore export ./dump
  clusterstore export ./dump --from 2024-01-01T00:00:00Z --to 2024-07-01T00:00:00Z`,
		Args: nargs(1, 1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			var (
				w   store.Window
				err error
			)
			if w.From, err = parseTime("from", from); err != nil {
				return err
			}
			if w.To, err = parseTime("to", to); err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *store.Store, _ *store.Tx) error {
				counts, err := s.Export(cmd.Context(), argv[0], w)
				if err != nil {
					return err
				}
				return a.printCounts(counts)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "only entities with audit events at or after this RFC 3339 time")
	cmd.Flags().StringVar(&to, "to", "", "only entities with audit events before this RFC 3339 time")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Upsert the CSV files written by export",
		Args:  nargs(1, 1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store, _ *store.Tx) error {
				counts, err := s.Import(cmd.Context(), argv[0], batch)
				if err != nil {
					return err
				}
				return a.printCounts(counts)
			})
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "rows per committed batch (0 for the default)")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show row counts and connection pool usage",
		Args:  nargs(0, 0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store, _ *store.Tx) error {
				st, err := s.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if a.json {
					return a.printJSON(st)
				}
				renderTable(a.out, table.Row{"Table", "Rows"}, countRows(st.Rows))
				renderTable(a.out, table.Row{"Dialect", "Open", "In use", "Idle", "Reserved", "Waits"}, []table.Row{{
					st.Dialect, st.Pool.OpenConnections, st.Pool.InUse, st.Pool.Idle, st.Reserved, st.Pool.WaitCount,
				}})
				return nil
			})
		},
	}
}

func (a *app) printCounts(counts map[string]int64) error {
	return a.printTable(table.Row{"Table", "Rows"}, countRows(counts), counts)
}

func countRows(counts map[string]int64) []table.Row {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([]table.Row, len(names))
	for i, name := range names {
		rows[i] = table.Row{name, counts[name]}
	}
	return rows
}

func parseTime(flag, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return t, errors.Newf(errors.InvalidData, "--%s: invalid RFC 3339 time %q", flag, s)
	}
	return t, nil
}
