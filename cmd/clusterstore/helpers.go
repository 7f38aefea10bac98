package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// exitCode maps an error to the process exit status: 1 for mistakes the
// caller can fix, 2 for everything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, errors.InvalidPath),
		errors.Is(err, errors.InvalidData),
		errors.Is(err, errors.NotFound),
		errors.Is(err, errors.Conflict),
		errors.Is(err, errors.IllegalMutation),
		errors.Is(err, errors.Configuration):
		return exitUserError
	}
	return exitSysError
}

// nargs validates the positional argument count as a user error.
func nargs(lo, hi int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if len(a) < lo || (hi >= 0 && len(a) > hi) {
			return errors.Newf(errors.InvalidData, "%s: wrong number of arguments\nusage: %s", cmd.Name(), cmd.UseLine())
		}
		return nil
	}
}

func parseID(s string) (types.EntityID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return id, errors.Newf(errors.InvalidData, "invalid entity id %q", s)
	}
	return id, nil
}

// parseProps turns Name=Value pairs into property filters.
func parseProps(pairs []string) ([]types.Property, error) {
	out := make([]types.Property, 0, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, errors.Newf(errors.InvalidData, "property filter %q must be Name=Value", p)
		}
		out = append(out, types.Property{Name: name, Value: value})
	}
	return out, nil
}

// decodeRecord unmarshals a JSON record of cluster type ct.
func decodeRecord(ct types.ClusterType, data []byte) (types.Record, error) {
	rec, ok := types.NewRecord(ct)
	if !ok {
		return nil, errors.Newf(errors.InvalidPath, "unknown cluster type %q", string(ct))
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, errors.Wrap(errors.New(errors.InvalidData, err.Error()), "decoding record")
	}
	return rec, nil
}

func (a *app) printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding output")
	}
	_, err = fmt.Fprintln(a.out, string(out))
	return err
}

// printTable renders rows under header, or the rows as JSON with --json.
func (a *app) printTable(header table.Row, rows []table.Row, asJSON any) error {
	if a.json {
		return a.printJSON(asJSON)
	}
	renderTable(a.out, header, rows)
	return nil
}

func renderTable(w io.Writer, header table.Row, rows []table.Row) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
}

func (a *app) printf(format string, v ...any) {
	if !a.json {
		fmt.Fprintf(a.out, format, v...)
	}
}

func namingRows(nodes []types.NamingNode) []table.Row {
	rows := make([]table.Row, len(nodes))
	for i, n := range nodes {
		target := ""
		if n.Target.Valid {
			target = n.Target.UUID.String()
		}
		rows[i] = table.Row{n.Path, target}
	}
	return rows
}
