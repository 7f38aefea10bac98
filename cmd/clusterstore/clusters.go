package main

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/store"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id> <path>",
		Short: "Print the record at a complete cluster path",
		Example: `  clusterstore get 6f1b3a84-1c1e-4f57-9d0f-0b6f2a1f0a01 Property/Type
  clusterstore get 6f1b3a84-1c1e-4f57-9d0f-0b6f2a1f0a01 Outcome/Foo/0/1`,
		Args: nargs(2, 2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id, err := parseID(argv[0])
			if err != nil {
				return err
			}
			path, err := types.ParseClusterPath(argv[1])
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				rec, err := s.Get(cmd.Context(), tx, id, path)
				if err != nil {
					return err
				}
				return a.printJSON(rec)
			})
		},
	}
}

func (a *app) putCmd() *cobra.Command {
	var (
		file   string
		insert bool
	)
	cmd := &cobra.Command{
		Use:   "put <id> <type>",
		Short: "Store a JSON record read from --file or stdin",
		Example: `  echo '{"name":"Type","value":"Doc"}' | clusterstore put 6f1b3a84-1c1e-4f57-9d0f-0b6f2a1f0a01 Property
  clusterstore put 6f1b3a84-1c1e-4f57-9d0f-0b6f2a1f0a01 Outcome --file outcome.json --insert`,
		Args: nargs(2, 2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id, err := parseID(argv[0])
			if err != nil {
				return err
			}
			ct, err := types.ParseClusterType(argv[1])
			if err != nil {
				return err
			}
			data, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(ct, data)
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				put := s.Put
				if insert {
					put = s.Insert
				}
				n, err := put(cmd.Context(), tx, id, rec)
				if err != nil {
					return err
				}
				if a.json {
					return a.printJSON(map[string]any{"path": types.PathOf(rec).String(), "rows": n})
				}
				a.printf("stored %s (%d rows)\n", types.PathOf(rec), n)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the record from this file instead of stdin")
	cmd.Flags().BoolVar(&insert, "insert", false, "fail with a conflict instead of updating an existing record")
	return cmd
}

func readInput(stdin io.Reader, file string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if file != "" {
		data, err = os.ReadFile(file)
	} else {
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return nil, errors.Wrap(errors.New(errors.InvalidData, err.Error()), "reading record")
	}
	return data, nil
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <id> [path]",
		Short: "List an entity's cluster types, or the next keys under a path",
		Example: `  clusterstore list 6f1b3a84-1c1e-4f57-9d0f-0b6f2a1f0a01
  clusterstore list 6f1b3a84-1c1e-4f57-9d0f-0b6f2a1f0a01 Outcome/Foo`,
		Args: nargs(1, 2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id, err := parseID(argv[0])
			if err != nil {
				return err
			}
			path := ""
			if len(argv) == 2 {
				path = argv[1]
			}
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				keys, err := s.List(cmd.Context(), tx, id, path)
				if err != nil {
					return err
				}
				header := table.Row{"Cluster"}
				if path != "" {
					header = table.Row{"Key"}
				}
				rows := make([]table.Row, len(keys))
				for i, k := range keys {
					rows[i] = table.Row{k}
				}
				return a.printTable(header, rows, keys)
			})
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id> <path>",
		Short: "Delete the record at a path, or every record under a partial path",
		Args:  nargs(2, 2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id, err := parseID(argv[0])
			if err != nil {
				return err
			}
			path, err := types.ParseClusterPath(argv[1])
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				n, err := s.Delete(cmd.Context(), tx, id, path)
				if err != nil {
					return err
				}
				if a.json {
					return a.printJSON(map[string]int64{"rows": n})
				}
				a.printf("deleted %d rows\n", n)
				return nil
			})
		},
	}
}

func (a *app) eraseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "erase <id>",
		Short: "Remove an entity, its clusters and the naming nodes targeting it",
		Args:  nargs(1, 1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id, err := parseID(argv[0])
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				n, err := s.Erase(cmd.Context(), tx, id)
				if err != nil {
					return err
				}
				if a.json {
					return a.printJSON(map[string]int64{"rows": n})
				}
				a.printf("erased %s (%d rows)\n", id, n)
				return nil
			})
		},
	}
}

func (a *app) registerCmd() *cobra.Command {
	var (
		address   string
		agent     string
		password  string
		temporary bool
	)
	cmd := &cobra.Command{
		Use:   "register <id>",
		Short: "Add an entity, or an agent with --agent, to the directory",
		Args:  nargs(1, 1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id, err := parseID(argv[0])
			if err != nil {
				return err
			}
			if agent == "" && password != "" {
				return errors.New(errors.InvalidData, "--password needs --agent")
			}
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				var err error
				if agent != "" {
					err = s.RegisterAgent(cmd.Context(), tx, id, agent, address, password, temporary)
				} else {
					err = s.RegisterItem(cmd.Context(), tx, id, address)
				}
				if err != nil {
					return err
				}
				e, err := s.Entity(cmd.Context(), tx, id)
				if err != nil {
					return err
				}
				if a.json {
					return a.printJSON(e)
				}
				a.printf("registered %s\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "network address of the entity")
	cmd.Flags().StringVar(&agent, "agent", "", "register an agent with this name")
	cmd.Flags().StringVar(&password, "password", "", "agent password")
	cmd.Flags().BoolVar(&temporary, "temporary", false, "mark the agent password as temporary")
	return cmd
}
