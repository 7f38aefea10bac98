package main

import (
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/clusterstore/pkg/store"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

var namingHeader = table.Row{"Path", "Target"}

func (a *app) pathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Manage the naming tree",
	}
	cmd.AddCommand(
		a.pathAddCmd(),
		a.pathRmCmd(),
		a.pathResolveCmd(),
		a.pathChildrenCmd(),
		a.pathSearchCmd(),
		a.pathAliasesCmd(),
	)
	return cmd
}

func (a *app) pathAddCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Add a naming node and its missing ancestors",
		Example: `  clusterstore path add /domain/docs/report --target 6f1b3a84-1c1e-4f57-9d0f-0b6f2a1f0a01
  clusterstore path add /domain/empty`,
		Args: nargs(1, 1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id := uuid.Nil
			if target != "" {
				var err error
				if id, err = parseID(target); err != nil {
					return err
				}
			}
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				if err := s.AddPath(cmd.Context(), tx, argv[0], id); err != nil {
					return err
				}
				a.printf("added %s\n", argv[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "entity the node resolves to (omit for a directory node)")
	return cmd
}

func (a *app) pathRmCmd() *cobra.Command {
	var tree bool
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a leaf node, or a whole subtree with --tree",
		Args:  nargs(1, 1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				if !tree {
					if err := s.RemovePath(cmd.Context(), tx, argv[0]); err != nil {
						return err
					}
					a.printf("removed %s\n", argv[0])
					return nil
				}
				n, err := s.RemoveTree(cmd.Context(), tx, argv[0])
				if err != nil {
					return err
				}
				if a.json {
					return a.printJSON(map[string]int64{"rows": n})
				}
				a.printf("removed %d nodes under %s\n", n, argv[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "remove the node and every descendant")
	return cmd
}

func (a *app) pathResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <path>",
		Short: "Print the entity a naming path resolves to",
		Args:  nargs(1, 1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				id, err := s.Resolve(cmd.Context(), tx, argv[0])
				if err != nil {
					return err
				}
				if a.json {
					return a.printJSON(map[string]string{"path": argv[0], "target": id.String()})
				}
				a.printf("%s\n", id)
				return nil
			})
		},
	}
}

func (a *app) pathChildrenCmd() *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "children <path>",
		Short: "List the direct children of a node",
		Args:  nargs(1, 1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				nodes, err := s.Children(cmd.Context(), tx, argv[0], offset, limit)
				if err != nil {
					return err
				}
				total, err := s.CountChildren(cmd.Context(), tx, argv[0])
				if err != nil {
					return err
				}
				if err := a.printTable(namingHeader, namingRows(nodes), nodes); err != nil {
					return err
				}
				a.printf("%d of %d children\n", len(nodes), total)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many children")
	cmd.Flags().IntVar(&limit, "limit", 0, "return at most this many children (0 for all)")
	return cmd
}

func (a *app) pathSearchCmd() *cobra.Command {
	var (
		exact bool
		props []string
	)
	cmd := &cobra.Command{
		Use:   "search <root> [name]",
		Short: "Search below a root by name or by entity properties",
		Example: `  clusterstore path search /domain report
  clusterstore path search /domain report --exact
  clusterstore path search /domain --prop Type=Doc --prop State=Open`,
		Args: nargs(1, 2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			name := ""
			if len(argv) == 2 {
				name = argv[1]
			}
			filter, err := parseProps(props)
			if err != nil {
				return err
			}
			mode := types.Wildcard
			if exact {
				mode = types.ExactName
			}
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				var (
					nodes []types.NamingNode
					err   error
				)
				if len(filter) > 0 {
					nodes, err = s.SearchByProperties(cmd.Context(), tx, argv[0], filter...)
				} else {
					nodes, err = s.Search(cmd.Context(), tx, argv[0], name, mode)
				}
				if err != nil {
					return err
				}
				return a.printTable(namingHeader, namingRows(nodes), nodes)
			})
		},
	}
	cmd.Flags().BoolVar(&exact, "exact", false, "match the last path segment exactly")
	cmd.Flags().StringArrayVar(&props, "prop", nil, "match entities holding this Name=Value property (repeatable)")
	return cmd
}

func (a *app) pathAliasesCmd() *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "aliases <id>",
		Short: "List the naming nodes that resolve to an entity",
		Args:  nargs(1, 1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id, err := parseID(argv[0])
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				nodes, err := s.Aliases(cmd.Context(), tx, id, offset, limit)
				if err != nil {
					return err
				}
				return a.printTable(namingHeader, namingRows(nodes), nodes)
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many nodes")
	cmd.Flags().IntVar(&limit, "limit", 0, "return at most this many nodes (0 for all)")
	return cmd
}
