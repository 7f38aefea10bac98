package main

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/clusterstore/pkg/store"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

var roleHeader = table.Row{"Role", "Job list", "Permissions"}

func (a *app) roleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles and the agents holding them",
	}
	cmd.AddCommand(
		a.roleCreateCmd(),
		a.roleShowCmd(),
		a.roleRmCmd(),
		a.roleGrantCmd(),
		a.roleRevokeCmd(),
		a.roleAgentsCmd(),
		a.roleOfCmd(),
	)
	return cmd
}

func (a *app) roleCreateCmd() *cobra.Command {
	var (
		jobList bool
		perms   []string
	)
	cmd := &cobra.Command{
		Use:   "create <path>",
		Short: "Create a role below " + types.RoleRoot,
		Example: `  clusterstore role create /role/User
  clusterstore role create /role/User/Clerk --joblist --perm Doc:*:read`,
		Args: nargs(1, 1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			role := types.Role{Path: argv[0], JobList: jobList, Permissions: perms}
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				if err := s.CreateRole(cmd.Context(), tx, role); err != nil {
					return err
				}
				a.printf("created %s\n", argv[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jobList, "joblist", false, "agents holding the role keep a job list")
	cmd.Flags().StringArrayVar(&perms, "perm", nil, "permission granted by the role (repeatable)")
	return cmd
}

func (a *app) roleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <path|name>",
		Short: "Print a role by path, or by its last path segment",
		Args:  nargs(1, 1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				var (
					r   types.Role
					err error
				)
				if strings.HasPrefix(argv[0], types.PathDelimiter) {
					r, err = s.Role(cmd.Context(), tx, argv[0])
				} else {
					r, err = s.RoleByName(cmd.Context(), tx, argv[0])
				}
				if err != nil {
					return err
				}
				return a.printTable(roleHeader, roleRows([]types.Role{r}), r)
			})
		},
	}
}

func (a *app) roleRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a role without child roles",
		Args:  nargs(1, 1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				if err := s.DeleteRole(cmd.Context(), tx, argv[0]); err != nil {
					return err
				}
				a.printf("deleted %s\n", argv[0])
				return nil
			})
		},
	}
}

func (a *app) roleGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <agent-id> <path>",
		Short: "Give an agent a role",
		Args:  nargs(2, 2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id, err := parseID(argv[0])
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				if err := s.AddRole(cmd.Context(), tx, id, argv[1]); err != nil {
					return err
				}
				a.printf("granted %s to %s\n", argv[1], id)
				return nil
			})
		},
	}
}

func (a *app) roleRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <agent-id> <path>",
		Short: "Take a role from an agent",
		Args:  nargs(2, 2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id, err := parseID(argv[0])
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				if err := s.RemoveRole(cmd.Context(), tx, id, argv[1]); err != nil {
					return err
				}
				a.printf("revoked %s from %s\n", argv[1], id)
				return nil
			})
		},
	}
}

func (a *app) roleAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents <path>",
		Short: "List the agents holding a role",
		Args:  nargs(1, 1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				ids, err := s.Agents(cmd.Context(), tx, argv[0])
				if err != nil {
					return err
				}
				rows := make([]table.Row, len(ids))
				for i, id := range ids {
					rows[i] = table.Row{id.String()}
				}
				return a.printTable(table.Row{"Agent"}, rows, ids)
			})
		},
	}
}

func (a *app) roleOfCmd() *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "of <agent-id>",
		Short: "List the roles an agent holds",
		Args:  nargs(1, 1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id, err := parseID(argv[0])
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *store.Store, tx *store.Tx) error {
				roles, err := s.Roles(cmd.Context(), tx, id, offset, limit)
				if err != nil {
					return err
				}
				return a.printTable(roleHeader, roleRows(roles), roles)
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many roles")
	cmd.Flags().IntVar(&limit, "limit", 0, "return at most this many roles (0 for all)")
	return cmd
}

func roleRows(roles []types.Role) []table.Row {
	rows := make([]table.Row, len(roles))
	for i, r := range roles {
		rows[i] = table.Row{r.Path, r.JobList, strings.Join(r.Permissions, ", ")}
	}
	return rows
}
