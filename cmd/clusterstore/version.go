package main

import (
	"github.com/spf13/cobra"
)

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the clusterstore version",
		Args:  nargs(0, 0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.json {
				return a.printJSON(map[string]string{"version": version})
			}
			a.printf("clusterstore %s\n", version)
			return nil
		},
	}
}
