package main

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/clusterstore/pkg/store"
)

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml and create the tables",
		Args:  nargs(0, 0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			wrote, err := ensureDefaultConfigFile(a.configDir)
			if err != nil {
				return err
			}
			if wrote {
				if a.v, err = loadConfig(a.configDir); err != nil {
					return err
				}
			}
			cfg, err := a.storeConfig()
			if err != nil {
				return err
			}
			s, err := store.Open(cmd.Context(), cfg, store.WithLogger(a.logger()))
			if err != nil {
				return err
			}
			defer s.Close()

			if a.json {
				return a.printJSON(map[string]string{"config": a.configDir, "dialect": cfg.Dialect, "data": cfg.DataDir})
			}
			a.printf("clusterstore initialized\n  config:  %s\n  dialect: %s\n", a.configDir, cfg.Dialect)
			if cfg.DataDir != "" {
				a.printf("  data:    %s\n", cfg.DataDir)
			}
			return nil
		},
	}
}
