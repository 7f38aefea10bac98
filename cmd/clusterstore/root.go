package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/clusterstore/internal/logger"
	"github.com/mesh-intelligence/clusterstore/internal/paths"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/store"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// app carries the global flags and the loaded configuration to every
// subcommand.
type app struct {
	out io.Writer

	configDir string
	dataDir   string
	json      bool
	verbose   bool

	v *viper.Viper
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:           "clusterstore",
		Short:         "clusterstore manages entity clusters and the naming tree",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configDir, err := paths.ResolveConfigDir(a.configDir)
			if err != nil {
				return err
			}
			a.configDir = configDir
			a.v, err = loadConfig(configDir)
			return err
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&a.dataDir, "data-dir", "", "SQLite data directory (default: platform data dir)")
	pf.BoolVar(&a.json, "json", false, "output as JSON")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log SQL to stderr")

	root.AddCommand(
		a.versionCmd(),
		a.initCmd(),
		a.getCmd(),
		a.putCmd(),
		a.listCmd(),
		a.deleteCmd(),
		a.eraseCmd(),
		a.registerCmd(),
		a.pathCmd(),
		a.roleCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.statsCmd(),
	)
	return root
}

// storeConfig builds the store configuration from config.yaml, the
// environment and the flags.
func (a *app) storeConfig() (types.Config, error) {
	cfg, err := decodeConfig(a.v)
	if err != nil {
		return cfg, err
	}
	if cfg.Dialect == types.DialectSQLite && cfg.URI == "" {
		if cfg.DataDir, err = paths.ResolveDataDir(a.dataDir, cfg.DataDir); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func (a *app) logger() logger.Logger {
	if a.verbose {
		return logger.NewVerboseLogger(os.Stderr)
	}
	return logger.NopLogger
}

// withStore opens the store and runs fn as one unit of work: committed when
// fn succeeds, rolled back otherwise.
func (a *app) withStore(ctx context.Context, fn func(*store.Store, *store.Tx) error) error {
	cfg, err := a.storeConfig()
	if err != nil {
		return err
	}
	s, err := store.Open(ctx, cfg, store.WithLogger(a.logger()))
	if err != nil {
		return err
	}
	defer s.Close()

	tx := s.Begin()
	defer s.Release(tx)
	if err := fn(s, tx); err != nil {
		if aerr := s.Abort(tx); aerr != nil && !errors.Is(aerr, errors.TransactionState) {
			a.logger().Warnf("abort: %v", aerr)
		}
		return err
	}
	if err := s.Commit(tx); err != nil && !errors.Is(err, errors.TransactionState) {
		return err
	}
	return nil
}
