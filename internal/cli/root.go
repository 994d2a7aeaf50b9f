// Package cli provides the command-line interface for pagetint.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/pagetint/internal/config"
	"github.com/jmylchreest/pagetint/internal/store"
	"github.com/jmylchreest/pagetint/internal/version"
)

// app carries state shared by every command of one invocation.
type app struct {
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger hclog.Logger
}

// NewRootCmd builds the pagetint command tree.
func NewRootCmd() *cobra.Command {
	a := &app{logger: hclog.NewNullLogger()}

	rootCmd := &cobra.Command{
		Use:   "pagetint",
		Short: "Contrast-aware page background theming",
		Long: `pagetint re-themes HTML pages toward a target background colour.

Bright element backgrounds are blended toward the colour while text keeps a
minimum contrast ratio. Images and image backgrounds are never touched, and
every override can be reverted exactly. Per-site themes and per-domain rules
are kept in a local settings store.`,
		Version:           version.Short(),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/pagetint/config.yaml)")
	pf.String("log-level", "", "log level (trace, debug, info, warn, error, off)")
	pf.String("store-dir", "", "directory holding the settings store")
	pf.String("store-backend", "", "settings store backend (file, sqlite)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.SetVersionTemplate(version.String() + "\n")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newApplyCmd(a))
	rootCmd.AddCommand(newWatchCmd(a))
	rootCmd.AddCommand(newRulesCmd(a))
	rootCmd.AddCommand(newSiteCmd(a))
	rootCmd.AddCommand(newCSSCmd(a))
	rootCmd.AddCommand(newContrastCmd(a))

	return rootCmd
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger before any command runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	loader := config.NewLoader()
	if a.cfgFile != "" {
		loader.SetConfigFile(a.cfgFile)
	}
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.LogLevel()
	if a.verbose && !cmd.Flags().Changed("log-level") && level > hclog.Debug {
		level = hclog.Debug
	}
	a.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "pagetint",
		Level:  level,
		Output: cmd.ErrOrStderr(),
	})
	a.logger.Debug("configuration loaded",
		"file", loader.ConfigFileUsed(),
		"store_dir", cfg.Store.Dir,
		"store_backend", cfg.Store.Backend)
	return nil
}

// openStore opens the configured settings store. Callers close it.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	s, err := store.Open(ctx, a.cfg.Store.Dir, a.cfg.Store.Backend, store.WithLogger(a.logger.Named("store")))
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}
	return s, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print detailed version information including build date, commit hash, and Go version.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
