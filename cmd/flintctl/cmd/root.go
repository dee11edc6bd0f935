// Package cmd wires flintctl's cobra command tree, analogous to the
// teacher's cmd/cli/cmd: a thin front end with no core logic of its own,
// existing only to give cobra/viper a CLI home for internal/engine.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flint-go/flint/internal/engine"
	"github.com/flint-go/flint/pkg/config"
)

var (
	cfgFile string
	eng     *engine.Engine
)

var rootCmd = &cobra.Command{
	Use:   "flintctl",
	Short: "Inspect and exercise a Flint compute graph from the command line",
	Long: `flintctl is a thin command-line front end over the Flint engine.

It loads an engine configuration (viper-backed, see --config) and exposes
inspect/serialize/bench subcommands for exercising the CPU/GPU dispatch,
kernel codegen, and tensor persistence layers without writing Go code.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		e, err := engine.New(cfg)
		if err != nil {
			return fmt.Errorf("starting engine: %w", err)
		}
		eng = e
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if eng != nil {
			return eng.Close()
		}
		return nil
	},
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to a flintctl config file (YAML/JSON/TOML, viper-loaded)")
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}

// Engine returns the engine constructed from the loaded config, valid only
// within a subcommand's RunE.
func Engine() *engine.Engine {
	return eng
}

// LoadConfig re-reads the --config file, for subcommands (bench) that need
// to build their own engine(s) against a modified copy rather than the
// single shared instance the root command constructs.
func LoadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
