package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/modelgate/bootstrap"
	"github.com/artpar/modelgate/config"
	"github.com/artpar/modelgate/core/formatter"
	"github.com/artpar/modelgate/core/registry"
)

// rootOptions holds the global flags shared by all commands.
type rootOptions struct {
	cfgFile     string
	schemaPaths []string
	output      string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "modelgate",
		Short: "Declarative data validation for JSON and YAML",
		Long: `modelgate validates raw data against schemas declared in YAML files.

Fields are coerced to their declared types, defaults and computed fields are
filled in, and every failure is reported with its location.

Quick start:
  modelgate validate package data.json --schemas ./schemas
  modelgate schema list --schemas ./schemas
  modelgate serve                 # Start the HTTP API`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.cfgFile, "config", "c", "modelgate.yaml", "config file path")
	flags.StringSliceVarP(&opts.schemaPaths, "schemas", "s", nil, "schema files or directories (overrides schemas.paths)")
	flags.StringVarP(&opts.output, "output", "o", "table", "output format (table, json, yaml)")

	cmd.AddCommand(
		newValidateCmd(opts),
		newSchemaCmd(opts),
		newRecordsCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to environment variables
// when it does not exist.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(o.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if len(o.schemaPaths) > 0 {
		cfg.Schemas.Paths = o.schemaPaths
	}
	return cfg, nil
}

func (o *rootOptions) loadRegistry() (*registry.Registry, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	if len(cfg.Schemas.Paths) == 0 {
		return nil, errors.New("no schemas configured: pass --schemas or set schemas.paths")
	}
	return bootstrap.LoadRegistry(cfg.Schemas.Paths)
}

// outputFormatter returns the formatter selected by --output.
func (o *rootOptions) outputFormatter() (formatter.Formatter, error) {
	if o.output == "" {
		return formatter.Default(), nil
	}
	f, ok := formatter.Get(o.output)
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %v)", o.output, formatter.List())
	}
	return f, nil
}
