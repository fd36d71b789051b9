package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/modelgate/bootstrap"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var hotReload bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the validation API server",
		Long: `Start the modelgate HTTP server.

The server will:
  - Load configuration from modelgate.yaml (or --config)
  - Or load configuration from MODELGATE_* environment variables
  - Register every schema under schemas.paths (or --schemas)
  - Open the record database when database.enabled is set
  - Serve validation, export and record endpoints

Environment variables:
  MODELGATE_SCHEMAS_PATHS      - Schema files or directories, separated by ';'
  MODELGATE_SERVER_PORT        - Server port (default: 8080)
  MODELGATE_DATABASE_DSN       - Database path (default: modelgate.db)
  MODELGATE_LOG_LEVEL          - Log level: debug, info, warn, error
  MODELGATE_METRICS_ENABLED    - Expose Prometheus metrics
  MODELGATE_OPENAPI_SWAGGER_UI - Serve Swagger UI at /swagger/

Examples:
  modelgate serve
  modelgate serve --config /etc/modelgate/config.yaml
  modelgate serve --schemas ./schemas --hot-reload=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hasConfigFile := false
			if _, err := os.Stat(opts.cfgFile); err == nil {
				hasConfigFile = true
			}

			appOpts := bootstrap.Options{Version: version}

			var (
				app *bootstrap.App
				err error
			)
			// Hot reload only works with a config file, and --schemas would be
			// lost on the first reload.
			if hasConfigFile && hotReload && len(opts.schemaPaths) == 0 {
				app, err = bootstrap.NewWithHotReload(opts.cfgFile, appOpts)
			} else {
				cfg, loadErr := opts.loadConfig()
				if loadErr != nil {
					return loadErr
				}
				if !hasConfigFile {
					fmt.Fprintln(cmd.ErrOrStderr(), "Running with environment variables (no config file)")
				}
				app, err = bootstrap.New(cfg, appOpts)
			}
			if err != nil {
				return fmt.Errorf("error initializing: %w", err)
			}

			// Run (blocks until shutdown)
			return app.Run()
		},
	}

	cmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
	return cmd
}
