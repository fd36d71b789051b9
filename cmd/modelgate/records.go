package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/modelgate/core/formatter"
	"github.com/artpar/modelgate/core/registry"
	"github.com/artpar/modelgate/core/storage"
	"github.com/artpar/modelgate/core/validation"
)

// recordsEnv is what every records subcommand needs.
type recordsEnv struct {
	registry *registry.Registry
	engine   *validation.Engine
	store    *storage.SQLiteStore
}

func newRecordsCmd(opts *rootOptions) *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect stored records",
		Long: `Inspect records stored by the HTTP API.

The database is taken from database.dsn in the config file unless --db is
given. Stored records are validated again on the way out, so the output
shows the current schema's view of the data.`,
	}
	cmd.PersistentFlags().StringVar(&dsn, "db", "", "database path (overrides database.dsn)")

	open := func() (*recordsEnv, error) {
		cfg, err := opts.loadConfig()
		if err != nil {
			return nil, err
		}
		reg, err := opts.loadRegistry()
		if err != nil {
			return nil, err
		}
		if dsn == "" {
			dsn = cfg.Database.DSN
		}
		store, err := storage.NewSQLiteStore(dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return &recordsEnv{registry: reg, engine: validation.New(reg), store: store}, nil
	}

	cmd.AddCommand(
		newRecordsListCmd(opts, open),
		newRecordsGetCmd(opts, open),
		newRecordsDeleteCmd(open),
	)
	return cmd
}

func newRecordsListCmd(opts *rootOptions, open func() (*recordsEnv, error)) *cobra.Command {
	var (
		limit   int
		offset  int
		desc    bool
		filters []string
		columns []string
	)

	cmd := &cobra.Command{
		Use:   "list <schema>",
		Short: "List records of a schema",
		Example: `  modelgate records list package --limit 20 --desc
  modelgate records list package --filter name=box --columns id,name,volume`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.outputFormatter()
			if err != nil {
				return err
			}
			listOpts := storage.ListOptions{Limit: limit, Offset: offset, OrderDesc: desc}
			if listOpts.Filters, err = parseFilters(filters); err != nil {
				return err
			}

			env, err := open()
			if err != nil {
				return err
			}
			defer env.store.Close()

			s, err := env.registry.Resolve(args[0])
			if err != nil {
				return err
			}

			records, total, err := env.store.List(cmd.Context(), s.Name(), listOpts)
			if err != nil {
				return err
			}

			instances := make([]*validation.Instance, 0, len(records))
			for _, rec := range records {
				inst, err := env.engine.ValidateSchema(s, rec.Data)
				if err != nil {
					return fmt.Errorf("record %s: %w", rec.ID, err)
				}
				instances = append(instances, inst)
			}

			out := cmd.OutOrStdout()
			if err := f.FormatList(out, s, instances, formatter.FormatOptions{Columns: columns, MaxWidth: 40}); err != nil {
				return err
			}
			if opts.output == "table" && total > int64(len(records)) {
				fmt.Fprintf(out, "\nShowing %d of %d records.\n", len(records), total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of records")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of records to skip")
	cmd.Flags().BoolVar(&desc, "desc", false, "newest first")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "field=value filter (repeatable)")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "fields to include in the output")
	return cmd
}

func newRecordsGetCmd(opts *rootOptions, open func() (*recordsEnv, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "get <schema> <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.outputFormatter(); err != nil {
				return err
			}

			env, err := open()
			if err != nil {
				return err
			}
			defer env.store.Close()

			inst, err := storage.Load(cmd.Context(), env.store, env.engine, args[0], args[1])
			if err != nil {
				return err
			}
			return formatter.Render(cmd.OutOrStdout(), opts.output, inst, formatter.FormatOptions{})
		},
	}
}

func newRecordsDeleteCmd(open func() (*recordsEnv, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <schema> <id>",
		Short: "Delete one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := open()
			if err != nil {
				return err
			}
			defer env.store.Close()

			if _, err := env.registry.Resolve(args[0]); err != nil {
				return err
			}
			if err := env.store.Delete(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s\n", args[0], args[1])
			return nil
		},
	}
}

func parseFilters(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q: want field=value", pair)
		}
		filters[key] = storage.ParseFilterValue(value)
	}
	return filters, nil
}
