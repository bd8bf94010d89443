package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trezcool/collegium/apps"
	"github.com/trezcool/collegium/core/query"
)

type queryFlags struct {
	table   string
	columns string
	filters []string
	order   string
	limit   int
	single  bool
	local   bool
}

func (cli *commandLine) queryCmd() *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a query against the remote backend, or the local collections with --local",
		Example: `  collegium-admin query --table events --filter category:eq:Study --order date --limit 5
  collegium-admin query --local --table resources --filter 'tags:contains:["exam"]' --order downloadCount:desc`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			src := query.Source(cli.local)
			if !f.local {
				if cli.remote == nil {
					return errNoRemote
				}
				src = cli.remote
			}

			b := query.Build(src, opts)
			var data []byte
			if opts.Single {
				data, err = b.Single(context.Background())
			} else {
				data, err = b.Execute(context.Background())
			}
			if err != nil {
				return err
			}
			var v interface{}
			if err = json.Unmarshal(data, &v); err != nil {
				return err
			}
			return cli.printJSON(v)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.table, "table", "", "the table (or local collection) to query")
	fl.StringVar(&f.columns, "columns", query.DefaultColumns, "the columns to select")
	fl.StringArrayVar(&f.filters, "filter", nil, "COLUMN:OPERATOR:VALUE filter, repeatable; VALUE is JSON or a plain string")
	fl.StringVar(&f.order, "order", "", "COLUMN[:desc] ordering")
	fl.IntVar(&f.limit, "limit", 0, "maximum number of rows (0 means no limit)")
	fl.BoolVar(&f.single, "single", false, "expect exactly one row")
	fl.BoolVar(&f.local, "local", false, "query the local collections")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func (f queryFlags) options() (query.Options, error) {
	opts := query.Options{
		Table:   strings.TrimSpace(f.table),
		Columns: f.columns,
		Limit:   f.limit,
		Single:  f.single,
	}
	if opts.Limit < 0 {
		return opts, apps.NewArgumentError(fmt.Sprintf("--limit must be positive (got %d)", opts.Limit))
	}
	for _, raw := range f.filters {
		filter, err := parseFilter(raw)
		if err != nil {
			return opts, err
		}
		opts.Filters = append(opts.Filters, filter)
	}
	if f.order != "" {
		col, dir, _ := strings.Cut(f.order, ":")
		switch strings.ToLower(dir) {
		case "", "asc":
			opts.OrderBy = &query.Order{Column: col, Ascending: true}
		case "desc":
			opts.OrderBy = &query.Order{Column: col}
		default:
			return opts, apps.NewArgumentError(fmt.Sprintf("--order must be of form COLUMN[:desc] (got %q)", f.order))
		}
	}
	return opts, nil
}

// parseFilter reads COLUMN:OPERATOR:VALUE. `in` takes a JSON array or comma separated values.
func parseFilter(raw string) (query.Filter, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[0] == "" {
		return query.Filter{}, apps.NewArgumentError(fmt.Sprintf("--filter must be of form COLUMN:OPERATOR:VALUE (got %q)", raw))
	}
	op := query.Operator(strings.ToLower(parts[1]))
	if !op.Known() {
		return query.Filter{}, apps.NewArgumentError(fmt.Sprintf("unknown operator %q", parts[1]))
	}

	var value interface{}
	if err := json.Unmarshal([]byte(parts[2]), &value); err != nil {
		value = parts[2]
		if op == query.In {
			value = strings.Split(parts[2], ",")
		}
	}
	return query.Filter{Column: parts[0], Operator: op, Value: value}, nil
}
