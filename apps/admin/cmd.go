package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/collegium/apps"
	"github.com/trezcool/collegium/core/localstore"
	"github.com/trezcool/collegium/core/query"
	"github.com/trezcool/collegium/services/supabase"
	"github.com/trezcool/collegium/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Migrate  // mockable

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("migrate needs the postgres storage driver")
	errNoRemote   = errors.New("remote backend is not configured")
)

type commandLine struct {
	store  *localstore.Store
	local  query.Source
	remote *supabase.Client // nil when the remote backend is not configured
	db     *sqlx.DB         // nil unless the postgres driver is used
	out    io.Writer
}

func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if len(args) > 1 {
		root.SetArgs(args[1:])
	} else {
		root.SetArgs([]string{})
	}
	return root.Execute()
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "collegium-admin",
		Short:         "Inspect and maintain the Collegium local collections",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Usage()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(
		&cobra.Command{
			Use:   "collections",
			Short: "List the stored collections",
			Args:  cobra.NoArgs,
			RunE:  cli.collections,
		},
		&cobra.Command{
			Use:   "dump NAME",
			Short: "Print every record of a collection",
			Args:  cobra.ExactArgs(1),
			RunE:  cli.dump,
		},
		&cobra.Command{
			Use:   "get NAME ID",
			Short: "Print one record",
			Args:  cobra.ExactArgs(2),
			RunE:  cli.get,
		},
		&cobra.Command{
			Use:   "delete NAME ID",
			Short: "Delete one record",
			Args:  cobra.ExactArgs(2),
			RunE:  cli.delete,
		},
		&cobra.Command{
			Use:   "clear NAME",
			Short: "Remove a whole collection",
			Args:  cobra.ExactArgs(1),
			RunE:  cli.clear,
		},
		cli.idCmd(),
		cli.queryCmd(),
		cli.loginCmd(),
		&cobra.Command{
			Use:   "logout",
			Short: "Sign out of the remote backend",
			Args:  cobra.NoArgs,
			RunE:  cli.logout,
		},
		&cobra.Command{
			Use:                "migrate COMMAND [ARGS...]",
			Short:              "Run a goose command (up, down, status, ...) against the postgres substrate",
			DisableFlagParsing: true,
			RunE:               cli.migrate,
		},
	)
	return root
}

func (cli *commandLine) printJSON(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Commands

func (cli *commandLine) collections(_ *cobra.Command, _ []string) error {
	names, err := cli.store.Collections()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(cli.out, name)
	}
	return nil
}

func (cli *commandLine) dump(_ *cobra.Command, args []string) error {
	records, _, err := cli.store.Snapshot(args[0])
	if err != nil {
		return err
	}
	if records == nil {
		records = []localstore.Record{}
	}
	return cli.printJSON(records)
}

func (cli *commandLine) get(_ *cobra.Command, args []string) error {
	rec, err := cli.store.Get(args[0], args[1])
	if err != nil {
		return err
	}
	return cli.printJSON(rec)
}

func (cli *commandLine) delete(_ *cobra.Command, args []string) error {
	removed, err := cli.store.Delete(args[0], args[1])
	if err != nil {
		return err
	}
	if !removed {
		return localstore.ErrNotFound
	}
	fmt.Fprintf(cli.out, "deleted %s/%s\n", args[0], args[1])
	return nil
}

func (cli *commandLine) clear(_ *cobra.Command, args []string) error {
	if err := cli.store.Clear(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "cleared %s\n", args[0])
	return nil
}

func (cli *commandLine) idCmd() *cobra.Command {
	var legacy bool
	var n int
	cmd := &cobra.Command{
		Use:   "id",
		Short: "Generate record ids",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if n < 1 {
				return apps.NewArgumentError("-n must be at least 1")
			}
			for i := 0; i < n; i++ {
				if legacy {
					fmt.Fprintln(cli.out, localstore.LegacyID())
				} else {
					fmt.Fprintln(cli.out, cli.store.NewID())
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&legacy, "legacy", false, "timestamp + random digits ids, as older clients generate them")
	cmd.Flags().IntVarP(&n, "count", "n", 1, "how many ids to generate")
	return cmd
}

func (cli *commandLine) loginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the remote backend; the session is kept in the local substrate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cli.remote == nil {
				return errNoRemote
			}
			if strings.TrimSpace(email) == "" {
				_ = cmd.Usage()
				return errHelp
			}
			fmt.Fprint(cli.out, "Enter password:")
			pwd, err := readPasswordFunc(int(syscall.Stdin))
			fmt.Fprintln(cli.out)
			if err != nil {
				return err
			}
			if len(pwd) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			sess, err := cli.remote.Auth().SignIn(context.Background(), email, string(pwd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "signed in as %s\n", sess.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "the user's email; the password will be prompted next")
	return cmd
}

func (cli *commandLine) logout(_ *cobra.Command, _ []string) error {
	if cli.remote == nil {
		return errNoRemote
	}
	if err := cli.remote.Auth().SignOut(context.Background()); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "signed out")
	return nil
}

func (cli *commandLine) migrate(cmd *cobra.Command, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		_ = cmd.Usage()
		return errHelp
	}
	if cli.db == nil {
		return errNoDatabase
	}
	return migrateFunc(context.Background(), cli.db, args[0], args[1:]...)
}
