package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/rulepack/rules"
)

func newStoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Administer the Postgres named rule pack store",
		Long: `Add, replace, list and delete rule packs in the rule_packs table used by
the "name" load type. Requires store.database_url (or RULEPACK_STORE_DATABASE_URL).
Apply the schema first with the migrate command.`,
	}

	cmd.AddCommand(newStoreAddCmd(a))
	cmd.AddCommand(newStoreListCmd(a))
	cmd.AddCommand(newStoreDeleteCmd(a))

	return cmd
}

func newStoreAddCmd(a *app) *cobra.Command {
	var replace, check bool

	cmd := &cobra.Command{
		Use:   "add <name> <file>",
		Short: `Store a rule file under a name ("-" reads stdin)`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name, path := args[0], args[1]

			if err := rules.ValidateIdentifier(name); err != nil {
				return a.fail(err)
			}

			var data []byte
			var err error
			if path == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(path)
			}
			if err != nil {
				return a.fail(fmt.Errorf("failed to read rule file: %w", err))
			}

			// refuse content that would fail on every later load
			if check {
				if _, err := rules.Parse(&rules.RawSource{Identifier: name, LoadType: rules.LoadTypeName, Content: data}); err != nil {
					return a.fail(err)
				}
			}

			store, err := a.postgresStore(ctx)
			if err != nil {
				return a.fail(err)
			}

			if replace {
				err = store.Update(ctx, name, string(data))
			} else {
				err = store.Add(ctx, name, string(data))
			}
			if err != nil {
				return a.fail(err)
			}

			a.result(fmt.Sprintf("stored rule pack %s", name))
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "replace an existing pack instead of adding a new one")
	cmd.Flags().BoolVar(&check, "check", true, "parse the content before storing it")

	return cmd
}

func newStoreListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored rule pack names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := a.postgresStore(ctx)
			if err != nil {
				return a.fail(err)
			}
			names, err := store.List(ctx)
			if err != nil {
				return a.fail(err)
			}

			if a.jsonOutput() {
				if names == nil {
					names = []string{}
				}
				return a.writeJSON(StoreListResponse{Names: names})
			}
			a.result(fmt.Sprintf("%d rule packs", len(names)))
			for _, name := range names {
				fmt.Fprintf(a.stdout, "  %s\n", name)
			}
			return nil
		},
	}
}

func newStoreDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored rule pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := a.postgresStore(ctx)
			if err != nil {
				return a.fail(err)
			}
			if err := store.Delete(ctx, args[0]); err != nil {
				return a.fail(err)
			}

			a.result(fmt.Sprintf("deleted rule pack %s", args[0]))
			return nil
		},
	}
}
