package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/trainingdesk/internal/sqlguard"
	"github.com/ashureev/trainingdesk/internal/store"
)

func newInitCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the employees table if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			admin, err := store.OpenAdmin(*dbPath)
			if err != nil {
				return err
			}
			defer admin.Close()

			if err := admin.InitSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema ready in %s\n", *dbPath)
			return nil
		},
	}
}

func newSeedCmd(dbPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert or update employees from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seed, err := store.LoadSeed(file)
			if err != nil {
				return err
			}
			admin, err := store.OpenAdmin(*dbPath)
			if err != nil {
				return err
			}
			defer admin.Close()

			if err := admin.InitSchema(cmd.Context()); err != nil {
				return err
			}
			n, err := admin.Upsert(cmd.Context(), seed.Employees)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d employees into %s\n", n, *dbPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "employees.yaml", "YAML seed file")
	return cmd
}

func newColumnsCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "columns",
		Short: "List the columns the query oracle is shown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := store.NewSQLiteDirectory(*dbPath, store.Options{Timeout: 5 * time.Second})
			if err != nil {
				return err
			}
			defer dir.Close()

			cols, err := dir.Columns(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range cols {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

func newCheckSQLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-sql <sql>",
		Short: "Run a statement through the read-only SQL validator",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql := strings.Join(args, " ")
			if err := sqlguard.New(store.TableName).Check(sql); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "REJECTED: %v\n", err)
				return fmt.Errorf("statement rejected")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
}
