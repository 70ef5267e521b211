// directoryctl administers the employee directory and offers a console
// conversation for trying the desk without the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dbPath string

	root := &cobra.Command{
		Use:           "directoryctl",
		Short:         "Manage the employee training directory",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if err := godotenv.Load(); err != nil {
				slog.Debug("No .env file found, using environment variables")
			}
			if !cmd.Flags().Changed("db") {
				if v, ok := os.LookupEnv("DB_PATH"); ok && v != "" {
					dbPath = v
				}
			}
		},
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "./data/employees.db", "path to the employee database (defaults to $DB_PATH)")

	root.AddCommand(
		newInitCmd(&dbPath),
		newSeedCmd(&dbPath),
		newColumnsCmd(&dbPath),
		newCheckSQLCmd(),
		newChatCmd(&dbPath),
	)
	return root
}
