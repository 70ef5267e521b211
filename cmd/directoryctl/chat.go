package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/trainingdesk/internal/agent"
	"github.com/ashureev/trainingdesk/internal/config"
	"github.com/ashureev/trainingdesk/internal/domain"
	"github.com/ashureev/trainingdesk/internal/identity"
	"github.com/ashureev/trainingdesk/internal/locale"
	"github.com/ashureev/trainingdesk/internal/oracle"
	"github.com/ashureev/trainingdesk/internal/query"
	"github.com/ashureev/trainingdesk/internal/session"
	"github.com/ashureev/trainingdesk/internal/store"
)

func newChatCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the desk from the console using the configured oracle",
		Long: `Runs the same identity and query turns as the server. Type /reset to
start over and /quit to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.DBPath = *dbPath

			dir, err := store.NewSQLiteDirectory(cfg.DBPath, store.Options{
				Timeout: cfg.StoreTimeout,
				MaxRows: cfg.MaxResultRows,
			})
			if err != nil {
				return err
			}
			defer dir.Close()

			o, release, err := oracle.New(cmd.Context(), cfg.Oracle, slog.Default())
			if err != nil {
				return err
			}
			defer release()

			catalog := locale.Default()
			sessions := session.NewStore(0)
			svc := agent.NewService(
				identity.NewResolver(o, dir, catalog, cfg.Oracle.Timeout),
				query.NewPipeline(o, dir, sessions, catalog, query.Options{
					PrivilegedDivision: cfg.PrivilegedDivision,
					HistoryTurns:       cfg.HistoryTurns,
					OracleTimeout:      cfg.Oracle.Timeout,
					StoreTimeout:       cfg.StoreTimeout,
				}),
				sessions, catalog, nil,
			)
			return runChat(cmd, svc, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// runChat drives svc from a line-oriented console.
func runChat(cmd *cobra.Command, svc *agent.Service, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	var (
		record     domain.Identity
		lastSystem = svc.Message(locale.Welcome, "")
		token      string
	)
	fmt.Fprintln(out, lastSystem)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if token != "" {
				if err := svc.Reset(ctx, token); err != nil && !errors.Is(err, session.ErrNotFound) {
					return err
				}
			}
			record, token = domain.Identity{}, ""
			lastSystem = svc.Message(locale.Welcome, "")
			fmt.Fprintln(out, lastSystem)
			continue
		}

		if token == "" {
			reply, err := svc.IdentityTurn(ctx, text, record, lastSystem)
			if err != nil {
				return err
			}
			record, lastSystem, token = reply.Identity, reply.Message, reply.Token
			fmt.Fprintln(out, reply.Message)
			continue
		}

		reply, err := svc.QueryTurn(ctx, token, text)
		if errors.Is(err, session.ErrNotFound) {
			record, token = domain.Identity{}, ""
			fmt.Fprintln(out, svc.Message(locale.SessionRevoked, text))
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, reply)
		if !svc.Active(token) {
			record, token = domain.Identity{}, ""
		}
	}
}
