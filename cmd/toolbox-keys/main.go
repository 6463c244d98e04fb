// Command toolbox-keys manages the API clients used by postgres auth mode.
//
//	toolbox-keys create <name>
//	toolbox-keys list
//	toolbox-keys revoke <id>
//	toolbox-keys rotate <id>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/triage-ai/toolbox/internal/config"
	"github.com/triage-ai/toolbox/internal/store"
)

// clientManager is the subset of *store.Store the commands use.
type clientManager interface {
	CreateClient(ctx context.Context, name string) (*store.APIClient, string, error)
	ListClients(ctx context.Context) ([]*store.APIClient, error)
	RevokeClient(ctx context.Context, id string) error
	RotateAPIKey(ctx context.Context, id string) (*store.APIClient, string, error)
}

var errUsage = errors.New("usage: toolbox-keys [-config file] create <name> | list | revoke <id> | rotate <id>")

func main() {
	if err := execute(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "toolbox-keys: %v\n", err)
		os.Exit(1)
	}
}

// execute parses flags, rejects bad usage before touching the database,
// then runs the subcommand against Postgres.
func execute(argv []string, out io.Writer) error {
	fs := flag.NewFlagSet("toolbox-keys", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to TOML config file (default $TOOLBOX_CONFIG)")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if err := checkArgs(fs.Args()); err != nil {
		return err
	}

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil && cfg.PostgresDSN == "" {
		return err
	}
	if cfg.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	s := store.NewStore(db)
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	return run(ctx, s, fs.Args(), out)
}

// checkArgs validates the subcommand and its arity.
func checkArgs(args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch cmd, rest := args[0], args[1:]; cmd {
	case "list":
		if len(rest) != 0 {
			return errUsage
		}
	case "create", "revoke", "rotate":
		if len(rest) != 1 || rest[0] == "" {
			return errUsage
		}
	default:
		return errUsage
	}
	return nil
}

func run(ctx context.Context, m clientManager, args []string, out io.Writer) error {
	if err := checkArgs(args); err != nil {
		return err
	}

	switch args[0] {
	case "create":
		c, key, err := m.CreateClient(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "created client %s (%s)\n", c.ID, c.Name)
		fmt.Fprintf(out, "api key (shown once): %s\n", key)
		return nil

	case "list":
		clients, err := m.ListClients(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tPREFIX\tREVOKED\tCREATED")
		for _, c := range clients {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
				c.ID, c.Name, c.APIKeyPrefix, c.Revoked, c.CreatedAt.UTC().Format(time.RFC3339))
		}
		return tw.Flush()

	case "revoke":
		if err := m.RevokeClient(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "revoked client %s\n", args[1])
		return nil

	default: // rotate
		c, key, err := m.RotateAPIKey(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "rotated key for client %s (%s)\n", c.ID, c.Name)
		fmt.Fprintf(out, "api key (shown once): %s\n", key)
		return nil
	}
}
