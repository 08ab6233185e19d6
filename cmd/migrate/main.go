// Command migrate applies the embedded goose migrations to the configured
// Postgres database.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/spf13/pflag"
	"github.com/straye-as/cultivation-api/internal/config"
	"github.com/straye-as/cultivation-api/migrations"
)

const usage = `usage: migrate [flags] <command>

commands:
  up          apply all pending migrations
  up-by-one   apply the next pending migration
  up-to N     apply migrations up to version N
  down        roll back the latest migration
  redo        roll back and re-apply the latest migration
  status      print the state of every migration
  version     print the current schema version
  create NAME write a new sequential SQL migration under --dir
`

type command func(ctx context.Context, db *sql.DB, args []string) error

var commands = map[string]command{
	"up": func(ctx context.Context, db *sql.DB, _ []string) error {
		return goose.UpContext(ctx, db, ".")
	},
	"up-by-one": func(ctx context.Context, db *sql.DB, _ []string) error {
		return goose.UpByOneContext(ctx, db, ".")
	},
	"up-to": func(ctx context.Context, db *sql.DB, args []string) error {
		if len(args) == 0 {
			return errors.New("up-to requires a version")
		}
		var version int64
		if _, err := fmt.Sscan(args[0], &version); err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return goose.UpToContext(ctx, db, ".", version)
	},
	"down": func(ctx context.Context, db *sql.DB, _ []string) error {
		return goose.DownContext(ctx, db, ".")
	},
	"redo": func(ctx context.Context, db *sql.DB, _ []string) error {
		return goose.RedoContext(ctx, db, ".")
	},
	"status": func(ctx context.Context, db *sql.DB, _ []string) error {
		return goose.StatusContext(ctx, db, ".")
	},
	"version": func(ctx context.Context, db *sql.DB, _ []string) error {
		return goose.VersionContext(ctx, db, ".")
	},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Migration error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	dir := fs.String("dir", "./migrations", "directory create writes new migrations to")
	timeout := fs.Duration("timeout", 5*time.Minute, "upper bound for the whole run")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(argv); err != nil {
		return err
	}
	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	name, rest := args[0], args[1:]

	if name == "create" {
		if len(rest) == 0 {
			return errors.New("create requires a migration name")
		}
		goose.SetSequential(true)
		if err := goose.Create(nil, *dir, rest[0], "sql"); err != nil {
			return fmt.Errorf("failed to create migration: %w", err)
		}
		fmt.Printf("Migration created in %s: %s\n", *dir, rest[0])
		return nil
	}

	cmd, ok := commands[name]
	if !ok {
		fs.Usage()
		return fmt.Errorf("unknown command: %s", name)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := cmd(ctx, db, rest); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	fmt.Printf("migrate %s: done\n", name)
	return nil
}
