package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"rss_watch/internal/config"
	"rss_watch/internal/storage"
	"rss_watch/migrations"
)

var errUsage = errors.New("usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case errors.Is(err, errUsage):
		os.Exit(2)
	case err != nil:
		log.Fatal(err)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: migrate [-backend sqlite] [-db path] <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  up          Migrate to the latest version")
	fmt.Fprintln(w, "  up-one      Migrate one version up")
	fmt.Fprintln(w, "  down        Roll back one version")
	fmt.Fprintln(w, "  reset       Roll back all migrations")
	fmt.Fprintln(w, "  status      Show migration status")
	fmt.Fprintln(w, "  version     Show current version")
	fmt.Fprintln(w, "  inspect     Summarize the stored bot state")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	backend := fs.String("backend", envOrDefault("STORAGE_BACKEND", config.BackendSQLite), "storage backend")
	dbPath := fs.String("db", envOrDefault("STORAGE_PATH", "./data/state.db"), "path to the sqlite state database")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	switch *backend {
	case config.BackendSQLite:
	case config.BackendPostgres:
		return fmt.Errorf("backend %q creates its schema on startup, nothing to migrate", *backend)
	default:
		return fmt.Errorf("backend %q has no schema, nothing to migrate", *backend)
	}

	if fs.NArg() == 0 {
		usage(stderr)
		return errUsage
	}
	cmd := fs.Arg(0)

	if cmd == "inspect" {
		return inspect(ctx, *dbPath, stdout)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(log.New(stdout, "", 0))
	if err := goose.SetDialect(migrations.Dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	switch cmd {
	case "up":
		err = goose.UpContext(ctx, db, ".")
	case "up-one":
		err = goose.UpByOneContext(ctx, db, ".")
	case "down":
		err = goose.DownContext(ctx, db, ".")
	case "reset":
		err = goose.ResetContext(ctx, db, ".")
	case "status":
		err = goose.StatusContext(ctx, db, ".")
	case "version":
		var v int64
		if v, err = goose.GetDBVersionContext(ctx, db); err == nil {
			fmt.Fprintf(stdout, "version %d\n", v)
		}
	default:
		usage(stderr)
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// inspect prints the feed, subscriber and seen-post counts of the stored state.
// Opening the store applies pending migrations.
func inspect(ctx context.Context, path string, w io.Writer) error {
	s, err := storage.NewSQLite(path)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer func() { _ = s.Close() }()

	st, err := s.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Fprintln(w, "no saved state")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	fmt.Fprintf(w, "feeds: %d\nsubscribers: %d\n", len(st.Feeds), len(st.Subscribers))
	for _, feed := range st.Feeds {
		ids, ok := st.Seen[feed]
		if !ok {
			fmt.Fprintf(w, "  %s  not seeded\n", feed)
			continue
		}
		fmt.Fprintf(w, "  %s  %d seen\n", feed, len(ids))
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
