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

	"github.com/joho/godotenv"

	"github.com/biddart/biddart-backend/pkg/config"
	"github.com/biddart/biddart-backend/pkg/db"
	"github.com/biddart/biddart-backend/pkg/logger"
	"github.com/biddart/biddart-backend/pkg/migrate"
)

type options struct {
	cmd      string
	dir      string
	name     string
	version  string
	fromDisk bool
}

// migrationRunner is the part of *migrate.Runner the online commands drive.
type migrationRunner interface {
	Up(context.Context) error
	Down(context.Context) error
	Status(context.Context) ([]migrate.Status, error)
	Version(context.Context) (int64, error)
	MigrateTo(context.Context, string) error
}

var errUsage = errors.New("usage")

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	if err := run(context.Background(), logg, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate")
	fs.StringVar(&opts.dir, "dir", migrate.DefaultDir, "migrations directory for create, validate and -from-disk")
	fs.BoolVar(&opts.fromDisk, "from-disk", false, "apply migrations from -dir instead of the embedded set")
	fs.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	fs.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version; empty prints the current version")
	if err := fs.Parse(args); err != nil {
		return opts, errUsage
	}
	return opts, nil
}

func run(ctx context.Context, logg *logger.Logger, args []string, out io.Writer) error {
	opts, err := parseOptions(args, os.Stderr)
	if err != nil {
		return err
	}
	if handled, err := runOffline(opts, out); handled {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": opts.cmd, "from_disk": opts.fromDisk})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	source := migrate.Source()
	if opts.fromDisk {
		source = os.DirFS(opts.dir)
	}
	runner, err := migrate.NewRunner(sqlDB, source, "", logg)
	if err != nil {
		return fmt.Errorf("migration runner: %w", err)
	}

	logg.Info(ctx, "migrate ready")
	return runOnline(ctx, runner, opts, out)
}

// runOffline handles the commands that only touch the migrations directory.
func runOffline(opts options, out io.Writer) (bool, error) {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return true, errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return true, fmt.Errorf("create migration: %w", err)
		}
		fmt.Fprintln(out, "created migration:", path)
		return true, nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return true, fmt.Errorf("migration validation failed: %w", err)
		}
		fmt.Fprintln(out, "migration validation passed")
		return true, nil
	}
	return false, nil
}

func runOnline(ctx context.Context, runner migrationRunner, opts options, out io.Writer) error {
	switch opts.cmd {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx)
	case "status":
		statuses, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		return printStatus(out, statuses)
	case "version":
		if opts.version != "" {
			return runner.MigrateTo(ctx, opts.version)
		}
		current, err := runner.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, current)
		return nil
	}
	return fmt.Errorf("unknown -cmd value %q", opts.cmd)
}

func printStatus(out io.Writer, statuses []migrate.Status) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, st := range statuses {
		applied := "pending"
		if st.Applied {
			applied = st.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", st.Version, applied, st.Path)
	}
	return tw.Flush()
}
