// Command migrate manages the murmur schema: applying the embedded SQL
// migrations, syncing GORM models, reporting status and rolling back.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"murmur/internal/config"
	"murmur/internal/database"
	"murmur/internal/middleware"

	"gorm.io/gorm"
)

type command struct {
	usage string
	run   func(ctx context.Context, db *gorm.DB, cfg *config.Config, args []string) error
}

var commands = map[string]command{
	"up":     {usage: "up", run: runUp},
	"auto":   {usage: "auto", run: runAuto},
	"status": {usage: "status", run: runStatus},
	"down":   {usage: "down <version>", run: runDown},
}

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "abort the schema operation after this long")
	flag.Usage = printUsage
	flag.Parse()

	cmd, ok := commands[strings.ToLower(strings.TrimSpace(flag.Arg(0)))]
	if !ok {
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	middleware.ConfigureLogger(cfg.Env, cfg.LogLevel)

	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	err = cmd.run(ctx, db, cfg, flag.Args()[1:])
	cancel()
	_ = database.Close(db)
	if err != nil {
		middleware.Logger.Error("migrate failed", slog.String("command", flag.Arg(0)), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func printUsage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(flag.CommandLine.Output(), "usage: migrate [-timeout d] <command>")
	for _, name := range names {
		fmt.Fprintf(flag.CommandLine.Output(), "  %s\n", commands[name].usage)
	}
}

func runUp(ctx context.Context, db *gorm.DB, _ *config.Config, _ []string) error {
	if err := database.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("sql migrations: %w", err)
	}
	middleware.Logger.Info("sql migrations applied")
	return nil
}

func runAuto(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	cfg.DBSchemaMode = database.SchemaModeAuto
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		return fmt.Errorf("auto schema: %w", err)
	}
	middleware.Logger.Info("models synced", slog.String("env", cfg.Env))
	return nil
}

func runStatus(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	status, err := database.GetSchemaStatus(ctx, db, cfg)
	if err != nil {
		return fmt.Errorf("schema status: %w", err)
	}
	middleware.Logger.Info("schema status",
		slog.String("mode", status.Mode),
		slog.String("env", status.Environment),
		slog.Bool("run_sql", status.WillRunSQL),
		slog.Bool("run_auto", status.WillRunAutoMigrate),
		slog.Int("applied", len(status.AppliedVersions)),
		slog.Int("pending", len(status.PendingMigrations)),
	)
	for _, m := range status.PendingMigrations {
		middleware.Logger.Info("pending migration", slog.Int("version", m.Version), slog.String("name", m.Name))
	}

	backlog, err := database.GetScheduledPostBacklog(ctx, db, time.Now())
	if err != nil {
		return err
	}
	if backlog == nil {
		middleware.Logger.Warn("scheduled_posts table missing; run migrate up")
		return nil
	}
	attrs := []any{slog.Int64("due", backlog.Due)}
	for s, n := range backlog.ByStatus {
		attrs = append(attrs, slog.Int64(string(s), n))
	}
	middleware.Logger.Info("scheduled posts", attrs...)
	return nil
}

func runDown(ctx context.Context, db *gorm.DB, _ *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: migrate down <version>")
	}
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}
	if err := database.RollbackMigration(ctx, db, version); err != nil {
		return fmt.Errorf("rollback %d: %w", version, err)
	}
	middleware.Logger.Info("migration rolled back", slog.Int("version", version))
	return nil
}
