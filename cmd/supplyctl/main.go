// Command supplyctl runs database migrations and manual job operations.
//
//	supplyctl migrate up|down|status|redo|version
//	supplyctl jobs trigger documents:pending-digest
//	supplyctl jobs stats
//	supplyctl jobs retry-events
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/odyssey-erp/odyssey-supply/cmd/supplyctl/cli"
	"github.com/odyssey-erp/odyssey-supply/internal/app"
	"github.com/odyssey-erp/odyssey-supply/internal/platform/db"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: supplyctl migrate <up|down|status|redo|version> | jobs <trigger NAME|stats|retry-events>")
	}
	flag.Parse()
	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	switch flag.Arg(0) {
	case "migrate":
		err = migrate(ctx, cfg, flag.Arg(1), flag.Args()[2:])
	case "jobs":
		err = runJobs(ctx, cfg, flag.Args()[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("supplyctl", slog.String("command", flag.Arg(0)), slog.Any("error", err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg *app.Config, command string, args []string) error {
	sqlDB, err := sql.Open("pgx", cfg.PGDSN)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return db.Migrate(ctx, sqlDB, command, args...)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	jobsCLI := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("jobs trigger: job name required")
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "retry-events":
		n, err := jobsCLI.RetryArchivedEvents(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("requeued %d document event(s)\n", n)
	default:
		return fmt.Errorf("jobs: unknown subcommand %q", args[0])
	}
	return nil
}
