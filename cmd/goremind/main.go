// Command goremind is the task and reminder CLI plus its background
// delivery daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/basket/go-remind/internal/config"
	"github.com/basket/go-remind/internal/persistence"
	"github.com/basket/go-remind/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command> [args]

TASKS:
  task add <title> [flags]     Create a task (-due, -remind, -p, -d, -tags, -context, -recur, -rule)
  task list [flags]            List open tasks (-status, -context, -p, -limit)
  task today|overdue           Due today / past due
  task upcoming [days]         Due within N days (default 7)
  task search <query>          Full-text search over open tasks
  task done|undone <id>        Complete / reopen
  task start|cancel|rm <id>    Start, cancel or delete
  task stats                   Counts by state

INBOX:
  inbox add <text>             Quick capture
  inbox list                   Unprocessed items
  inbox process <id> [taskid]  Mark triaged, optionally linking a task
  inbox rm <id>                Discard an item

REMINDERS:
  remind add <when> [flags]    Schedule (-task <id> or -title/-body for custom)
  remind list                  Pending reminders
  remind snooze <id> <when>    Push back (absolute or duration like 30m)
  remind ack <id>              Acknowledge a delivered reminder
  remind cancel <id>           Remove a reminder

DAEMON:
  daemon start|stop|restart    Manage the background delivery loop
  daemon status                Liveness of the detached daemon
  daemon run                   Run in the foreground
  daemon install|uninstall     Register with launchd (macOS)

  health                       Subsystem health snapshot
  version                      Print the version

ENVIRONMENT:
  GOREMIND_HOME                Data directory (default: ~/.goremind)
  GOREMIND_DB_PATH             Database path override
  TELEGRAM_TOKEN/CHAT_ID       Enable the telegram transport
`, os.Args[0])
}

// app bundles what every command needs: config, store and logger.
type app struct {
	cfg    config.Config
	store  *persistence.Store
	logger *slog.Logger
	closer io.Closer
}

// newApp loads config and opens the store. quiet keeps slog output out of
// the terminal for commands that print human-facing results.
func newApp(quiet bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, quiet)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &app{cfg: cfg, store: store, logger: logger, closer: closer}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
	_ = a.closer.Close()
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	switch strings.ToLower(args[0]) {
	case "help", "-h", "--help":
		printUsage()
	case "version":
		fmt.Println("goremind", Version)
	case "task":
		os.Exit(runTaskCommand(ctx, args[1:]))
	case "inbox":
		os.Exit(runInboxCommand(ctx, args[1:]))
	case "remind":
		os.Exit(runRemindCommand(ctx, args[1:]))
	case "daemon":
		os.Exit(runDaemonCommand(ctx, args[1:]))
	case "health":
		os.Exit(runHealthCommand(ctx))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

// fail prints an error for humans and returns the exit code.
func fail(err error) int {
	fmt.Fprintln(os.Stderr, "error:", err)
	return 1
}
