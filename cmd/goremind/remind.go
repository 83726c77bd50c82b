package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/basket/go-remind/internal/persistence"
	"github.com/basket/go-remind/internal/temporal"
)

func runRemindCommand(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: goremind remind <add|list|snooze|ack|cancel> ...")
		return 2
	}

	a, err := newApp(true)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	sub := strings.ToLower(strings.TrimSpace(args[0]))
	rest := args[1:]
	switch sub {
	case "add":
		return runRemindAdd(ctx, a, rest)
	case "list":
		items, err := a.store.ListPendingNotifications(ctx)
		if err != nil {
			return fail(err)
		}
		if len(items) == 0 {
			fmt.Println("no pending reminders")
			return 0
		}
		now := time.Now()
		for _, n := range items {
			label := n.Title
			if label == "" && n.TaskID != 0 {
				label = fmt.Sprintf("task #%d", n.TaskID)
			}
			line := fmt.Sprintf("#%-4d %s  %s", n.ID, label,
				temporal.FormatRelative(n.ScheduledAt, now))
			if n.Status == persistence.NotifySnoozed {
				line += "  " + dimStyle.Render("(snoozed)")
			}
			fmt.Println(line)
		}
	case "snooze":
		if len(rest) < 2 {
			fmt.Fprintln(os.Stderr, "usage: goremind remind snooze <id> <when>")
			return 2
		}
		id, err := parseID(rest[0])
		if err != nil {
			return fail(err)
		}
		until, err := parseWhen(strings.Join(rest[1:], " "), time.Now())
		if err != nil {
			return fail(err)
		}
		if err := a.store.SnoozeNotification(ctx, id, until); err != nil {
			return fail(err)
		}
		fmt.Printf("snoozed #%d until %s\n", id, temporal.FormatAbsolute(until, time.Now()))
	case "ack":
		if len(rest) != 1 {
			fmt.Fprintln(os.Stderr, "usage: goremind remind ack <id>")
			return 2
		}
		id, err := parseID(rest[0])
		if err != nil {
			return fail(err)
		}
		if err := a.store.AcknowledgeNotification(ctx, id); err != nil {
			return fail(err)
		}
		fmt.Printf("acknowledged #%d\n", id)
	case "cancel":
		if len(rest) != 1 {
			fmt.Fprintln(os.Stderr, "usage: goremind remind cancel <id>")
			return 2
		}
		id, err := parseID(rest[0])
		if err != nil {
			return fail(err)
		}
		if err := a.store.CancelNotification(ctx, id); err != nil {
			return fail(err)
		}
		fmt.Printf("cancelled #%d\n", id)
	default:
		fmt.Fprintf(os.Stderr, "unknown remind subcommand %q\n", sub)
		return 2
	}
	return 0
}

func runRemindAdd(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("goremind remind add", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	taskID := fs.Int64("task", 0, "task to remind about")
	title := fs.String("title", "", "title for a custom reminder")
	body := fs.String("body", "", "body for a custom reminder")
	method := fs.String("method", "", "preferred delivery method")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: goremind remind add <when> [-task <id> | -title <text>]")
		return 2
	}

	now := time.Now()
	when, err := parseWhen(strings.Join(fs.Args(), " "), now)
	if err != nil {
		return fail(err)
	}

	id, err := a.store.ScheduleNotification(ctx, persistence.ScheduleOptions{
		TaskID:      *taskID,
		Title:       *title,
		Body:        *body,
		Method:      *method,
		ScheduledAt: when,
	})
	if err != nil {
		return fail(err)
	}
	fmt.Printf("reminder #%d scheduled for %s\n", id, temporal.FormatAbsolute(when, now))
	return 0
}
