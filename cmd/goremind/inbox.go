package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/basket/go-remind/internal/temporal"
)

func runInboxCommand(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: goremind inbox <add|list|process|rm> ...")
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
		if len(rest) == 0 {
			fmt.Fprintln(os.Stderr, "usage: goremind inbox add <text>")
			return 2
		}
		id, err := a.store.Capture(ctx, strings.Join(rest, " "), "cli")
		if err != nil {
			return fail(err)
		}
		fmt.Printf("captured #%d\n", id)
	case "list":
		items, err := a.store.ListInbox(ctx)
		if err != nil {
			return fail(err)
		}
		if len(items) == 0 {
			fmt.Println("inbox empty")
			return 0
		}
		now := time.Now()
		for _, it := range items {
			fmt.Printf("#%-4d %s  %s\n", it.ID, it.Content,
				dimStyle.Render(temporal.FormatRelative(it.CapturedAt, now)))
		}
	case "process":
		if len(rest) < 1 || len(rest) > 2 {
			fmt.Fprintln(os.Stderr, "usage: goremind inbox process <id> [taskid]")
			return 2
		}
		id, err := parseID(rest[0])
		if err != nil {
			return fail(err)
		}
		var taskID int64
		if len(rest) == 2 {
			taskID, err = parseID(rest[1])
			if err != nil {
				return fail(err)
			}
		}
		if err := a.store.ProcessInboxItem(ctx, id, taskID); err != nil {
			return fail(err)
		}
		if taskID != 0 {
			fmt.Printf("processed #%d into task #%d\n", id, taskID)
		} else {
			fmt.Printf("dismissed #%d\n", id)
		}
	case "rm":
		if len(rest) != 1 {
			fmt.Fprintln(os.Stderr, "usage: goremind inbox rm <id>")
			return 2
		}
		id, err := parseID(rest[0])
		if err != nil {
			return fail(err)
		}
		if err := a.store.DeleteInboxItem(ctx, id); err != nil {
			return fail(err)
		}
		fmt.Printf("deleted #%d\n", id)
	default:
		fmt.Fprintf(os.Stderr, "unknown inbox subcommand %q\n", sub)
		return 2
	}
	return 0
}
