package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/basket/go-remind/internal/persistence"
	"github.com/basket/go-remind/internal/recurrence"
	"github.com/basket/go-remind/internal/temporal"
)

var (
	overdueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	urgentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseWhen turns a natural-language expression into a concrete time.
// Durations like "30m" are offsets from now.
func parseWhen(expr string, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, errors.New("empty time expression")
	}
	if t := temporal.ParseDate(expr, now); !t.IsZero() {
		return t, nil
	}
	if d := temporal.ParseDuration(expr); d > 0 {
		return now.Add(d), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse time expression %q", expr)
}

// parseReminder resolves a -remind value. A duration counts back from the
// due date when one is set, otherwise forward from now.
func parseReminder(expr string, due, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, errors.New("empty reminder expression")
	}
	if d := temporal.ParseDuration(expr); d > 0 {
		if !due.IsZero() {
			return due.Add(-d), nil
		}
		return now.Add(d), nil
	}
	if t := temporal.ParseDate(expr, now); !t.IsZero() {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse reminder expression %q", expr)
}

func formatTaskLine(t persistence.Task, now time.Time) string {
	marker := " "
	switch t.Status {
	case persistence.StatusInProgress:
		marker = ">"
	case persistence.StatusCompleted:
		marker = "x"
	case persistence.StatusCancelled:
		marker = "-"
	}

	line := fmt.Sprintf("[%s] #%-4d %s", marker, t.ID, t.Title)
	if t.Priority == persistence.PriorityUrgent {
		line = urgentStyle.Render(line)
	}
	if !t.DueDate.IsZero() {
		due := temporal.FormatAbsolute(t.DueDate, now)
		if t.DueDate.Before(now) && t.Status != persistence.StatusCompleted {
			due = overdueStyle.Render(due + " (overdue)")
		} else {
			due = dimStyle.Render(due)
		}
		line += "  " + due
	}
	if t.Context != "" {
		line += "  " + dimStyle.Render("@"+t.Context)
	}
	if t.Recurrence != "" && t.Recurrence != persistence.RecurrenceNone {
		line += "  " + dimStyle.Render("↻"+string(t.Recurrence))
	}
	return line
}

func printTasks(tasks []persistence.Task) {
	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return
	}
	now := time.Now()
	for _, t := range tasks {
		fmt.Println(formatTaskLine(t, now))
	}
}

func runTaskCommand(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: goremind task <add|list|today|overdue|upcoming|search|done|undone|start|cancel|rm|stats> ...")
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
		return runTaskAdd(ctx, a, rest)
	case "list":
		return runTaskList(ctx, a, rest)
	case "today":
		tasks, err := a.store.ListToday(ctx)
		if err != nil {
			return fail(err)
		}
		printTasks(tasks)
	case "overdue":
		tasks, err := a.store.ListOverdue(ctx)
		if err != nil {
			return fail(err)
		}
		printTasks(tasks)
	case "upcoming":
		days := 7
		if len(rest) > 0 {
			if n, err := strconv.Atoi(rest[0]); err == nil && n > 0 {
				days = n
			}
		}
		tasks, err := a.store.ListUpcoming(ctx, days)
		if err != nil {
			return fail(err)
		}
		printTasks(tasks)
	case "search":
		if len(rest) == 0 {
			fmt.Fprintln(os.Stderr, "usage: goremind task search <query>")
			return 2
		}
		tasks, err := a.store.SearchTasks(ctx, strings.Join(rest, " "))
		if err != nil {
			return fail(err)
		}
		printTasks(tasks)
	case "done":
		return runTaskDone(ctx, a, rest)
	case "undone", "start", "cancel", "rm":
		return runTaskMutate(ctx, a, sub, rest)
	case "stats":
		st, err := a.store.Stats(ctx)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("pending: %d  in progress: %d  overdue: %d\n", st.Pending, st.InProgress, st.Overdue)
		fmt.Printf("completed today: %d  this week: %d\n", st.CompletedToday, st.CompletedWeek)
		fmt.Printf("inbox unread: %d\n", st.InboxUnread)
	default:
		fmt.Fprintf(os.Stderr, "unknown task subcommand %q\n", sub)
		return 2
	}
	return 0
}

func runTaskAdd(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("goremind task add", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	desc := fs.String("d", "", "description")
	prio := fs.String("p", "normal", "priority: urgent, normal or low")
	due := fs.String("due", "", "due date, natural language")
	remind := fs.String("remind", "", "reminder time or lead duration like 30m")
	tags := fs.String("tags", "", "comma separated tags")
	taskCtx := fs.String("context", "", "context label, e.g. work")
	recur := fs.String("recur", "", "recurrence: daily, weekly, monthly, yearly or custom")
	rule := fs.String("rule", "", "cron expression for custom recurrence")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: goremind task add <title> [flags]")
		return 2
	}
	title := strings.Join(fs.Args(), " ")

	priority, err := persistence.ParsePriority(*prio)
	if err != nil {
		return fail(err)
	}

	now := time.Now()
	draft := persistence.TaskDraft{
		Title:          title,
		Description:    *desc,
		Priority:       priority,
		Tags:           *tags,
		Context:        *taskCtx,
		RecurrenceRule: *rule,
	}
	if *recur != "" {
		draft.Recurrence = persistence.Recurrence(strings.ToLower(*recur))
	}
	if *due != "" {
		when, err := parseWhen(*due, now)
		if err != nil {
			return fail(err)
		}
		draft.DueDate = when
	}
	if *remind != "" {
		when, err := parseReminder(*remind, draft.DueDate, now)
		if err != nil {
			return fail(err)
		}
		draft.ReminderAt = when
	}

	id, err := a.store.CreateTask(ctx, draft)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("created task #%d\n", id)

	// A reminder time queues a notification right away so the daemon
	// picks it up without a separate remind command.
	if !draft.ReminderAt.IsZero() {
		if _, err := a.store.ScheduleNotification(ctx, persistence.ScheduleOptions{
			TaskID:      id,
			ScheduledAt: draft.ReminderAt,
		}); err != nil {
			return fail(err)
		}
		fmt.Printf("reminder set for %s\n", temporal.FormatAbsolute(draft.ReminderAt, now))
	}
	return 0
}

func runTaskList(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("goremind task list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	status := fs.String("status", "", "filter by status")
	taskCtx := fs.String("context", "", "filter by context")
	prio := fs.String("p", "", "filter by priority")
	limit := fs.Int("limit", 0, "max rows")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	filter := persistence.TaskFilter{
		Status:  persistence.TaskStatus(strings.ToLower(*status)),
		Context: *taskCtx,
		Limit:   *limit,
	}
	if *prio != "" {
		p, err := persistence.ParsePriority(*prio)
		if err != nil {
			return fail(err)
		}
		filter.Priority = p
	}

	tasks, err := a.store.ListTasks(ctx, filter)
	if err != nil {
		return fail(err)
	}
	printTasks(tasks)
	return 0
}

func runTaskDone(ctx context.Context, a *app, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: goremind task done <id>")
		return 2
	}
	id, err := parseID(args[0])
	if err != nil {
		return fail(err)
	}
	if err := a.store.CompleteTask(ctx, id); err != nil {
		return fail(err)
	}
	fmt.Printf("completed task #%d\n", id)

	task, err := a.store.GetTask(ctx, id)
	if err != nil {
		return fail(err)
	}
	expander := recurrence.NewExpander(a.store, a.logger)
	nextID, err := expander.OnComplete(ctx, task)
	if err != nil {
		return fail(err)
	}
	if nextID != 0 {
		next, err := a.store.GetTask(ctx, nextID)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("next occurrence #%d due %s\n", nextID,
			temporal.FormatAbsolute(next.DueDate, time.Now()))
	}
	return 0
}

func runTaskMutate(ctx context.Context, a *app, sub string, args []string) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: goremind task %s <id>\n", sub)
		return 2
	}
	id, err := parseID(args[0])
	if err != nil {
		return fail(err)
	}

	switch sub {
	case "undone":
		err = a.store.UncompleteTask(ctx, id)
	case "start":
		err = a.store.StartTask(ctx, id)
	case "cancel":
		err = a.store.CancelTask(ctx, id)
	case "rm":
		err = a.store.DeleteTask(ctx, id)
	}
	if err != nil {
		return fail(err)
	}
	fmt.Printf("task #%d: %s\n", id, sub)
	return 0
}
