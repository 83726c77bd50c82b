// Package recurrence creates the next instance of a repeating task when
// the current one completes. It is a collaborator of the task store, not
// part of it: callers invoke the expander on the completion path.
package recurrence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/basket/go-remind/internal/persistence"
)

type Expander struct {
	store  *persistence.Store
	logger *slog.Logger
}

func NewExpander(store *persistence.Store, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{store: store, logger: logger}
}

// NextDue computes the follow-up due date for a recurrence kind. Custom
// recurrence delegates to a standard cron expression in the rule string.
func NextDue(kind persistence.Recurrence, rule string, after time.Time) (time.Time, error) {
	switch kind {
	case persistence.RecurrenceNone:
		return time.Time{}, nil
	case persistence.RecurrenceDaily:
		return after.AddDate(0, 0, 1), nil
	case persistence.RecurrenceWeekly:
		return after.AddDate(0, 0, 7), nil
	case persistence.RecurrenceMonthly:
		return after.AddDate(0, 1, 0), nil
	case persistence.RecurrenceYearly:
		return after.AddDate(1, 0, 0), nil
	case persistence.RecurrenceCustom:
		sched, err := cron.ParseStandard(rule)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse recurrence rule %q: %w", rule, err)
		}
		return sched.Next(after), nil
	}
	return time.Time{}, fmt.Errorf("unknown recurrence kind %q", kind)
}

// OnComplete creates the next instance of a just-completed recurring task
// and returns its id, or 0 when the task does not recur. The new task
// keeps every field except the dates, which step forward by the rule; a
// reminder keeps its offset relative to the due date.
func (e *Expander) OnComplete(ctx context.Context, task persistence.Task) (int64, error) {
	if task.Recurrence == persistence.RecurrenceNone || task.Recurrence == "" {
		return 0, nil
	}

	anchor := task.DueDate
	if anchor.IsZero() {
		anchor = time.Now()
	}
	nextDue, err := NextDue(task.Recurrence, task.RecurrenceRule, anchor)
	if err != nil {
		return 0, err
	}
	if nextDue.IsZero() {
		return 0, nil
	}

	var nextReminder time.Time
	if !task.ReminderAt.IsZero() && !task.DueDate.IsZero() {
		nextReminder = nextDue.Add(task.ReminderAt.Sub(task.DueDate))
	}

	id, err := e.store.CreateTask(ctx, persistence.TaskDraft{
		Title:          task.Title,
		Description:    task.Description,
		Priority:       task.Priority,
		DueDate:        nextDue,
		ReminderAt:     nextReminder,
		Recurrence:     task.Recurrence,
		RecurrenceRule: task.RecurrenceRule,
		Tags:           task.Tags,
		Context:        task.Context,
		ParentID:       task.ParentID,
		Source:         task.Source,
	})
	if err != nil {
		return 0, fmt.Errorf("create next occurrence of task %d: %w", task.ID, err)
	}
	e.logger.Info("recurring task expanded",
		"task_id", task.ID, "next_id", id, "due", nextDue.Format("2006-01-02 15:04"))
	return id, nil
}
