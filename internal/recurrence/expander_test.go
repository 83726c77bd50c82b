package recurrence_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/basket/go-remind/internal/persistence"
	"github.com/basket/go-remind/internal/recurrence"
)

func newTestStore(t *testing.T) *persistence.Store {
	t.Helper()
	s, err := persistence.Open(filepath.Join(t.TempDir(), "goremind.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNextDueKinds(t *testing.T) {
	after := time.Date(2026, time.January, 31, 10, 0, 0, 0, time.Local)
	cases := []struct {
		kind persistence.Recurrence
		rule string
		want time.Time
	}{
		{persistence.RecurrenceDaily, "", after.AddDate(0, 0, 1)},
		{persistence.RecurrenceWeekly, "", after.AddDate(0, 0, 7)},
		// Jan 31 + 1 month normalizes into March.
		{persistence.RecurrenceMonthly, "", after.AddDate(0, 1, 0)},
		{persistence.RecurrenceYearly, "", after.AddDate(1, 0, 0)},
	}
	for _, tc := range cases {
		got, err := recurrence.NextDue(tc.kind, tc.rule, after)
		if err != nil {
			t.Errorf("NextDue(%s): %v", tc.kind, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("NextDue(%s) = %v, want %v", tc.kind, got, tc.want)
		}
	}
}

func TestNextDueCron(t *testing.T) {
	after := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.Local)
	// Every Monday at 09:00.
	got, err := recurrence.NextDue(persistence.RecurrenceCustom, "0 9 * * 1", after)
	if err != nil {
		t.Fatalf("NextDue: %v", err)
	}
	if got.Weekday() != time.Monday || got.Hour() != 9 {
		t.Errorf("NextDue = %v, want next Monday 09:00", got)
	}
	if !got.After(after) {
		t.Errorf("NextDue = %v is not after %v", got, after)
	}

	if _, err := recurrence.NextDue(persistence.RecurrenceCustom, "not a rule", after); err == nil {
		t.Error("NextDue with bad rule succeeded, want error")
	}
}

func TestOnCompleteCreatesNextInstance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	exp := recurrence.NewExpander(s, slog.New(slog.NewTextHandler(io.Discard, nil)))

	due := time.Date(2026, time.March, 10, 18, 0, 0, 0, time.Local)
	id, err := s.CreateTask(ctx, persistence.TaskDraft{
		Title:      "water plants",
		Recurrence: persistence.RecurrenceWeekly,
		DueDate:    due,
		ReminderAt: due.Add(-time.Hour),
		Tags:       "home",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	task, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}

	nextID, err := exp.OnComplete(ctx, task)
	if err != nil {
		t.Fatalf("OnComplete: %v", err)
	}
	if nextID == 0 {
		t.Fatal("no next instance created")
	}

	next, err := s.GetTask(ctx, nextID)
	if err != nil {
		t.Fatalf("GetTask next: %v", err)
	}
	if !next.DueDate.Equal(due.AddDate(0, 0, 7)) {
		t.Errorf("next due = %v, want %v", next.DueDate, due.AddDate(0, 0, 7))
	}
	// The reminder keeps its one hour offset before the due date.
	if !next.ReminderAt.Equal(next.DueDate.Add(-time.Hour)) {
		t.Errorf("next reminder = %v, want hour before due", next.ReminderAt)
	}
	if next.Status != persistence.StatusPending {
		t.Errorf("next status = %s, want pending", next.Status)
	}
	if next.Tags != "home" || next.Title != "water plants" {
		t.Errorf("fields not carried over: %+v", next)
	}
}

func TestOnCompleteNonRecurringIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	exp := recurrence.NewExpander(s, nil)

	id, err := s.CreateTask(ctx, persistence.TaskDraft{Title: "one shot"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	task, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	nextID, err := exp.OnComplete(ctx, task)
	if err != nil {
		t.Fatalf("OnComplete: %v", err)
	}
	if nextID != 0 {
		t.Errorf("next id = %d, want 0 for non-recurring task", nextID)
	}
}
