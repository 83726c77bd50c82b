package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/basket/go-remind/internal/persistence"
)

func mustCreateTask(t *testing.T, s *persistence.Store, draft persistence.TaskDraft) int64 {
	t.Helper()
	id, err := s.CreateTask(context.Background(), draft)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return id
}

func TestCreateTaskDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := mustCreateTask(t, s, persistence.TaskDraft{Title: "buy milk"})
	task, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != persistence.StatusPending {
		t.Errorf("status = %s, want pending", task.Status)
	}
	if task.Priority != persistence.PriorityNormal {
		t.Errorf("priority = %d, want normal", task.Priority)
	}
	if !task.DueDate.IsZero() {
		t.Errorf("due date = %v, want zero", task.DueDate)
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Error("created_at/updated_at not populated")
	}
}

func TestCreateTaskRequiresTitle(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateTask(context.Background(), persistence.TaskDraft{Title: "   "})
	if !errors.Is(err, persistence.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTask(context.Background(), 9999)
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustCreateTask(t, s, persistence.TaskDraft{Title: "ship it"})

	if err := s.CompleteTask(ctx, id); err != nil {
		t.Fatalf("first CompleteTask: %v", err)
	}
	first, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if first.Status != persistence.StatusCompleted {
		t.Fatalf("status = %s, want completed", first.Status)
	}
	if first.CompletedAt.IsZero() {
		t.Fatal("completed_at not set")
	}

	time.Sleep(1100 * time.Millisecond)
	if err := s.CompleteTask(ctx, id); err != nil {
		t.Fatalf("second CompleteTask: %v", err)
	}
	second, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if !second.CompletedAt.Equal(first.CompletedAt) {
		t.Errorf("completed_at changed on repeat completion: %v -> %v",
			first.CompletedAt, second.CompletedAt)
	}
}

func TestUncompleteClearsCompletedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustCreateTask(t, s, persistence.TaskDraft{Title: "rework"})

	if err := s.CompleteTask(ctx, id); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if err := s.UncompleteTask(ctx, id); err != nil {
		t.Fatalf("UncompleteTask: %v", err)
	}
	task, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != persistence.StatusPending {
		t.Errorf("status = %s, want pending", task.Status)
	}
	if !task.CompletedAt.IsZero() {
		t.Errorf("completed_at = %v, want zero", task.CompletedAt)
	}
}

func TestCancelledTaskCannotComplete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustCreateTask(t, s, persistence.TaskDraft{Title: "abandoned"})

	if err := s.CancelTask(ctx, id); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	err := s.CompleteTask(ctx, id)
	if !errors.Is(err, persistence.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestUpdateTaskRefreshesUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustCreateTask(t, s, persistence.TaskDraft{Title: "original"})

	before, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}

	time.Sleep(1100 * time.Millisecond)
	title := "renamed"
	if err := s.UpdateTask(ctx, id, persistence.TaskUpdate{Title: &title}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	after, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if after.Title != "renamed" {
		t.Errorf("title = %q, want renamed", after.Title)
	}
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Errorf("updated_at not refreshed: %v -> %v", before.UpdatedAt, after.UpdatedAt)
	}
}

func TestUpdateTaskClearsDueDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	due := time.Now().Add(24 * time.Hour)
	id := mustCreateTask(t, s, persistence.TaskDraft{Title: "dated", DueDate: due})

	var zero time.Time
	if err := s.UpdateTask(ctx, id, persistence.TaskUpdate{DueDate: &zero}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	task, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if !task.DueDate.IsZero() {
		t.Errorf("due date = %v, want zero", task.DueDate)
	}
}

func TestListTasksOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lowID := mustCreateTask(t, s, persistence.TaskDraft{Title: "low", Priority: persistence.PriorityLow})
	urgentID := mustCreateTask(t, s, persistence.TaskDraft{Title: "urgent", Priority: persistence.PriorityUrgent})
	normalID := mustCreateTask(t, s, persistence.TaskDraft{Title: "normal"})

	tasks, err := s.ListTasks(ctx, persistence.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("len = %d, want 3", len(tasks))
	}
	want := []int64{urgentID, normalID, lowID}
	for i, task := range tasks {
		if task.ID != want[i] {
			t.Errorf("tasks[%d].ID = %d, want %d", i, task.ID, want[i])
		}
	}
}

func TestListTasksExcludesClosed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	openID := mustCreateTask(t, s, persistence.TaskDraft{Title: "open"})
	doneID := mustCreateTask(t, s, persistence.TaskDraft{Title: "done"})
	if err := s.CompleteTask(ctx, doneID); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	tasks, err := s.ListTasks(ctx, persistence.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != openID {
		t.Errorf("tasks = %+v, want only id %d", tasks, openID)
	}
}

func TestListTasksDueRangeAndOffset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	mustCreateTask(t, s, persistence.TaskDraft{
		Title: "early", DueDate: now.Add(1 * time.Hour)})
	midID := mustCreateTask(t, s, persistence.TaskDraft{
		Title: "mid", DueDate: now.Add(24 * time.Hour)})
	mustCreateTask(t, s, persistence.TaskDraft{
		Title: "late", DueDate: now.Add(72 * time.Hour)})
	mustCreateTask(t, s, persistence.TaskDraft{Title: "undated"})

	tasks, err := s.ListTasks(ctx, persistence.TaskFilter{
		DueFrom: now.Add(12 * time.Hour),
		DueTo:   now.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != midID {
		t.Errorf("range tasks = %+v, want only id %d", tasks, midID)
	}

	page, err := s.ListTasks(ctx, persistence.TaskFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("offset page len = %d, want 2", len(page))
	}
}

func TestListOverdueAndUpcoming(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	past := mustCreateTask(t, s, persistence.TaskDraft{
		Title: "late", DueDate: time.Now().Add(-2 * time.Hour)})
	soon := mustCreateTask(t, s, persistence.TaskDraft{
		Title: "soon", DueDate: time.Now().Add(48 * time.Hour)})
	mustCreateTask(t, s, persistence.TaskDraft{
		Title: "far", DueDate: time.Now().AddDate(0, 0, 30)})
	mustCreateTask(t, s, persistence.TaskDraft{Title: "undated"})

	overdue, err := s.ListOverdue(ctx)
	if err != nil {
		t.Fatalf("ListOverdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0].ID != past {
		t.Errorf("overdue = %+v, want only id %d", overdue, past)
	}

	upcoming, err := s.ListUpcoming(ctx, 7)
	if err != nil {
		t.Fatalf("ListUpcoming: %v", err)
	}
	if len(upcoming) != 1 || upcoming[0].ID != soon {
		t.Errorf("upcoming = %+v, want only id %d", upcoming, soon)
	}
}

func TestSearchTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	groceriesID := mustCreateTask(t, s, persistence.TaskDraft{
		Title: "buy groceries", Description: "milk and eggs"})
	mustCreateTask(t, s, persistence.TaskDraft{Title: "write report"})

	hits, err := s.SearchTasks(ctx, "groceries")
	if err != nil {
		t.Fatalf("SearchTasks: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != groceriesID {
		t.Fatalf("hits = %+v, want only id %d", hits, groceriesID)
	}

	// Description content is indexed too.
	hits, err = s.SearchTasks(ctx, "eggs")
	if err != nil {
		t.Fatalf("SearchTasks: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != groceriesID {
		t.Errorf("hits = %+v, want only id %d", hits, groceriesID)
	}
}

func TestSearchExcludesCompleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := mustCreateTask(t, s, persistence.TaskDraft{Title: "finished chore"})
	if err := s.CompleteTask(ctx, id); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	hits, err := s.SearchTasks(ctx, "chore")
	if err != nil {
		t.Fatalf("SearchTasks: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %+v, want none", hits)
	}
}

func TestSearchSeesUpdatedTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := mustCreateTask(t, s, persistence.TaskDraft{Title: "plan vacation"})
	title := "plan sabbatical"
	if err := s.UpdateTask(ctx, id, persistence.TaskUpdate{Title: &title}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	hits, err := s.SearchTasks(ctx, "sabbatical")
	if err != nil {
		t.Fatalf("SearchTasks: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != id {
		t.Errorf("hits for new title = %+v, want id %d", hits, id)
	}

	hits, err = s.SearchTasks(ctx, "vacation")
	if err != nil {
		t.Fatalf("SearchTasks: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits for old title = %+v, want none", hits)
	}
}

func TestDeleteTaskRemovesFromSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := mustCreateTask(t, s, persistence.TaskDraft{Title: "ephemeral errand"})
	if err := s.DeleteTask(ctx, id); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}

	if _, err := s.GetTask(ctx, id); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("GetTask err = %v, want ErrNotFound", err)
	}
	hits, err := s.SearchTasks(ctx, "ephemeral")
	if err != nil {
		t.Fatalf("SearchTasks: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %+v, want none", hits)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateTask(t, s, persistence.TaskDraft{Title: "open one"})
	mustCreateTask(t, s, persistence.TaskDraft{
		Title: "late one", DueDate: time.Now().Add(-time.Hour)})
	doneID := mustCreateTask(t, s, persistence.TaskDraft{Title: "done one"})
	if err := s.CompleteTask(ctx, doneID); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if _, err := s.Capture(ctx, "stray thought", ""); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Pending != 2 {
		t.Errorf("Pending = %d, want 2", st.Pending)
	}
	if st.CompletedToday != 1 {
		t.Errorf("CompletedToday = %d, want 1", st.CompletedToday)
	}
	if st.Overdue != 1 {
		t.Errorf("Overdue = %d, want 1", st.Overdue)
	}
	if st.InboxUnread != 1 {
		t.Errorf("InboxUnread = %d, want 1", st.InboxUnread)
	}
}

func TestParsePriority(t *testing.T) {
	cases := []struct {
		in   string
		want persistence.Priority
	}{
		{"urgent", persistence.PriorityUrgent},
		{"1", persistence.PriorityUrgent},
		{"normal", persistence.PriorityNormal},
		{"", persistence.PriorityNormal},
		{"LOW", persistence.PriorityLow},
	}
	for _, tc := range cases {
		got, err := persistence.ParsePriority(tc.in)
		if err != nil {
			t.Errorf("ParsePriority(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParsePriority(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if _, err := persistence.ParsePriority("whenever"); !errors.Is(err, persistence.ErrValidation) {
		t.Errorf("ParsePriority(whenever) err = %v, want ErrValidation", err)
	}
}
