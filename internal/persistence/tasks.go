package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusCancelled  TaskStatus = "cancelled"
)

// Priority orders tasks for listing; lower is more urgent so that
// ORDER BY priority ASC surfaces urgent work first.
type Priority int

const (
	PriorityUrgent Priority = 1
	PriorityNormal Priority = 2
	PriorityLow    Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// ParsePriority accepts the symbolic names and their numeric forms.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "urgent", "high", "1":
		return PriorityUrgent, nil
	case "normal", "medium", "2", "":
		return PriorityNormal, nil
	case "low", "3":
		return PriorityLow, nil
	}
	return 0, fmt.Errorf("%w: unknown priority %q", ErrValidation, s)
}

// Recurrence is how a task repeats after completion.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
	RecurrenceCustom  Recurrence = "custom"
)

// allowedTaskTransitions defines the legal task state machine.
// Idempotent self-loops are handled separately by the mutators.
var allowedTaskTransitions = map[TaskStatus]map[TaskStatus]struct{}{
	StatusPending: {
		StatusInProgress: {},
		StatusCompleted:  {},
		StatusCancelled:  {},
	},
	StatusInProgress: {
		StatusPending:   {},
		StatusCompleted: {},
		StatusCancelled: {},
	},
	StatusCompleted: {
		StatusPending: {},
	},
	StatusCancelled: {
		StatusPending: {},
	},
}

// Task is a single tracked item. Zero time values mean "not set".
type Task struct {
	ID             int64
	Title          string
	Description    string
	Priority       Priority
	Status         TaskStatus
	DueDate        time.Time
	ReminderAt     time.Time
	Recurrence     Recurrence
	RecurrenceRule string
	Tags           string
	Context        string
	ParentID       int64
	Source         string
	ExternalID     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    time.Time
}

// TaskDraft is the caller-supplied portion of a new task.
type TaskDraft struct {
	Title          string
	Description    string
	Priority       Priority
	DueDate        time.Time
	ReminderAt     time.Time
	Recurrence     Recurrence
	RecurrenceRule string
	Tags           string
	Context        string
	ParentID       int64
	Source         string
	ExternalID     string
}

// TaskFilter narrows ListTasks. Zero values mean "no constraint".
type TaskFilter struct {
	Status   TaskStatus
	Context  string
	Priority Priority
	DueFrom  time.Time
	DueTo    time.Time
	Limit    int
	Offset   int
}

const taskColumns = `id, title, description, priority, status, due_date, reminder_at,
	recurrence, recurrence_rule, tags, context, parent_id, source, external_id,
	created_at, updated_at, completed_at`

// taskColumnsT is taskColumns qualified for joins against tasks_fts,
// which shares the title and description column names.
const taskColumnsT = `t.id, t.title, t.description, t.priority, t.status, t.due_date, t.reminder_at,
	t.recurrence, t.recurrence_rule, t.tags, t.context, t.parent_id, t.source, t.external_id,
	t.created_at, t.updated_at, t.completed_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	var due, reminder, completed sql.NullString
	var created, updated string
	var parent sql.NullInt64
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &t.Status,
		&due, &reminder, &t.Recurrence, &t.RecurrenceRule, &t.Tags, &t.Context,
		&parent, &t.Source, &t.ExternalID, &created, &updated, &completed)
	if err != nil {
		return Task{}, err
	}
	t.DueDate = parseTime(due)
	t.ReminderAt = parseTime(reminder)
	t.CompletedAt = parseTime(completed)
	t.CreatedAt = parseTime(sql.NullString{Valid: true, String: created})
	t.UpdatedAt = parseTime(sql.NullString{Valid: true, String: updated})
	if parent.Valid {
		t.ParentID = parent.Int64
	}
	return t, nil
}

// CreateTask inserts a new pending task and returns its id.
func (s *Store) CreateTask(ctx context.Context, draft TaskDraft) (int64, error) {
	if strings.TrimSpace(draft.Title) == "" {
		return 0, fmt.Errorf("%w: task title is required", ErrValidation)
	}
	if draft.Priority == 0 {
		draft.Priority = PriorityNormal
	}
	if draft.Priority < PriorityUrgent || draft.Priority > PriorityLow {
		return 0, fmt.Errorf("%w: priority out of range: %d", ErrValidation, draft.Priority)
	}
	if draft.Recurrence == "" {
		draft.Recurrence = RecurrenceNone
	}
	if draft.Source == "" {
		draft.Source = "cli"
	}

	var parent sql.NullInt64
	if draft.ParentID != 0 {
		parent = sql.NullInt64{Valid: true, Int64: draft.ParentID}
	}
	ts := now().Format(timeLayout)

	var id int64
	err := retryOnBusy(ctx, 3, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO tasks (title, description, priority, status, due_date, reminder_at,
				recurrence, recurrence_rule, tags, context, parent_id, source, external_id,
				created_at, updated_at)
			VALUES (?, ?, ?, 'pending', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
		`, draft.Title, draft.Description, draft.Priority,
			formatTime(draft.DueDate), formatTime(draft.ReminderAt),
			draft.Recurrence, draft.RecurrenceRule, draft.Tags, draft.Context,
			parent, draft.Source, draft.ExternalID, ts, ts)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create task: %w", err)
	}
	return id, nil
}

// GetTask returns the task with the given id, or ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id int64) (Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?;`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

// TaskUpdate lists the mutable fields of a task. Nil pointers are left
// unchanged; a pointer to the zero time clears the date.
type TaskUpdate struct {
	Title          *string
	Description    *string
	Priority       *Priority
	DueDate        *time.Time
	ReminderAt     *time.Time
	Recurrence     *Recurrence
	RecurrenceRule *string
	Tags           *string
	Context        *string
}

// UpdateTask applies the set fields of upd and refreshes updated_at.
func (s *Store) UpdateTask(ctx context.Context, id int64, upd TaskUpdate) error {
	var sets []string
	var args []any
	if upd.Title != nil {
		if strings.TrimSpace(*upd.Title) == "" {
			return fmt.Errorf("%w: task title is required", ErrValidation)
		}
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.Priority != nil {
		if *upd.Priority < PriorityUrgent || *upd.Priority > PriorityLow {
			return fmt.Errorf("%w: priority out of range: %d", ErrValidation, *upd.Priority)
		}
		sets = append(sets, "priority = ?")
		args = append(args, *upd.Priority)
	}
	if upd.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, formatTime(*upd.DueDate))
	}
	if upd.ReminderAt != nil {
		sets = append(sets, "reminder_at = ?")
		args = append(args, formatTime(*upd.ReminderAt))
	}
	if upd.Recurrence != nil {
		sets = append(sets, "recurrence = ?")
		args = append(args, *upd.Recurrence)
	}
	if upd.RecurrenceRule != nil {
		sets = append(sets, "recurrence_rule = ?")
		args = append(args, *upd.RecurrenceRule)
	}
	if upd.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, *upd.Tags)
	}
	if upd.Context != nil {
		sets = append(sets, "context = ?")
		args = append(args, *upd.Context)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now().Format(timeLayout), id)

	return retryOnBusy(ctx, 3, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?;`, args...)
		if err != nil {
			return fmt.Errorf("update task %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update task %d: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// DeleteTask removes the task row. FTS cleanup rides on the delete trigger.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	return retryOnBusy(ctx, 3, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?;`, id)
		if err != nil {
			return fmt.Errorf("delete task %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete task %d: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// transitionTask moves a task to target if the state machine allows it.
// Re-asserting the current status is a no-op that leaves timestamps alone.
func (s *Store) transitionTask(ctx context.Context, id int64, target TaskStatus) error {
	return retryOnBusy(ctx, 3, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transition tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var current TaskStatus
		err = tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?;`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read task %d status: %w", id, err)
		}
		if current == target {
			return tx.Commit()
		}
		if _, ok := allowedTaskTransitions[current][target]; !ok {
			return fmt.Errorf("%w: task %d cannot go %s -> %s", ErrValidation, id, current, target)
		}

		ts := now().Format(timeLayout)
		switch target {
		case StatusCompleted:
			_, err = tx.ExecContext(ctx, `
				UPDATE tasks SET status = ?, completed_at = COALESCE(completed_at, ?), updated_at = ?
				WHERE id = ?;`, target, ts, ts, id)
		case StatusPending:
			_, err = tx.ExecContext(ctx, `
				UPDATE tasks SET status = ?, completed_at = NULL, updated_at = ?
				WHERE id = ?;`, target, ts, id)
		default:
			_, err = tx.ExecContext(ctx, `
				UPDATE tasks SET status = ?, updated_at = ?
				WHERE id = ?;`, target, ts, id)
		}
		if err != nil {
			return fmt.Errorf("transition task %d to %s: %w", id, target, err)
		}
		return tx.Commit()
	})
}

// CompleteTask marks the task done. Completing a completed task is a no-op
// and preserves the original completed_at.
func (s *Store) CompleteTask(ctx context.Context, id int64) error {
	return s.transitionTask(ctx, id, StatusCompleted)
}

// UncompleteTask reopens a completed or cancelled task.
func (s *Store) UncompleteTask(ctx context.Context, id int64) error {
	return s.transitionTask(ctx, id, StatusPending)
}

// StartTask marks the task in progress.
func (s *Store) StartTask(ctx context.Context, id int64) error {
	return s.transitionTask(ctx, id, StatusInProgress)
}

// CancelTask abandons the task without deleting it.
func (s *Store) CancelTask(ctx context.Context, id int64) error {
	return s.transitionTask(ctx, id, StatusCancelled)
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ListTasks returns tasks matching the filter, urgent and soonest first.
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	where := []string{"1=1"}
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	} else {
		where = append(where, "status IN ('pending', 'in_progress')")
	}
	if filter.Context != "" {
		where = append(where, "context = ?")
		args = append(args, filter.Context)
	}
	if filter.Priority != 0 {
		where = append(where, "priority = ?")
		args = append(args, filter.Priority)
	}
	if !filter.DueFrom.IsZero() {
		where = append(where, "due_date IS NOT NULL AND due_date >= ?")
		args = append(args, filter.DueFrom.Format(timeLayout))
	}
	if !filter.DueTo.IsZero() {
		where = append(where, "due_date IS NOT NULL AND due_date <= ?")
		args = append(args, filter.DueTo.Format(timeLayout))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	tasks, err := s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY priority ASC, due_date IS NULL, due_date ASC, id ASC
		LIMIT ? OFFSET ?;`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListToday returns open tasks due before midnight tonight, overdue included.
func (s *Store) ListToday(ctx context.Context) ([]Task, error) {
	endOfDay := time.Date(now().Year(), now().Month(), now().Day(), 23, 59, 59, 0, time.Local)
	tasks, err := s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status IN ('pending', 'in_progress')
		  AND due_date IS NOT NULL AND due_date <= ?
		ORDER BY due_date ASC, priority ASC;`, endOfDay.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("list today: %w", err)
	}
	return tasks, nil
}

// ListOverdue returns open tasks whose due date has passed.
func (s *Store) ListOverdue(ctx context.Context) ([]Task, error) {
	tasks, err := s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status IN ('pending', 'in_progress')
		  AND due_date IS NOT NULL AND due_date < ?
		ORDER BY due_date ASC, priority ASC;`, now().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("list overdue: %w", err)
	}
	return tasks, nil
}

// ListUpcoming returns open tasks due within the next `days` days.
func (s *Store) ListUpcoming(ctx context.Context, days int) ([]Task, error) {
	if days <= 0 {
		days = 7
	}
	start := now()
	end := start.AddDate(0, 0, days)
	tasks, err := s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status IN ('pending', 'in_progress')
		  AND due_date IS NOT NULL AND due_date >= ? AND due_date <= ?
		ORDER BY due_date ASC, priority ASC;`,
		start.Format(timeLayout), end.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("list upcoming: %w", err)
	}
	return tasks, nil
}

// SearchTasks runs a full-text match over title and description of open
// tasks, best match first.
func (s *Store) SearchTasks(ctx context.Context, query string) ([]Task, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrValidation)
	}
	tasks, err := s.queryTasks(ctx, `
		SELECT `+taskColumnsT+`
		FROM tasks t
		JOIN tasks_fts f ON f.rowid = t.id
		WHERE tasks_fts MATCH ?
		  AND t.status IN ('pending', 'in_progress')
		ORDER BY rank
		LIMIT 50;`, query)
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	return tasks, nil
}

// TaskStats is a one-shot summary of the store.
type TaskStats struct {
	Pending        int
	InProgress     int
	CompletedToday int
	CompletedWeek  int
	Overdue        int
	InboxUnread    int
}

// Stats counts tasks by state plus unprocessed inbox items.
func (s *Store) Stats(ctx context.Context) (TaskStats, error) {
	n := now()
	startOfDay := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.Local)
	weekAgo := n.AddDate(0, 0, -7)

	var st TaskStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM tasks WHERE status = 'pending'),
			(SELECT COUNT(*) FROM tasks WHERE status = 'in_progress'),
			(SELECT COUNT(*) FROM tasks WHERE status = 'completed' AND completed_at >= ?),
			(SELECT COUNT(*) FROM tasks WHERE status = 'completed' AND completed_at >= ?),
			(SELECT COUNT(*) FROM tasks WHERE status IN ('pending', 'in_progress')
				AND due_date IS NOT NULL AND due_date < ?),
			(SELECT COUNT(*) FROM inbox WHERE processed = 0);
	`, startOfDay.Format(timeLayout), weekAgo.Format(timeLayout), n.Format(timeLayout)).Scan(
		&st.Pending, &st.InProgress, &st.CompletedToday, &st.CompletedWeek, &st.Overdue, &st.InboxUnread)
	if err != nil {
		return TaskStats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}
