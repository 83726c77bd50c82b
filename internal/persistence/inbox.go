package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// InboxItem is a quick-capture note awaiting triage into a task.
type InboxItem struct {
	ID              int64
	Content         string
	CapturedAt      time.Time
	Processed       bool
	ProcessedTaskID int64
	Source          string
}

// Capture stores raw text in the inbox and returns the item id.
func (s *Store) Capture(ctx context.Context, content, source string) (int64, error) {
	if strings.TrimSpace(content) == "" {
		return 0, fmt.Errorf("%w: inbox content is required", ErrValidation)
	}
	if source == "" {
		source = "cli"
	}

	var id int64
	err := retryOnBusy(ctx, 3, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO inbox (content, captured_at, processed, source)
			VALUES (?, ?, 0, ?);
		`, content, now().Format(timeLayout), source)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("capture inbox item: %w", err)
	}
	return id, nil
}

// ListInbox returns unprocessed items, newest capture first.
func (s *Store) ListInbox(ctx context.Context) ([]InboxItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, captured_at, processed, processed_task_id, source
		FROM inbox
		WHERE processed = 0
		ORDER BY captured_at DESC
		LIMIT 50;`)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	defer rows.Close()

	var items []InboxItem
	for rows.Next() {
		var it InboxItem
		var captured string
		var taskID sql.NullInt64
		if err := rows.Scan(&it.ID, &it.Content, &captured, &it.Processed, &taskID, &it.Source); err != nil {
			return nil, fmt.Errorf("scan inbox item: %w", err)
		}
		it.CapturedAt = parseTime(sql.NullString{Valid: true, String: captured})
		if taskID.Valid {
			it.ProcessedTaskID = taskID.Int64
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ProcessInboxItem marks an item triaged, linking it to the task it became.
// The task must exist; pass taskID 0 for items dismissed without a task.
func (s *Store) ProcessInboxItem(ctx context.Context, id, taskID int64) error {
	return retryOnBusy(ctx, 3, func() error {
		var linked sql.NullInt64
		if taskID != 0 {
			var exists int
			err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?;`, taskID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("task %d: %w", taskID, ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("check task %d: %w", taskID, err)
			}
			linked = sql.NullInt64{Valid: true, Int64: taskID}
		}

		res, err := s.db.ExecContext(ctx, `
			UPDATE inbox SET processed = 1, processed_task_id = ?
			WHERE id = ?;`, linked, id)
		if err != nil {
			return fmt.Errorf("process inbox item %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("process inbox item %d: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("inbox item %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// DeleteInboxItem discards a captured item.
func (s *Store) DeleteInboxItem(ctx context.Context, id int64) error {
	return retryOnBusy(ctx, 3, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM inbox WHERE id = ?;`, id)
		if err != nil {
			return fmt.Errorf("delete inbox item %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete inbox item %d: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("inbox item %d: %w", id, ErrNotFound)
		}
		return nil
	})
}
