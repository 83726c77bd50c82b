package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NotifyStatus is the delivery state of a queued notification.
type NotifyStatus string

const (
	NotifyPending      NotifyStatus = "pending"
	NotifySent         NotifyStatus = "sent"
	NotifyFailed       NotifyStatus = "failed"
	NotifyAcknowledged NotifyStatus = "acknowledged"
	NotifySnoozed      NotifyStatus = "snoozed"
)

// Notification is a persisted delivery request. Task-linked notifications
// render their message from the task at delivery time; custom ones carry
// Title and Body themselves.
type Notification struct {
	ID             int64
	TaskID         int64
	Title          string
	Body           string
	GroupID        string
	ScheduledAt    time.Time
	Method         string
	Status         NotifyStatus
	RetryCount     int
	MaxRetries     int
	LastError      string
	SentAt         time.Time
	AcknowledgedAt time.Time
	CreatedAt      time.Time
}

// ScheduleOptions configures a new queue entry. TaskID 0 means a custom
// notification, which then requires a Title.
type ScheduleOptions struct {
	TaskID      int64
	Title       string
	Body        string
	GroupID     string
	ScheduledAt time.Time
	Method      string
	MaxRetries  int
}

const notifyColumns = `id, task_id, title, body, group_id, scheduled_at, method,
	status, retry_count, max_retries, last_error, sent_at, acknowledged_at, created_at`

func scanNotification(row interface{ Scan(...any) error }) (Notification, error) {
	var n Notification
	var taskID sql.NullInt64
	var scheduled, created string
	var lastErr, sentAt, ackAt sql.NullString
	err := row.Scan(&n.ID, &taskID, &n.Title, &n.Body, &n.GroupID, &scheduled, &n.Method,
		&n.Status, &n.RetryCount, &n.MaxRetries, &lastErr, &sentAt, &ackAt, &created)
	if err != nil {
		return Notification{}, err
	}
	if taskID.Valid {
		n.TaskID = taskID.Int64
	}
	if lastErr.Valid {
		n.LastError = lastErr.String
	}
	n.ScheduledAt = parseTime(sql.NullString{Valid: true, String: scheduled})
	n.SentAt = parseTime(sentAt)
	n.AcknowledgedAt = parseTime(ackAt)
	n.CreatedAt = parseTime(sql.NullString{Valid: true, String: created})
	return n, nil
}

// ScheduleNotification queues a notification for delivery at opts.ScheduledAt.
func (s *Store) ScheduleNotification(ctx context.Context, opts ScheduleOptions) (int64, error) {
	if opts.ScheduledAt.IsZero() {
		return 0, fmt.Errorf("%w: scheduled time is required", ErrValidation)
	}
	if opts.TaskID == 0 && opts.Title == "" {
		return 0, fmt.Errorf("%w: custom notification needs a title", ErrValidation)
	}
	if opts.Method == "" {
		opts.Method = "auto"
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}

	var taskID sql.NullInt64
	if opts.TaskID != 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?;`, opts.TaskID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("task %d: %w", opts.TaskID, ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("check task %d: %w", opts.TaskID, err)
		}
		taskID = sql.NullInt64{Valid: true, Int64: opts.TaskID}
	}

	var id int64
	err := retryOnBusy(ctx, 3, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO notification_queue
				(task_id, title, body, group_id, scheduled_at, method, status, max_retries, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?);
		`, taskID, opts.Title, opts.Body, opts.GroupID,
			opts.ScheduledAt.Format(timeLayout), opts.Method, opts.MaxRetries,
			now().Format(timeLayout))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("schedule notification: %w", err)
	}
	return id, nil
}

// GetNotification returns the queue entry with the given id.
func (s *Store) GetNotification(ctx context.Context, id int64) (Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notifyColumns+` FROM notification_queue WHERE id = ?;`, id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Notification{}, fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Notification{}, fmt.Errorf("get notification %d: %w", id, err)
	}
	return n, nil
}

// CancelNotification removes the queue entry entirely.
func (s *Store) CancelNotification(ctx context.Context, id int64) error {
	return retryOnBusy(ctx, 3, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM notification_queue WHERE id = ?;`, id)
		if err != nil {
			return fmt.Errorf("cancel notification %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("cancel notification %d: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("notification %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// SnoozeNotification reschedules the entry and resets its retry budget, so
// a previously failed notification gets a fresh set of attempts.
func (s *Store) SnoozeNotification(ctx context.Context, id int64, until time.Time) error {
	if until.IsZero() {
		return fmt.Errorf("%w: snooze time is required", ErrValidation)
	}
	return retryOnBusy(ctx, 3, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE notification_queue
			SET status = 'snoozed', scheduled_at = ?, retry_count = 0, last_error = NULL
			WHERE id = ?;`, until.Format(timeLayout), id)
		if err != nil {
			return fmt.Errorf("snooze notification %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("snooze notification %d: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("notification %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// SnoozeNotificationFor snoozes relative to the current time.
func (s *Store) SnoozeNotificationFor(ctx context.Context, id int64, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: snooze duration must be positive", ErrValidation)
	}
	return s.SnoozeNotification(ctx, id, now().Add(d))
}

// AcknowledgeNotification marks a delivered or failed entry as seen.
func (s *Store) AcknowledgeNotification(ctx context.Context, id int64) error {
	return retryOnBusy(ctx, 3, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE notification_queue
			SET status = 'acknowledged', acknowledged_at = ?
			WHERE id = ? AND status IN ('sent', 'failed');`, now().Format(timeLayout), id)
		if err != nil {
			return fmt.Errorf("acknowledge notification %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("acknowledge notification %d: %w", id, err)
		}
		if affected == 0 {
			var status NotifyStatus
			err := s.db.QueryRowContext(ctx,
				`SELECT status FROM notification_queue WHERE id = ?;`, id).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("notification %d: %w", id, ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("acknowledge notification %d: %w", id, err)
			}
			if status == NotifyAcknowledged {
				return nil
			}
			return fmt.Errorf("%w: notification %d cannot go %s -> acknowledged", ErrValidation, id, status)
		}
		return nil
	})
}

// ListPendingNotifications returns entries still awaiting delivery, soonest
// first. Snoozed entries are included since they become due again.
func (s *Store) ListPendingNotifications(ctx context.Context) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notifyColumns+` FROM notification_queue
		WHERE status IN ('pending', 'snoozed')
		ORDER BY scheduled_at ASC
		LIMIT 100;`)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DueNotification pairs a due queue entry with its linked task's text, so
// the delivery loop renders messages without a second round trip.
type DueNotification struct {
	Notification
	TaskTitle       string
	TaskDescription string
}

// DueNotifications returns entries due at or before the cutoff, oldest
// fire time first, capped at limit.
func (s *Store) DueNotifications(ctx context.Context, cutoff time.Time, limit int) ([]DueNotification, error) {
	if limit <= 0 {
		limit = 16
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.task_id, n.title, n.body, n.group_id, n.scheduled_at, n.method,
			n.status, n.retry_count, n.max_retries, n.last_error, n.sent_at, n.acknowledged_at, n.created_at,
			COALESCE(t.title, ''), COALESCE(t.description, '')
		FROM notification_queue n
		LEFT JOIN tasks t ON t.id = n.task_id
		WHERE n.status IN ('pending', 'snoozed') AND n.scheduled_at <= ?
		ORDER BY n.scheduled_at ASC
		LIMIT ?;`, cutoff.Format(timeLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("due notifications: %w", err)
	}
	defer rows.Close()

	var out []DueNotification
	for rows.Next() {
		var d DueNotification
		var taskID sql.NullInt64
		var scheduled, created string
		var lastErr, sentAt, ackAt sql.NullString
		err := rows.Scan(&d.ID, &taskID, &d.Title, &d.Body, &d.GroupID, &scheduled, &d.Method,
			&d.Status, &d.RetryCount, &d.MaxRetries, &lastErr, &sentAt, &ackAt, &created,
			&d.TaskTitle, &d.TaskDescription)
		if err != nil {
			return nil, fmt.Errorf("scan due notification: %w", err)
		}
		if taskID.Valid {
			d.TaskID = taskID.Int64
		}
		if lastErr.Valid {
			d.LastError = lastErr.String
		}
		d.ScheduledAt = parseTime(sql.NullString{Valid: true, String: scheduled})
		d.SentAt = parseTime(sentAt)
		d.AcknowledgedAt = parseTime(ackAt)
		d.CreatedAt = parseTime(sql.NullString{Valid: true, String: created})
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkNotificationSent records a successful delivery. Keyed by id, so a
// replayed update after a crash is harmless.
func (s *Store) MarkNotificationSent(ctx context.Context, id int64, sentAt time.Time) error {
	if sentAt.IsZero() {
		sentAt = now()
	}
	return retryOnBusy(ctx, 3, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE notification_queue
			SET status = 'sent', sent_at = ?, last_error = NULL
			WHERE id = ?;`, sentAt.Format(timeLayout), id)
		if err != nil {
			return fmt.Errorf("mark notification %d sent: %w", id, err)
		}
		return nil
	})
}

// MarkNotificationFailed records a delivery failure with its reason.
func (s *Store) MarkNotificationFailed(ctx context.Context, id int64, reason string) error {
	return retryOnBusy(ctx, 3, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE notification_queue
			SET status = 'failed', last_error = ?,
				retry_count = MIN(retry_count + 1, max_retries)
			WHERE id = ?;`, reason, id)
		if err != nil {
			return fmt.Errorf("mark notification %d failed: %w", id, err)
		}
		return nil
	})
}

// NotifyStats summarizes queue activity for the health view.
type NotifyStats struct {
	Pending     int
	SentToday   int
	SentWeek    int
	FailedToday int
	Snoozed     int
}

// NotificationStats counts queue entries by state over recent windows.
func (s *Store) NotificationStats(ctx context.Context) (NotifyStats, error) {
	n := now()
	startOfDay := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.Local)
	weekAgo := n.AddDate(0, 0, -7)

	var st NotifyStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM notification_queue WHERE status IN ('pending', 'snoozed')),
			(SELECT COUNT(*) FROM notification_queue WHERE status = 'sent' AND sent_at >= ?),
			(SELECT COUNT(*) FROM notification_queue WHERE status = 'sent' AND sent_at >= ?),
			(SELECT COUNT(*) FROM notification_queue WHERE status = 'failed' AND created_at >= ?),
			(SELECT COUNT(*) FROM notification_queue WHERE status = 'snoozed');
	`, startOfDay.Format(timeLayout), weekAgo.Format(timeLayout), startOfDay.Format(timeLayout)).Scan(
		&st.Pending, &st.SentToday, &st.SentWeek, &st.FailedToday, &st.Snoozed)
	if err != nil {
		return NotifyStats{}, fmt.Errorf("notification stats: %w", err)
	}
	return st, nil
}

// HealthCounts are the queue figures reported by the health monitor.
type HealthCounts struct {
	Pending   int
	Sent24h   int
	Failed24h int
	LastError string
}

// QueueHealth reads the counters the health snapshot needs, without
// mutating anything.
func (s *Store) QueueHealth(ctx context.Context) (HealthCounts, error) {
	dayAgo := now().Add(-24 * time.Hour).Format(timeLayout)

	var hc HealthCounts
	var lastErr sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM notification_queue WHERE status IN ('pending', 'snoozed')),
			(SELECT COUNT(*) FROM notification_queue WHERE status = 'sent' AND sent_at >= ?),
			(SELECT COUNT(*) FROM notification_queue WHERE status = 'failed' AND created_at >= ?),
			(SELECT last_error FROM notification_queue
				WHERE last_error IS NOT NULL ORDER BY id DESC LIMIT 1);
	`, dayAgo, dayAgo).Scan(&hc.Pending, &hc.Sent24h, &hc.Failed24h, &lastErr)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return HealthCounts{}, fmt.Errorf("queue health: %w", err)
	}
	if lastErr.Valid {
		hc.LastError = lastErr.String
	}
	return hc, nil
}
