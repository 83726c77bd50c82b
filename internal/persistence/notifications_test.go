package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/basket/go-remind/internal/persistence"
)

func TestScheduleForTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	taskID := mustCreateTask(t, s, persistence.TaskDraft{Title: "water plants"})
	at := time.Now().Add(time.Hour)
	id, err := s.ScheduleNotification(ctx, persistence.ScheduleOptions{
		TaskID: taskID, ScheduledAt: at,
	})
	if err != nil {
		t.Fatalf("ScheduleNotification: %v", err)
	}

	n, err := s.GetNotification(ctx, id)
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if n.Status != persistence.NotifyPending {
		t.Errorf("status = %s, want pending", n.Status)
	}
	if n.TaskID != taskID {
		t.Errorf("task id = %d, want %d", n.TaskID, taskID)
	}
	if n.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3", n.MaxRetries)
	}
}

func TestScheduleCustomRequiresTitle(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ScheduleNotification(context.Background(), persistence.ScheduleOptions{
		ScheduledAt: time.Now().Add(time.Minute),
	})
	if !errors.Is(err, persistence.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestScheduleUnknownTask(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ScheduleNotification(context.Background(), persistence.ScheduleOptions{
		TaskID: 777, ScheduledAt: time.Now().Add(time.Minute),
	})
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDueNotificationsRespectsCutoffAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	var dueIDs []int64
	for i := 0; i < 20; i++ {
		id, err := s.ScheduleNotification(ctx, persistence.ScheduleOptions{
			Title:       "due",
			ScheduledAt: base.Add(-time.Duration(20-i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("ScheduleNotification: %v", err)
		}
		dueIDs = append(dueIDs, id)
	}
	if _, err := s.ScheduleNotification(ctx, persistence.ScheduleOptions{
		Title: "future", ScheduledAt: base.Add(time.Hour),
	}); err != nil {
		t.Fatalf("ScheduleNotification: %v", err)
	}

	due, err := s.DueNotifications(ctx, base, 16)
	if err != nil {
		t.Fatalf("DueNotifications: %v", err)
	}
	if len(due) != 16 {
		t.Fatalf("len = %d, want batch of 16", len(due))
	}
	// Oldest fire time first.
	for i := range due {
		if due[i].ID != dueIDs[i] {
			t.Errorf("due[%d].ID = %d, want %d", i, due[i].ID, dueIDs[i])
		}
	}
}

func TestDueNotificationsCarriesTaskText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	taskID := mustCreateTask(t, s, persistence.TaskDraft{
		Title: "standup", Description: "daily sync"})
	if _, err := s.ScheduleNotification(ctx, persistence.ScheduleOptions{
		TaskID: taskID, ScheduledAt: time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("ScheduleNotification: %v", err)
	}

	due, err := s.DueNotifications(ctx, time.Now(), 16)
	if err != nil {
		t.Fatalf("DueNotifications: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("len = %d, want 1", len(due))
	}
	if due[0].TaskTitle != "standup" || due[0].TaskDescription != "daily sync" {
		t.Errorf("task text = %q / %q", due[0].TaskTitle, due[0].TaskDescription)
	}
}

func TestMarkSentAndFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.ScheduleNotification(ctx, persistence.ScheduleOptions{
		Title: "ping", ScheduledAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("ScheduleNotification: %v", err)
	}

	if err := s.MarkNotificationFailed(ctx, id, "no transport available"); err != nil {
		t.Fatalf("MarkNotificationFailed: %v", err)
	}
	n, err := s.GetNotification(ctx, id)
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if n.Status != persistence.NotifyFailed {
		t.Errorf("status = %s, want failed", n.Status)
	}
	if n.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", n.RetryCount)
	}
	if n.LastError != "no transport available" {
		t.Errorf("last error = %q", n.LastError)
	}

	if err := s.MarkNotificationSent(ctx, id, time.Now()); err != nil {
		t.Fatalf("MarkNotificationSent: %v", err)
	}
	n, err = s.GetNotification(ctx, id)
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if n.Status != persistence.NotifySent {
		t.Errorf("status = %s, want sent", n.Status)
	}
	if n.SentAt.IsZero() {
		t.Error("sent_at not set")
	}
	if n.LastError != "" {
		t.Errorf("last error = %q, want cleared", n.LastError)
	}
}

func TestRetryCountNeverExceedsMax(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.ScheduleNotification(ctx, persistence.ScheduleOptions{
		Title: "flaky", ScheduledAt: time.Now().Add(-time.Minute), MaxRetries: 2,
	})
	if err != nil {
		t.Fatalf("ScheduleNotification: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := s.MarkNotificationFailed(ctx, id, "still down"); err != nil {
			t.Fatalf("MarkNotificationFailed: %v", err)
		}
	}
	n, err := s.GetNotification(ctx, id)
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if n.RetryCount > n.MaxRetries {
		t.Errorf("retry count %d exceeds max %d", n.RetryCount, n.MaxRetries)
	}
}

func TestSnoozeResetsRetries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.ScheduleNotification(ctx, persistence.ScheduleOptions{
		Title: "snoozable", ScheduledAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("ScheduleNotification: %v", err)
	}
	if err := s.MarkNotificationFailed(ctx, id, "transient"); err != nil {
		t.Fatalf("MarkNotificationFailed: %v", err)
	}

	until := time.Now().Add(10 * time.Minute)
	if err := s.SnoozeNotification(ctx, id, until); err != nil {
		t.Fatalf("SnoozeNotification: %v", err)
	}

	n, err := s.GetNotification(ctx, id)
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if n.Status != persistence.NotifySnoozed {
		t.Errorf("status = %s, want snoozed", n.Status)
	}
	if n.RetryCount != 0 {
		t.Errorf("retry count = %d, want 0", n.RetryCount)
	}
	if n.LastError != "" {
		t.Errorf("last error = %q, want cleared", n.LastError)
	}

	// Snoozed entries come back once due.
	due, err := s.DueNotifications(ctx, until.Add(time.Second), 16)
	if err != nil {
		t.Fatalf("DueNotifications: %v", err)
	}
	if len(due) != 1 || due[0].ID != id {
		t.Errorf("due = %+v, want id %d", due, id)
	}
}

func TestAcknowledgeTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.ScheduleNotification(ctx, persistence.ScheduleOptions{
		Title: "ackable", ScheduledAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("ScheduleNotification: %v", err)
	}

	// Pending entries cannot be acknowledged.
	if err := s.AcknowledgeNotification(ctx, id); !errors.Is(err, persistence.ErrValidation) {
		t.Errorf("ack pending err = %v, want ErrValidation", err)
	}

	if err := s.MarkNotificationSent(ctx, id, time.Now()); err != nil {
		t.Fatalf("MarkNotificationSent: %v", err)
	}
	if err := s.AcknowledgeNotification(ctx, id); err != nil {
		t.Fatalf("AcknowledgeNotification: %v", err)
	}
	// Repeat acknowledgement is a no-op.
	if err := s.AcknowledgeNotification(ctx, id); err != nil {
		t.Errorf("repeat ack: %v", err)
	}

	n, err := s.GetNotification(ctx, id)
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if n.Status != persistence.NotifyAcknowledged {
		t.Errorf("status = %s, want acknowledged", n.Status)
	}
	if n.AcknowledgedAt.IsZero() {
		t.Error("acknowledged_at not set")
	}
}

func TestCancelNotificationDeletesRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.ScheduleNotification(ctx, persistence.ScheduleOptions{
		Title: "cancelme", ScheduledAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("ScheduleNotification: %v", err)
	}
	if err := s.CancelNotification(ctx, id); err != nil {
		t.Fatalf("CancelNotification: %v", err)
	}
	if _, err := s.GetNotification(ctx, id); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestQueueHealthCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pendingID, err := s.ScheduleNotification(ctx, persistence.ScheduleOptions{
		Title: "pending", ScheduledAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("ScheduleNotification: %v", err)
	}
	_ = pendingID

	sentID, err := s.ScheduleNotification(ctx, persistence.ScheduleOptions{
		Title: "sent", ScheduledAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("ScheduleNotification: %v", err)
	}
	if err := s.MarkNotificationSent(ctx, sentID, time.Now()); err != nil {
		t.Fatalf("MarkNotificationSent: %v", err)
	}

	failedID, err := s.ScheduleNotification(ctx, persistence.ScheduleOptions{
		Title: "failed", ScheduledAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("ScheduleNotification: %v", err)
	}
	if err := s.MarkNotificationFailed(ctx, failedID, "boom"); err != nil {
		t.Fatalf("MarkNotificationFailed: %v", err)
	}

	hc, err := s.QueueHealth(ctx)
	if err != nil {
		t.Fatalf("QueueHealth: %v", err)
	}
	if hc.Pending != 1 {
		t.Errorf("Pending = %d, want 1", hc.Pending)
	}
	if hc.Sent24h != 1 {
		t.Errorf("Sent24h = %d, want 1", hc.Sent24h)
	}
	if hc.Failed24h != 1 {
		t.Errorf("Failed24h = %d, want 1", hc.Failed24h)
	}
	if hc.LastError != "boom" {
		t.Errorf("LastError = %q, want boom", hc.LastError)
	}
}
