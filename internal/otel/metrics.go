package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all goremind metrics instruments.
type Metrics struct {
	ScanDuration        metric.Float64Histogram
	DueItems            metric.Int64Counter
	NotificationsSent   metric.Int64Counter
	NotificationsFailed metric.Int64Counter
	Deliveries          metric.Int64Counter
	TasksCreated        metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ScanDuration, err = meter.Float64Histogram("goremind.scan.duration",
		metric.WithDescription("Notification scan duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.DueItems, err = meter.Int64Counter("goremind.scan.due_items",
		metric.WithDescription("Due notifications picked up per scan"),
	)
	if err != nil {
		return nil, err
	}

	m.NotificationsSent, err = meter.Int64Counter("goremind.notifications.sent",
		metric.WithDescription("Notifications delivered successfully"),
	)
	if err != nil {
		return nil, err
	}

	m.NotificationsFailed, err = meter.Int64Counter("goremind.notifications.failed",
		metric.WithDescription("Notifications that exhausted the delivery chain"),
	)
	if err != nil {
		return nil, err
	}

	m.Deliveries, err = meter.Int64Counter("goremind.deliveries",
		metric.WithDescription("Deliveries by transport"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCreated, err = meter.Int64Counter("goremind.tasks.created",
		metric.WithDescription("Tasks created"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
