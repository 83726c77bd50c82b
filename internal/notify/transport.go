// Package notify delivers reminder messages through an ordered chain of
// transports, falling back from the most capable available one down to an
// append-only log that cannot fail.
package notify

import "context"

// Message is one rendered notification.
type Message struct {
	Title     string
	Subtitle  string
	Body      string
	Sound     string // sound hint, e.g. "Glass"; empty means silent
	Group     string // collapse key for notification centers
	ActionURL string
}

// Transport is a single delivery backend.
type Transport interface {
	// Name identifies the transport in logs and health output.
	Name() string

	// Available reports whether the transport can deliver on this host.
	// It is probed once at chain construction and cached.
	Available() bool

	// Send delivers the message. Message text must be passed to any
	// external program as argv, never through a shell.
	Send(ctx context.Context, msg Message) error
}
