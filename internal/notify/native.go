package notify

import (
	"context"
	"fmt"
	"os/exec"
)

// Native drives terminal-notifier, the richest local notifier: it supports
// subtitles, sounds, grouping and click-through URLs.
type Native struct {
	path string
}

func NewNative() *Native {
	path, err := exec.LookPath("terminal-notifier")
	if err != nil {
		return &Native{}
	}
	return &Native{path: path}
}

func (n *Native) Name() string { return "native" }

func (n *Native) Available() bool { return n.path != "" }

func (n *Native) Send(ctx context.Context, msg Message) error {
	if n.path == "" {
		return fmt.Errorf("terminal-notifier not installed")
	}
	// All message text travels as argv, so content cannot inject flags or
	// shell syntax.
	args := []string{"-title", msg.Title, "-message", msg.Body}
	if msg.Subtitle != "" {
		args = append(args, "-subtitle", msg.Subtitle)
	}
	if msg.Sound != "" {
		args = append(args, "-sound", msg.Sound)
	}
	if msg.Group != "" {
		args = append(args, "-group", msg.Group)
	}
	if msg.ActionURL != "" {
		args = append(args, "-open", msg.ActionURL)
	}

	cmd := exec.CommandContext(ctx, n.path, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("terminal-notifier: %w: %s", err, out)
	}
	return nil
}
