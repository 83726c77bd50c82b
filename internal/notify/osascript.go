package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Osascript posts a notification through the macOS scripting bridge.
// Less capable than terminal-notifier (no grouping, no actions) but
// present on every macOS install.
type Osascript struct {
	path string
}

func NewOsascript() *Osascript {
	path, err := exec.LookPath("osascript")
	if err != nil {
		return &Osascript{}
	}
	return &Osascript{path: path}
}

func (o *Osascript) Name() string { return "osascript" }

func (o *Osascript) Available() bool { return o.path != "" }

// escapeAppleScript neutralizes the two characters with meaning inside an
// AppleScript double-quoted string literal.
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

func (o *Osascript) Send(ctx context.Context, msg Message) error {
	if o.path == "" {
		return fmt.Errorf("osascript not installed")
	}
	script := fmt.Sprintf(`display notification "%s" with title "%s"`,
		escapeAppleScript(msg.Body), escapeAppleScript(msg.Title))
	if msg.Subtitle != "" {
		script += fmt.Sprintf(` subtitle "%s"`, escapeAppleScript(msg.Subtitle))
	}
	if msg.Sound != "" {
		script += fmt.Sprintf(` sound name "%s"`, escapeAppleScript(msg.Sound))
	}

	cmd := exec.CommandContext(ctx, o.path, "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, out)
	}
	return nil
}
