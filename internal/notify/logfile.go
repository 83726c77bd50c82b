package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogFile appends one line per message to a plain log. It is the chain's
// terminal transport: Available is always true and Send never returns an
// error, so total delivery failure is impossible by construction.
type LogFile struct {
	path string
}

func NewLogFile(path string) *LogFile {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			home = "."
		}
		path = filepath.Join(home, ".goremind", "logs", "notifications.log")
	}
	return &LogFile{path: path}
}

func (l *LogFile) Name() string { return "log" }

func (l *LogFile) Available() bool { return true }

func (l *LogFile) Send(_ context.Context, msg Message) error {
	line := fmt.Sprintf("[%s] %s", time.Now().Format("2006-01-02 15:04:05"), msg.Title)
	if msg.Body != "" {
		line += " - " + msg.Body
	}
	line += "\n"

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err == nil {
		f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = f.WriteString(line)
			_ = f.Close()
			return nil
		}
	}
	// The file is unwritable; stderr is the last resort that keeps the
	// no-fail guarantee.
	fmt.Fprint(os.Stderr, line)
	return nil
}
