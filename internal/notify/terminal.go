package notify

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var bannerStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("11")).
	Padding(0, 1)

var bannerTitleStyle = lipgloss.NewStyle().Bold(true)

// Terminal prints a framed banner to the attached terminal. Only useful
// when someone is actually looking at it, hence the isatty probe.
type Terminal struct {
	out io.Writer
	tty bool
}

func NewTerminal() *Terminal {
	return &Terminal{
		out: os.Stdout,
		tty: isatty.IsTerminal(os.Stdout.Fd()),
	}
}

func (t *Terminal) Name() string { return "terminal" }

func (t *Terminal) Available() bool { return t.tty }

func (t *Terminal) Send(_ context.Context, msg Message) error {
	text := bannerTitleStyle.Render("⏰ "+msg.Title)
	if msg.Subtitle != "" {
		text += "\n" + msg.Subtitle
	}
	if msg.Body != "" {
		text += "\n" + msg.Body
	}
	if _, err := fmt.Fprintln(t.out, bannerStyle.Render(text)); err != nil {
		return fmt.Errorf("terminal banner: %w", err)
	}
	return nil
}
