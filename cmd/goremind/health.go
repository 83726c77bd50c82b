package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/basket/go-remind/internal/daemon"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	boxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func renderHealth(h daemon.Health) string {
	var b strings.Builder

	if h.Running {
		fmt.Fprintf(&b, "daemon     %s (pid %d, up %s)\n",
			okStyle.Render("running"), h.PID, h.Uptime.Round(time.Second))
	} else {
		fmt.Fprintf(&b, "daemon     %s\n", warnStyle.Render("not running"))
	}
	fmt.Fprintf(&b, "transport  %s\n", h.BestTransport)
	fmt.Fprintf(&b, "queue      %d pending, %d sent / %d failed in 24h\n",
		h.Pending, h.Sent24h, h.Failed24h)
	if h.LastError != "" {
		fmt.Fprintf(&b, "last error %s\n", warnStyle.Render(h.LastError))
	}
	fmt.Fprintf(&b, "memory     %.1f MiB", float64(h.MemoryBytes)/(1<<20))

	return boxStyle.Render(b.String())
}

func runHealthCommand(ctx context.Context) int {
	a, err := newApp(true)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	chain, err := buildChain(a.cfg, a.logger)
	if err != nil {
		return fail(err)
	}

	h, err := daemon.Inspect(ctx, a.store, chain, a.cfg.PIDPath())
	if err != nil {
		return fail(err)
	}
	fmt.Println(renderHealth(h))
	if !h.Running {
		return 1
	}
	return 0
}
