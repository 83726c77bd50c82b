package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/basket/go-remind/internal/config"
	"github.com/basket/go-remind/internal/daemon"
	"github.com/basket/go-remind/internal/notify"
	otelpkg "github.com/basket/go-remind/internal/otel"
)

const stopTimeout = 10 * time.Second

// buildChain assembles the delivery chain from the config: telegram in
// front when configured, the log file transport terminating it.
func buildChain(cfg config.Config, logger *slog.Logger) (*notify.Chain, error) {
	tg := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
	chain := notify.DefaultChain(logger, tg,
		filepath.Join(cfg.LogDir(), "notifications.log"))
	if forced := cfg.Notify.ForceTransport; forced != "" {
		if err := chain.Force(forced); err != nil {
			return nil, err
		}
	}
	return chain, nil
}

func otelConfig(cfg config.Config) otelpkg.Config {
	oc := otelpkg.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: "goremind",
	}
	if cfg.Telemetry.Endpoint != "" {
		oc.Exporter = "otlp-http"
	} else {
		oc.Exporter = "stdout"
	}
	return oc
}

func runDaemonCommand(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: goremind daemon <run|start|stop|restart|status|install|uninstall>")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		return fail(err)
	}

	sub := strings.ToLower(strings.TrimSpace(args[0]))
	switch sub {
	case "run":
		return runDaemonForeground(ctx, cfg)
	case "start":
		pid, err := daemon.StartDetached(cfg.PIDPath())
		if err != nil {
			return fail(err)
		}
		fmt.Printf("daemon started (pid %d)\n", pid)
	case "stop":
		if err := daemon.StopDetached(cfg.PIDPath(), stopTimeout); err != nil {
			return fail(err)
		}
		fmt.Println("daemon stopped")
	case "restart":
		if err := daemon.StopDetached(cfg.PIDPath(), stopTimeout); err != nil {
			return fail(err)
		}
		pid, err := daemon.StartDetached(cfg.PIDPath())
		if err != nil {
			return fail(err)
		}
		fmt.Printf("daemon restarted (pid %d)\n", pid)
	case "status":
		st := daemon.Status(cfg.PIDPath())
		if !st.Running {
			fmt.Println("daemon: not running")
			return 1
		}
		fmt.Printf("daemon: running (pid %d, up %s)\n", st.PID, st.Uptime.Round(time.Second))
	case "install":
		if err := daemon.Install(cfg.LogDir()); err != nil {
			return fail(err)
		}
		fmt.Println("launchd agent installed")
	case "uninstall":
		if err := daemon.Uninstall(); err != nil {
			return fail(err)
		}
		fmt.Println("launchd agent removed")
	default:
		fmt.Fprintf(os.Stderr, "unknown daemon subcommand %q\n", sub)
		return 2
	}
	return 0
}

// runDaemonForeground runs the scan loop until the context is canceled,
// reloading poll intervals when config.yaml changes.
func runDaemonForeground(ctx context.Context, cfg config.Config) int {
	a, err := newApp(false)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	chain, err := buildChain(cfg, a.logger)
	if err != nil {
		return fail(err)
	}

	provider, err := otelpkg.Init(ctx, otelConfig(cfg))
	if err != nil {
		return fail(fmt.Errorf("init telemetry: %w", err))
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shCtx)
	}()
	metrics, err := otelpkg.NewMetrics(provider.Meter)
	if err != nil {
		return fail(fmt.Errorf("init metrics: %w", err))
	}

	d := daemon.New(daemon.Config{
		Store:   a.store,
		Chain:   chain,
		Logger:  a.logger,
		Metrics: metrics,
		Intervals: daemon.Intervals{
			Normal: cfg.Daemon.NormalInterval(),
			Idle:   cfg.Daemon.IdleInterval(),
			Fast:   cfg.Daemon.FastInterval(),
		},
		FastThreshold: cfg.Daemon.FastThreshold,
		BatchSize:     cfg.Daemon.BatchSize,
		Leeway:        cfg.Daemon.Leeway(),
		DefaultSound:  cfg.Notify.DefaultSound,
	})

	if err := daemon.WritePID(cfg.PIDPath()); err != nil {
		return fail(err)
	}
	defer daemon.RemovePID(cfg.PIDPath())

	watcher := config.NewWatcher(cfg.HomeDir, a.logger)
	if err := watcher.Start(ctx); err != nil {
		a.logger.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			for range watcher.Events() {
				fresh, err := config.LoadFrom(cfg.HomeDir)
				if err != nil {
					a.logger.Error("config reload failed", "error", err)
					continue
				}
				d.SetIntervals(daemon.Intervals{
					Normal: fresh.Daemon.NormalInterval(),
					Idle:   fresh.Daemon.IdleInterval(),
					Fast:   fresh.Daemon.FastInterval(),
				})
				a.logger.Info("config reloaded",
					"normal_interval", fresh.Daemon.NormalInterval())
			}
		}()
	}

	d.Start(ctx)
	<-ctx.Done()
	d.Stop()
	return 0
}
