package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const launchdLabel = "com.basket.goremind"

// writePIDFile records the given pid; its mtime doubles as the start time.
func writePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

func readPIDFile(path string) (int, time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, time.Time{}, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, time.Time{}, fmt.Errorf("malformed pid file %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return pid, time.Time{}, nil
	}
	return pid, info.ModTime(), nil
}

func removePIDFile(path string) {
	_ = os.Remove(path)
}

// processAlive probes the pid with signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// ServiceStatus is the detached-daemon view used by the status command.
type ServiceStatus struct {
	Running bool
	PID     int
	Uptime  time.Duration
}

// Status reads the pid file and probes the recorded process.
func Status(pidPath string) ServiceStatus {
	pid, startedAt, err := readPIDFile(pidPath)
	if err != nil || !processAlive(pid) {
		return ServiceStatus{}
	}
	st := ServiceStatus{Running: true, PID: pid}
	if !startedAt.IsZero() {
		st.Uptime = time.Since(startedAt)
	}
	return st
}

// StartDetached spawns "goremind daemon run" as a background process and
// records its pid. Starting while already running is an error so two
// loops never poll the same queue.
func StartDetached(pidPath string, extraArgs ...string) (int, error) {
	if st := Status(pidPath); st.Running {
		return 0, fmt.Errorf("daemon already running (pid %d)", st.PID)
	}

	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("locate executable: %w", err)
	}
	args := append([]string{"daemon", "run"}, extraArgs...)
	cmd := exec.Command(exe, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawn daemon: %w", err)
	}
	pid := cmd.Process.Pid
	if err := writePIDFile(pidPath, pid); err != nil {
		_ = cmd.Process.Kill()
		return 0, err
	}
	// Detach: the child outlives us and init reaps it.
	_ = cmd.Process.Release()
	return pid, nil
}

// StopDetached signals the recorded daemon with SIGTERM and waits for it
// to exit. Stopping a daemon that is not running is a no-op.
func StopDetached(pidPath string, timeout time.Duration) error {
	pid, _, err := readPIDFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !processAlive(pid) {
		removePIDFile(pidPath)
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon %d: %w", pid, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			removePIDFile(pidPath)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon %d did not exit within %s", pid, timeout)
}

// WritePID records the current process in the pid file; the foreground
// run path calls this on startup and Remove on shutdown.
func WritePID(pidPath string) error {
	return writePIDFile(pidPath, os.Getpid())
}

// RemovePID deletes the pid file.
func RemovePID(pidPath string) {
	removePIDFile(pidPath)
}

const launchdPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
		<string>%s</string>
		<string>daemon</string>
		<string>run</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<dict>
		<key>SuccessfulExit</key>
		<false/>
		<key>Crashed</key>
		<true/>
	</dict>
	<key>StandardOutPath</key>
	<string>%s</string>
	<key>StandardErrorPath</key>
	<string>%s</string>
</dict>
</plist>
`

func plistPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"), nil
}

// Install registers the daemon as a launchd LaunchAgent that restarts on
// crash but not on clean exit. Only supported on darwin.
func Install(logDir string) error {
	if runtime.GOOS != "darwin" {
		return fmt.Errorf("service install requires launchd (darwin), running on %s", runtime.GOOS)
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	path, err := plistPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create LaunchAgents dir: %w", err)
	}
	outLog := filepath.Join(logDir, "daemon.out.log")
	errLog := filepath.Join(logDir, "daemon.err.log")
	content := fmt.Sprintf(launchdPlist, launchdLabel, exe, outLog, errLog)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write plist: %w", err)
	}
	if out, err := exec.Command("launchctl", "load", "-w", path).CombinedOutput(); err != nil {
		return fmt.Errorf("launchctl load: %w: %s", err, out)
	}
	return nil
}

// Uninstall unloads and removes the LaunchAgent.
func Uninstall() error {
	if runtime.GOOS != "darwin" {
		return fmt.Errorf("service uninstall requires launchd (darwin), running on %s", runtime.GOOS)
	}
	path, err := plistPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if out, err := exec.Command("launchctl", "unload", path).CombinedOutput(); err != nil {
		return fmt.Errorf("launchctl unload: %w: %s", err, out)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove plist: %w", err)
	}
	return nil
}
