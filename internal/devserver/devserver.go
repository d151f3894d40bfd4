// Package devserver manages one development-server subprocess per project.
package devserver

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Server statuses. An errored server exited unexpectedly and is considered
// restartable.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
	StatusError   = "error"
)

// server is the state for one project's dev-server process.
type server struct {
	port     int
	dir      string
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	status   string
	stopping bool // set for intentional stops so the exit watcher records stopped, not error
	done     chan struct{}
}

// Manager starts and stops dev servers, allocating ports from a fixed range.
type Manager struct {
	command  string
	portFrom int
	portTo   int

	mu      sync.Mutex
	servers map[string]*server
}

// ManagerOpts holds parameters for creating a Manager.
type ManagerOpts struct {
	Command  string // shell command, default "npm run dev"
	PortFrom int
	PortTo   int
}

// NewManager creates a Manager.
func NewManager(opts ManagerOpts) *Manager {
	command := opts.Command
	if command == "" {
		command = "npm run dev"
	}
	portFrom, portTo := opts.PortFrom, opts.PortTo
	if portFrom == 0 {
		portFrom = 3100
	}
	if portTo == 0 {
		portTo = 3199
	}
	return &Manager{
		command:  command,
		portFrom: portFrom,
		portTo:   portTo,
		servers:  make(map[string]*server),
	}
}

// Status returns the project's last known server status. Projects that
// never started report stopped.
func (m *Manager) Status(projectID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.servers[projectID]
	if !ok {
		return StatusStopped
	}
	return s.status
}

// Port returns the port the project's server runs on.
func (m *Manager) Port(projectID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.servers[projectID]
	if !ok || s.status != StatusRunning {
		return 0, false
	}
	return s.port, true
}

// StartOpts holds parameters for one dev-server launch.
type StartOpts struct {
	ProjectID string
	Dir       string
	Command   string // per-project override, empty uses the manager default
}

// Start launches the project's dev server and returns its port. A server
// already running is an error; restart goes through Stop first.
func (m *Manager) Start(ctx context.Context, opts StartOpts) (int, error) {
	projectID := opts.ProjectID
	m.mu.Lock()
	if s, ok := m.servers[projectID]; ok && s.status == StatusRunning {
		m.mu.Unlock()
		return 0, fmt.Errorf("devserver: project %s already running on port %d", projectID, s.port)
	}
	m.mu.Unlock()

	port, err := m.freePort()
	if err != nil {
		return 0, err
	}

	command := opts.Command
	if command == "" {
		command = m.command
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), fmt.Sprintf("PORT=%d", port))

	// Process group so stopping kills the whole tree (npm + node).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = 10 * time.Second

	if err := cmd.Start(); err != nil {
		cancel()
		return 0, fmt.Errorf("devserver: start %q: %w", command, err)
	}

	s := &server{
		port:   port,
		dir:    opts.Dir,
		cmd:    cmd,
		cancel: cancel,
		status: StatusRunning,
		done:   make(chan struct{}),
	}
	m.mu.Lock()
	m.servers[projectID] = s
	m.mu.Unlock()

	// Exit watcher: an exit nobody asked for marks the server errored.
	go func() {
		cmd.Wait()
		m.mu.Lock()
		if cur, ok := m.servers[projectID]; ok && cur == s {
			if s.stopping {
				s.status = StatusStopped
			} else {
				s.status = StatusError
			}
			s.cmd = nil
			s.cancel = nil
		}
		m.mu.Unlock()
		close(s.done)
	}()

	return port, nil
}

// Stop terminates the project's dev server and waits for it to exit.
// force escalates to SIGKILL on the process group immediately; without it
// the tree gets SIGTERM and the usual WaitDelay grace. Stopping a server
// that is not running is a no-op.
func (m *Manager) Stop(projectID string, force bool) error {
	m.mu.Lock()
	s, ok := m.servers[projectID]
	if !ok || s.status != StatusRunning || s.cmd == nil {
		m.mu.Unlock()
		return nil
	}
	s.stopping = true
	pid := s.cmd.Process.Pid
	cancel := s.cancel
	done := s.done
	m.mu.Unlock()

	if force {
		syscall.Kill(-pid, syscall.SIGKILL)
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(15 * time.Second):
		return fmt.Errorf("devserver: project %s did not exit", projectID)
	}
}

// freePort probes the configured range for a bindable port.
func (m *Manager) freePort() (int, error) {
	for port := m.portFrom; port <= m.portTo; port++ {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		l.Close()
		return port, nil
	}
	return 0, fmt.Errorf("devserver: no free port in %d-%d", m.portFrom, m.portTo)
}
