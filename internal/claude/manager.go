package claude

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Session statuses.
const (
	StatusIdle    = "idle"
	StatusWorking = "working"
	StatusWaiting = "waiting"
	StatusError   = "error"
)

// Info is the externally visible state of a project's session.
type Info struct {
	ProjectPath string
	Status      string
	SessionID   string // assistant CLI session id, set after system:init
}

// session holds per-project subprocess state.
type session struct {
	projectPath string
	status      string
	sessionID   string
	cmd         *exec.Cmd
	cancel      context.CancelFunc
}

// Manager spawns one assistant subprocess per project and funnels every
// run's events onto a single channel, preserving per-project ordering.
type Manager struct {
	binary string
	model  string

	mu       sync.Mutex
	sessions map[string]*session
	events   chan Event
}

// ManagerOpts holds parameters for creating a Manager.
type ManagerOpts struct {
	Binary string // path to the assistant binary, default "claude"
	Model  string // optional model override
}

// NewManager creates a Manager.
func NewManager(opts ManagerOpts) *Manager {
	binary := opts.Binary
	if binary == "" {
		binary = "claude"
	}
	return &Manager{
		binary:   binary,
		model:    opts.Model,
		sessions: make(map[string]*session),
		events:   make(chan Event, 256),
	}
}

// Events returns the shared event stream. The orchestrator consumes it in a
// single pump goroutine so event application stays strictly ordered.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// SendOpts holds parameters for one assistant run.
type SendOpts struct {
	ProjectID   string
	ProjectPath string
	Prompt      string
	Resume      bool // resume the recorded CLI session if one exists
}

// Send spawns an assistant run for the project and returns once the
// subprocess has started. Events arrive asynchronously on Events().
// A project with a run already in flight is rejected.
func (m *Manager) Send(ctx context.Context, opts SendOpts) error {
	if opts.ProjectID == "" {
		return fmt.Errorf("claude: project id is required")
	}
	if opts.ProjectPath == "" {
		return fmt.Errorf("claude: project path is required")
	}
	if opts.Prompt == "" {
		return fmt.Errorf("claude: prompt is required")
	}

	m.mu.Lock()
	s, ok := m.sessions[opts.ProjectID]
	if ok && s.status == StatusWorking {
		m.mu.Unlock()
		return fmt.Errorf("claude: project %s already has a run in flight", opts.ProjectID)
	}
	var resumeSID string
	if ok && opts.Resume {
		resumeSID = s.sessionID
	}
	m.mu.Unlock()

	args := []string{
		"-p", opts.Prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	}
	if m.model != "" {
		args = append(args, "--model", m.model)
	}
	if resumeSID != "" {
		args = append(args, "--resume", resumeSID)
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, m.binary, args...)
	cmd.Dir = opts.ProjectPath

	// Process group so SIGTERM reaches the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = 10 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("claude: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("claude: start %s: %w", m.binary, err)
	}

	m.mu.Lock()
	m.sessions[opts.ProjectID] = &session{
		projectPath: opts.ProjectPath,
		status:      StatusWorking,
		sessionID:   resumeSID,
		cmd:         cmd,
		cancel:      cancel,
	}
	m.mu.Unlock()

	go m.readLoop(opts.ProjectID, cmd, stdout)
	return nil
}

// readLoop scans NDJSON lines from the subprocess, decomposes them into
// events, and records exit status when the process ends.
func (m *Manager) readLoop(projectID string, cmd *exec.Cmd, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024) // 1MB buffer

	sawResult := false
	for scanner.Scan() {
		events := ParseLine(projectID, scanner.Bytes())
		for _, ev := range events {
			if ev.Kind == EventSystem && ev.SessionID != "" {
				m.recordSessionID(projectID, ev.SessionID)
			}
			if ev.Kind == EventResult {
				sawResult = true
			}
			m.events <- ev
		}
	}

	waitErr := cmd.Wait()

	m.mu.Lock()
	if s, ok := m.sessions[projectID]; ok && s.cmd == cmd {
		if waitErr != nil {
			s.status = StatusError
		} else {
			s.status = StatusIdle
		}
		s.cmd = nil
		s.cancel = nil
	}
	m.mu.Unlock()

	// A run killed before its terminal event still needs one so the
	// tracker can finalize; cancellation suppresses it there.
	if !sawResult && waitErr != nil {
		log.Printf("claude: run for project %s exited without result: %v", projectID, waitErr)
		m.events <- Event{
			ProjectID: projectID,
			Kind:      EventResult,
			IsError:   true,
			Timestamp: time.Now(),
		}
	}
}

// recordSessionID stores the CLI session id announced by system:init.
func (m *Manager) recordSessionID(projectID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[projectID]; ok {
		s.sessionID = sessionID
	}
}

// Get returns the session info for a project.
func (m *Manager) Get(projectID string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[projectID]
	if !ok {
		return Info{}, false
	}
	return Info{ProjectPath: s.projectPath, Status: s.status, SessionID: s.sessionID}, true
}

// Interrupt signals the project's running subprocess to stop. The racing
// terminal event, if any, is suppressed by the tracker's interrupted flag.
func (m *Manager) Interrupt(projectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[projectID]
	if !ok || s.cancel == nil {
		return
	}
	s.cancel()
	s.status = StatusWaiting
}

// Destroy kills any running subprocess and removes the project's session.
// Used when the session's recorded path no longer matches the project.
func (m *Manager) Destroy(projectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[projectID]
	if !ok {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	delete(m.sessions, projectID)
}
