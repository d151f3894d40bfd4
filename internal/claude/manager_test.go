package claude

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeFakeAssistant creates a shell script that emits canned stream-json
// lines, standing in for the real assistant binary.
func writeFakeAssistant(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-claude")
	script := "#!/bin/sh\n"
	for _, l := range lines {
		script += "printf '%s\\n' '" + l + "'\n"
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake assistant: %v", err)
	}
	return path
}

func collectEvents(t *testing.T, m *Manager, n int) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for len(events) < n {
		select {
		case ev := <-m.Events():
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out after %d/%d events", len(events), n)
		}
	}
	return events
}

func TestSend_StreamsEvents(t *testing.T) {
	binary := writeFakeAssistant(t,
		`{"type":"system","subtype":"init","session_id":"sid-9"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"hello"}]}}`,
		`{"type":"result","session_id":"sid-9","duration_ms":10,"usage":{"input_tokens":5,"output_tokens":3}}`,
	)
	m := NewManager(ManagerOpts{Binary: binary})

	if err := m.Send(context.Background(), SendOpts{ProjectID: "p1", ProjectPath: t.TempDir(), Prompt: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	events := collectEvents(t, m, 3)
	if events[0].Kind != EventSystem || events[1].Kind != EventText || events[2].Kind != EventResult {
		t.Errorf("event kinds = %s %s %s", events[0].Kind, events[1].Kind, events[2].Kind)
	}

	// After the run ends the session settles to idle with the CLI session
	// id recorded for resume.
	deadline := time.Now().Add(5 * time.Second)
	for {
		info, ok := m.Get("p1")
		if ok && info.Status == StatusIdle {
			if info.SessionID != "sid-9" {
				t.Errorf("SessionID = %q, want sid-9", info.SessionID)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session never settled to idle")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSend_Validation(t *testing.T) {
	m := NewManager(ManagerOpts{})
	if err := m.Send(context.Background(), SendOpts{ProjectPath: "/tmp", Prompt: "x"}); err == nil {
		t.Error("expected error for missing project id")
	}
	if err := m.Send(context.Background(), SendOpts{ProjectID: "p", Prompt: "x"}); err == nil {
		t.Error("expected error for missing path")
	}
	if err := m.Send(context.Background(), SendOpts{ProjectID: "p", ProjectPath: "/tmp"}); err == nil {
		t.Error("expected error for missing prompt")
	}
}

func TestGet_Unknown(t *testing.T) {
	m := NewManager(ManagerOpts{})
	if _, ok := m.Get("nope"); ok {
		t.Error("expected no session for unknown project")
	}
}

func TestInterruptAndDestroy_NoSession(t *testing.T) {
	m := NewManager(ManagerOpts{})
	// Both must be safe no-ops without a session.
	m.Interrupt("nope")
	m.Destroy("nope")
}
