package tracker

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/claude"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/db"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/models"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/store"
)

type recordingNotifier struct {
	mu        sync.Mutex
	updated   int
	completed []string
}

func (n *recordingNotifier) BlockUpdated(projectID, blockID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated++
}

func (n *recordingNotifier) BlockCompleted(projectID, blockID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, blockID)
}

func (n *recordingNotifier) completions() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.completed...)
}

func newTestTracker(t *testing.T) (*Tracker, *store.Store, *recordingNotifier) {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	st := store.New(gdb)
	n := &recordingNotifier{}
	return New(st, n), st, n
}

func startTestBlock(t *testing.T, tr *Tracker, st *store.Store, projectID string) (*models.Block, <-chan Outcome) {
	t.Helper()
	p := &models.Project{ID: projectID, Name: projectID, Path: "/tmp/" + projectID}
	if err := st.CreateProject(p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	b, err := st.CreateBlock(projectID, "do things", models.InteractionUserMessage)
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	return b, tr.StartBlock(projectID, b.ID)
}

func resultEvent(projectID string) claude.Event {
	return claude.Event{
		ProjectID:      projectID,
		Kind:           claude.EventResult,
		InputTokens:    100,
		OutputTokens:   40,
		CostUSD:        0.01,
		DurationMillis: 1500,
		Timestamp:      time.Now(),
	}
}

func TestThinkingSpanClosure(t *testing.T) {
	tr, st, _ := newTestTracker(t)
	b, outcome := startTestBlock(t, tr, st, "p1")

	tr.Apply(claude.Event{ProjectID: "p1", Kind: claude.EventThinking, Text: "a", Timestamp: time.Now()})
	tr.Apply(claude.Event{ProjectID: "p1", Kind: claude.EventThinking, Text: "a,b", Timestamp: time.Now()})
	tr.Apply(claude.Event{ProjectID: "p1", Kind: claude.EventText, Text: "done", Timestamp: time.Now()})
	tr.Apply(resultEvent("p1"))
	<-outcome

	got, err := st.GetBlock(b.ID)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	msgs, err := got.DecodeMessages()
	if err != nil {
		t.Fatalf("DecodeMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2 (one thinking, one text): %+v", len(msgs), msgs)
	}
	if msgs[0].Kind != "thinking" || msgs[0].Content != "a,b" {
		t.Errorf("thinking message = %+v", msgs[0])
	}
	if msgs[0].ThinkingDurationSeconds == nil {
		t.Error("thinking duration not assigned")
	}
	if msgs[1].Kind != "text" || msgs[1].Content != "done" {
		t.Errorf("text message = %+v", msgs[1])
	}
}

func TestSeparateThinkingSpans(t *testing.T) {
	tr, st, _ := newTestTracker(t)
	b, outcome := startTestBlock(t, tr, st, "p1")

	// A text between thinkings closes the first span; the next thinking
	// opens a second one.
	tr.Apply(claude.Event{ProjectID: "p1", Kind: claude.EventThinking, Text: "first", Timestamp: time.Now()})
	tr.Apply(claude.Event{ProjectID: "p1", Kind: claude.EventText, Text: "step one", Timestamp: time.Now()})
	tr.Apply(claude.Event{ProjectID: "p1", Kind: claude.EventThinking, Text: "second", Timestamp: time.Now()})
	tr.Apply(resultEvent("p1"))
	<-outcome

	got, _ := st.GetBlock(b.ID)
	msgs, _ := got.DecodeMessages()
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3: %+v", len(msgs), msgs)
	}
	for i, want := range []string{"thinking", "text", "thinking"} {
		if msgs[i].Kind != want {
			t.Errorf("msgs[%d].Kind = %q, want %q", i, msgs[i].Kind, want)
		}
	}
	// Finalization closes the trailing open span too.
	if msgs[0].ThinkingDurationSeconds == nil || msgs[2].ThinkingDurationSeconds == nil {
		t.Error("thinking spans not closed")
	}
}

func TestToolAccounting(t *testing.T) {
	tr, st, _ := newTestTracker(t)
	b, outcome := startTestBlock(t, tr, st, "p1")

	tr.Apply(claude.Event{
		ProjectID: "p1", Kind: claude.EventToolUse,
		ToolID: "tu-1", ToolName: "Edit",
		ToolInput: json.RawMessage(`{"file_path":"src/a.ts"}`),
		Timestamp: time.Now(),
	})
	tr.Apply(claude.Event{
		ProjectID: "p1", Kind: claude.EventToolUse,
		ToolID: "tu-2", ToolName: "Bash",
		ToolInput: json.RawMessage(`{"command":"npm test"}`),
		Timestamp: time.Now(),
	})
	tr.Apply(claude.Event{ProjectID: "p1", Kind: claude.EventToolResult, ToolID: "tu-1", Timestamp: time.Now()})
	tr.Apply(claude.Event{ProjectID: "p1", Kind: claude.EventToolResult, ToolID: "tu-2", ToolError: true, Timestamp: time.Now()})
	// Unknown id must be absorbed without creating a phantom execution.
	tr.Apply(claude.Event{ProjectID: "p1", Kind: claude.EventToolResult, ToolID: "tu-99", Timestamp: time.Now()})
	tr.Apply(resultEvent("p1"))
	out := <-outcome

	if !out.MutatingTool {
		t.Error("Edit should count as a mutating tool")
	}

	got, _ := st.GetBlock(b.ID)
	tools, err := got.DecodeToolExecutions()
	if err != nil {
		t.Fatalf("DecodeToolExecutions: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("tools = %d, want 2: %+v", len(tools), tools)
	}
	if tools[0].FilePath != "src/a.ts" {
		t.Errorf("tools[0].FilePath = %q", tools[0].FilePath)
	}
	if tools[1].Command != "npm test" {
		t.Errorf("tools[1].Command = %q", tools[1].Command)
	}
	for i, exec := range tools {
		if exec.EndedAt == nil || exec.Succeeded == nil {
			t.Fatalf("tools[%d] not closed: %+v", i, exec)
		}
	}
	if !*tools[0].Succeeded {
		t.Error("tu-1 should have succeeded")
	}
	if *tools[1].Succeeded {
		t.Error("tu-2 should have failed")
	}
}

func TestFinalization_StatsAndClassification(t *testing.T) {
	tr, st, _ := newTestTracker(t)
	b, outcome := startTestBlock(t, tr, st, "p1")

	tr.Apply(claude.Event{ProjectID: "p1", Kind: claude.EventText, Text: "all done", Timestamp: time.Now()})
	tr.Apply(resultEvent("p1"))
	out := <-outcome

	if out.BlockID != b.ID || out.Interrupted {
		t.Errorf("outcome = %+v", out)
	}
	if out.Stats.InputTokens != 100 || out.Stats.OutputTokens != 40 || out.Stats.CostUSD != 0.01 {
		t.Errorf("stats = %+v", out.Stats)
	}

	got, _ := st.GetBlock(b.ID)
	if !got.IsComplete {
		t.Error("block not marked complete")
	}
	if got.InteractionType != models.InteractionResponse {
		t.Errorf("InteractionType = %q, want %q", got.InteractionType, models.InteractionResponse)
	}
	if got.InputTokens != 100 || got.OutputTokens != 40 {
		t.Errorf("persisted tokens = %d/%d", got.InputTokens, got.OutputTokens)
	}
}

func TestClassification_PlanReadyBeatsQuestions(t *testing.T) {
	tr, st, _ := newTestTracker(t)
	b, outcome := startTestBlock(t, tr, st, "p1")

	tr.Apply(claude.Event{ProjectID: "p1", Kind: claude.EventText, Text: "<questions>Which DB?</questions>", Timestamp: time.Now()})
	tr.Apply(claude.Event{ProjectID: "p1", Kind: claude.EventToolUse, ToolID: "tu-1", ToolName: ExitPlanTool, Timestamp: time.Now()})
	tr.Apply(resultEvent("p1"))
	<-outcome

	got, _ := st.GetBlock(b.ID)
	if got.InteractionType != models.InteractionPlanReady {
		t.Errorf("InteractionType = %q, want plan_ready", got.InteractionType)
	}
}

func TestClassification_Questions(t *testing.T) {
	tr, st, _ := newTestTracker(t)
	b, outcome := startTestBlock(t, tr, st, "p1")

	tr.Apply(claude.Event{ProjectID: "p1", Kind: claude.EventText, Text: "<questions>Tabs or spaces?</questions>", Timestamp: time.Now()})
	tr.Apply(resultEvent("p1"))
	<-outcome

	got, _ := st.GetBlock(b.ID)
	if got.InteractionType != models.InteractionQuestions {
		t.Errorf("InteractionType = %q, want questions", got.InteractionType)
	}
}

func TestCancelThenResult_SingleCompletion(t *testing.T) {
	tr, st, n := newTestTracker(t)
	b, outcome := startTestBlock(t, tr, st, "p1")

	tr.Apply(claude.Event{ProjectID: "p1", Kind: claude.EventText, Text: "working...", Timestamp: time.Now()})
	if !tr.Cancel("p1") {
		t.Fatal("Cancel returned false with active block")
	}

	out := <-outcome
	if !out.Interrupted {
		t.Error("outcome not flagged interrupted")
	}

	// Terminal event racing in after the cancel must be discarded.
	tr.Apply(resultEvent("p1"))

	select {
	case extra := <-outcome:
		t.Fatalf("second outcome delivered: %+v", extra)
	default:
	}

	if got := n.completions(); len(got) != 1 {
		t.Fatalf("completion notifications = %d, want 1", len(got))
	}

	got, _ := st.GetBlock(b.ID)
	if !got.IsComplete || !got.IsInterrupted {
		t.Errorf("block state: complete=%v interrupted=%v", got.IsComplete, got.IsInterrupted)
	}
	msgs, _ := got.DecodeMessages()
	if len(msgs) != 2 || msgs[1].Content != "Stopped by user." {
		t.Errorf("messages = %+v", msgs)
	}
	// Stats from the discarded terminal event must not land on the block.
	if got.InputTokens != 0 {
		t.Errorf("InputTokens = %d, want 0", got.InputTokens)
	}

	// In-memory state is cleared after the discarded result.
	if _, ok := tr.ActiveBlockID("p1"); ok {
		t.Error("active block still tracked after discarded result")
	}
}

func TestCancel_NoActiveBlock(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	if tr.Cancel("nope") {
		t.Error("Cancel without active block returned true")
	}
}

func TestWasInterrupted_OneShot(t *testing.T) {
	tr, st, _ := newTestTracker(t)
	startTestBlock(t, tr, st, "p1")

	tr.Cancel("p1")
	if !tr.WasInterrupted("p1") {
		t.Fatal("first read should see the flag")
	}
	if tr.WasInterrupted("p1") {
		t.Fatal("second read should find the flag cleared")
	}
}

func TestStartBlock_ClearsStaleInterrupt(t *testing.T) {
	tr, st, _ := newTestTracker(t)
	startTestBlock(t, tr, st, "p1")
	tr.Cancel("p1")

	b2, _ := st.CreateBlock("p1", "again", models.InteractionUserMessage)
	tr.StartBlock("p1", b2.ID)
	if tr.WasInterrupted("p1") {
		t.Error("stale interrupted flag survived StartBlock")
	}
}

func TestApply_NoActiveBlock(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	// Must absorb events for untracked projects.
	tr.Apply(claude.Event{ProjectID: "ghost", Kind: claude.EventText, Text: "hi", Timestamp: time.Now()})
	tr.Apply(resultEvent("ghost"))
}
