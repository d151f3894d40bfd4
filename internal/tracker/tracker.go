// Package tracker reconstructs structured block history from the flat
// assistant event stream: thinking spans, tool spans, completion stats, and
// the interruption bookkeeping that keeps a cancel racing a terminal event
// from finalizing the same block twice.
package tracker

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/claude"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/models"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/store"
)

// QuestionsMarker is the structured marker the assistant embeds in a text
// message when it is asking the user questions instead of finishing work.
const QuestionsMarker = "<questions>"

// ExitPlanTool is the tool the assistant calls when presenting a plan for
// approval; its presence classifies the block as plan_ready.
const ExitPlanTool = "ExitPlanMode"

// mutatingTools is the fixed set of tool names that alter files on disk.
// A block whose executions never leave this set read-only skips the
// commit/dev-server workflow entirely.
var mutatingTools = map[string]bool{
	"Write":        true,
	"Edit":         true,
	"MultiEdit":    true,
	"NotebookEdit": true,
}

// fileTools carry a file path in their input payload.
var fileTools = map[string]bool{
	"Read":         true,
	"Write":        true,
	"Edit":         true,
	"MultiEdit":    true,
	"NotebookEdit": true,
}

// shellTools carry a command in their input payload.
var shellTools = map[string]bool{
	"Bash": true,
}

// IsMutatingTool reports whether a tool name is in the fixed mutating set.
func IsMutatingTool(name string) bool {
	return mutatingTools[name]
}

// Outcome is the completion signal for one tracked block.
type Outcome struct {
	BlockID      string
	Interrupted  bool
	IsError      bool
	MutatingTool bool // at least one file-mutating tool ran
	Stats        models.CompletionStats
}

// Notifier receives block lifecycle notifications. Nil is allowed.
type Notifier interface {
	BlockUpdated(projectID, blockID string)
	BlockCompleted(projectID, blockID string)
}

// activeBlock is the in-memory context for a project's not-yet-finalized
// block. It is only touched under the tracker mutex; event application is
// serialized by the orchestrator's single pump goroutine anyway.
type activeBlock struct {
	blockID   string
	projectID string
	startedAt time.Time

	messages []models.BlockMessage
	tools    []models.ToolExecution

	// openThinkingAt is the start time of the trailing open thinking
	// entry; nil when none is open. At most one entry is open at a time.
	openThinkingAt *time.Time

	interrupted bool
	outcome     chan Outcome
}

// Tracker owns per-project active-block state.
type Tracker struct {
	store    *store.Store
	notifier Notifier

	mu          sync.Mutex
	active      map[string]*activeBlock
	interrupted map[string]bool // one-shot per-project flags
}

// New creates a Tracker. notifier may be nil.
func New(st *store.Store, notifier Notifier) *Tracker {
	return &Tracker{
		store:       st,
		notifier:    notifier,
		active:      make(map[string]*activeBlock),
		interrupted: make(map[string]bool),
	}
}

// StartBlock installs a fresh active-block context for the project and
// returns its completion signal (buffered, delivered once). Any stale
// interrupted flag for the project is cleared. Callers must not start a
// second block while one is active; if they do, the last call wins.
func (t *Tracker) StartBlock(projectID, blockID string) <-chan Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.interrupted, projectID)
	ab := &activeBlock{
		blockID:   blockID,
		projectID: projectID,
		startedAt: time.Now(),
		outcome:   make(chan Outcome, 1),
	}
	t.active[projectID] = ab
	return ab.outcome
}

// ActiveBlockID returns the project's active block id, if any.
func (t *Tracker) ActiveBlockID(projectID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ab, ok := t.active[projectID]
	if !ok {
		return "", false
	}
	return ab.blockID, true
}

// Apply ingests one assistant event. Events for projects without an active
// block are absorbed; so are tool results with unknown ids. Events must be
// applied in arrival order.
func (t *Tracker) Apply(ev claude.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ab, ok := t.active[ev.ProjectID]
	if !ok {
		return
	}

	switch ev.Kind {
	case claude.EventText:
		ab.closeOpenThinking()
		ab.messages = append(ab.messages, models.BlockMessage{
			Kind:      "text",
			Content:   ev.Text,
			Timestamp: ev.Timestamp,
		})
		t.persistTranscript(ab)

	case claude.EventThinking:
		if ab.openThinkingAt != nil && len(ab.messages) > 0 && ab.messages[len(ab.messages)-1].Kind == "thinking" {
			// Streaming update of the open entry, not a new span.
			ab.messages[len(ab.messages)-1].Content = ev.Text
		} else {
			ab.closeOpenThinking()
			now := time.Now()
			ab.openThinkingAt = &now
			ab.messages = append(ab.messages, models.BlockMessage{
				Kind:      "thinking",
				Content:   ev.Text,
				Timestamp: ev.Timestamp,
			})
		}
		t.persistTranscript(ab)

	case claude.EventToolUse:
		exec := models.ToolExecution{
			ToolID:    ev.ToolID,
			ToolName:  ev.ToolName,
			StartedAt: ev.Timestamp,
		}
		if fileTools[ev.ToolName] {
			exec.FilePath = claude.ToolInputPath(ev.ToolInput)
		}
		if shellTools[ev.ToolName] {
			exec.Command = claude.ToolInputCommand(ev.ToolInput)
		}
		ab.tools = append(ab.tools, exec)
		t.persistTranscript(ab)

	case claude.EventToolResult:
		for i := len(ab.tools) - 1; i >= 0; i-- {
			if ab.tools[i].ToolID == ev.ToolID {
				if ab.tools[i].EndedAt == nil {
					now := ev.Timestamp
					succeeded := !ev.ToolError
					ab.tools[i].EndedAt = &now
					ab.tools[i].Succeeded = &succeeded
					t.persistTranscript(ab)
				}
				break
			}
		}
		// Unknown ids fall through silently: results can arrive
		// duplicated or out of order.

	case claude.EventResult:
		if ab.interrupted {
			// The cancel path already finalized this block; drop the
			// racing terminal event and clear in-memory state.
			delete(t.active, ev.ProjectID)
			return
		}
		t.finalize(ab, ev)
		delete(t.active, ev.ProjectID)
	}
}

// finalize persists completion stats and classification, marks the block
// complete, and delivers the outcome. Caller holds the tracker mutex.
func (t *Tracker) finalize(ab *activeBlock, ev claude.Event) {
	ab.closeOpenThinking()

	stats := models.CompletionStats{
		ElapsedSeconds: time.Since(ab.startedAt).Seconds(),
		InputTokens:    ev.InputTokens,
		OutputTokens:   ev.OutputTokens,
		CostUSD:        ev.CostUSD,
	}

	b := &models.Block{ID: ab.blockID}
	if err := b.EncodeMessages(ab.messages); err != nil {
		log.Printf("tracker: %v", err)
	}
	if err := b.EncodeToolExecutions(ab.tools); err != nil {
		log.Printf("tracker: %v", err)
	}

	patch := map[string]interface{}{
		"messages":         b.Messages,
		"tool_executions":  b.ToolExecutions,
		"interaction_type": t.classify(ab),
		"elapsed_seconds":  stats.ElapsedSeconds,
		"input_tokens":     stats.InputTokens,
		"output_tokens":    stats.OutputTokens,
		"cost_usd":         stats.CostUSD,
	}
	if err := t.store.UpdateBlock(ab.blockID, patch); err != nil {
		log.Printf("tracker: persist block %s: %v", ab.blockID, err)
	}
	if err := t.store.CompleteBlock(ab.blockID); err != nil {
		log.Printf("tracker: complete block %s: %v", ab.blockID, err)
	}
	if t.notifier != nil {
		t.notifier.BlockCompleted(ab.projectID, ab.blockID)
	}

	ab.outcome <- Outcome{
		BlockID:      ab.blockID,
		IsError:      ev.IsError,
		MutatingTool: ab.hasMutatingTool(),
		Stats:        stats,
	}
}

// Cancel interrupts the project's active block: the block is finalized with
// a synthetic "stopped by user" message, and a one-shot interrupted flag is
// set for the project. A terminal event arriving afterwards is discarded.
// Without an active block this is a no-op returning false.
func (t *Tracker) Cancel(projectID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	ab, ok := t.active[projectID]
	if !ok || ab.interrupted {
		return false
	}
	ab.interrupted = true
	t.interrupted[projectID] = true

	ab.closeOpenThinking()
	ab.messages = append(ab.messages, models.BlockMessage{
		Kind:      "text",
		Content:   "Stopped by user.",
		Timestamp: time.Now(),
	})

	b := &models.Block{ID: ab.blockID}
	if err := b.EncodeMessages(ab.messages); err != nil {
		log.Printf("tracker: %v", err)
	}
	if err := b.EncodeToolExecutions(ab.tools); err != nil {
		log.Printf("tracker: %v", err)
	}
	patch := map[string]interface{}{
		"messages":        b.Messages,
		"tool_executions": b.ToolExecutions,
		"is_interrupted":  true,
		"elapsed_seconds": time.Since(ab.startedAt).Seconds(),
	}
	if err := t.store.UpdateBlock(ab.blockID, patch); err != nil {
		log.Printf("tracker: persist interrupted block %s: %v", ab.blockID, err)
	}
	if err := t.store.CompleteBlock(ab.blockID); err != nil {
		log.Printf("tracker: complete interrupted block %s: %v", ab.blockID, err)
	}
	if t.notifier != nil {
		t.notifier.BlockCompleted(projectID, ab.blockID)
	}

	ab.outcome <- Outcome{
		BlockID:      ab.blockID,
		Interrupted:  true,
		MutatingTool: ab.hasMutatingTool(),
	}
	return true
}

// WasInterrupted reads and clears the project's one-shot interrupted flag.
// Exactly one consumer must call this per interruption.
func (t *Tracker) WasInterrupted(projectID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.interrupted[projectID]
	delete(t.interrupted, projectID)
	return was
}

// classify derives the interaction type by priority: a plan presented for
// approval beats embedded questions beats a plain response.
func (t *Tracker) classify(ab *activeBlock) string {
	for _, exec := range ab.tools {
		if exec.ToolName == ExitPlanTool {
			return models.InteractionPlanReady
		}
	}
	for _, msg := range ab.messages {
		if msg.Kind == "text" && strings.Contains(msg.Content, QuestionsMarker) {
			return models.InteractionQuestions
		}
	}
	return models.InteractionResponse
}

// persistTranscript writes the in-memory messages and tools to the block
// row. Failures are logged, not fatal: the next event retries implicitly.
// Caller holds the tracker mutex.
func (t *Tracker) persistTranscript(ab *activeBlock) {
	b := &models.Block{ID: ab.blockID}
	if err := b.EncodeMessages(ab.messages); err != nil {
		log.Printf("tracker: %v", err)
		return
	}
	if err := b.EncodeToolExecutions(ab.tools); err != nil {
		log.Printf("tracker: %v", err)
		return
	}
	patch := map[string]interface{}{
		"messages":        b.Messages,
		"tool_executions": b.ToolExecutions,
	}
	if err := t.store.UpdateBlock(ab.blockID, patch); err != nil {
		log.Printf("tracker: persist block %s: %v", ab.blockID, err)
		return
	}
	if t.notifier != nil {
		t.notifier.BlockUpdated(ab.projectID, ab.blockID)
	}
}

// closeOpenThinking assigns the open thinking entry its duration, measured
// from its own start time, and clears the open marker.
func (ab *activeBlock) closeOpenThinking() {
	if ab.openThinkingAt == nil {
		return
	}
	elapsed := time.Since(*ab.openThinkingAt).Seconds()
	for i := len(ab.messages) - 1; i >= 0; i-- {
		if ab.messages[i].Kind == "thinking" && ab.messages[i].ThinkingDurationSeconds == nil {
			ab.messages[i].ThinkingDurationSeconds = &elapsed
			break
		}
	}
	ab.openThinkingAt = nil
}

func (ab *activeBlock) hasMutatingTool() bool {
	for _, exec := range ab.tools {
		if mutatingTools[exec.ToolName] {
			return true
		}
	}
	return false
}
