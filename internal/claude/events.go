// Package claude spawns and tracks assistant CLI sessions, decomposing the
// stream-json output of each run into typed events.
package claude

import (
	"encoding/json"
	"time"
)

// Event kinds, in the order they typically arrive within a run.
const (
	EventSystem     = "system"
	EventText       = "text"
	EventThinking   = "thinking"
	EventToolUse    = "tool_use"
	EventToolResult = "tool_result"
	EventResult     = "result"
)

// Event is one typed occurrence within an assistant run. A single NDJSON
// line may decompose into several events (an assistant message carries one
// event per content block).
type Event struct {
	ProjectID string
	Kind      string
	Timestamp time.Time

	// text / thinking
	Text string

	// tool_use
	ToolID    string
	ToolName  string
	ToolInput json.RawMessage

	// tool_result (ToolID identifies the matching tool_use)
	ToolError bool

	// system / result
	SessionID string

	// result
	IsError        bool
	DurationMillis int64
	InputTokens    int
	OutputTokens   int
	CostUSD        float64
}

// streamLine is the top-level shape of one stream-json NDJSON line.
type streamLine struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Duration  int64           `json:"duration_ms,omitempty"`
	CostUSD   float64         `json:"total_cost_usd,omitempty"`
	Usage     struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// contentBlock mirrors the content block types inside message payloads.
type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type messagePayload struct {
	Content []contentBlock `json:"content"`
}

// ParseLine decomposes one NDJSON line into zero or more events. Unparseable
// or unrecognized lines yield nil; the stream must tolerate them.
func ParseLine(projectID string, line []byte) []Event {
	if len(line) == 0 || line[0] != '{' {
		return nil
	}
	var sl streamLine
	if err := json.Unmarshal(line, &sl); err != nil {
		return nil
	}
	now := time.Now()

	switch sl.Type {
	case "system":
		if sl.Subtype != "init" {
			return nil
		}
		return []Event{{ProjectID: projectID, Kind: EventSystem, SessionID: sl.SessionID, Timestamp: now}}

	case "assistant":
		var msg messagePayload
		if err := json.Unmarshal(sl.Message, &msg); err != nil {
			return nil
		}
		var events []Event
		for _, cb := range msg.Content {
			switch cb.Type {
			case "text":
				events = append(events, Event{ProjectID: projectID, Kind: EventText, Text: cb.Text, Timestamp: now})
			case "thinking":
				events = append(events, Event{ProjectID: projectID, Kind: EventThinking, Text: cb.Thinking, Timestamp: now})
			case "tool_use":
				events = append(events, Event{
					ProjectID: projectID,
					Kind:      EventToolUse,
					ToolID:    cb.ID,
					ToolName:  cb.Name,
					ToolInput: cb.Input,
					Timestamp: now,
				})
			}
		}
		return events

	case "user":
		// Tool results come back wrapped in user messages.
		var msg messagePayload
		if err := json.Unmarshal(sl.Message, &msg); err != nil {
			return nil
		}
		var events []Event
		for _, cb := range msg.Content {
			if cb.Type != "tool_result" {
				continue
			}
			events = append(events, Event{
				ProjectID: projectID,
				Kind:      EventToolResult,
				ToolID:    cb.ToolUseID,
				ToolError: cb.IsError,
				Timestamp: now,
			})
		}
		return events

	case "result":
		return []Event{{
			ProjectID:      projectID,
			Kind:           EventResult,
			SessionID:      sl.SessionID,
			IsError:        sl.IsError,
			DurationMillis: sl.Duration,
			InputTokens:    sl.Usage.InputTokens,
			OutputTokens:   sl.Usage.OutputTokens,
			CostUSD:        sl.CostUSD,
			Timestamp:      now,
		}}
	}
	return nil
}

// ToolInputPath extracts a file path from a tool input payload, if present.
func ToolInputPath(input json.RawMessage) string {
	var in struct {
		FilePath string `json:"file_path"`
		Path     string `json:"path"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return ""
	}
	if in.FilePath != "" {
		return in.FilePath
	}
	return in.Path
}

// ToolInputCommand extracts a shell command from a tool input payload.
func ToolInputCommand(input json.RawMessage) string {
	var in struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return ""
	}
	return in.Command
}
