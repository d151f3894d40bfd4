package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Interaction types classify what a block represents in the conversation.
const (
	InteractionUserMessage    = "user_message"
	InteractionAnswers        = "answers"
	InteractionPlanApproval   = "plan_approval"
	InteractionCheckpoint     = "checkpoint_restore"
	InteractionInitialization = "initialization"
	InteractionContextCleared = "context_cleared"
	InteractionResponse       = "claude_response"
	InteractionPlanReady      = "plan_ready"
	InteractionQuestions      = "questions"
)

// Block is one user-to-assistant exchange: prompt sent, events streamed,
// completion recorded. Messages and tool executions are stored as JSON
// columns; actions live in their own table so the last one can be patched
// atomically.
type Block struct {
	ID              string `gorm:"primaryKey;size:36"`
	ProjectID       string `gorm:"size:36;index"`
	Prompt          string `gorm:"type:text"`
	InteractionType string `gorm:"size:32;default:user_message"`
	IsComplete      bool   `gorm:"index"`
	IsInterrupted   bool

	Messages       string `gorm:"type:json"` // []BlockMessage
	ToolExecutions string `gorm:"type:json"` // []ToolExecution

	CommitHash   string `gorm:"size:40"`
	FilesChanged int

	ElapsedSeconds float64
	InputTokens    int
	OutputTokens   int
	CostUSD        float64

	CreatedAt   time.Time
	CompletedAt *time.Time

	Actions []Action `gorm:"foreignKey:BlockID"`
}

// BlockMessage is a single entry in a block's message history.
type BlockMessage struct {
	Kind                    string    `json:"kind"` // "text" or "thinking"
	Content                 string    `json:"content"`
	ThinkingDurationSeconds *float64  `json:"thinking_duration_seconds,omitempty"`
	Timestamp               time.Time `json:"timestamp"`
}

// ToolExecution records one tool call made by the assistant during a block.
type ToolExecution struct {
	ToolID    string     `json:"tool_id"`
	ToolName  string     `json:"tool_name"`
	FilePath  string     `json:"file_path,omitempty"`
	Command   string     `json:"command,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Succeeded *bool      `json:"succeeded,omitempty"`
}

// CompletionStats summarizes a finished assistant run.
type CompletionStats struct {
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	CostUSD        float64 `json:"cost_usd"`
}

// DecodeMessages unmarshals the Messages JSON column.
func (b *Block) DecodeMessages() ([]BlockMessage, error) {
	if b.Messages == "" {
		return nil, nil
	}
	var msgs []BlockMessage
	if err := json.Unmarshal([]byte(b.Messages), &msgs); err != nil {
		return nil, fmt.Errorf("models: decode messages for block %s: %w", b.ID, err)
	}
	return msgs, nil
}

// DecodeToolExecutions unmarshals the ToolExecutions JSON column.
func (b *Block) DecodeToolExecutions() ([]ToolExecution, error) {
	if b.ToolExecutions == "" {
		return nil, nil
	}
	var tools []ToolExecution
	if err := json.Unmarshal([]byte(b.ToolExecutions), &tools); err != nil {
		return nil, fmt.Errorf("models: decode tool executions for block %s: %w", b.ID, err)
	}
	return tools, nil
}

// EncodeMessages marshals messages into the Messages JSON column.
func (b *Block) EncodeMessages(msgs []BlockMessage) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("models: encode messages for block %s: %w", b.ID, err)
	}
	b.Messages = string(data)
	return nil
}

// EncodeToolExecutions marshals tools into the ToolExecutions JSON column.
func (b *Block) EncodeToolExecutions(tools []ToolExecution) error {
	data, err := json.Marshal(tools)
	if err != nil {
		return fmt.Errorf("models: encode tool executions for block %s: %w", b.ID, err)
	}
	b.ToolExecutions = string(data)
	return nil
}
