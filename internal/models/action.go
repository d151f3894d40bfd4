package models

import "time"

// Action types.
const (
	ActionGitCommit  = "git_commit"
	ActionBuild      = "build"
	ActionDevServer  = "dev_server"
	ActionCheckpoint = "checkpoint_restore"
)

// Action statuses.
const (
	ActionInProgress = "in_progress"
	ActionSuccess    = "success"
	ActionError      = "error"
)

// Action is a logged sub-step of automated workflow (commit, dev-server
// restart, checkpoint restore) attached to a block. Rows are append-only
// except that the most recently appended action for a block may be patched
// as its step progresses.
type Action struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	BlockID   string `gorm:"size:36;index"`
	Type      string `gorm:"size:32"`
	Status    string `gorm:"size:16;default:in_progress"`
	Message   string `gorm:"type:text"`
	Data      string `gorm:"type:json"`
	CreatedAt time.Time
}
