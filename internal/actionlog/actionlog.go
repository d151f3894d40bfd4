// Package actionlog records workflow sub-steps (commit, dev-server restart,
// checkpoint restore) against a project's current block, falling back to
// the most recently persisted block when none is active so post-completion
// actions still attach to the block that triggered them.
package actionlog

import (
	"fmt"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/models"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/store"
)

// BlockResolver locates the active block for a project. Satisfied by the
// tracker.
type BlockResolver interface {
	ActiveBlockID(projectID string) (string, bool)
}

// Notifier receives block-updated notifications. Nil is allowed.
type Notifier interface {
	BlockUpdated(projectID, blockID string)
}

// Log appends and patches actions for a project's block.
type Log struct {
	store    *store.Store
	resolver BlockResolver
	notifier Notifier
}

// New creates a Log. notifier may be nil.
func New(st *store.Store, resolver BlockResolver, notifier Notifier) *Log {
	return &Log{store: st, resolver: resolver, notifier: notifier}
}

// resolveBlock returns the project's active block id, or the latest
// persisted block as a best-effort reattachment. If several blocks complete
// in rapid succession the fallback can pick a neighbor; it is a convenience
// for display, not an identity guarantee.
func (l *Log) resolveBlock(projectID string) (string, error) {
	if id, ok := l.resolver.ActiveBlockID(projectID); ok {
		return id, nil
	}
	b, err := l.store.LatestBlock(projectID)
	if err != nil {
		return "", fmt.Errorf("actionlog: resolve block for project %s: %w", projectID, err)
	}
	return b.ID, nil
}

// Append adds an action to the project's current (or latest) block.
func (l *Log) Append(projectID string, action models.Action) error {
	blockID, err := l.resolveBlock(projectID)
	if err != nil {
		return err
	}
	if _, err := l.store.AppendAction(blockID, action); err != nil {
		return fmt.Errorf("actionlog: %w", err)
	}
	if l.notifier != nil {
		l.notifier.BlockUpdated(projectID, blockID)
	}
	return nil
}

// UpdateLast patches the most recently appended action on the project's
// current (or latest) block.
func (l *Log) UpdateLast(projectID string, patch store.ActionPatch) error {
	blockID, err := l.resolveBlock(projectID)
	if err != nil {
		return err
	}
	if err := l.store.UpdateLastAction(blockID, patch); err != nil {
		return fmt.Errorf("actionlog: %w", err)
	}
	if l.notifier != nil {
		l.notifier.BlockUpdated(projectID, blockID)
	}
	return nil
}
