package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/devserver"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/models"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/store"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/tracker"
)

// completionWorkflow runs after a non-interrupted terminal outcome, still
// inside the send-prompt critical section. A block whose tool executions
// never mutated a file gets a single informational action and nothing else.
// Commit failure does not veto the dev-server restart: the two sub-steps are
// siblings, each recording its own outcome.
func (o *Orchestrator) completionWorkflow(ctx context.Context, p *models.Project, out tracker.Outcome) {
	if !out.MutatingTool {
		o.appendAction(p.ID, models.Action{
			Type:    models.ActionGitCommit,
			Status:  models.ActionSuccess,
			Message: "No file changes, nothing to commit.",
		})
		return
	}

	o.commitCheckpoint(ctx, p, out.BlockID)
	o.restartDevServer(ctx, p)
}

// commitCheckpoint records the working tree as a checkpoint commit and
// stamps the block with the resulting hash. Each git failure downgrades the
// action to an error and aborts the remaining commit steps.
func (o *Orchestrator) commitCheckpoint(ctx context.Context, p *models.Project, blockID string) {
	started := time.Now()
	o.appendAction(p.ID, models.Action{
		Type:    models.ActionGitCommit,
		Message: "Checking working tree...",
	})

	paths, err := o.git.Status(ctx, p.Path)
	if err != nil {
		o.failAction(p.ID, err)
		return
	}
	if len(paths) == 0 {
		o.updateAction(p.ID, store.ActionPatch{
			Status:  models.ActionSuccess,
			Message: "Nothing to commit.",
		})
		return
	}

	if err := o.git.AddAll(ctx, p.Path); err != nil {
		o.failAction(p.ID, err)
		return
	}
	if err := o.git.Commit(ctx, p.Path, checkpointMessage); err != nil {
		o.failAction(p.ID, err)
		return
	}

	hash, err := o.git.HeadHash(ctx, p.Path)
	if err != nil {
		o.failAction(p.ID, err)
		return
	}
	short, err := o.git.ShortHash(ctx, p.Path, hash)
	if err != nil {
		short = hash[:minHashLen]
	}

	if err := o.store.UpdateBlock(blockID, map[string]interface{}{
		"commit_hash":   hash,
		"files_changed": len(paths),
	}); err != nil {
		log.Printf("orchestrator: stamp block %s with commit: %v", blockID, err)
	}

	data, _ := json.Marshal(map[string]interface{}{
		"short_hash":    short,
		"files_changed": len(paths),
		"elapsed_ms":    time.Since(started).Milliseconds(),
	})
	o.updateAction(p.ID, store.ActionPatch{
		Status:  models.ActionSuccess,
		Message: fmt.Sprintf("Committed %d files at %s.", len(paths), short),
		Data:    string(data),
	})
}

// restartDevServer bounces the project's dev server after a mutating run.
// Only a server that is running, or that exited on its own, is restarted;
// one the user never started (or stopped on purpose) stays down.
func (o *Orchestrator) restartDevServer(ctx context.Context, p *models.Project) {
	status := o.dev.Status(p.ID)
	if status != devserver.StatusRunning && status != devserver.StatusError {
		return
	}

	started := time.Now()
	o.appendAction(p.ID, models.Action{
		Type:    models.ActionDevServer,
		Message: "Restarting dev server...",
	})

	if err := o.dev.Stop(p.ID, true); err != nil {
		o.failAction(p.ID, err)
		return
	}

	select {
	case <-time.After(o.settle):
	case <-ctx.Done():
		o.failAction(p.ID, ctx.Err())
		return
	}

	port, err := o.dev.Start(ctx, devserver.StartOpts{ProjectID: p.ID, Dir: p.Path, Command: p.DevCommand})
	if err != nil {
		o.failAction(p.ID, err)
		if o.notifier != nil {
			o.notifier.StatusChanged(p.ID, "error", fmt.Sprintf("Dev server restart failed: %v", err))
		}
		return
	}

	data, _ := json.Marshal(map[string]interface{}{
		"port":       port,
		"elapsed_ms": time.Since(started).Milliseconds(),
	})
	o.updateAction(p.ID, store.ActionPatch{
		Status:  models.ActionSuccess,
		Message: fmt.Sprintf("Dev server restarted on port %d.", port),
		Data:    string(data),
	})
}

// appendAction logs a workflow sub-step; persistence failures must never
// abort the workflow itself.
func (o *Orchestrator) appendAction(projectID string, action models.Action) {
	if err := o.actions.Append(projectID, action); err != nil {
		log.Printf("orchestrator: append action for project %s: %v", projectID, err)
	}
}

// updateAction patches the sub-step appended last.
func (o *Orchestrator) updateAction(projectID string, patch store.ActionPatch) {
	if err := o.actions.UpdateLast(projectID, patch); err != nil {
		log.Printf("orchestrator: update action for project %s: %v", projectID, err)
	}
}

// failAction downgrades the last sub-step to an error carrying the cause.
func (o *Orchestrator) failAction(projectID string, cause error) {
	o.updateAction(projectID, store.ActionPatch{
		Status:  models.ActionError,
		Message: cause.Error(),
	})
}
