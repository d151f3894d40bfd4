package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/models"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/store"
)

// Restore checks the project out at a prior checkpoint commit. Runs under
// its own lock acquisition, so an explicit restore queues behind any prompt
// in flight.
func (o *Orchestrator) Restore(ctx context.Context, projectID, hash string) error {
	return o.restore(ctx, projectID, hash, false)
}

// restore validates, verifies, and performs the checkout. auto marks the
// auto-revert path: no block of its own, actions reattach to the
// interrupted block through the action log's latest-block fallback.
func (o *Orchestrator) restore(ctx context.Context, projectID, hash string, auto bool) error {
	// Hash validation happens before any repository access.
	if hash == "" || hash == "unknown" || len(hash) < minHashLen {
		return fmt.Errorf("orchestrator: restore %q: %w", hash, ErrInvalidCheckpoint)
	}

	p, err := o.store.GetProject(projectID)
	if err != nil {
		return err
	}

	return o.locks.WithLock(ctx, projectID, "checkpoint_restore", func(ctx context.Context) error {
		if !o.git.CommitExists(ctx, p.Path, hash) {
			return fmt.Errorf("orchestrator: restore %s: %w", hash, ErrCheckpointNotFound)
		}

		short, err := o.git.ShortHash(ctx, p.Path, hash)
		if err != nil {
			short = hash[:minHashLen]
		}

		// Explicit restores get their own block; the restore actions then
		// attach to it as the latest block.
		var restoreBlock *models.Block
		if !auto {
			restoreBlock, err = o.store.CreateBlock(projectID, fmt.Sprintf("Restore checkpoint %s", short), models.InteractionCheckpoint)
			if err != nil {
				return err
			}
			if o.notifier != nil {
				o.notifier.BlockCreated(projectID, restoreBlock.ID)
			}
		}

		started := time.Now()
		o.appendAction(projectID, models.Action{
			Type:    models.ActionCheckpoint,
			Message: fmt.Sprintf("Restoring checkpoint %s...", short),
		})

		// Tracked log files the assistant or dev server appends to are
		// reset first so the checkout never trips over them.
		o.git.RestorePaths(ctx, p.Path, o.ephemeralPaths)

		branch, err := o.git.CurrentBranch(ctx, p.Path)
		if err != nil || branch == "HEAD" {
			branch = "main"
		}

		if err := o.git.CheckoutBranchAt(ctx, p.Path, branch, hash); err != nil {
			o.failAction(projectID, err)
			return err
		}

		data, _ := json.Marshal(map[string]interface{}{
			"short_hash": short,
			"branch":     branch,
			"auto":       auto,
			"elapsed_ms": time.Since(started).Milliseconds(),
		})
		o.updateAction(projectID, store.ActionPatch{
			Status:  models.ActionSuccess,
			Message: fmt.Sprintf("Restored checkpoint %s on %s.", short, branch),
			Data:    string(data),
		})

		// The checkout is the restore; a dev server that will not come
		// back up does not undo it.
		o.restartDevServer(ctx, p)

		if restoreBlock != nil {
			if err := o.store.UpdateBlock(restoreBlock.ID, map[string]interface{}{
				"commit_hash": hash,
			}); err != nil {
				log.Printf("orchestrator: stamp restore block %s: %v", restoreBlock.ID, err)
			}
			if err := o.store.CompleteBlock(restoreBlock.ID); err != nil {
				log.Printf("orchestrator: complete restore block %s: %v", restoreBlock.ID, err)
			}
		}
		if o.notifier != nil {
			o.notifier.StatusChanged(projectID, "restored", fmt.Sprintf("Checkpoint %s restored.", short))
		}
		return nil
	})
}
