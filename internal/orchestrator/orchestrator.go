// Package orchestrator ties the collaborators together: it serializes
// mutating work per project through the lock registry, drives assistant runs
// through the session manager, and runs the post-completion checkpoint
// workflow. All mutating entry points acquire the project lock; Cancel is
// the deliberate exception.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/actionlog"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/claude"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/devserver"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/lock"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/models"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/store"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/tracker"
)

// Sentinel errors callers distinguish with errors.Is.
var (
	// ErrInvalidCheckpoint marks a restore target that fails validation
	// before any repository access: empty, the "unknown" placeholder, or
	// too short to be an abbreviated commit hash.
	ErrInvalidCheckpoint = errors.New("orchestrator: invalid checkpoint")

	// ErrCheckpointNotFound marks a well-formed hash that names no commit
	// in the project repository.
	ErrCheckpointNotFound = errors.New("orchestrator: checkpoint not found")

	// ErrNoActiveBlock is returned by Cancel when nothing is running.
	ErrNoActiveBlock = errors.New("orchestrator: no active block")
)

// checkpointMessage is the fixed commit message for workflow checkpoints.
const checkpointMessage = "BeeSwarm checkpoint"

// minHashLen is the shortest abbreviated hash accepted for restore.
const minHashLen = 7

// Sessions is the assistant session manager contract. Satisfied by
// *claude.Manager; tests inject a stub.
type Sessions interface {
	Send(ctx context.Context, opts claude.SendOpts) error
	Get(projectID string) (claude.Info, bool)
	Interrupt(projectID string)
	Destroy(projectID string)
	Events() <-chan claude.Event
}

// Git is the version-control contract. Satisfied by *gitops.Client.
type Git interface {
	Status(ctx context.Context, dir string) ([]string, error)
	AddAll(ctx context.Context, dir string) error
	Commit(ctx context.Context, dir, message string) error
	HeadHash(ctx context.Context, dir string) (string, error)
	ShortHash(ctx context.Context, dir, hash string) (string, error)
	CommitExists(ctx context.Context, dir, hash string) bool
	CurrentBranch(ctx context.Context, dir string) (string, error)
	CheckoutBranchAt(ctx context.Context, dir, branch, hash string) error
	RestorePaths(ctx context.Context, dir string, paths []string)
}

// DevServers is the dev-server manager contract. Satisfied by
// *devserver.Manager.
type DevServers interface {
	Status(projectID string) string
	Start(ctx context.Context, opts devserver.StartOpts) (int, error)
	Stop(projectID string, force bool) error
}

// Notifier receives project lifecycle notifications. Nil is allowed.
type Notifier interface {
	BlockCreated(projectID, blockID string)
	StatusChanged(projectID, status, detail string)
}

// Orchestrator is the daemon's control plane.
type Orchestrator struct {
	store    *store.Store
	locks    *lock.Registry
	tracker  *tracker.Tracker
	actions  *actionlog.Log
	sessions Sessions
	git      Git
	dev      DevServers
	notifier Notifier

	settle         time.Duration
	ephemeralPaths []string
}

// Opts holds the collaborators for creating an Orchestrator.
type Opts struct {
	Store    *store.Store
	Locks    *lock.Registry
	Tracker  *tracker.Tracker
	Actions  *actionlog.Log
	Sessions Sessions
	Git      Git
	Dev      DevServers
	Notifier Notifier // may be nil

	// SettleDelay is the pause between stopping and restarting a dev
	// server, giving the old process group time to free its port.
	SettleDelay time.Duration

	// EphemeralPaths are tracked log-style files reset before a restore
	// so they never conflict with the checkout.
	EphemeralPaths []string
}

// New creates an Orchestrator.
func New(opts Opts) *Orchestrator {
	settle := opts.SettleDelay
	if settle == 0 {
		settle = 800 * time.Millisecond
	}
	return &Orchestrator{
		store:          opts.Store,
		locks:          opts.Locks,
		tracker:        opts.Tracker,
		actions:        opts.Actions,
		sessions:       opts.Sessions,
		git:            opts.Git,
		dev:            opts.Dev,
		notifier:       opts.Notifier,
		settle:         settle,
		ephemeralPaths: opts.EphemeralPaths,
	}
}

// Run pumps assistant events into the tracker until ctx is cancelled. The
// single pump goroutine is what keeps event application strictly ordered.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.sessions.Events():
			o.tracker.Apply(ev)
		}
	}
}

// SendPrompt runs one assistant exchange for the project: create the block,
// spawn the run, wait for its outcome, then run the completion workflow.
// The whole exchange happens inside the project's critical section, so
// concurrent prompts against one project queue up FIFO.
func (o *Orchestrator) SendPrompt(ctx context.Context, projectID, prompt, interactionType string) (*models.Block, error) {
	p, err := o.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}

	var block *models.Block
	err = o.locks.WithLock(ctx, projectID, "send_prompt", func(ctx context.Context) error {
		// A session recorded against a different path belongs to a moved
		// or recreated project; its context is unusable.
		if info, ok := o.sessions.Get(projectID); ok && info.ProjectPath != p.Path {
			log.Printf("orchestrator: project %s session path %s diverged from %s, destroying session",
				projectID, info.ProjectPath, p.Path)
			o.sessions.Destroy(projectID)
		}

		block, err = o.store.CreateBlock(projectID, prompt, interactionType)
		if err != nil {
			return err
		}
		if o.notifier != nil {
			o.notifier.BlockCreated(projectID, block.ID)
		}

		outcome := o.tracker.StartBlock(projectID, block.ID)

		if err := o.sessions.Send(ctx, claude.SendOpts{
			ProjectID:   projectID,
			ProjectPath: p.Path,
			Prompt:      prompt,
			Resume:      true,
		}); err != nil {
			// Finalize the block as errored through the normal terminal
			// path so no active context leaks.
			o.tracker.Apply(claude.Event{
				ProjectID: projectID,
				Kind:      claude.EventResult,
				IsError:   true,
				Timestamp: time.Now(),
			})
			<-outcome
			return fmt.Errorf("orchestrator: send prompt: %w", err)
		}

		select {
		case out := <-outcome:
			interrupted := out.Interrupted || o.tracker.WasInterrupted(projectID)
			if interrupted {
				if out.MutatingTool {
					go o.autoRevert(projectID)
				}
				return nil
			}
			o.completionWorkflow(ctx, p, out)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return nil, err
	}
	return block, nil
}

// Cancel interrupts the project's active run. It deliberately bypasses the
// lock: the point is to reach a run already inside the critical section.
// The waiting SendPrompt observes the interrupted outcome and dispatches
// auto-revert if mutating tools already ran.
func (o *Orchestrator) Cancel(projectID string) error {
	if !o.tracker.Cancel(projectID) {
		return fmt.Errorf("orchestrator: cancel project %s: %w", projectID, ErrNoActiveBlock)
	}
	o.sessions.Interrupt(projectID)
	if o.notifier != nil {
		o.notifier.StatusChanged(projectID, "interrupted", "Run stopped by user.")
	}
	return nil
}

// autoRevert restores the newest checkpointed state after an interrupted
// mutating run. It runs on its own goroutine with its own lock acquisition;
// failures are logged, the working tree stays as the user stopped it.
func (o *Orchestrator) autoRevert(projectID string) {
	b, err := o.store.LatestRestorableBlock(projectID)
	if err != nil {
		log.Printf("orchestrator: auto-revert project %s: %v", projectID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := o.restore(ctx, projectID, b.CommitHash, true); err != nil {
		log.Printf("orchestrator: auto-revert project %s to %s: %v", projectID, b.CommitHash, err)
	}
}

// ProjectStatus aggregates a project's live state for CLIs and the API.
type ProjectStatus struct {
	Project   models.Project `json:"project"`
	Session   string         `json:"session"`
	DevServer string         `json:"dev_server"`
	DevPort   int            `json:"dev_port,omitempty"`
	Locked    bool           `json:"locked"`
	Queue     []string       `json:"queue,omitempty"`
}

// Status reports the project's session, dev-server, and lock state.
func (o *Orchestrator) Status(projectID string) (ProjectStatus, error) {
	p, err := o.store.GetProject(projectID)
	if err != nil {
		return ProjectStatus{}, err
	}

	st := ProjectStatus{
		Project:   *p,
		Session:   claude.StatusIdle,
		DevServer: o.dev.Status(projectID),
		Locked:    o.locks.IsLocked(projectID),
		Queue:     o.locks.Queue(projectID),
	}
	if info, ok := o.sessions.Get(projectID); ok {
		st.Session = info.Status
	}
	if st.DevServer == devserver.StatusRunning {
		if port, ok := o.devPort(projectID); ok {
			st.DevPort = port
		}
	}
	return st, nil
}

// devPort asks the manager for the listening port when it exposes one.
func (o *Orchestrator) devPort(projectID string) (int, bool) {
	type porter interface {
		Port(projectID string) (int, bool)
	}
	if pm, ok := o.dev.(porter); ok {
		return pm.Port(projectID)
	}
	return 0, false
}

// ReleaseAllLocks force-clears the lock registry. Shutdown escape hatch.
func (o *Orchestrator) ReleaseAllLocks() {
	o.locks.ReleaseAll()
}
