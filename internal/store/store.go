// Package store persists projects, blocks, and actions via GORM. It owns
// the durable half of block tracking; in-memory active-block state lives in
// the tracker.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps a GORM database with the block-storage operations the
// orchestrator consumes.
type Store struct {
	db *gorm.DB
}

// New creates a Store over an already-migrated database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateProject inserts a project, assigning an ID when absent.
func (s *Store) CreateProject(p *models.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Name == "" {
		return fmt.Errorf("store: project name is required")
	}
	if p.Path == "" {
		return fmt.Errorf("store: project path is required")
	}
	if err := s.db.Create(p).Error; err != nil {
		return fmt.Errorf("store: create project %s: %w", p.Name, err)
	}
	return nil
}

// GetProject fetches a project by ID.
func (s *Store) GetProject(id string) (*models.Project, error) {
	var p models.Project
	err := s.db.First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get project %s: %w", id, err)
	}
	return &p, nil
}

// ProjectByName fetches a project by its unique name.
func (s *Store) ProjectByName(name string) (*models.Project, error) {
	var p models.Project
	err := s.db.First(&p, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: project %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: project by name %q: %w", name, err)
	}
	return &p, nil
}

// ListProjects returns all projects, oldest first.
func (s *Store) ListProjects() ([]models.Project, error) {
	var projects []models.Project
	if err := s.db.Order("created_at ASC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	return projects, nil
}

// UpdateProject applies a field patch to a project.
func (s *Store) UpdateProject(id string, patch map[string]interface{}) error {
	result := s.db.Model(&models.Project{}).Where("id = ?", id).Updates(patch)
	if result.Error != nil {
		return fmt.Errorf("store: update project %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: project %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateBlock inserts a new incomplete block for a project.
func (s *Store) CreateBlock(projectID, prompt, interactionType string) (*models.Block, error) {
	if projectID == "" {
		return nil, fmt.Errorf("store: project id is required")
	}
	if interactionType == "" {
		interactionType = models.InteractionUserMessage
	}
	b := &models.Block{
		ID:              uuid.NewString(),
		ProjectID:       projectID,
		Prompt:          prompt,
		InteractionType: interactionType,
		CreatedAt:       time.Now(),
	}
	if err := s.db.Create(b).Error; err != nil {
		return nil, fmt.Errorf("store: create block: %w", err)
	}
	return b, nil
}

// UpdateBlock applies a field patch to a block.
func (s *Store) UpdateBlock(id string, patch map[string]interface{}) error {
	result := s.db.Model(&models.Block{}).Where("id = ?", id).Updates(patch)
	if result.Error != nil {
		return fmt.Errorf("store: update block %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: block %s: %w", id, ErrNotFound)
	}
	return nil
}

// CompleteBlock marks a block complete with a completion timestamp.
// Completing an already-complete block is a no-op, so a cancel racing a
// terminal event settles on a single completion.
func (s *Store) CompleteBlock(id string) error {
	now := time.Now()
	result := s.db.Model(&models.Block{}).
		Where("id = ? AND is_complete = ?", id, false).
		Updates(map[string]interface{}{
			"is_complete":  true,
			"completed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("store: complete block %s: %w", id, result.Error)
	}
	return nil
}

// GetBlock fetches a block with its actions, in append order.
func (s *Store) GetBlock(id string) (*models.Block, error) {
	var b models.Block
	err := s.db.Preload("Actions", func(db *gorm.DB) *gorm.DB {
		return db.Order("actions.id ASC")
	}).First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: block %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get block %s: %w", id, err)
	}
	return &b, nil
}

// History returns a project's blocks, newest first.
func (s *Store) History(projectID string, limit, offset int) ([]models.Block, error) {
	if limit <= 0 {
		limit = 50
	}
	var blocks []models.Block
	err := s.db.Preload("Actions", func(db *gorm.DB) *gorm.DB {
		return db.Order("actions.id ASC")
	}).Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&blocks).Error
	if err != nil {
		return nil, fmt.Errorf("store: history for project %s: %w", projectID, err)
	}
	return blocks, nil
}

// LatestBlock returns the most recently created block for a project. This
// backs the action log's best-effort reattachment when no block is active.
func (s *Store) LatestBlock(projectID string) (*models.Block, error) {
	var b models.Block
	err := s.db.Where("project_id = ?", projectID).
		Order("created_at DESC").
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: latest block for project %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest block for project %s: %w", projectID, err)
	}
	return &b, nil
}

// LatestRestorableBlock returns the newest block carrying a usable commit
// hash, the target for auto-revert after an interrupted run.
func (s *Store) LatestRestorableBlock(projectID string) (*models.Block, error) {
	var b models.Block
	err := s.db.Where("project_id = ? AND commit_hash != '' AND commit_hash != 'unknown'", projectID).
		Order("created_at DESC").
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: no restorable block for project %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest restorable block for project %s: %w", projectID, err)
	}
	return &b, nil
}

// AppendAction adds an action to a block's log.
func (s *Store) AppendAction(blockID string, action models.Action) (*models.Action, error) {
	if blockID == "" {
		return nil, fmt.Errorf("store: block id is required")
	}
	action.ID = 0
	action.BlockID = blockID
	if action.Status == "" {
		action.Status = models.ActionInProgress
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}
	if err := s.db.Create(&action).Error; err != nil {
		return nil, fmt.Errorf("store: append action to block %s: %w", blockID, err)
	}
	return &action, nil
}

// ActivitySummary aggregates completed-block activity for digests.
type ActivitySummary struct {
	Blocks       int64
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// ActivitySince summarizes blocks completed after the cutoff, across all
// projects.
func (s *Store) ActivitySince(cutoff time.Time) (ActivitySummary, error) {
	var sum ActivitySummary
	row := s.db.Model(&models.Block{}).
		Where("is_complete = ? AND completed_at > ?", true, cutoff).
		Select("COUNT(*) AS blocks, COALESCE(SUM(input_tokens),0) AS input_tokens, COALESCE(SUM(output_tokens),0) AS output_tokens, COALESCE(SUM(cost_usd),0) AS cost_usd")
	if err := row.Scan(&sum).Error; err != nil {
		return ActivitySummary{}, fmt.Errorf("store: activity since %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return sum, nil
}

// ActionPatch holds fields to apply to the last appended action. Empty
// fields are left untouched.
type ActionPatch struct {
	Status  string
	Message string
	Data    string
}

// UpdateLastAction patches the most recently appended action for a block in
// a single transaction, so two sequential workflow stages updating the same
// entry never race a read-modify-write.
func (s *Store) UpdateLastAction(blockID string, patch ActionPatch) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var last models.Action
		err := tx.Where("block_id = ?", blockID).Order("id DESC").First(&last).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("no actions for block %s: %w", blockID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("find last action: %w", err)
		}

		updates := map[string]interface{}{}
		if patch.Status != "" {
			updates["status"] = patch.Status
		}
		if patch.Message != "" {
			updates["message"] = patch.Message
		}
		if patch.Data != "" {
			updates["data"] = patch.Data
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.Action{}).Where("id = ?", last.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("patch action %d: %w", last.ID, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: update last action for block %s: %w", blockID, err)
	}
	return nil
}
