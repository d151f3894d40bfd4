// Package server exposes the daemon's HTTP API: project CRUD-lite, prompt
// dispatch, cancel/restore, history, status, and the SSE event stream the
// UI consumes.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/models"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/notify"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/orchestrator"
	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/store"
	"github.com/gin-gonic/gin"
)

// Control is the orchestrator surface the API drives. Tests inject a stub.
type Control interface {
	SendPrompt(ctx context.Context, projectID, prompt, interactionType string) (*models.Block, error)
	Cancel(projectID string) error
	Restore(ctx context.Context, projectID, hash string) error
	Status(projectID string) (orchestrator.ProjectStatus, error)
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Store *store.Store
	Orch  Control
	Hub   *notify.Hub
	Port  int
	Out   io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("server: store is required")
	}
	if opts.Orch == nil {
		return fmt.Errorf("server: orchestrator is required")
	}
	if opts.Port <= 0 {
		opts.Port = 4777
	}

	router := newRouter(opts)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// newRouter builds the gin engine with all routes registered.
func newRouter(opts StartOpts) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &api{store: opts.Store, orch: opts.Orch, hub: opts.Hub}

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/projects", s.listProjects)
		apiGroup.POST("/projects", s.createProject)
		apiGroup.GET("/projects/:id", s.projectStatus)
		apiGroup.POST("/projects/:id/send", s.sendPrompt)
		apiGroup.POST("/projects/:id/cancel", s.cancelRun)
		apiGroup.POST("/projects/:id/restore", s.restoreCheckpoint)
		apiGroup.GET("/projects/:id/history", s.history)
		apiGroup.GET("/events", s.streamEvents)
	}
	return router
}

// api holds the handlers' shared dependencies.
type api struct {
	store *store.Store
	orch  Control
	hub   *notify.Hub
}

func (s *api) listProjects(c *gin.Context) {
	projects, err := s.store.ListProjects()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// createProjectRequest is the POST /api/projects payload.
type createProjectRequest struct {
	Name       string `json:"name" binding:"required"`
	Path       string `json:"path" binding:"required"`
	DevCommand string `json:"dev_command"`
	GitHubRepo string `json:"github_repo"`
}

func (s *api) createProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := &models.Project{
		Name:       req.Name,
		Path:       req.Path,
		DevCommand: req.DevCommand,
		GitHubRepo: req.GitHubRepo,
	}
	if err := s.store.CreateProject(p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *api) projectStatus(c *gin.Context) {
	st, err := s.orch.Status(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

// sendPromptRequest is the POST /api/projects/:id/send payload.
type sendPromptRequest struct {
	Prompt          string `json:"prompt" binding:"required"`
	InteractionType string `json:"interaction_type"`
}

// sendPrompt queues an assistant run. The run occupies the project's
// critical section for its full duration, so the handler dispatches it in
// the background and the client follows progress on the event stream.
func (s *api) sendPrompt(c *gin.Context) {
	projectID := c.Param("id")
	if _, err := s.store.GetProject(projectID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}

	var req sendPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	interactionType := req.InteractionType
	if interactionType == "" {
		interactionType = models.InteractionUserMessage
	}

	go func() {
		if _, err := s.orch.SendPrompt(context.Background(), projectID, req.Prompt, interactionType); err != nil {
			if s.hub != nil {
				s.hub.StatusChanged(projectID, "error", err.Error())
			}
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *api) cancelRun(c *gin.Context) {
	err := s.orch.Cancel(c.Param("id"))
	if errors.Is(err, orchestrator.ErrNoActiveBlock) {
		c.JSON(http.StatusConflict, gin.H{"error": "no active run"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// restoreRequest is the POST /api/projects/:id/restore payload.
type restoreRequest struct {
	Hash string `json:"hash" binding:"required"`
}

func (s *api) restoreCheckpoint(c *gin.Context) {
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.orch.Restore(c.Request.Context(), c.Param("id"), req.Hash)
	switch {
	case errors.Is(err, orchestrator.ErrInvalidCheckpoint):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrCheckpointNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "restored"})
	}
}

func (s *api) history(c *gin.Context) {
	projectID := c.Param("id")
	if _, err := s.store.GetProject(projectID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}

	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	blocks, err := s.store.History(projectID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocks": blocks})
}

// intQuery parses an integer query parameter with a fallback.
func intQuery(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}
