// Package gitops wraps the git CLI for checkpoint commits and restores.
// Calls carry short bounded timeouts; the orchestrator holds the project
// lock across them.
package gitops

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds each git invocation.
const DefaultTimeout = 30 * time.Second

// Runner executes a git command in a working directory and returns its
// trimmed combined output. Tests inject a stub.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// execRunner shells out to the real git binary.
type execRunner struct {
	timeout time.Duration
}

func (r *execRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed != "" {
			return trimmed, fmt.Errorf("git %s: %s", args[0], trimmed)
		}
		return trimmed, fmt.Errorf("git %s: %w", args[0], err)
	}
	return trimmed, nil
}

// Client runs git operations against project working directories.
type Client struct {
	runner Runner
}

// NewClient creates a Client using the real git binary.
func NewClient() *Client {
	return &Client{runner: &execRunner{timeout: DefaultTimeout}}
}

// NewClientWithRunner creates a Client with an injected runner (tests).
func NewClientWithRunner(r Runner) *Client {
	return &Client{runner: r}
}

// Status returns the changed paths in the working tree (porcelain format,
// one path per entry). An empty slice means a clean tree.
func (c *Client) Status(ctx context.Context, dir string) ([]string, error) {
	out, err := c.runner.Run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("gitops: status: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	lines := strings.Split(out, "\n")
	paths := make([]string, 0, len(lines))
	for _, line := range lines {
		// Porcelain lines are "XY path"; strip the 3-char status prefix.
		if len(line) > 3 {
			paths = append(paths, strings.TrimSpace(line[3:]))
		}
	}
	return paths, nil
}

// AddAll stages every change in the working tree.
func (c *Client) AddAll(ctx context.Context, dir string) error {
	if _, err := c.runner.Run(ctx, dir, "add", "-A"); err != nil {
		return fmt.Errorf("gitops: add: %w", err)
	}
	return nil
}

// Commit records staged changes with the given message.
func (c *Client) Commit(ctx context.Context, dir, message string) error {
	if _, err := c.runner.Run(ctx, dir, "commit", "-m", message); err != nil {
		return fmt.Errorf("gitops: commit: %w", err)
	}
	return nil
}

// HeadHash resolves the current HEAD commit hash via rev-parse rather than
// scraping commit output.
func (c *Client) HeadHash(ctx context.Context, dir string) (string, error) {
	out, err := c.runner.Run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("gitops: head hash: %w", err)
	}
	return out, nil
}

// ShortHash abbreviates a commit hash the way git would.
func (c *Client) ShortHash(ctx context.Context, dir, hash string) (string, error) {
	out, err := c.runner.Run(ctx, dir, "rev-parse", "--short", hash)
	if err != nil {
		return "", fmt.Errorf("gitops: short hash: %w", err)
	}
	return out, nil
}

// CommitExists reports whether the hash names a commit in this repository.
// A dangling or foreign hash must never pass.
func (c *Client) CommitExists(ctx context.Context, dir, hash string) bool {
	_, err := c.runner.Run(ctx, dir, "cat-file", "-e", hash+"^{commit}")
	return err == nil
}

// CurrentBranch returns the checked-out branch name, or "HEAD" when the
// repository is in a detached state.
func (c *Client) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := c.runner.Run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("gitops: current branch: %w", err)
	}
	return out, nil
}

// CheckoutBranchAt force-resets branch to point at hash and checks it out,
// so a restore never leaves the repository detached.
func (c *Client) CheckoutBranchAt(ctx context.Context, dir, branch, hash string) error {
	if _, err := c.runner.Run(ctx, dir, "checkout", "-B", branch, hash); err != nil {
		return fmt.Errorf("gitops: checkout %s at %s: %w", branch, hash, err)
	}
	return nil
}

// RestorePaths resets the given tracked paths to their committed state.
// Best-effort: paths that are not tracked are skipped silently.
func (c *Client) RestorePaths(ctx context.Context, dir string, paths []string) {
	for _, p := range paths {
		c.runner.Run(ctx, dir, "checkout", "--", p)
	}
}

// Init creates a repository in dir with an initial commit so the first
// checkpoint has a parent.
func (c *Client) Init(ctx context.Context, dir string) error {
	if _, err := c.runner.Run(ctx, dir, "init"); err != nil {
		return fmt.Errorf("gitops: init: %w", err)
	}
	if _, err := c.runner.Run(ctx, dir, "add", "-A"); err != nil {
		return fmt.Errorf("gitops: init add: %w", err)
	}
	if _, err := c.runner.Run(ctx, dir, "commit", "--allow-empty", "-m", "Initial commit"); err != nil {
		return fmt.Errorf("gitops: init commit: %w", err)
	}
	return nil
}

// IsRepo reports whether dir is inside a git working tree.
func (c *Client) IsRepo(ctx context.Context, dir string) bool {
	out, err := c.runner.Run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// AddRemote registers a remote, replacing any existing one with that name.
func (c *Client) AddRemote(ctx context.Context, dir, name, url string) error {
	c.runner.Run(ctx, dir, "remote", "remove", name)
	if _, err := c.runner.Run(ctx, dir, "remote", "add", name, url); err != nil {
		return fmt.Errorf("gitops: add remote %s: %w", name, err)
	}
	return nil
}

// Push pushes a branch to a remote, retrying once on failure.
func (c *Client) Push(ctx context.Context, dir, remote, branch string) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if _, err := c.runner.Run(ctx, dir, "push", "-u", remote, branch); err == nil {
			return nil
		} else {
			lastErr = fmt.Errorf("gitops: push %s %s (attempt %d): %w", remote, branch, attempt+1, err)
		}
		if attempt == 0 {
			time.Sleep(time.Second)
		}
	}
	return lastErr
}
