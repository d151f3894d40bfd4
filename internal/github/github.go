// Package github publishes local projects to GitHub: it ensures the remote
// repository exists and pushes the current branch. Source hosting only.
package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/models"
	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// RepoAPI is the slice of the GitHub repositories API the service uses.
type RepoAPI interface {
	Create(ctx context.Context, org string, repo *gh.Repository) (*gh.Repository, *gh.Response, error)
	Get(ctx context.Context, owner, repo string) (*gh.Repository, *gh.Response, error)
}

// UserAPI is the slice of the GitHub users API the service uses.
type UserAPI interface {
	Get(ctx context.Context, user string) (*gh.User, *gh.Response, error)
}

// Git is the local repository surface publishing needs.
type Git interface {
	IsRepo(ctx context.Context, dir string) bool
	Init(ctx context.Context, dir string) error
	CurrentBranch(ctx context.Context, dir string) (string, error)
	AddRemote(ctx context.Context, dir, name, url string) error
	Push(ctx context.Context, dir, remote, branch string) error
}

// Service publishes projects to GitHub.
type Service struct {
	repos RepoAPI
	users UserAPI
	git   Git
	token string
}

// ServiceOpts holds parameters for creating a Service.
type ServiceOpts struct {
	Token string
	Git   Git
	// For testing: inject API stubs instead of the real client.
	Repos RepoAPI
	Users UserAPI
}

// NewService creates a Service backed by an oauth2 static token source.
func NewService(opts ServiceOpts) (*Service, error) {
	if opts.Git == nil {
		return nil, fmt.Errorf("github: git client is required")
	}
	repos, users := opts.Repos, opts.Users
	if repos == nil || users == nil {
		if opts.Token == "" {
			return nil, fmt.Errorf("github: token is required")
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		client := gh.NewClient(oauth2.NewClient(context.Background(), ts))
		repos = client.Repositories
		users = client.Users
	}
	return &Service{repos: repos, users: users, git: opts.Git, token: opts.Token}, nil
}

// Publish pushes the project's current branch to GitHub, creating the
// remote repository when it does not exist yet. Returns the repository's
// web URL.
func (s *Service) Publish(ctx context.Context, p *models.Project) (string, error) {
	if !s.git.IsRepo(ctx, p.Path) {
		if err := s.git.Init(ctx, p.Path); err != nil {
			return "", fmt.Errorf("github: init repository: %w", err)
		}
	}

	owner, name, err := s.resolveTarget(ctx, p)
	if err != nil {
		return "", err
	}

	repo, err := s.ensureRepo(ctx, owner, name)
	if err != nil {
		return "", err
	}

	branch, err := s.git.CurrentBranch(ctx, p.Path)
	if err != nil || branch == "HEAD" {
		branch = "main"
	}

	// Token-authenticated HTTPS remote so the push needs no credential
	// helper.
	pushURL := fmt.Sprintf("https://x-access-token:%s@github.com/%s/%s.git", s.token, owner, name)
	if err := s.git.AddRemote(ctx, p.Path, "origin", pushURL); err != nil {
		return "", fmt.Errorf("github: %w", err)
	}
	if err := s.git.Push(ctx, p.Path, "origin", branch); err != nil {
		return "", fmt.Errorf("github: %w", err)
	}
	return repo.GetHTMLURL(), nil
}

// resolveTarget derives owner and repository name. The project may pin
// "owner/name" or just "name" in its GitHubRepo field; the project name is
// the fallback. The authenticated user is the default owner.
func (s *Service) resolveTarget(ctx context.Context, p *models.Project) (string, string, error) {
	target := p.GitHubRepo
	if target == "" {
		target = p.Name
	}
	if owner, name, ok := strings.Cut(target, "/"); ok {
		return owner, name, nil
	}

	user, _, err := s.users.Get(ctx, "")
	if err != nil {
		return "", "", fmt.Errorf("github: resolve authenticated user: %w", err)
	}
	return user.GetLogin(), target, nil
}

// ensureRepo fetches the repository, creating it (private) when missing.
func (s *Service) ensureRepo(ctx context.Context, owner, name string) (*gh.Repository, error) {
	repo, resp, err := s.repos.Get(ctx, owner, name)
	if err == nil {
		return repo, nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return nil, fmt.Errorf("github: get repository %s/%s: %w", owner, name, err)
	}

	created, _, err := s.repos.Create(ctx, "", &gh.Repository{
		Name:    gh.Ptr(name),
		Private: gh.Ptr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("github: create repository %s: %w", name, err)
	}
	return created, nil
}
