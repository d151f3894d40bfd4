package github

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/models"
	gh "github.com/google/go-github/v68/github"
)

// stubRepos simulates the repositories API.
type stubRepos struct {
	existing map[string]bool // "owner/name"
	created  []string
	getErr   error
}

func (s *stubRepos) Get(ctx context.Context, owner, repo string) (*gh.Repository, *gh.Response, error) {
	if s.getErr != nil {
		return nil, &gh.Response{Response: &http.Response{StatusCode: http.StatusInternalServerError}}, s.getErr
	}
	if s.existing[owner+"/"+repo] {
		return &gh.Repository{
			Name:    gh.Ptr(repo),
			HTMLURL: gh.Ptr("https://github.com/" + owner + "/" + repo),
		}, &gh.Response{Response: &http.Response{StatusCode: http.StatusOK}}, nil
	}
	return nil, &gh.Response{Response: &http.Response{StatusCode: http.StatusNotFound}}, errors.New("not found")
}

func (s *stubRepos) Create(ctx context.Context, org string, repo *gh.Repository) (*gh.Repository, *gh.Response, error) {
	s.created = append(s.created, repo.GetName())
	return &gh.Repository{
		Name:    repo.Name,
		HTMLURL: gh.Ptr("https://github.com/me/" + repo.GetName()),
	}, nil, nil
}

// stubUsers serves the authenticated user.
type stubUsers struct{}

func (s *stubUsers) Get(ctx context.Context, user string) (*gh.User, *gh.Response, error) {
	return &gh.User{Login: gh.Ptr("me")}, nil, nil
}

// stubGit records local git operations.
type stubGit struct {
	isRepo  bool
	inits   int
	remotes []string
	pushes  []string
	branch  string
	pushErr error
	initErr error
}

func (g *stubGit) IsRepo(ctx context.Context, dir string) bool { return g.isRepo }

func (g *stubGit) Init(ctx context.Context, dir string) error {
	g.inits++
	return g.initErr
}

func (g *stubGit) CurrentBranch(ctx context.Context, dir string) (string, error) {
	if g.branch == "" {
		return "main", nil
	}
	return g.branch, nil
}

func (g *stubGit) AddRemote(ctx context.Context, dir, name, url string) error {
	g.remotes = append(g.remotes, name+" "+url)
	return nil
}

func (g *stubGit) Push(ctx context.Context, dir, remote, branch string) error {
	if g.pushErr != nil {
		return g.pushErr
	}
	g.pushes = append(g.pushes, remote+" "+branch)
	return nil
}

func newTestService(t *testing.T, repos *stubRepos, git *stubGit) *Service {
	t.Helper()
	svc, err := NewService(ServiceOpts{Token: "ghp_test", Git: git, Repos: repos, Users: &stubUsers{}})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestPublish_CreatesMissingRepo(t *testing.T) {
	repos := &stubRepos{existing: map[string]bool{}}
	git := &stubGit{isRepo: true}
	svc := newTestService(t, repos, git)

	url, err := svc.Publish(context.Background(), &models.Project{Name: "demo", Path: "/tmp/demo"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(repos.created) != 1 || repos.created[0] != "demo" {
		t.Errorf("created = %v", repos.created)
	}
	if url != "https://github.com/me/demo" {
		t.Errorf("url = %q", url)
	}
	if len(git.pushes) != 1 || git.pushes[0] != "origin main" {
		t.Errorf("pushes = %v", git.pushes)
	}
	if len(git.remotes) != 1 || !strings.Contains(git.remotes[0], "x-access-token:ghp_test@github.com/me/demo.git") {
		t.Errorf("remotes = %v", git.remotes)
	}
}

func TestPublish_ExistingRepoNotRecreated(t *testing.T) {
	repos := &stubRepos{existing: map[string]bool{"me/demo": true}}
	git := &stubGit{isRepo: true}
	svc := newTestService(t, repos, git)

	if _, err := svc.Publish(context.Background(), &models.Project{Name: "demo", Path: "/tmp/demo"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(repos.created) != 0 {
		t.Errorf("created = %v, want none", repos.created)
	}
}

func TestPublish_PinnedOwnerRepo(t *testing.T) {
	repos := &stubRepos{existing: map[string]bool{"acme/widgets": true}}
	git := &stubGit{isRepo: true}
	svc := newTestService(t, repos, git)

	p := &models.Project{Name: "demo", Path: "/tmp/demo", GitHubRepo: "acme/widgets"}
	url, err := svc.Publish(context.Background(), p)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if url != "https://github.com/acme/widgets" {
		t.Errorf("url = %q", url)
	}
}

func TestPublish_InitsNonRepo(t *testing.T) {
	repos := &stubRepos{existing: map[string]bool{"me/demo": true}}
	git := &stubGit{isRepo: false}
	svc := newTestService(t, repos, git)

	if _, err := svc.Publish(context.Background(), &models.Project{Name: "demo", Path: "/tmp/demo"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if git.inits != 1 {
		t.Errorf("inits = %d, want 1", git.inits)
	}
}

func TestSaveLoadToken(t *testing.T) {
	dir := t.TempDir()
	if err := SaveToken(dir, "ghp_secret"); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	info, err := os.Stat(TokenPath(dir))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %o, want 600", info.Mode().Perm())
	}

	token, err := LoadToken(dir)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if token != "ghp_secret" {
		t.Errorf("token = %q", token)
	}
}

func TestLoadToken_Missing(t *testing.T) {
	if _, err := LoadToken(t.TempDir()); err == nil {
		t.Fatal("expected error for missing token file")
	}
}

func TestPromptToken_Pipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	w.WriteString("ghp_piped\n")
	w.Close()

	var out strings.Builder
	token, err := PromptToken(r, &out)
	if err != nil {
		t.Fatalf("PromptToken: %v", err)
	}
	if token != "ghp_piped" {
		t.Errorf("token = %q", token)
	}
	if !strings.Contains(out.String(), "token") {
		t.Errorf("prompt = %q", out.String())
	}
}
